// Package delegate provides Callback, a comparable value that binds either a
// free function or an (object, method) pair behind one call signature.
//
// Subscribers do not need to implement a shared interface: any function
// taking the event, or any method taking the event, can be bound.
//
//	type Dog struct{ volume int }
//	func (d *Dog) Bark(v int) { d.volume = v }
//
//	speak := delegate.Method(&spot, (*Dog).Bark)
//	speak.Invoke(50)
//
//	speak = delegate.Func(logVolume)
//	copy := speak
//	copy.Equal(speak) // true
//
// # Identity
//
// Free functions are identified by their code pointer. Every closure created
// from the same function literal shares one code pointer, so two such closures
// compare equal even if they capture different state. Bind stateful
// subscribers with Method instead, where the object address is part of the
// identity.
//
// Distinct values of a zero-size type may share one address, so Method
// callbacks bound to them can compare equal. Give receivers at least one field
// when each needs its own subscription.
package delegate

import (
	"cmp"
	"fmt"
	"reflect"
	"runtime"
	"unsafe"
)

// Kind reports what a Callback is bound to.
type Kind uint8

// Callback kinds, in their ordering precedence.
const (
	KindUnset Kind = iota
	KindFunc
	KindMethod
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindMethod:
		return "method"
	default:
		return "unset"
	}
}

// Callback is a value-semantic reference to something callable with a T.
// The zero value is unset and safe to invoke.
type Callback[T any] struct {
	kind Kind
	code uintptr
	obj  unsafe.Pointer
	call func(T)
}

// Func binds a free function. A nil fn yields an unset Callback.
func Func[T any](fn func(T)) Callback[T] {
	if fn == nil {
		return Callback[T]{}
	}
	return Callback[T]{
		kind: KindFunc,
		code: codePointer(fn),
		call: fn,
	}
}

// Method binds method m to obj. Pass a method expression:
//
//	delegate.Method(&spot, (*Dog).Bark)
//
// A nil obj or m yields an unset Callback.
func Method[O, T any](obj *O, m func(*O, T)) Callback[T] {
	if obj == nil || m == nil {
		return Callback[T]{}
	}
	return Callback[T]{
		kind: KindMethod,
		code: codePointer(m),
		obj:  unsafe.Pointer(obj),
		call: func(v T) { m(obj, v) },
	}
}

func codePointer(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Invoke calls the bound target. Invoking an unset Callback does nothing.
func (c Callback[T]) Invoke(v T) {
	if c.call != nil {
		c.call(v)
	}
}

// IsSet reports whether the Callback is bound.
func (c Callback[T]) IsSet() bool {
	return c.kind != KindUnset
}

// Kind reports what the Callback is bound to.
func (c Callback[T]) Kind() Kind {
	return c.kind
}

// Reset clears the binding.
func (c *Callback[T]) Reset() {
	*c = Callback[T]{}
}

// Set rebinds c to other's target in a single assignment.
func (c *Callback[T]) Set(other Callback[T]) {
	*c = other
}

// Equal reports whether both are unset, or both are bound to the same
// function and, for methods, the same object.
func (c Callback[T]) Equal(other Callback[T]) bool {
	return c.kind == other.kind && c.code == other.code && c.obj == other.obj
}

// Less reports whether c orders before other. See Compare.
func (c Callback[T]) Less(other Callback[T]) bool {
	return Compare(c, other) < 0
}

// Compare orders callbacks: unset first, then free functions, then bound
// methods; within a kind by code pointer, then by object address. The order
// carries no meaning beyond giving containers a total order.
func Compare[T any](a, b Callback[T]) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.code, b.code); c != 0 {
		return c
	}
	return cmp.Compare(uintptr(a.obj), uintptr(b.obj))
}

// String describes the binding for logs.
func (c Callback[T]) String() string {
	switch c.kind {
	case KindFunc:
		return "func " + funcName(c.code)
	case KindMethod:
		return fmt.Sprintf("method %s on %p", funcName(c.code), c.obj)
	default:
		return "unset"
	}
}

func funcName(pc uintptr) string {
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return fmt.Sprintf("%#x", pc)
}
