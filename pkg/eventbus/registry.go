package eventbus

import (
	"reflect"
	"sync"
)

// TypeID identifies one event type. IDs are dense, start at zero and are
// never reused.
type TypeID uint32

// Registry maps event types to TypeIDs. The first type seen gets 0, the next
// 1, and so on. A Registry can be shared by several buses; it is the only
// synchronized object in this package.
type Registry struct {
	mu    sync.RWMutex
	ids   map[reflect.Type]TypeID
	types []reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ids: make(map[reflect.Type]TypeID),
	}
}

// IDOf returns the TypeID of T, assigning the next free one on first use.
func IDOf[T any](r *Registry) TypeID {
	return r.idOf(reflect.TypeFor[T]())
}

func (r *Registry) idOf(t reflect.Type) TypeID {
	r.mu.RLock()
	id, ok := r.ids[t]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check in case another goroutine assigned it
	if id, ok := r.ids[t]; ok {
		return id
	}
	id = TypeID(len(r.types))
	r.ids[t] = id
	r.types = append(r.types, t)
	return id
}

// Lookup returns the TypeID of t without assigning one.
func (r *Registry) Lookup(t reflect.Type) (TypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[t]
	return id, ok
}

// TypeOf returns the type registered under id.
func (r *Registry) TypeOf(id TypeID) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.types) {
		return nil, false
	}
	return r.types[id], true
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
