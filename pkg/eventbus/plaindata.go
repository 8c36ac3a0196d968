package eventbus

import (
	"fmt"
	"reflect"
)

// checkPlainData reports an error if values of t hold Go pointers in any
// form. Records are copied into raw arena memory that the garbage collector
// does not scan, so only pointer-free types can be buffered.
func checkPlainData(t reflect.Type) error {
	if path, kind, ok := findPointer(t, t.String()); ok {
		return NewError(CodeNotPlainData,
			fmt.Sprintf("%s holds a %s at %s", t, kind, path),
			map[string]any{"type": t.String(), "field": path})
	}
	return nil
}

func findPointer(t reflect.Type, path string) (string, reflect.Kind, bool) {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return "", 0, false
	case reflect.Array:
		return findPointer(t.Elem(), path+"[]")
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if p, k, ok := findPointer(f.Type, path+"."+f.Name); ok {
				return p, k, true
			}
		}
		return "", 0, false
	default:
		return path, t.Kind(), true
	}
}
