package xcomm

import (
	"reflect"
	"sync"

	"github.com/tiendc/go-deepcopy"
)

// copyPlan describes how values of one type are made independent.
type copyPlan uint8

const (
	// planShare: no mutable memory is reachable, or the type is opaque.
	planShare copyPlan = iota
	// planDeep: the value reaches slices, maps or pointers and is deep-copied.
	planDeep
)

var copyPlans sync.Map // reflect.Type -> copyPlan

// ownedCopy returns a copy of v that shares no mutable memory with it.
//
// A `Clone()` method returning v's own type takes precedence. Otherwise
// values reaching slices, maps or pointers through exported fields are
// deep-copied. Scalars are already copied by assignment. Types carrying
// unexported state (time.Time, sync types, most library structs) are opaque
// and shared as-is, as are channels and funcs; give such payloads a Clone
// method to have them copied.
func ownedCopy(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	t := rv.Type()

	if c, ok := cloneMethod(rv); ok {
		return c.Call(nil)[0].Interface()
	}
	if planFor(t) != planDeep {
		return v
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return v
		}
	}

	src := reflect.New(t)
	src.Elem().Set(rv)
	dst := reflect.New(t)
	if err := deepcopy.Copy(dst.Interface(), src.Interface()); err != nil {
		return v
	}
	return dst.Elem().Interface()
}

func cloneMethod(rv reflect.Value) (reflect.Value, bool) {
	t := rv.Type()
	m, ok := t.MethodByName("Clone")
	if !ok || m.Type.NumIn() != 1 || m.Type.NumOut() != 1 || m.Type.Out(0) != t {
		return reflect.Value{}, false
	}
	if t.Kind() == reflect.Pointer && rv.IsNil() {
		return reflect.Value{}, false
	}
	return rv.Method(m.Index), true
}

func planFor(t reflect.Type) copyPlan {
	if p, ok := copyPlans.Load(t); ok {
		return p.(copyPlan)
	}
	refs, opaque := inspect(t, map[reflect.Type]bool{})
	p := planShare
	if refs && !opaque {
		p = planDeep
	}
	copyPlans.Store(t, p)
	return p
}

// inspect reports whether t reaches mutable memory and whether it contains a
// type the copier cannot reproduce faithfully.
func inspect(t reflect.Type, seen map[reflect.Type]bool) (refs, opaque bool) {
	if seen[t] {
		// recursive types always go through a pointer, slice or map
		return true, false
	}
	seen[t] = true
	defer delete(seen, t)

	switch t.Kind() {
	case reflect.Slice, reflect.Pointer:
		_, op := inspect(t.Elem(), seen)
		return true, op
	case reflect.Map:
		_, kop := inspect(t.Key(), seen)
		_, eop := inspect(t.Elem(), seen)
		return true, kop || eop
	case reflect.Array:
		return inspect(t.Elem(), seen)
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				return false, true
			}
			r, op := inspect(f.Type, seen)
			refs = refs || r
			if op {
				return refs, true
			}
		}
		return refs, false
	case reflect.Interface:
		// dynamic contents are resolved by the copier at run time
		return true, false
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false, true
	default:
		return false, false
	}
}
