package types

import "reflect"

// IsAssignable reports whether sub is super or one of its subtypes.
// A type is a subtype of an interface it implements, directly or through
// its pointer, and of any struct it embeds at any depth.
func IsAssignable(sub, super reflect.Type) bool {
	if sub == nil || super == nil {
		return false
	}
	if sub == super {
		return true
	}

	switch super.Kind() {
	case reflect.Interface:
		return sub.Implements(super) || (sub.Kind() != reflect.Pointer && reflect.PointerTo(sub).Implements(super))
	case reflect.Pointer:
		if sub.Kind() == reflect.Pointer {
			return IsAssignable(sub.Elem(), super.Elem())
		}
		return false
	case reflect.Struct:
		return embeds(sub, super, 0)
	}

	return false
}

const maxEmbedDepth = 16

func embeds(t, target reflect.Type, depth int) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || depth > maxEmbedDepth {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft == target || embeds(ft, target, depth+1) {
			return true
		}
	}
	return false
}

// IsNilable reports whether values of t can be nil.
func IsNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// IsCompatible reports whether v can be stored in a location of type target.
// Besides plain assignability, a nil value is compatible with any nilable type,
// and a value and a pointer to a value of the same type are considered
// equivalent: T is compatible with *T and *T with T.
func IsCompatible(target reflect.Type, v any) bool {
	if v == nil {
		return IsNilable(target)
	}

	vt := reflect.TypeOf(v)
	if vt.AssignableTo(target) {
		return true
	}
	if target.Kind() == reflect.Pointer && vt == target.Elem() {
		return true
	}
	if vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(target) {
		return !reflect.ValueOf(v).IsNil()
	}
	return false
}

// Assign stores v into dst, applying the equivalences accepted by IsCompatible.
// It reports false if v is not compatible with the type of dst.
func Assign(dst reflect.Value, v any) bool {
	t := dst.Type()
	if v == nil {
		if !IsNilable(t) {
			return false
		}
		dst.Set(reflect.Zero(t))
		return true
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		dst.Set(rv)
	case t.Kind() == reflect.Pointer && rv.Type() == t.Elem():
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		dst.Set(p)
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(t):
		dst.Set(rv.Elem())
	default:
		return false
	}
	return true
}
