package types

import (
	"reflect"
	"strconv"
	"strings"
)

// Flags describes the structural family of a type.
type Flags uint8

// List of type flags.
const (
	FlagContainer Flags = 1 << iota
	FlagMapLike
	FlagCollectionLike
	FlagEnum
)

func (f Flags) String() string {
	var parts []string
	if f&FlagContainer != 0 {
		parts = append(parts, "container")
	}
	if f&FlagMapLike != 0 {
		parts = append(parts, "map")
	}
	if f&FlagCollectionLike != 0 {
		parts = append(parts, "collection")
	}
	if f&FlagEnum != 0 {
		parts = append(parts, "enum")
	}
	return strings.Join(parts, "|")
}

// Enum is implemented by types whose values are drawn from a closed set of names.
type Enum interface {
	EnumNames() []string
}

var (
	enumType  = reflect.TypeOf((*Enum)(nil)).Elem()
	bytesType = reflect.TypeOf([]byte(nil))
	anyType   = reflect.TypeOf((*any)(nil)).Elem()
)

// A Descriptor describes a target type: its raw Go type, an ordered list of
// type parameters and a set of structural flags.
// Descriptors are immutable and compared by value through Equal or Key.
type Descriptor struct {
	raw    reflect.Type
	params []*Descriptor
	flags  Flags
	key    string
	// explicit is set when params were given by the caller rather
	// than read from the raw type.
	explicit bool
}

// Of returns the descriptor of t. Type parameters are derived from
// the element and key types of containers and pointers.
// Recursive types such as `type T map[string]T` yield a descriptor
// that is its own parameter.
func Of(t reflect.Type) *Descriptor {
	if t == nil {
		return nil
	}
	return of(t, nil)
}

func of(t reflect.Type, building map[reflect.Type]*Descriptor) *Descriptor {
	if d, ok := building[t]; ok {
		return d
	}

	var elems []reflect.Type
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t != bytesType {
			elems = []reflect.Type{t.Elem()}
		}
	case reflect.Map:
		elems = []reflect.Type{t.Key(), t.Elem()}
	case reflect.Pointer:
		elems = []reflect.Type{t.Elem()}
	}

	// the key of an implicit descriptor only depends on the raw type,
	// so it is known before the parameters are.
	d := newDescriptor(t, nil, false)
	if len(elems) == 0 {
		return d
	}

	if building == nil {
		building = make(map[reflect.Type]*Descriptor)
	}
	building[t] = d
	d.params = make([]*Descriptor, len(elems))
	for i, e := range elems {
		d.params[i] = of(e, building)
	}
	delete(building, t)
	return d
}

// TypeOf returns the descriptor of the dynamic type of v.
func TypeOf(v any) *Descriptor {
	return Of(reflect.TypeOf(v))
}

// Parameterized returns a descriptor for raw with explicit type parameters.
// It is used for structs and interfaces whose type arguments are not
// visible through reflection, see TakesParams.
func Parameterized(raw reflect.Type, params ...*Descriptor) *Descriptor {
	if len(params) == 0 {
		return Of(raw)
	}
	return newDescriptor(raw, append([]*Descriptor(nil), params...), true)
}

func newDescriptor(raw reflect.Type, params []*Descriptor, explicit bool) *Descriptor {
	d := Descriptor{
		raw:      raw,
		params:   params,
		flags:    flagsOf(raw),
		explicit: explicit,
	}
	d.key = d.canonical()
	return &d
}

// TakesParams reports whether explicit type parameters can be attached
// to t. Parameters of containers and pointers come from their element
// types and scalars have none.
func TakesParams(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Interface:
		return true
	}
	return false
}

func flagsOf(t reflect.Type) Flags {
	var f Flags
	switch t.Kind() {
	case reflect.Map:
		f |= FlagContainer | FlagMapLike
	case reflect.Slice, reflect.Array:
		if t != bytesType {
			f |= FlagContainer | FlagCollectionLike
		}
	}
	if t.Implements(enumType) || reflect.PointerTo(t).Implements(enumType) {
		f |= FlagEnum
	}
	return f
}

// Raw returns the raw Go type.
func (d *Descriptor) Raw() reflect.Type { return d.raw }

// Kind returns the reflect kind of the raw type.
func (d *Descriptor) Kind() reflect.Kind { return d.raw.Kind() }

// Flags returns the structural flags of the type.
func (d *Descriptor) Flags() Flags { return d.flags }

// Params returns a copy of the type parameters.
func (d *Descriptor) Params() []*Descriptor {
	return append([]*Descriptor(nil), d.params...)
}

// NumParams returns the number of type parameters.
func (d *Descriptor) NumParams() int { return len(d.params) }

// Param returns the i-th type parameter, or nil if out of range.
func (d *Descriptor) Param(i int) *Descriptor {
	if i < 0 || i >= len(d.params) {
		return nil
	}
	return d.params[i]
}

func (d *Descriptor) IsContainer() bool      { return d.flags&FlagContainer != 0 }
func (d *Descriptor) IsMapLike() bool        { return d.flags&FlagMapLike != 0 }
func (d *Descriptor) IsCollectionLike() bool { return d.flags&FlagCollectionLike != 0 }
func (d *Descriptor) IsEnum() bool           { return d.flags&FlagEnum != 0 }

// IsInterface reports whether the raw type is an interface, which makes the
// value polymorphic.
func (d *Descriptor) IsInterface() bool { return d.raw.Kind() == reflect.Interface }

// IsPointer reports whether the raw type is a pointer.
func (d *Descriptor) IsPointer() bool { return d.raw.Kind() == reflect.Pointer }

// IsAny reports whether the raw type is the empty interface.
func (d *Descriptor) IsAny() bool { return d.raw == anyType }

// ContentType returns the element type of a container or pointer.
func (d *Descriptor) ContentType() *Descriptor {
	switch {
	case d.IsMapLike():
		return d.Param(1)
	case d.IsCollectionLike(), d.IsPointer():
		return d.Param(0)
	}
	return nil
}

// KeyType returns the key type of a map-like type.
func (d *Descriptor) KeyType() *Descriptor {
	if !d.IsMapLike() {
		return nil
	}
	return d.Param(0)
}

// Indirect returns the descriptor pointed to by a pointer type, or d itself.
func (d *Descriptor) Indirect() *Descriptor {
	for d.IsPointer() {
		next := d.Param(0)
		if next == d {
			break
		}
		d = next
	}
	return d
}

// HasRaw reports whether the raw type of d is t.
func (d *Descriptor) HasRaw(t reflect.Type) bool {
	return d.raw == t
}

// IsTypeOrSubTypeOf reports whether d is super or one of its subtypes.
func (d *Descriptor) IsTypeOrSubTypeOf(super reflect.Type) bool {
	return IsAssignable(d.raw, super)
}

// IsTypeOrSuperTypeOf reports whether d is sub or one of its supertypes.
func (d *Descriptor) IsTypeOrSuperTypeOf(sub reflect.Type) bool {
	return IsAssignable(sub, d.raw)
}

// Key returns the canonical form of the descriptor. Two descriptors are equal
// if and only if their keys are equal.
func (d *Descriptor) Key() string { return d.key }

// Equal reports whether d and other describe the same type with the same parameters.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.raw == other.raw && d.key == other.key
}

func (d *Descriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	return d.key
}

func (d *Descriptor) canonical() string {
	var b strings.Builder
	b.WriteString(TypeName(d.raw))
	if d.explicit {
		b.WriteByte('<')
		for i, p := range d.params {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(p.key)
		}
		b.WriteByte('>')
	}
	return b.String()
}

// TypeName returns a fully qualified name of t, using the package path
// rather than the package name so that two packages sharing a name
// never produce the same string.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + TypeName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + TypeName(t.Elem())
	case reflect.Map:
		return "map[" + TypeName(t.Key()) + "]" + TypeName(t.Elem())
	case reflect.Chan:
		return "chan " + TypeName(t.Elem())
	}
	return t.String()
}

// ShortName returns a human readable name of t, used in messages.
func ShortName(t reflect.Type) string {
	if t == nil {
		return "[null]"
	}
	return "`" + t.String() + "`"
}
