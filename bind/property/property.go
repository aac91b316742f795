// Package property builds the ordered list of property writers used to
// encode a struct, from the members reported by an introspector.
package property

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
)

// Suppress tells when a property is left out of the output.
type Suppress uint8

const (
	SuppressNever Suppress = iota
	// SuppressIfNull omits nil pointers, interfaces, maps and slices.
	SuppressIfNull
	// SuppressIfDefault omits zero values.
	SuppressIfDefault
	// SuppressIfEmpty omits nil and empty values.
	SuppressIfEmpty
)

func (s Suppress) String() string {
	switch s {
	case SuppressIfNull:
		return "omitnil"
	case SuppressIfDefault:
		return "omitzero"
	case SuppressIfEmpty:
		return "omitempty"
	}
	return "never"
}

// A Candidate is a member of a struct that may become a property.
type Candidate struct {
	// Name is the name of the property on the wire.
	Name string
	// Index is the index sequence of the field, for reflect.Value.FieldByIndex.
	Index []int
	// Type is the declared type of the field.
	Type reflect.Type
	// WireType overrides the type used to pick the converter.
	WireType reflect.Type
	// Explicit reports whether the member was explicitly named.
	Explicit bool
	// HasMutator reports whether the property can be set while decoding.
	HasMutator bool
	// TypeID marks the member holding the type id of the struct.
	TypeID bool
	// BackReference marks a member pointing back to the parent of the struct.
	BackReference bool
	Views         []string
	Suppress      Suppress
	// Encoder and Decoder are converters declared on the member.
	Encoder bind.Encoder
	Decoder bind.Decoder
	Format  string
	// Inject is the id of the value injected into the member, or nil.
	Inject any
}

// EffectiveType returns the type used to pick the converter of the member.
func (c *Candidate) EffectiveType() reflect.Type {
	if c.WireType != nil {
		return c.WireType
	}
	return c.Type
}

// IdentityInfo describes how objects of a type are identified.
type IdentityInfo struct {
	// Generator produces the ids. A nil Generator means the id is the value
	// of Property.
	Generator identity.Generator
	// Property is the name of the id property.
	Property string
	// AlwaysAsID writes references to the object as its id, even the first time.
	AlwaysAsID bool
	// Resolver is the prototype of the resolvers used while decoding,
	// nil for identity.SimpleResolver.
	Resolver identity.Resolver
}

// PropertyBased reports whether the id is the value of a regular property.
func (i *IdentityInfo) PropertyBased() bool { return i.Generator == nil }

// BeanDescription is what an introspector knows about a struct type.
type BeanDescription struct {
	Type       reflect.Type
	Candidates []Candidate
	// Ignored lists the names of properties never written or read.
	Ignored  []string
	Identity *IdentityInfo
	// IgnoreUnknown skips unknown properties while decoding.
	IgnoreUnknown bool
}

// IsIgnored reports whether the property name is on the ignore list.
func (d *BeanDescription) IsIgnored(name string) bool {
	for _, n := range d.Ignored {
		if n == name {
			return true
		}
	}
	return false
}

// TypeIDCandidate returns the member holding the type id, if any.
func (d *BeanDescription) TypeIDCandidate() *Candidate {
	for i := range d.Candidates {
		if d.Candidates[i].TypeID {
			return &d.Candidates[i]
		}
	}
	return nil
}

// An IgnoredType is never written as a property.
type IgnoredType interface {
	BindingIgnored()
}

var ignoredType = reflect.TypeOf((*IgnoredType)(nil)).Elem()
