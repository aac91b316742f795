package bind

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/types"
)

// ResolveSubtype resolves the type id against base.
// Ids containing type parameters, such as "Box<int>", are parsed as
// canonical type strings and must designate base or one of its subtypes.
// Other ids are looked up in the type factory; the resulting type carries
// over the type parameters of base.
//
// If the id is not bound to any type, the returned error wraps
// types.ErrTypeNotFound and the caller may recover from it.
// Any other failure is an InvalidTypeIDError.
func (c *Context) ResolveSubtype(base *types.Descriptor, id string) (*types.Descriptor, error) {
	f := c.config.TypeFactory()

	if strings.IndexByte(id, '<') >= 0 {
		t, err := f.FromCanonical(id)
		if err != nil {
			return nil, c.invalidTypeIDError(base, id, fmt.Sprintf("failed to parse type %s: %v", id, err))
		}
		if !t.IsTypeOrSubTypeOf(base.Raw()) {
			return nil, c.invalidTypeIDError(base, id, "Not a subtype")
		}
		return t, nil
	}

	raw, err := f.FindType(id)
	if err != nil {
		if errors.Is(err, types.ErrTypeNotFound) {
			return nil, err
		}
		return nil, c.invalidTypeIDError(base, id, fmt.Sprintf("problem: %v", err))
	}
	if !base.IsTypeOrSuperTypeOf(raw) {
		return nil, c.invalidTypeIDError(base, id, "Not a subtype")
	}
	return f.Specialize(base, raw), nil
}

// TypeFromID resolves the type id against base, giving the problem handlers
// a chance to recover from unknown ids. A nil descriptor without error
// means the value must be decoded as null.
func (c *Context) TypeFromID(base *types.Descriptor, id string) (*types.Descriptor, error) {
	t, err := c.ResolveSubtype(base, id)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, types.ErrTypeNotFound) {
		return nil, err
	}
	return c.HandleUnknownTypeID(base, id, "known type ids = "+c.knownTypeIDs(base.Raw()))
}

// knownTypeIDs lists the registered names of base and its subtypes.
func (c *Context) knownTypeIDs(base reflect.Type) string {
	f := c.config.TypeFactory()

	var ids []string
	for _, name := range f.Names() {
		t, err := f.FindType(name)
		if err != nil {
			continue
		}
		if types.IsAssignable(t, base) {
			ids = append(ids, name)
		}
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

// TypeID returns the id written for values of type t.
// Registered types are written by name; pointers to registered types use
// the name of the type they point to. Other types use their canonical form.
func (c *Context) TypeID(t reflect.Type) (string, error) {
	f := c.config.TypeFactory()
	if name, ok := f.NameOf(t); ok {
		return name, nil
	}
	if t.Kind() == reflect.Pointer {
		if name, ok := f.NameOf(t.Elem()); ok {
			return name, nil
		}
	}
	id, err := f.CanonicalName(types.Of(t))
	if err != nil {
		return "", c.ReportBadTypeDefinition(t, "no type id registered: %v", err)
	}
	return id, nil
}
