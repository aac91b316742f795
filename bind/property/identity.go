package property

import (
	"reflect"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	"github.com/chaisql/databind/token"
)

// PropertyKind is the generator kind of ids taken from a regular property.
const PropertyKind = "property"

// propertyGenerator uses the value of a property as the id of the object.
type propertyGenerator struct {
	w     *Writer
	scope reflect.Type
}

// NewPropertyGenerator returns a generator reading ids from the property
// written by w, for objects of type scope.
func NewPropertyGenerator(w *Writer, scope reflect.Type) identity.Generator {
	return &propertyGenerator{w: w, scope: scope}
}

func (g *propertyGenerator) Kind() string        { return PropertyKind }
func (g *propertyGenerator) Scope() reflect.Type { return g.scope }

func (g *propertyGenerator) ForScope(scope reflect.Type) identity.Generator {
	if scope == g.scope {
		return g
	}
	return &propertyGenerator{w: g.w, scope: scope}
}

func (g *propertyGenerator) NewForEncoding() identity.Generator { return g }

func (g *propertyGenerator) GenerateID(item any) (any, error) {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	f, ok := g.w.Get(v)
	if !ok {
		return nil, nil
	}
	return f.Interface(), nil
}

func (g *propertyGenerator) CanUseFor(other identity.Generator) bool {
	return other.Kind() == PropertyKind && other.Scope() == g.scope
}

// IdentityWriter writes the ids of objects with an identity.
type IdentityWriter struct {
	Generator identity.Generator
	// Property is the name of the field holding the id, empty when the id
	// is written by a regular property.
	Property   string
	AlwaysAsID bool
	// IDWriter is the property holding the id, for property based ids.
	IDWriter *Writer
}

// WriteAsID writes a reference to an object already written, or to any
// object when AlwaysAsID is set. It reports false if the object must be
// written in full, in which case wid holds its generated id.
func (iw *IdentityWriter) WriteAsID(ctx *bind.Context, em token.Emitter, item any) (wid *identity.WritableID, done bool, err error) {
	wid = ctx.Writables().Find(item, iw.Generator)
	if wid.ID != nil && (wid.Written || iw.AlwaysAsID) {
		return wid, true, iw.writeID(ctx, em, wid.ID)
	}

	id, err := wid.GenerateID(item)
	if err != nil {
		return nil, false, err
	}
	if iw.AlwaysAsID {
		return wid, true, iw.writeID(ctx, em, id)
	}
	return wid, false, nil
}

// WriteAsField marks the object as written and writes its id as the first
// field of the object, unless a regular property holds it.
func (iw *IdentityWriter) WriteAsField(ctx *bind.Context, em token.Emitter, wid *identity.WritableID) error {
	wid.Written = true
	if iw.Property == "" {
		return nil
	}
	if err := em.WriteFieldName(iw.Property); err != nil {
		return err
	}
	return iw.writeID(ctx, em, wid.ID)
}

func (iw *IdentityWriter) writeID(ctx *bind.Context, em token.Emitter, id any) error {
	if id == nil {
		return em.WriteNull()
	}
	if iw.IDWriter != nil {
		v := reflect.ValueOf(id)
		enc := iw.IDWriter.encoder
		if enc == nil {
			var err error
			enc, err = iw.IDWriter.encoderFor(ctx, v.Type())
			if err != nil {
				return err
			}
		}
		return enc.Encode(ctx, em, v)
	}
	return em.WriteValue(id)
}
