package bind

import (
	"reflect"

	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// TypeWriter writes values of a polymorphic type along with their type id.
// Encoders implementing TypedEncoder write the id as the Property of their
// object. Other values are wrapped in a two element array: ["id", value].
type TypeWriter struct {
	Property string
	Base     *types.Descriptor
}

// NewTypeWriter returns a TypeWriter for values declared as base.
func (c *Context) NewTypeWriter(base *types.Descriptor) *TypeWriter {
	return &TypeWriter{Property: c.config.TypeProperty(), Base: base}
}

// Write writes v, an interface value, with its type id.
func (tw *TypeWriter) Write(ctx *Context, em token.Emitter, v reflect.Value) error {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return em.WriteNull()
		}
		v = v.Elem()
	}

	enc, err := ctx.FindEncoder(types.Of(v.Type()), SecondarySite(nil))
	if err != nil {
		return err
	}
	if te, ok := enc.(TypedEncoder); ok {
		return te.EncodeWithType(ctx, em, v, tw)
	}

	id, err := ctx.TypeID(v.Type())
	if err != nil {
		return err
	}
	if err := em.WriteStartArray(); err != nil {
		return err
	}
	if err := em.WriteValue(id); err != nil {
		return err
	}
	if err := enc.Encode(ctx, em, v); err != nil {
		return err
	}
	return em.WriteEndArray()
}

// WriteID writes the type id property of v. Encoders implementing
// TypedEncoder call it right after starting their object.
func (tw *TypeWriter) WriteID(ctx *Context, em token.Emitter, t reflect.Type) error {
	id, err := ctx.TypeID(t)
	if err != nil {
		return err
	}
	if err := em.WriteFieldName(tw.Property); err != nil {
		return err
	}
	return em.WriteValue(id)
}
