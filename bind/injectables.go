package bind

import (
	"fmt"
	"reflect"

	"github.com/chaisql/databind/types"
)

// Injectables provides values injected into properties while decoding,
// instead of being read from the input.
type Injectables interface {
	FindInjectableValue(ctx *Context, id any, property string, bean reflect.Value) (any, error)
}

// InjectableValues is an Injectables backed by a map.
type InjectableValues map[any]any

func (iv InjectableValues) FindInjectableValue(ctx *Context, id any, property string, _ reflect.Value) (any, error) {
	v, ok := iv[id]
	if !ok {
		return nil, ctx.ReportBadDefinition(nil, fmt.Sprintf("No injectable value with id [%v] found (for property %q)", id, property))
	}
	return v, nil
}

// FindInjectableValue returns the value injected into property of bean.
func (c *Context) FindInjectableValue(id any, property string, bean reflect.Value) (any, error) {
	inj := c.config.Injectables()
	if inj == nil {
		var t reflect.Type
		if bean.IsValid() {
			t = bean.Type()
		}
		return nil, c.ReportBadDefinition(t, fmt.Sprintf("No injectable values configured, cannot inject value with id [%v]", id))
	}
	return inj.FindInjectableValue(c, id, property, bean)
}

// Inject stores the value injected with id into dst.
func (c *Context) Inject(id any, property string, bean, dst reflect.Value) error {
	v, err := c.FindInjectableValue(id, property, bean)
	if err != nil {
		return err
	}
	if !types.Assign(dst, v) {
		return c.ReportBadPropertyDefinition(bean.Type(), property,
			"injectable value with id [%v] has type %s, not assignable to %s", id, types.ShortName(reflect.TypeOf(v)), types.ShortName(dst.Type()))
	}
	return nil
}
