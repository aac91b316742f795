package bind

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// Result is returned by problem handlers. A handler that cannot deal
// with a problem returns NotHandled, so that the next handler is consulted.
type Result struct {
	value   any
	handled bool
}

// NotHandled is the result of a handler leaving the problem to the next one.
var NotHandled = Result{}

// Handled returns the result of a handler that recovered with v.
// For type id problems, v is a *types.Descriptor, and nil means the value
// must be decoded as null.
func Handled(v any) Result {
	return Result{value: v, handled: true}
}

func (r Result) IsHandled() bool { return r.handled }
func (r Result) Value() any      { return r.value }

// A ProblemHandler gets a chance to recover from problems met while
// decoding, before they turn into errors.
// Handlers are consulted in the order they were added to the configuration.
type ProblemHandler interface {
	// HandleUnknownProperty is called for a property the target type does not
	// know. The cursor is positioned on the value of the property. A handler
	// returning true must have consumed the value.
	HandleUnknownProperty(ctx *Context, cur token.Cursor, owner reflect.Type, bean reflect.Value, name string) (bool, error)
	// HandleWeirdKey is called when a map key cannot be converted to keyType.
	HandleWeirdKey(ctx *Context, keyType reflect.Type, key, msg string) (Result, error)
	// HandleWeirdStringValue is called when a string cannot be converted to target.
	HandleWeirdStringValue(ctx *Context, target reflect.Type, value, msg string) (Result, error)
	// HandleWeirdNumberValue is called when a number cannot be converted to target.
	HandleWeirdNumberValue(ctx *Context, target reflect.Type, value any, msg string) (Result, error)
	// HandleUnexpectedToken is called when the current token cannot start a
	// value of type target. tok is token.None at the end of the input.
	HandleUnexpectedToken(ctx *Context, target reflect.Type, tok token.Token, cur token.Cursor, msg string) (Result, error)
	// HandleMissingInstantiator is called when no value of type target can be
	// created from the current token.
	HandleMissingInstantiator(ctx *Context, target reflect.Type, cur token.Cursor, msg string) (Result, error)
	// HandleInstantiationProblem is called when creating a value of type
	// target from arg failed with cause.
	HandleInstantiationProblem(ctx *Context, target reflect.Type, arg any, cause error) (Result, error)
	// HandleUnknownTypeID is called when a type id cannot be resolved.
	HandleUnknownTypeID(ctx *Context, base *types.Descriptor, id, msg string) (Result, error)
	// HandleMissingTypeID is called when a polymorphic value has no type id.
	HandleMissingTypeID(ctx *Context, base *types.Descriptor, msg string) (Result, error)
}

// BaseHandler handles nothing. Embed it to implement only some methods
// of ProblemHandler.
type BaseHandler struct{}

func (BaseHandler) HandleUnknownProperty(*Context, token.Cursor, reflect.Type, reflect.Value, string) (bool, error) {
	return false, nil
}

func (BaseHandler) HandleWeirdKey(*Context, reflect.Type, string, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleWeirdStringValue(*Context, reflect.Type, string, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleWeirdNumberValue(*Context, reflect.Type, any, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleUnexpectedToken(*Context, reflect.Type, token.Token, token.Cursor, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleMissingInstantiator(*Context, reflect.Type, token.Cursor, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleInstantiationProblem(*Context, reflect.Type, any, error) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleUnknownTypeID(*Context, *types.Descriptor, string, string) (Result, error) {
	return NotHandled, nil
}

func (BaseHandler) HandleMissingTypeID(*Context, *types.Descriptor, string) (Result, error) {
	return NotHandled, nil
}

// walk consults each handler in order until one handles the problem.
func (c *Context) walk(call func(h ProblemHandler) (Result, error)) (Result, error) {
	for _, h := range c.config.Handlers() {
		r, err := call(h)
		if err != nil {
			return NotHandled, err
		}
		if r.handled {
			return r, nil
		}
	}
	return NotHandled, nil
}

// checkHandled verifies that the value returned by a handler can be stored
// in a location of type target.
func (c *Context) checkHandled(method string, target reflect.Type, v any) (any, error) {
	if types.IsCompatible(target, v) {
		c.Logger().Debug("problem recovered by handler", zap.String("method", method), zap.Stringer("type", target))
		return v, nil
	}
	c.Logger().Warn("problem handler returned an incompatible value",
		zap.String("method", method),
		zap.Stringer("type", target),
		zap.String("value_type", fmt.Sprintf("%T", v)))
	return nil, c.ReportBadDefinition(target, fmt.Sprintf("problem handler method %s() for type %s returned value of type %s",
		method, types.ShortName(target), types.ShortName(reflect.TypeOf(v))))
}

// HandleUnknownProperty deals with a property of owner that is not known.
// It returns nil if the value of the property was consumed, either by a handler
// or skipped because FailOnUnknownProperties is disabled.
func (c *Context) HandleUnknownProperty(cur token.Cursor, owner reflect.Type, bean reflect.Value, name string, known []string) error {
	for _, h := range c.config.Handlers() {
		ok, err := h.HandleUnknownProperty(c, cur, owner, bean, name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	if !c.config.Enabled(FailOnUnknownProperties) {
		return cur.SkipChildren()
	}

	msg := fmt.Sprintf("Unrecognized field %q (type %s), not marked as ignorable", name, types.ShortName(owner))
	if known != nil {
		msg += fmt.Sprintf(" (%d known properties: %s)", len(known), quoteAll(known))
	}
	return &errs.UnrecognizedPropertyError{
		Problem:  c.problem(msg, nil),
		Owner:    owner,
		Property: name,
		Known:    known,
	}
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// HandleWeirdKey deals with a map key that cannot be converted to keyType.
func (c *Context) HandleWeirdKey(keyType reflect.Type, key, msg string) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleWeirdKey(c, keyType, key, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleWeirdKey", keyType, r.value)
	}
	return nil, c.weirdKeyError(keyType, key, msg)
}

// HandleWeirdStringValue deals with a string that cannot be converted to target.
func (c *Context) HandleWeirdStringValue(target reflect.Type, value, msg string) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleWeirdStringValue(c, target, value, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleWeirdStringValue", target, r.value)
	}
	return nil, c.weirdStringError(target, value, msg)
}

// HandleWeirdNumberValue deals with a number that cannot be converted to target.
func (c *Context) HandleWeirdNumberValue(target reflect.Type, value any, msg string) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleWeirdNumberValue(c, target, value, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleWeirdNumberValue", target, r.value)
	}
	return nil, c.weirdNumberError(target, value, msg)
}

// HandleUnexpectedToken deals with a token that cannot start a value of type target.
// An empty msg is replaced by a default message.
func (c *Context) HandleUnexpectedToken(target reflect.Type, tok token.Token, cur token.Cursor, msg string) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleUnexpectedToken(c, target, tok, cur, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleUnexpectedToken", target, r.value)
	}

	if msg == "" {
		if tok == token.None {
			msg = fmt.Sprintf("Unexpected end-of-input when binding data into %s", types.ShortName(target))
		} else {
			msg = fmt.Sprintf("Cannot deserialize instance of %s out of %s token", types.ShortName(target), tok)
		}
	}
	return nil, c.ReportInputMismatch(target, msg)
}

// HandleMissingInstantiator deals with a value of type target that cannot be
// created from the current token. instantiable tells whether the type can be
// created at all, from any input.
func (c *Context) HandleMissingInstantiator(target reflect.Type, instantiable bool, cur token.Cursor, msg string) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleMissingInstantiator(c, target, cur, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleMissingInstantiator", target, r.value)
	}

	if !instantiable {
		return nil, c.ReportBadDefinition(target,
			fmt.Sprintf("Cannot construct instance of %s (no way to create one exists): %s", types.ShortName(target), msg))
	}
	return nil, c.ReportInputMismatch(target,
		"Cannot construct instance of %s (although at least one way to create one exists): %s", types.ShortName(target), msg)
}

// HandleInstantiationProblem deals with the failure to create a value of
// type target from arg.
func (c *Context) HandleInstantiationProblem(target reflect.Type, arg any, cause error) (any, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleInstantiationProblem(c, target, arg, cause)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandled("HandleInstantiationProblem", target, r.value)
	}

	msg := fmt.Sprintf("Cannot construct instance of %s, problem: %s", types.ShortName(target), cause)
	return nil, &errs.InputMismatchError{Problem: c.problem(msg, cause), Type: target}
}

// HandleUnknownTypeID deals with a type id that cannot be resolved to a
// subtype of base. A nil descriptor means the value must be decoded as null.
func (c *Context) HandleUnknownTypeID(base *types.Descriptor, id, msg string) (*types.Descriptor, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleUnknownTypeID(c, base, id, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandledType("HandleUnknownTypeID", base, id, r.value)
	}

	if !c.config.Enabled(FailOnInvalidSubtype) {
		return nil, nil
	}
	return nil, c.invalidTypeIDError(base, id, msg)
}

// HandleMissingTypeID deals with a polymorphic value without type id.
// A nil descriptor means the value must be decoded as null.
func (c *Context) HandleMissingTypeID(base *types.Descriptor, msg string) (*types.Descriptor, error) {
	r, err := c.walk(func(h ProblemHandler) (Result, error) {
		return h.HandleMissingTypeID(c, base, msg)
	})
	if err != nil {
		return nil, err
	}
	if r.handled {
		return c.checkHandledType("HandleMissingTypeID", base, "", r.value)
	}
	return nil, c.missingTypeIDError(base, msg)
}

func (c *Context) checkHandledType(method string, base *types.Descriptor, id string, v any) (*types.Descriptor, error) {
	if v == nil {
		return nil, nil
	}
	d, ok := v.(*types.Descriptor)
	if !ok {
		return nil, c.ReportBadDefinition(base.Raw(), fmt.Sprintf("problem handler method %s() returned %T instead of a type", method, v))
	}
	if d == nil {
		return nil, nil
	}
	if !d.IsTypeOrSubTypeOf(base.Raw()) {
		return nil, c.invalidTypeIDError(base, id, "problem handler tried to resolve into non-subtype: "+types.ShortName(d.Raw()))
	}
	c.Logger().Debug("type id recovered by handler", zap.String("method", method), zap.Stringer("type", d))
	return d, nil
}
