package property

import (
	"reflect"
	"sync/atomic"

	"github.com/chaisql/databind/bind"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// A FieldWriter writes one property of a struct.
type FieldWriter interface {
	Name() string
	SerializeAsField(ctx *bind.Context, em token.Emitter, bean reflect.Value) error
}

// Writer writes one property of a struct. Writers are immutable once built,
// except for the table of encoders found for the runtime types of the
// property, which is replaced as it grows.
type Writer struct {
	name       string
	member     *bind.Member
	index      []int
	declared   *types.Descriptor
	suppress   Suppress
	views      []string
	encoder    bind.Encoder
	typeWriter *bind.TypeWriter

	dynamic atomic.Pointer[map[reflect.Type]bind.Encoder]
}

// NewWriter returns a writer for the candidate, a member of owner.
func NewWriter(owner reflect.Type, c *Candidate) *Writer {
	w := Writer{
		name:     c.Name,
		index:    c.Index,
		declared: types.Of(c.EffectiveType()),
		suppress: c.Suppress,
		views:    c.Views,
		member: &bind.Member{
			Name:   c.Name,
			Owner:  owner,
			Format: c.Format,
			Views:  c.Views,
		},
	}
	return &w
}

func (w *Writer) Name() string                 { return w.name }
func (w *Writer) Member() *bind.Member         { return w.member }
func (w *Writer) Index() []int                 { return w.index }
func (w *Writer) Type() *types.Descriptor      { return w.declared }
func (w *Writer) Suppress() Suppress           { return w.suppress }
func (w *Writer) Views() []string              { return w.views }
func (w *Writer) Encoder() bind.Encoder        { return w.encoder }
func (w *Writer) TypeWriter() *bind.TypeWriter { return w.typeWriter }

// Rename returns a copy of w writing the property under another name.
func (w *Writer) Rename(name string) *Writer {
	return w.with(func(cp *Writer) {
		cp.name = name
		m := *w.member
		m.Name = name
		cp.member = &m
	})
}

// WithSuppress returns a copy of w with another suppression policy.
func (w *Writer) WithSuppress(s Suppress) *Writer {
	return w.with(func(cp *Writer) { cp.suppress = s })
}

// WithEncoder returns a copy of w using enc to write the value.
func (w *Writer) WithEncoder(enc bind.Encoder) *Writer {
	return w.with(func(cp *Writer) { cp.encoder = enc })
}

func (w *Writer) with(fn func(cp *Writer)) *Writer {
	cp := Writer{
		name:       w.name,
		member:     w.member,
		index:      w.index,
		declared:   w.declared,
		suppress:   w.suppress,
		views:      w.views,
		encoder:    w.encoder,
		typeWriter: w.typeWriter,
	}
	fn(&cp)
	return &cp
}

// Get returns the value of the property in bean, a struct value.
// It reports false if the field is reached through a nil embedded pointer.
func (w *Writer) Get(bean reflect.Value) (reflect.Value, bool) {
	v, err := bean.FieldByIndexErr(w.index)
	if err != nil {
		return reflect.Value{}, false
	}
	return v, true
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// isEmpty reports whether v is empty, asking the encoder when it can tell.
func isEmpty(ctx *bind.Context, enc bind.Encoder, v reflect.Value) bool {
	if e, ok := enc.(bind.Emptiable); ok {
		return e.IsEmpty(ctx, v)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return v.Len() == 0
	}
	return isNil(v)
}

// encoderFor returns the encoder of values of type t, caching it.
func (w *Writer) encoderFor(ctx *bind.Context, t reflect.Type) (bind.Encoder, error) {
	cur := w.dynamic.Load()
	if cur != nil {
		if enc, ok := (*cur)[t]; ok {
			return enc, nil
		}
	}

	d := w.declared
	if !d.HasRaw(t) {
		d = types.Of(t)
	}
	enc, err := ctx.FindEncoder(d, bind.PrimarySite(w.member))
	if err != nil {
		return nil, err
	}

	for {
		cur = w.dynamic.Load()
		var next map[reflect.Type]bind.Encoder
		if cur == nil {
			next = make(map[reflect.Type]bind.Encoder, 1)
		} else {
			next = make(map[reflect.Type]bind.Encoder, len(*cur)+1)
			for k, v := range *cur {
				next[k] = v
			}
		}
		next[t] = enc
		if w.dynamic.CompareAndSwap(cur, &next) {
			return enc, nil
		}
	}
}

func (w *Writer) omit(em token.Emitter) error {
	if em.CanOmitFields() {
		return nil
	}
	if err := em.WriteFieldName(w.name); err != nil {
		return err
	}
	return em.WriteNull()
}

// SerializeAsField writes the property of bean, a struct value, as a field
// of the current object.
func (w *Writer) SerializeAsField(ctx *bind.Context, em token.Emitter, bean reflect.Value) error {
	v, ok := w.Get(bean)
	if !ok || isNil(v) {
		if w.suppress != SuppressNever {
			return w.omit(em)
		}
		if err := em.WriteFieldName(w.name); err != nil {
			return err
		}
		return em.WriteNull()
	}

	enc := w.encoder
	if enc == nil && w.typeWriter == nil {
		t := v.Type()
		if v.Kind() == reflect.Interface {
			t = v.Elem().Type()
		}
		var err error
		enc, err = w.encoderFor(ctx, t)
		if err != nil {
			return errs.WithPath(err, errs.FieldRef(bean.Type(), w.name))
		}
	}

	switch w.suppress {
	case SuppressIfDefault:
		if v.IsZero() {
			return w.omit(em)
		}
	case SuppressIfEmpty:
		if isEmpty(ctx, enc, v) {
			return w.omit(em)
		}
	}

	if w.isSelfReference(bean, v) {
		if !usesIdentity(ctx, enc, bean.Type()) {
			if ctx.Enabled(bind.FailOnSelfReferences) {
				return errs.WithPath(
					ctx.ReportBadDefinition(bean.Type(), "Direct self-reference leading to cycle"),
					errs.FieldRef(bean.Type(), w.name))
			}
			if err := em.WriteFieldName(w.name); err != nil {
				return err
			}
			return em.WriteNull()
		}
	}

	if err := em.WriteFieldName(w.name); err != nil {
		return err
	}
	var err error
	if w.typeWriter != nil && v.Kind() == reflect.Interface {
		err = w.typeWriter.Write(ctx, em, v)
	} else {
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		err = enc.Encode(ctx, em, v)
	}
	if err != nil {
		if ctx.Enabled(bind.WrapErrors) {
			err = errs.Wrap(err, nil)
		}
		return errs.WithPath(err, errs.FieldRef(bean.Type(), w.name))
	}
	return nil
}

// isSelfReference reports whether v points to bean.
func (w *Writer) isSelfReference(bean, v reflect.Value) bool {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Pointer || !bean.CanAddr() {
		return false
	}
	return v.Type().Elem() == bean.Type() && v.Pointer() == bean.Addr().Pointer()
}

// usesIdentity reports whether values of t are written with their object id.
// enc may have been built while t was in progress, in which case the
// encoder of t is looked up again.
func usesIdentity(ctx *bind.Context, enc bind.Encoder, t reflect.Type) bool {
	if u, ok := enc.(bind.IdentityUser); ok && u.UsesObjectIdentity() {
		return true
	}
	found, err := ctx.FindEncoder(types.Of(t), bind.SecondarySite(nil))
	if err != nil {
		return false
	}
	u, ok := found.(bind.IdentityUser)
	return ok && u.UsesObjectIdentity()
}
