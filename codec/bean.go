package codec

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	"github.com/chaisql/databind/bind/property"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/introspect"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

type beanField struct {
	name  string
	index []int
	typ   reflect.Type
	dec   bind.Decoder

	// back is the index of the member of the child pointing back to the
	// struct holding the field. many is set when the field holds a list
	// of children.
	back []int
	many bool
}

// beanDecoder reads objects into structs.
type beanDecoder struct {
	t    reflect.Type
	desc *property.BeanDescription
	in   *introspect.Introspector

	fields   map[string]*beanField
	order    []*beanField
	known    []string
	skipped  map[string]bool
	typeID   *property.Candidate
	injected []*property.Candidate
	idField  *beanField
}

func (d *beanDecoder) Resolve(ctx *bind.Context) error {
	d.fields = make(map[string]*beanField)
	d.skipped = make(map[string]bool)

	for i := range d.desc.Candidates {
		c := &d.desc.Candidates[i]
		switch {
		case c.TypeID:
			d.typeID = c
			continue
		case c.BackReference:
			continue
		case c.Inject != nil:
			d.injected = append(d.injected, c)
			d.skipped[c.Name] = true
			continue
		}

		d.known = append(d.known, c.Name)
		if !c.HasMutator {
			d.skipped[c.Name] = true
			continue
		}

		t := types.Of(c.EffectiveType())
		site := bind.PrimarySite(&bind.Member{Name: c.Name, Owner: d.t, Format: c.Format, Views: c.Views})
		var dec bind.Decoder
		var err error
		if c.Decoder != nil {
			dec, err = ctx.ContextualizeDecoder(t, c.Decoder, site)
		} else {
			dec, err = ctx.FindDecoder(t, site)
		}
		if err != nil {
			return errs.WithPath(ctx.PropertyDefinitionFailure(d.t, c.Name, err), errs.FieldRef(d.t, c.Name))
		}

		f := beanField{name: c.Name, index: c.Index, typ: c.Type, dec: dec}
		f.back, f.many = d.backReference(c.Type)
		d.fields[c.Name] = &f
		d.order = append(d.order, &f)
	}

	if info := d.desc.Identity; info != nil && info.PropertyBased() {
		d.idField = d.fields[info.Property]
		if d.idField == nil {
			return ctx.ReportBadTypeDefinition(d.t, "Invalid Object Id definition: cannot find property with name %q", info.Property)
		}
	}
	return nil
}

// backReference returns the index of the back reference of the children
// held by a field of type t, if they have one accepting the struct.
func (d *beanDecoder) backReference(t reflect.Type) ([]int, bool) {
	var many bool
	if k := t.Kind(); k == reflect.Slice || k == reflect.Array {
		t, many = t.Elem(), true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || d.in == nil {
		return nil, false
	}
	desc, err := d.in.Describe(t)
	if err != nil {
		return nil, false
	}
	parent := reflect.PointerTo(d.t)
	for _, c := range desc.Candidates {
		if c.BackReference && parent.AssignableTo(c.Type) {
			return c.Index, many
		}
	}
	return nil, false
}

func (d *beanDecoder) UsesObjectIdentity() bool { return d.desc.Identity != nil }

// ReadReference reads an object id and returns the object it designates.
func (d *beanDecoder) ReadReference(ctx *bind.Context, cur token.Cursor) (any, error) {
	id, err := d.readID(ctx, cur)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if item, ok := entry.Resolve(); ok {
		return item, nil
	}
	return nil, &identity.ForwardReference{Entry: entry, Type: d.t, Location: cur.CurrentLocation()}
}

func (d *beanDecoder) readID(ctx *bind.Context, cur token.Cursor) (any, error) {
	if d.idField != nil {
		v := reflect.New(d.idField.typ).Elem()
		if err := d.idField.dec.Decode(ctx, cur, v); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}

	switch tok := cur.CurrentToken(); tok {
	case token.Number:
		n, err := cur.Int()
		if err != nil {
			return ctx.HandleWeirdNumberValue(d.t, cur.Text(), "not a valid object id")
		}
		return n, nil
	case token.String:
		return cur.Text(), nil
	default:
		return nil, ctx.ReportInputMismatch(d.t, "Cannot resolve object id of %s from %s token", types.ShortName(d.t), tok)
	}
}

func (d *beanDecoder) entry(ctx *bind.Context, id any) (*identity.Entry, error) {
	info := d.desc.Identity

	var key identity.Key
	var err error
	if info.PropertyBased() {
		key, err = identity.NewKey(property.PropertyKind, d.t, id)
	} else {
		key, err = identity.KeyFor(info.Generator.ForScope(d.t), id)
	}
	if err != nil {
		return nil, ctx.ReportInputMismatch(d.t, "Invalid object id: %v", err)
	}
	return ctx.Identity().FindOrCreate(key, info.Resolver), nil
}

// bindID binds id to the object being decoded into dst, replaying the
// references read before it.
func (d *beanDecoder) bindID(ctx *bind.Context, dst reflect.Value, id any) error {
	entry, err := d.entry(ctx, id)
	if err != nil {
		return err
	}

	item := dst.Interface()
	if dst.CanAddr() {
		item = dst.Addr().Interface()
	}
	err = entry.BindItem(item)
	if errors.Is(err, identity.ErrAlreadyBound) {
		return ctx.ReportInputMismatch(d.t, "id %v (%T) is already bound to another object", entry.Key(), id)
	}
	return err
}

func (d *beanDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	switch tok := cur.CurrentToken(); tok {
	case token.StartObject:
		return d.decodeFields(ctx, cur, dst, "")
	case token.Null:
		dst.SetZero()
		return nil
	case token.StartArray:
		return unexpected(ctx, cur, dst)
	case token.String, token.Number, token.True, token.False:
		if d.UsesObjectIdentity() {
			item, err := d.ReadReference(ctx, cur)
			if err != nil {
				return err
			}
			return store(ctx, dst, item)
		}

		var msg string
		switch tok {
		case token.String:
			msg = fmt.Sprintf("a struct cannot be created from String value (%s)", errs.Quote(cur.Text()))
		case token.Number:
			msg = fmt.Sprintf("a struct cannot be created from Number value (%s)", cur.Text())
		default:
			msg = fmt.Sprintf("a struct cannot be created from boolean value (%s)", cur.Text())
		}
		v, err := ctx.HandleMissingInstantiator(d.t, true, cur, msg)
		if err != nil {
			return err
		}
		return store(ctx, dst, v)
	default:
		return unexpected(ctx, cur, dst)
	}
}

// decodeFields reads the properties of the current object into dst.
// The cursor is either on the start of the object or on the value of
// a property already consumed. typeID is the type id read by the caller.
func (d *beanDecoder) decodeFields(ctx *bind.Context, cur token.Cursor, dst reflect.Value, typeID string) error {
	for _, c := range d.injected {
		if err := ctx.Inject(c.Inject, c.Name, dst, fieldByIndexAlloc(dst, c.Index)); err != nil {
			return errs.WithPath(err, errs.FieldRef(d.t, c.Name))
		}
	}
	if typeID != "" && d.typeID != nil {
		fieldByIndexAlloc(dst, d.typeID.Index).SetString(typeID)
	}

	if cur.CurrentToken() == token.EndObject {
		return nil
	}
	for {
		tok, err := next(ctx, cur, d.t)
		if err != nil {
			return err
		}
		if tok == token.EndObject {
			return nil
		}
		if err := d.decodeField(ctx, cur, dst, cur.FieldName()); err != nil {
			return err
		}
	}
}

func (d *beanDecoder) decodeField(ctx *bind.Context, cur token.Cursor, dst reflect.Value, name string) error {
	if info := d.desc.Identity; info != nil && !info.PropertyBased() && name == d.idProperty(ctx) {
		id, err := d.readID(ctx, cur)
		if err != nil {
			return errs.WithPath(err, errs.FieldRef(d.t, name))
		}
		return d.bindID(ctx, dst, id)
	}

	f := d.lookup(ctx, name)
	if f == nil {
		return d.decodeUnknown(ctx, cur, dst, name)
	}

	fv := fieldByIndexAlloc(dst, f.index)
	if err := f.dec.Decode(ctx, cur, fv); err != nil {
		if fr, ok := identity.AsForwardReference(err); ok {
			identity.NewFieldReferring(fr, fv).Then(ctx.CopyBack())
			return nil
		}
		return errs.WithPath(wrap(ctx, cur, err), errs.FieldRef(d.t, f.name))
	}
	d.linkBack(f, fv, dst)

	if f == d.idField {
		return d.bindID(ctx, dst, fv.Interface())
	}
	return nil
}

func (d *beanDecoder) decodeUnknown(ctx *bind.Context, cur token.Cursor, dst reflect.Value, name string) error {
	if name == ctx.Config().TypeProperty() {
		if d.typeID != nil && cur.CurrentToken() == token.String {
			fieldByIndexAlloc(dst, d.typeID.Index).SetString(cur.Text())
			return nil
		}
		return cur.SkipChildren()
	}

	if d.desc.IgnoreUnknown || d.desc.IsIgnored(name) || d.skipped[name] {
		return cur.SkipChildren()
	}
	if err := ctx.HandleUnknownProperty(cur, d.t, dst, name, d.known); err != nil {
		return errs.WithPath(err, errs.FieldRef(d.t, name))
	}
	return nil
}

func (d *beanDecoder) idProperty(ctx *bind.Context) string {
	if p := d.desc.Identity.Property; p != "" {
		return p
	}
	return ctx.Config().IDProperty()
}

func (d *beanDecoder) lookup(ctx *bind.Context, name string) *beanField {
	if f, ok := d.fields[name]; ok {
		return f
	}
	if !ctx.Enabled(bind.AcceptCaseInsensitiveProperties) {
		return nil
	}
	cfg := ctx.Config()
	key := cfg.PropertyKey(name)
	for _, f := range d.order {
		if cfg.PropertyKey(f.name) == key {
			return f
		}
	}
	return nil
}

// linkBack points the back reference of the children held by fv to the
// struct being decoded.
func (d *beanDecoder) linkBack(f *beanField, fv, dst reflect.Value) {
	if f.back == nil || !dst.CanAddr() {
		return
	}
	parent := dst.Addr()
	link := func(child reflect.Value) {
		if child.Kind() == reflect.Pointer {
			if child.IsNil() {
				return
			}
			child = child.Elem()
		}
		if child.Kind() == reflect.Struct && child.CanSet() {
			fieldByIndexAlloc(child, f.back).Set(parent)
		}
	}

	if !f.many {
		link(fv)
		return
	}
	for i := 0; i < fv.Len(); i++ {
		link(fv.Index(i))
	}
}

// fieldByIndexAlloc returns the field of v at index, allocating the
// embedded pointers on the way.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// beanEncoder writes structs as objects, with the writers built by the
// property collector.
type beanEncoder struct {
	t         reflect.Type
	desc      *property.BeanDescription
	collector *property.Collector
	res       *property.Result
}

func (e *beanEncoder) Resolve(ctx *bind.Context) error {
	res, err := e.collector.Collect(ctx, e.desc)
	if err != nil {
		return err
	}
	e.res = res
	return nil
}

func (e *beanEncoder) UsesObjectIdentity() bool {
	return e.res != nil && e.res.Identity != nil
}

func (e *beanEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	return e.encode(ctx, em, v, nil)
}

// EncodeWithType writes v with its type id as the first property.
func (e *beanEncoder) EncodeWithType(ctx *bind.Context, em token.Emitter, v reflect.Value, tw *bind.TypeWriter) error {
	return e.encode(ctx, em, v, tw)
}

func (e *beanEncoder) encode(ctx *bind.Context, em token.Emitter, v reflect.Value, tw *bind.TypeWriter) error {
	if property.IsEmptyBean(e.res) && ctx.Enabled(bind.FailOnEmptyBeans) {
		return ctx.ReportBadDefinition(e.t, fmt.Sprintf(
			"No encoder found for %s and no properties discovered (disable FailOnEmptyBeans to write it as an empty object)",
			types.ShortName(e.t)))
	}

	var wid *identity.WritableID
	if e.UsesObjectIdentity() {
		item := v.Interface()
		if v.CanAddr() {
			item = v.Addr().Interface()
		}
		var done bool
		var err error
		wid, done, err = e.res.Identity.WriteAsID(ctx, em, item)
		if err != nil || done {
			return err
		}
	}

	if err := ctx.EnterValue(e.t); err != nil {
		return err
	}
	defer ctx.LeaveValue()

	if err := em.WriteStartObject(); err != nil {
		return err
	}
	if tw != nil {
		if err := e.writeTypeID(ctx, em, v, tw); err != nil {
			return err
		}
	}
	if wid != nil {
		if err := e.res.Identity.WriteAsField(ctx, em, wid); err != nil {
			return err
		}
	}
	if e.res != nil {
		for _, w := range e.res.For(ctx.ActiveView()) {
			if w == nil {
				continue
			}
			if err := w.SerializeAsField(ctx, em, v); err != nil {
				return err
			}
		}
	}
	return em.WriteEndObject()
}

// writeTypeID writes the type id, taken from the type id member when it
// is set.
func (e *beanEncoder) writeTypeID(ctx *bind.Context, em token.Emitter, v reflect.Value, tw *bind.TypeWriter) error {
	if e.res != nil && e.res.TypeID != nil {
		if id, ok := e.res.TypeID.Get(v); ok && id.String() != "" {
			if err := em.WriteFieldName(tw.Property); err != nil {
				return err
			}
			return em.WriteValue(id.String())
		}
	}
	return tw.WriteID(ctx, em, v.Type())
}
