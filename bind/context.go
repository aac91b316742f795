package bind

import (
	"fmt"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dromara/carbon/v2"
	"go.uber.org/zap"

	"github.com/chaisql/databind/bind/identity"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// MaxDepth is the maximum nesting of values written by one operation.
// Deeper graphs are reported as an infinite recursion.
const MaxDepth = 1000

// Context holds the state of one binding operation. It must be used by a
// single goroutine and discarded once the operation ends.
type Context struct {
	root   *Root
	config *Config
	cursor token.Cursor
	attrs  Attributes

	registry  *identity.Registry
	writables *identity.Writables

	// types being contextualized, innermost last
	stack []*types.Descriptor

	// converters being built by a factory, and converters built but not yet
	// resolved, by type key
	buildingDec   map[string]struct{}
	buildingEnc   map[string]struct{}
	incompleteDec map[string]Decoder
	incompleteEnc map[string]Encoder

	// containers whose current element is decoded into a temporary cell,
	// innermost first
	copyBack *copyBack

	buf   []any
	depth int
}

func newContext(r *Root, cfg *Config, cur token.Cursor) *Context {
	if cfg == nil {
		cfg = r.config
	}
	return &Context{
		root:   r,
		config: cfg,
		cursor: cur,
		attrs:  newAttributes(cfg.attributes),
	}
}

func (c *Context) Config() *Config { return c.config }

// Enabled reports whether the feature is enabled for this operation.
func (c *Context) Enabled(f Feature) bool { return c.config.Enabled(f) }

// Cursor returns the cursor of a decoding operation, or nil.
func (c *Context) Cursor() token.Cursor { return c.cursor }

func (c *Context) Logger() *zap.Logger { return c.config.Logger() }

// ActiveView returns the view of the operation, or the empty string.
func (c *Context) ActiveView() string { return c.config.View() }

// Attribute returns the value of an attribute of the operation, falling back
// to the attributes of the configuration.
func (c *Context) Attribute(key any) any { return c.attrs.Get(key) }

// SetAttribute sets an attribute for this operation only.
// Keys must be comparable, others are dropped.
func (c *Context) SetAttribute(key, value any) {
	if !c.attrs.Set(key, value) {
		c.Logger().Warn("attribute dropped, key is not comparable", zap.String("key", fmt.Sprintf("%T", key)))
	}
}

// FindDecoder returns the decoder of t, contextualized for site.
// Decoders are built by the factory of the root on first use and cached
// for every later operation.
func (c *Context) FindDecoder(t *types.Descriptor, site Site) (Decoder, error) {
	key := t.Key()
	if dec, ok := c.incompleteDec[key]; ok {
		return contextualize(c, t, dec, site)
	}
	if _, ok := c.buildingDec[key]; ok {
		return &lazyDecoder{t: t, site: site}, nil
	}

	dec, ok := c.root.decoders.Load(t)
	if !ok {
		var err error
		dec, err = c.buildDecoder(t)
		if err != nil {
			return nil, err
		}
	}
	return contextualize(c, t, dec, site)
}

func (c *Context) buildDecoder(t *types.Descriptor) (Decoder, error) {
	if c.root.decFactory == nil {
		return nil, c.ReportBadTypeDefinition(t.Raw(), "no decoder factory configured")
	}
	key := t.Key()

	if c.buildingDec == nil {
		c.buildingDec = make(map[string]struct{})
	}
	c.buildingDec[key] = struct{}{}
	dec, err := c.root.decFactory.NewDecoder(c, t)
	delete(c.buildingDec, key)
	if err != nil {
		return nil, c.definitionFailure(t, "decoder", err)
	}
	if dec == nil {
		return nil, c.ReportBadTypeDefinition(t.Raw(), "no decoder found")
	}

	if r, ok := dec.(Resolvable); ok {
		if c.incompleteDec == nil {
			c.incompleteDec = make(map[string]Decoder)
		}
		c.incompleteDec[key] = dec
		err := r.Resolve(c)
		delete(c.incompleteDec, key)
		if err != nil {
			return nil, c.definitionFailure(t, "decoder", err)
		}
	}

	dec, loaded := c.root.decoders.LoadOrStore(t, dec)
	c.Logger().Debug("decoder built", zap.Stringer("type", t), zap.Bool("raced", loaded))
	return dec, nil
}

// FindEncoder returns the encoder of t, contextualized for site.
func (c *Context) FindEncoder(t *types.Descriptor, site Site) (Encoder, error) {
	key := t.Key()
	if enc, ok := c.incompleteEnc[key]; ok {
		return contextualize(c, t, enc, site)
	}
	if _, ok := c.buildingEnc[key]; ok {
		return &lazyEncoder{t: t, site: site}, nil
	}

	enc, ok := c.root.encoders.Load(t)
	if !ok {
		var err error
		enc, err = c.buildEncoder(t)
		if err != nil {
			return nil, err
		}
	}
	return contextualize(c, t, enc, site)
}

func (c *Context) buildEncoder(t *types.Descriptor) (Encoder, error) {
	if c.root.encFactory == nil {
		return nil, c.ReportBadTypeDefinition(t.Raw(), "no encoder factory configured")
	}
	key := t.Key()

	if c.buildingEnc == nil {
		c.buildingEnc = make(map[string]struct{})
	}
	c.buildingEnc[key] = struct{}{}
	enc, err := c.root.encFactory.NewEncoder(c, t)
	delete(c.buildingEnc, key)
	if err != nil {
		return nil, c.definitionFailure(t, "encoder", err)
	}
	if enc == nil {
		return nil, c.ReportBadTypeDefinition(t.Raw(), "no encoder found")
	}

	if r, ok := enc.(Resolvable); ok {
		if c.incompleteEnc == nil {
			c.incompleteEnc = make(map[string]Encoder)
		}
		c.incompleteEnc[key] = enc
		err := r.Resolve(c)
		delete(c.incompleteEnc, key)
		if err != nil {
			return nil, c.definitionFailure(t, "encoder", err)
		}
	}

	enc, loaded := c.root.encoders.LoadOrStore(t, enc)
	c.Logger().Debug("encoder built", zap.Stringer("type", t), zap.Bool("raced", loaded))
	return enc, nil
}

// ContextualizeDecoder resolves and contextualizes a decoder that was not
// obtained from FindDecoder, such as one declared on a property.
func (c *Context) ContextualizeDecoder(t *types.Descriptor, dec Decoder, site Site) (Decoder, error) {
	if r, ok := dec.(Resolvable); ok {
		if err := r.Resolve(c); err != nil {
			return nil, c.definitionFailure(t, "decoder", err)
		}
	}
	return contextualize(c, t, dec, site)
}

// ContextualizeEncoder resolves and contextualizes an encoder that was not
// obtained from FindEncoder.
func (c *Context) ContextualizeEncoder(t *types.Descriptor, enc Encoder, site Site) (Encoder, error) {
	if r, ok := enc.(Resolvable); ok {
		if err := r.Resolve(c); err != nil {
			return nil, c.definitionFailure(t, "encoder", err)
		}
	}
	return contextualize(c, t, enc, site)
}

// contextualize specializes conv for site. If t is already being
// contextualized, conv is returned as is so that recursive types terminate.
func contextualize[C any](c *Context, t *types.Descriptor, conv C, site Site) (C, error) {
	ct, ok := any(conv).(Contextual[C])
	if !ok {
		return conv, nil
	}
	if c.IsContextualizing(t) {
		c.Logger().Debug("contextualization short-circuited", zap.Stringer("type", t))
		return conv, nil
	}

	c.PushContextualizing(t)
	defer c.PopContextualizing()

	out, err := ct.CreateContextual(c, site)
	if err != nil {
		var zero C
		return zero, c.definitionFailure(t, "contextual converter", err)
	}
	return out, nil
}

// PushContextualizing marks t as being contextualized.
func (c *Context) PushContextualizing(t *types.Descriptor) {
	c.stack = append(c.stack, t)
}

// PopContextualizing removes the innermost type being contextualized.
func (c *Context) PopContextualizing() {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// IsContextualizing reports whether t is being contextualized.
func (c *Context) IsContextualizing(t *types.Descriptor) bool {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].Equal(t) {
			return true
		}
	}
	return false
}

// CurrentType returns the innermost type being contextualized, or nil.
func (c *Context) CurrentType() *types.Descriptor {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// LeaseBuffer returns a scratch buffer owned by the caller until it is
// given back with ReleaseBuffer.
func (c *Context) LeaseBuffer() []any {
	buf := c.buf
	c.buf = nil
	if buf == nil {
		buf = make([]any, 0, 16)
	}
	return buf[:0]
}

// ReleaseBuffer gives back a leased buffer. The context keeps the larger
// of the buffers it holds.
func (c *Context) ReleaseBuffer(buf []any) {
	if cap(buf) < cap(c.buf) {
		return
	}
	clear(buf[:cap(buf)])
	c.buf = buf[:0]
}

type copyBack struct {
	fn     func() error
	parent *copyBack
	used   bool
}

func (b *copyBack) run() error {
	for ; b != nil; b = b.parent {
		if err := b.fn(); err != nil {
			return err
		}
	}
	return nil
}

// EnterCopyBack is called by containers before decoding elements into
// temporary cells. fn stores the cells into the container again.
func (c *Context) EnterCopyBack(fn func() error) {
	c.copyBack = &copyBack{fn: fn, parent: c.copyBack}
}

// LeaveCopyBack ends the innermost EnterCopyBack. It reports whether its
// function was handed out by CopyBack, in which case the cells must stay
// valid until the end of the operation.
func (c *Context) LeaveCopyBack() bool {
	b := c.copyBack
	if b == nil {
		return false
	}
	c.copyBack = b.parent
	return b.used
}

// CopyBack returns the function to call after a value was updated in place
// by a late reference, so that every enclosing container holding a copy of
// it is refreshed. It returns nil outside of temporary cells.
func (c *Context) CopyBack() func() error {
	top := c.copyBack
	if top == nil {
		return nil
	}
	for b := top; b != nil && !b.used; b = b.parent {
		b.used = true
	}
	return top.run
}

// ParseDate parses s as a time. With a layout configured, s must follow it.
// Otherwise any common date format is accepted. Times without offset are
// in the location of the configuration.
func (c *Context) ParseDate(s string, layout string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if layout == "" {
		layout = c.config.DateLayout()
	}
	tz := c.config.Location().String()

	var cb *carbon.Carbon
	if layout == "" {
		cb = carbon.Parse(s, tz)
	} else {
		cb = carbon.ParseByLayout(s, layout, tz)
	}
	if cb == nil {
		return time.Time{}, errors.Newf("cannot parse %q as a date", s)
	}
	if cb.Error != nil {
		return time.Time{}, cb.Error
	}
	return cb.StdTime(), nil
}

// Identity returns the identity registry of the operation.
func (c *Context) Identity() *identity.Registry {
	if c.registry == nil {
		c.registry = identity.NewRegistry()
	}
	return c.registry
}

// Writables returns the ids written during the operation.
func (c *Context) Writables() *identity.Writables {
	if c.writables == nil {
		c.writables = identity.NewWritables()
	}
	return c.writables
}

// CheckUnresolvedObjectIDs drains the identity registry and reports every
// reference left unresolved as a single error, unless
// FailOnUnresolvedObjectIDs is disabled.
func (c *Context) CheckUnresolvedObjectIDs() error {
	if c.registry == nil {
		return nil
	}
	unresolved, err := c.registry.Drain()
	if err != nil {
		return err
	}
	if len(unresolved) == 0 {
		return nil
	}
	c.Logger().Debug("unresolved object ids", zap.Int("count", len(unresolved)))
	if !c.config.Enabled(FailOnUnresolvedObjectIDs) {
		return nil
	}

	ids := make([]errs.UnresolvedID, len(unresolved))
	msg := "Unresolved forward references for: "
	for i, u := range unresolved {
		loc := u.Location
		ids[i] = errs.UnresolvedID{ID: u.Key.ID, Type: u.Type, Location: &loc}
		if i > 0 {
			msg += ", "
		}
		msg += fmt.Sprintf("Object id [%v] (for %s) at [%s]", u.Key.ID, types.ShortName(u.Type), loc)
	}
	return &errs.UnresolvedReferenceError{
		Problem:    errs.Problem{Msg: msg + "."},
		Unresolved: ids,
	}
}

// EnterValue is called by encoders before writing a nested value.
// It fails when the graph is too deep to be anything but a cycle.
func (c *Context) EnterValue(t reflect.Type) error {
	c.depth++
	if c.depth > MaxDepth {
		return c.ReportBadDefinition(t, fmt.Sprintf("Infinite recursion (depth > %d) while writing %s", MaxDepth, types.ShortName(t)))
	}
	return nil
}

// LeaveValue is called once a nested value was written.
func (c *Context) LeaveValue() {
	c.depth--
}
