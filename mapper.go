package databind

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/jsontoken"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// Mapper reads and writes Go values. It is safe for concurrent use.
type Mapper struct {
	root   *bind.Root
	config *bind.Config
}

// Config returns the configuration of the operations run by m.
func (m *Mapper) Config() *bind.Config { return m.config }

// WithView returns a mapper sharing the converters of m, writing the
// properties of the given view.
func (m *Mapper) WithView(view string) *Mapper {
	return &Mapper{root: m.root, config: m.config.WithView(view)}
}

// WithAttribute returns a mapper sharing the converters of m, with an
// additional mapper level attribute.
func (m *Mapper) WithAttribute(key, value any) *Mapper {
	return &Mapper{root: m.root, config: m.config.WithAttribute(key, value)}
}

// WithInjectables returns a mapper sharing the converters of m, injecting
// the values of inj.
func (m *Mapper) WithInjectables(inj bind.Injectables) *Mapper {
	return &Mapper{root: m.root, config: m.config.WithInjectables(inj)}
}

// Read decodes the next value of cur into v, which must be a non-nil pointer.
func (m *Mapper) Read(cur token.Cursor, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Newf("databind: Read requires a non-nil pointer, got %T", v)
	}
	dst := rv.Elem()

	ctx := m.root.NewDecodeContext(m.config, cur)
	tok := cur.CurrentToken()
	if tok == token.None {
		var err error
		tok, err = cur.NextValue()
		if err != nil {
			return err
		}
	}
	if tok == token.None {
		return ctx.ReportInputMismatch(dst.Type(), "No content to map due to end-of-input")
	}

	dec, err := ctx.FindDecoder(types.Of(dst.Type()), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	if err := dec.Decode(ctx, cur, dst); err != nil {
		if fr, ok := identity.AsForwardReference(err); ok {
			return m.unresolvedRoot(ctx, fr)
		}
		return err
	}
	return ctx.CheckUnresolvedObjectIDs()
}

// unresolvedRoot reports a root value that is a reference to an object
// that does not exist.
func (m *Mapper) unresolvedRoot(ctx *bind.Context, fr *identity.ForwardReference) error {
	ctx.Logger().Debug("unresolved root reference", zap.Stringer("key", fr.Entry.Key()))
	if !ctx.Enabled(bind.FailOnUnresolvedObjectIDs) {
		return nil
	}
	loc := fr.Location
	id := fr.Entry.Key().ID
	return &errs.UnresolvedReferenceError{
		Problem: errs.Problem{
			Msg:      fmt.Sprintf("Unresolved forward references for: Object id [%v] (for %s) at [%s].", id, types.ShortName(fr.Type), loc),
			Location: &loc,
		},
		Unresolved: []errs.UnresolvedID{{ID: id, Type: fr.Type, Location: &loc}},
	}
}

// ReadValue decodes the JSON value data into v.
func (m *Mapper) ReadValue(data []byte, v any) error {
	cur, err := jsontoken.NewCursor(data)
	if err != nil {
		return err
	}
	return m.Read(cur, v)
}

// Read decodes the JSON value data into a value of type T.
func Read[T any](m *Mapper, data []byte) (T, error) {
	var v T
	err := m.ReadValue(data, &v)
	return v, err
}

// Write encodes v into em. Pass a pointer to an interface to write the
// type id of the value.
func (m *Mapper) Write(em token.Emitter, v any) error {
	if v == nil {
		return em.WriteNull()
	}
	rv := reflect.ValueOf(v)

	ctx := m.root.NewEncodeContext(m.config)
	enc, err := ctx.FindEncoder(types.Of(rv.Type()), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	return enc.Encode(ctx, em, rv)
}

// WriteValue encodes v as JSON.
func (m *Mapper) WriteValue(v any) ([]byte, error) {
	em := jsontoken.NewEmitter()
	defer em.Release()

	if err := m.Write(em, v); err != nil {
		return nil, err
	}
	return em.Bytes(), nil
}

// Preload builds the decoders and encoders of the given types concurrently,
// so that the first operations do not pay for it.
func (m *Mapper) Preload(ctx context.Context, ts ...reflect.Type) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, t := range ts {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d := types.Of(t)
			if _, err := m.root.NewDecodeContext(m.config, nil).FindDecoder(d, bind.SecondarySite(nil)); err != nil {
				return err
			}
			_, err := m.root.NewEncodeContext(m.config).FindEncoder(d, bind.SecondarySite(nil))
			return err
		})
	}

	return g.Wait()
}
