package property_test

import (
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	"github.com/chaisql/databind/bind/property"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/jsontoken"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

type Shape interface{ Area() float64 }

type Label string

func (l Label) Area() float64 { return float64(len(l)) }

type Secret struct{}

func (Secret) BindingIgnored() {}

type item struct {
	ID     int
	Name   string
	Parent *item
	Kind   string
	Secret Secret
	RO     string
	Shape  Shape
	Note   string
	Self   *item
}

var itemType = reflect.TypeOf(item{})

type scalarEncoder struct{}

func (scalarEncoder) Encode(ctx *bind.Context, em token.Emitter, v reflect.Value) error {
	return em.WriteValue(v.Interface())
}

// badFormatEncoder fails to specialize for any property.
type badFormatEncoder struct{ scalarEncoder }

func (badFormatEncoder) CreateContextual(*bind.Context, bind.Site) (bind.Encoder, error) {
	return nil, errors.New("bad format")
}

type encoderFactory struct{}

func (encoderFactory) NewEncoder(*bind.Context, *types.Descriptor) (bind.Encoder, error) {
	return scalarEncoder{}, nil
}

func candidate(name string, index int) property.Candidate {
	f := itemType.Field(index)
	return property.Candidate{Name: name, Index: f.Index, Type: f.Type, HasMutator: true}
}

func describe() *property.BeanDescription {
	name := candidate("name", 1)
	name.Suppress = property.SuppressIfEmpty
	parent := candidate("parent", 2)
	parent.BackReference = true
	kind := candidate("kind", 3)
	kind.TypeID = true
	ro := candidate("ro", 5)
	ro.HasMutator = false
	note := candidate("note", 7)
	note.Views = []string{"admin"}
	self := candidate("self", 8)
	self.Suppress = property.SuppressIfNull

	return &property.BeanDescription{
		Type: itemType,
		Candidates: []property.Candidate{
			candidate("id", 0), name, parent, kind, candidate("secret", 4), ro, candidate("shape", 6), note, self,
		},
	}
}

func newConfig(t *testing.T) *bind.Config {
	f := types.NewFactory()
	require.NoError(t, types.Register[Label](f, "Label"))
	return bind.NewConfig().WithTypeFactory(f)
}

func newContext(cfg *bind.Config) *bind.Context {
	return bind.NewRoot(cfg, nil, encoderFactory{}).NewEncodeContext(nil)
}

type summary struct {
	Name     string
	Suppress string
	Views    []string
	Typed    bool
}

func summarize(res *property.Result) []summary {
	var out []summary
	for _, w := range res.Writers {
		out = append(out, summary{
			Name:     w.Name(),
			Suppress: w.Suppress().String(),
			Views:    w.Views(),
			Typed:    w.TypeWriter() != nil,
		})
	}
	return out
}

func write(t *testing.T, ctx *bind.Context, res *property.Result, bean reflect.Value) string {
	t.Helper()

	em := jsontoken.NewEmitter()
	defer em.Release()

	require.NoError(t, em.WriteStartObject())
	for _, w := range res.For(ctx.ActiveView()) {
		if w == nil {
			continue
		}
		require.NoError(t, w.SerializeAsField(ctx, em, bean))
	}
	require.NoError(t, em.WriteEndObject())
	return em.String()
}

func TestCollect(t *testing.T) {
	want := []summary{
		{Name: "id", Suppress: "never"},
		{Name: "name", Suppress: "omitempty"},
		{Name: "ro", Suppress: "never"},
		{Name: "shape", Suppress: "never", Typed: true},
		{Name: "note", Suppress: "never", Views: []string{"admin"}},
		{Name: "self", Suppress: "omitnil"},
	}

	t.Run("pipeline", func(t *testing.T) {
		var c property.Collector
		res, err := c.Collect(newContext(newConfig(t)), describe())
		require.NoError(t, err)

		if diff := cmp.Diff(want, summarize(res)); diff != "" {
			t.Fatalf("mismatch (-want, +got):\n%s", diff)
		}
		require.Equal(t, "kind", res.TypeID.Name())
		require.Nil(t, res.Identity)
	})

	t.Run("idempotent", func(t *testing.T) {
		var c property.Collector
		ctx := newContext(newConfig(t))
		desc := describe()

		r1, err := c.Collect(ctx, desc)
		require.NoError(t, err)
		r2, err := c.Collect(ctx, desc)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(summarize(r1), summarize(r2)))
	})

	t.Run("setterless", func(t *testing.T) {
		var c property.Collector
		res, err := c.Collect(newContext(newConfig(t).With(bind.RequireSettersForGetters)), describe())
		require.NoError(t, err)
		for _, w := range res.Writers {
			require.NotEqual(t, "ro", w.Name())
		}
	})

	t.Run("ignored types", func(t *testing.T) {
		c := property.Collector{IgnoredTypes: []reflect.Type{reflect.TypeOf("")}}
		res, err := c.Collect(newContext(newConfig(t)), describe())
		require.NoError(t, err)

		var names []string
		for _, w := range res.Writers {
			names = append(names, w.Name())
		}
		require.Equal(t, []string{"id", "shape", "self"}, names)
	})

	t.Run("empty", func(t *testing.T) {
		var c property.Collector
		desc := property.BeanDescription{Type: itemType, Candidates: []property.Candidate{describe().Candidates[2]}}
		res, err := c.Collect(newContext(newConfig(t)), &desc)
		require.NoError(t, err)
		require.Nil(t, res)
		require.True(t, property.IsEmptyBean(res))
	})

	t.Run("modifiers", func(t *testing.T) {
		desc := describe()
		desc.Ignored = []string{"name"}
		c := property.Collector{Modifiers: []property.Modifier{
			property.ModifierFunc(func(_ *property.BeanDescription, ws []*property.Writer) []*property.Writer {
				out := make([]*property.Writer, 0, len(ws))
				for i := len(ws) - 1; i >= 0; i-- {
					out = append(out, ws[i])
				}
				return out
			}),
			property.ModifierFunc(func(_ *property.BeanDescription, ws []*property.Writer) []*property.Writer {
				for i, w := range ws {
					if w.Name() == "ro" {
						ws[i] = w.Rename("readOnly")
					}
				}
				return ws
			}),
		}}

		res, err := c.Collect(newContext(newConfig(t)), desc)
		require.NoError(t, err)

		var names []string
		for _, w := range res.Writers {
			names = append(names, w.Name())
		}
		require.Equal(t, []string{"self", "note", "shape", "readOnly", "id"}, names)
	})

	t.Run("contextual failure", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Candidates[1].Encoder = badFormatEncoder{}

		_, err := c.Collect(newContext(newConfig(t)), desc)
		require.True(t, errs.IsDefinitionError(err), "got %v", err)

		var de *errs.DefinitionError
		require.True(t, errors.As(err, &de))
		require.Equal(t, "name", de.Property)
		require.Equal(t, itemType, de.Type)
		require.Contains(t, err.Error(), "bad format")
	})
}

func TestSerializeAsField(t *testing.T) {
	bean := item{ID: 1, Name: "x", Kind: "k", RO: "r", Shape: Label("sq"), Note: "n"}

	t.Run("default", func(t *testing.T) {
		var c property.Collector
		ctx := newContext(newConfig(t))
		res, err := c.Collect(ctx, describe())
		require.NoError(t, err)

		got := write(t, ctx, res, reflect.ValueOf(&bean).Elem())
		require.JSONEq(t, `{"id":1,"name":"x","ro":"r","shape":["Label","sq"],"note":"n"}`, got)

		empty := item{}
		got = write(t, ctx, res, reflect.ValueOf(&empty).Elem())
		require.JSONEq(t, `{"id":0,"ro":"","shape":null,"note":""}`, got)
	})

	t.Run("views", func(t *testing.T) {
		var c property.Collector
		cfg := newConfig(t)
		res, err := c.Collect(newContext(cfg), describe())
		require.NoError(t, err)
		require.NotNil(t, res.Filtered)

		got := write(t, newContext(cfg.WithView("admin")), res, reflect.ValueOf(&bean).Elem())
		require.JSONEq(t, `{"id":1,"name":"x","ro":"r","shape":["Label","sq"],"note":"n"}`, got)

		got = write(t, newContext(cfg.WithView("public")), res, reflect.ValueOf(&bean).Elem())
		require.JSONEq(t, `{"id":1,"name":"x","ro":"r","shape":["Label","sq"]}`, got)

		cfg = cfg.Without(bind.DefaultViewInclusion)
		res, err = c.Collect(newContext(cfg), describe())
		require.NoError(t, err)
		got = write(t, newContext(cfg.WithView("admin")), res, reflect.ValueOf(&bean).Elem())
		require.JSONEq(t, `{"note":"n"}`, got)
	})

	t.Run("no views", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Candidates[7].Views = nil
		res, err := c.Collect(newContext(newConfig(t)), desc)
		require.NoError(t, err)
		require.Nil(t, res.Filtered)
	})

	t.Run("self reference", func(t *testing.T) {
		var c property.Collector
		cfg := newConfig(t)
		res, err := c.Collect(newContext(cfg), describe())
		require.NoError(t, err)

		b := bean
		b.Self = &b
		em := jsontoken.NewEmitter()
		defer em.Release()
		require.NoError(t, em.WriteStartObject())
		w := res.Writers[len(res.Writers)-1]
		err = w.SerializeAsField(newContext(cfg), em, reflect.ValueOf(&b).Elem())
		require.True(t, errs.IsDefinitionError(err))
		require.Equal(t, []errs.PathRef{errs.FieldRef(itemType, "self")}, errs.PathOf(err))

		ctx := newContext(cfg.Without(bind.FailOnSelfReferences))
		got := write(t, ctx, res, reflect.ValueOf(&b).Elem())
		require.JSONEq(t, `{"id":1,"name":"x","ro":"r","shape":["Label","sq"],"note":"n","self":null}`, got)
	})
}

func TestIdentity(t *testing.T) {
	t.Run("property based", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Identity = &property.IdentityInfo{Property: "name"}

		res, err := c.Collect(newContext(newConfig(t)), desc)
		require.NoError(t, err)
		require.Equal(t, "name", res.Writers[0].Name())
		require.Equal(t, "id", res.Writers[1].Name())
		require.Empty(t, res.Identity.Property)
		require.Same(t, res.Writers[0], res.Identity.IDWriter)
	})

	t.Run("missing property", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Identity = &property.IdentityInfo{Property: "nope"}

		_, err := c.Collect(newContext(newConfig(t)), desc)
		require.True(t, errs.IsDefinitionError(err))
	})

	t.Run("always as id", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Identity = &property.IdentityInfo{Property: "id", AlwaysAsID: true}

		ctx := newContext(newConfig(t))
		res, err := c.Collect(ctx, desc)
		require.NoError(t, err)

		em := jsontoken.NewEmitter()
		defer em.Release()
		_, done, err := res.Identity.WriteAsID(ctx, em, &item{ID: 1, Name: "x"})
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "1", em.String())
	})

	t.Run("generated", func(t *testing.T) {
		var c property.Collector
		desc := describe()
		desc.Identity = &property.IdentityInfo{Generator: identity.NewIntSequence(nil)}

		ctx := newContext(newConfig(t))
		res, err := c.Collect(ctx, desc)
		require.NoError(t, err)
		require.Equal(t, bind.DefaultIDProperty, res.Identity.Property)

		a, b := &item{ID: 10}, &item{ID: 20}
		writeRef := func(v *item) string {
			em := jsontoken.NewEmitter()
			defer em.Release()

			wid, done, err := res.Identity.WriteAsID(ctx, em, v)
			require.NoError(t, err)
			if !done {
				require.NoError(t, em.WriteStartObject())
				require.NoError(t, res.Identity.WriteAsField(ctx, em, wid))
				require.NoError(t, em.WriteEndObject())
			}
			return em.String()
		}

		require.Equal(t, `{"@id":1}`, writeRef(a))
		require.Equal(t, `1`, writeRef(a))
		require.Equal(t, `{"@id":2}`, writeRef(b))
	})
}
