package bind_test

import (
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/jsontoken"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

type intDecoder struct{}

func (intDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	n, err := cur.Int()
	if err != nil {
		return err
	}
	dst.SetInt(n)
	return nil
}

type decoderFunc func(ctx *bind.Context, t *types.Descriptor) (bind.Decoder, error)

type countingFactory struct {
	calls atomic.Int32
	build decoderFunc
}

func (f *countingFactory) NewDecoder(ctx *bind.Context, t *types.Descriptor) (bind.Decoder, error) {
	f.calls.Add(1)
	return f.build(ctx, t)
}

func cursor(t *testing.T, s string) *jsontoken.Cursor {
	cur, err := jsontoken.NewCursor([]byte(s))
	require.NoError(t, err)
	_, err = cur.NextValue()
	require.NoError(t, err)
	return cur
}

var intType = types.Of(reflect.TypeOf(0))

func TestFindDecoder(t *testing.T) {
	t.Run("cached once", func(t *testing.T) {
		f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
			return &intDecoder{}, nil
		}}
		root := bind.NewRoot(nil, &f, nil)

		d1, err := root.NewDecodeContext(nil, nil).FindDecoder(intType, bind.SecondarySite(nil))
		require.NoError(t, err)
		d2, err := root.NewDecodeContext(nil, nil).FindDecoder(types.Of(reflect.TypeOf(0)), bind.SecondarySite(nil))
		require.NoError(t, err)

		require.Same(t, d1, d2)
		require.EqualValues(t, 1, f.calls.Load())
		require.Equal(t, 1, root.Decoders().Len())
		require.Positive(t, testutil.CollectAndCount(root.Collectors()[0], "databind_converter_cache_total"))

		root.Decoders().Flush()
		require.Equal(t, 0, root.Decoders().Len())
	})

	t.Run("concurrent", func(t *testing.T) {
		f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
			return &intDecoder{}, nil
		}}
		root := bind.NewRoot(nil, &f, nil)

		decs := make([]bind.Decoder, 32)
		var g errgroup.Group
		for i := range decs {
			i := i
			g.Go(func() error {
				d, err := root.NewDecodeContext(nil, nil).FindDecoder(intType, bind.SecondarySite(nil))
				decs[i] = d
				return err
			})
		}
		require.NoError(t, g.Wait())
		for _, d := range decs {
			require.Same(t, decs[0], d)
		}
	})

	t.Run("factory error", func(t *testing.T) {
		f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
			return nil, errors.New("boom")
		}}
		root := bind.NewRoot(nil, &f, nil)

		_, err := root.NewDecodeContext(nil, nil).FindDecoder(intType, bind.SecondarySite(nil))
		require.True(t, errs.IsDefinitionError(err))
		require.Contains(t, err.Error(), "boom")
		require.Equal(t, 0, root.Decoders().Len())
	})

	t.Run("no decoder", func(t *testing.T) {
		f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
			return nil, nil
		}}
		root := bind.NewRoot(nil, &f, nil)

		_, err := root.NewDecodeContext(nil, nil).FindDecoder(intType, bind.SecondarySite(nil))
		require.True(t, errs.IsDefinitionError(err))
	})
}

type listNode struct {
	Next *listNode
}

var listNodeType = types.Of(reflect.TypeOf(listNode{}))

type nodeDecoder struct {
	next bind.Decoder
}

func (d *nodeDecoder) Decode(*bind.Context, token.Cursor, reflect.Value) error { return nil }

func (d *nodeDecoder) Resolve(ctx *bind.Context) error {
	var err error
	d.next, err = ctx.FindDecoder(listNodeType, bind.SecondarySite(nil))
	return err
}

// nestDecoder counts the depth of nested arrays.
type nestDecoder struct {
	inner bind.Decoder
}

func (d *nestDecoder) Decode(ctx *bind.Context, cur token.Cursor, dst reflect.Value) error {
	tok, err := cur.NextValue()
	if err != nil || tok == token.EndArray {
		return err
	}
	dst.SetInt(dst.Int() + 1)
	if err := d.inner.Decode(ctx, cur, dst); err != nil {
		return err
	}
	_, err = cur.NextValue()
	return err
}

func TestRecursiveTypes(t *testing.T) {
	t.Run("resolvable", func(t *testing.T) {
		f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
			return new(nodeDecoder), nil
		}}
		root := bind.NewRoot(nil, &f, nil)

		dec, err := root.NewDecodeContext(nil, nil).FindDecoder(listNodeType, bind.SecondarySite(nil))
		require.NoError(t, err)
		require.Same(t, dec, dec.(*nodeDecoder).next)
		require.EqualValues(t, 1, f.calls.Load())
	})

	t.Run("built while building", func(t *testing.T) {
		var f countingFactory
		f.build = func(ctx *bind.Context, td *types.Descriptor) (bind.Decoder, error) {
			inner, err := ctx.FindDecoder(td, bind.SecondarySite(nil))
			if err != nil {
				return nil, err
			}
			return &nestDecoder{inner: inner}, nil
		}
		root := bind.NewRoot(nil, &f, nil)

		cur := cursor(t, "[[[]]]")
		ctx := root.NewDecodeContext(nil, cur)
		dec, err := ctx.FindDecoder(intType, bind.SecondarySite(nil))
		require.NoError(t, err)
		require.EqualValues(t, 1, f.calls.Load())

		var depth int
		require.NoError(t, dec.Decode(ctx, cur, reflect.ValueOf(&depth).Elem()))
		require.Equal(t, 2, depth)
		require.Equal(t, token.EndArray, cur.CurrentToken())
	})
}

type contextualDecoder struct {
	site  bind.Site
	inner bind.Decoder
	seen  *types.Descriptor
	calls *int
}

func (d *contextualDecoder) Decode(*bind.Context, token.Cursor, reflect.Value) error { return nil }

func (d *contextualDecoder) CreateContextual(ctx *bind.Context, site bind.Site) (bind.Decoder, error) {
	*d.calls++
	inner, err := ctx.FindDecoder(listNodeType, site)
	if err != nil {
		return nil, err
	}
	return &contextualDecoder{site: site, inner: inner, seen: ctx.CurrentType(), calls: d.calls}, nil
}

func TestContextualization(t *testing.T) {
	var calls int
	base := &contextualDecoder{calls: &calls}
	f := countingFactory{build: func(*bind.Context, *types.Descriptor) (bind.Decoder, error) {
		return base, nil
	}}
	root := bind.NewRoot(nil, &f, nil)
	ctx := root.NewDecodeContext(nil, nil)

	m := bind.Member{Name: "next", Format: "x"}
	dec, err := ctx.FindDecoder(listNodeType, bind.PrimarySite(&m))
	require.NoError(t, err)

	cd := dec.(*contextualDecoder)
	require.Equal(t, 1, calls)
	require.Equal(t, "x", cd.site.Format())
	require.Same(t, base, cd.inner)
	require.True(t, listNodeType.Equal(cd.seen))
	require.Nil(t, ctx.CurrentType())

	require.Equal(t, "", bind.SecondarySite(&m).Format())
}

type weirdStringHandler struct {
	bind.BaseHandler
	result bind.Result
	calls  *int
}

func (h weirdStringHandler) HandleWeirdStringValue(*bind.Context, reflect.Type, string, string) (bind.Result, error) {
	*h.calls++
	return h.result, nil
}

type typeIDHandler struct {
	bind.BaseHandler
	result bind.Result
}

func (h typeIDHandler) HandleUnknownTypeID(*bind.Context, *types.Descriptor, string, string) (bind.Result, error) {
	return h.result, nil
}

func (h typeIDHandler) HandleMissingTypeID(*bind.Context, *types.Descriptor, string) (bind.Result, error) {
	return h.result, nil
}

func newContext(cfg *bind.Config, cur token.Cursor) *bind.Context {
	return bind.NewRoot(cfg, nil, nil).NewDecodeContext(nil, cur)
}

func TestProblemHandlers(t *testing.T) {
	intT := reflect.TypeOf(0)

	t.Run("chain order", func(t *testing.T) {
		var first, second, third int
		cfg := bind.NewConfig().
			WithHandler(weirdStringHandler{result: bind.NotHandled, calls: &first}).
			WithHandler(weirdStringHandler{result: bind.Handled(42), calls: &second}).
			WithHandler(weirdStringHandler{result: bind.Handled(7), calls: &third})

		v, err := newContext(cfg, nil).HandleWeirdStringValue(intT, "abc", "not a number")
		require.NoError(t, err)
		require.Equal(t, 42, v)
		require.Equal(t, []int{1, 1, 0}, []int{first, second, third})
	})

	t.Run("incompatible value", func(t *testing.T) {
		var calls int
		cfg := bind.NewConfig().WithHandler(weirdStringHandler{result: bind.Handled("abc"), calls: &calls})

		_, err := newContext(cfg, nil).HandleWeirdStringValue(intT, "abc", "not a number")
		require.True(t, errs.IsDefinitionError(err))
	})

	t.Run("pointer equivalence", func(t *testing.T) {
		var calls int
		n := 5
		cfg := bind.NewConfig().WithHandler(weirdStringHandler{result: bind.Handled(&n), calls: &calls})

		v, err := newContext(cfg, nil).HandleWeirdStringValue(intT, "abc", "")
		require.NoError(t, err)
		require.Same(t, &n, v)
	})

	t.Run("exhausted", func(t *testing.T) {
		cur := cursor(t, `"abc"`)
		ctx := newContext(bind.NewConfig(), cur)

		_, err := ctx.HandleWeirdStringValue(intT, "abc", "not a number")
		var ife *errs.InvalidFormatError
		require.True(t, errors.As(err, &ife))
		require.Equal(t, "abc", ife.Value)
		require.NotNil(t, ife.Location)
		require.True(t, errs.IsInputMismatchError(err))

		_, err = ctx.HandleWeirdNumberValue(intT, 1.5, "not an integer")
		require.True(t, errors.As(err, &ife))

		_, err = ctx.HandleWeirdKey(intT, "k", "not an integer")
		require.True(t, errors.As(err, &ife))
	})

	t.Run("unexpected token", func(t *testing.T) {
		ctx := newContext(bind.NewConfig(), nil)

		_, err := ctx.HandleUnexpectedToken(intT, token.None, nil, "")
		require.True(t, errs.IsInputMismatchError(err))
		require.Contains(t, err.Error(), "Unexpected end-of-input when binding data into `int`")

		_, err = ctx.HandleUnexpectedToken(intT, token.StartObject, nil, "")
		require.Contains(t, err.Error(), "Cannot deserialize instance of `int` out of start object token")
	})

	t.Run("missing instantiator", func(t *testing.T) {
		ctx := newContext(bind.NewConfig(), nil)

		_, err := ctx.HandleMissingInstantiator(intT, false, nil, "no way")
		require.True(t, errs.IsDefinitionError(err))

		_, err = ctx.HandleMissingInstantiator(intT, true, nil, "from array")
		require.True(t, errs.IsInputMismatchError(err))
		require.Contains(t, err.Error(), "although")
	})

	t.Run("instantiation problem", func(t *testing.T) {
		cause := errors.New("bad input")
		_, err := newContext(bind.NewConfig(), nil).HandleInstantiationProblem(intT, "x", cause)
		require.True(t, errs.IsInputMismatchError(err))
		require.ErrorIs(t, err, cause)
	})
}

func TestHandleUnknownProperty(t *testing.T) {
	owner := reflect.TypeOf(listNode{})

	t.Run("fail", func(t *testing.T) {
		cur := cursor(t, `{"a": [1, 2], "b": 3}`)
		_, err := cur.NextValue()
		require.NoError(t, err)

		err = newContext(bind.NewConfig(), cur).HandleUnknownProperty(cur, owner, reflect.Value{}, "a", []string{"next"})
		var upe *errs.UnrecognizedPropertyError
		require.True(t, errors.As(err, &upe))
		require.Equal(t, "a", upe.Property)
		require.Equal(t, []string{"next"}, upe.Known)
		require.Contains(t, err.Error(), `1 known properties: ["next"]`)
	})

	t.Run("skip", func(t *testing.T) {
		cur := cursor(t, `{"a": [1, 2], "b": 3}`)
		_, err := cur.NextValue()
		require.NoError(t, err)

		cfg := bind.NewConfig().Without(bind.FailOnUnknownProperties)
		require.NoError(t, newContext(cfg, cur).HandleUnknownProperty(cur, owner, reflect.Value{}, "a", nil))
		require.Equal(t, token.EndArray, cur.CurrentToken())

		tok, err := cur.NextValue()
		require.NoError(t, err)
		require.Equal(t, token.Number, tok)
		require.Equal(t, "b", cur.FieldName())
	})
}

type Shape interface{ Area() float64 }

type Square struct{ Side float64 }

func (s Square) Area() float64 { return s.Side * s.Side }

type Circle struct{ R float64 }

func (c *Circle) Area() float64 { return 3 * c.R * c.R }

type Other struct{}

func subtypeConfig(t *testing.T) *bind.Config {
	f := types.NewFactory()
	require.NoError(t, types.Register[Square](f, "Square"))
	require.NoError(t, types.Register[Circle](f, "Circle"))
	require.NoError(t, types.Register[Other](f, "Other"))
	return bind.NewConfig().WithTypeFactory(f)
}

func TestSubtypes(t *testing.T) {
	shape := types.Of(reflect.TypeOf((*Shape)(nil)).Elem())

	t.Run("resolve", func(t *testing.T) {
		ctx := newContext(subtypeConfig(t), nil)

		tests := []struct {
			id     string
			want   reflect.Type
			wantID string
		}{
			{"Square", reflect.TypeOf(Square{}), "Square"},
			{"Circle", reflect.TypeOf(Circle{}), "Circle"},
			{"ptr<Circle>", reflect.TypeOf(&Circle{}), "Circle"},
		}
		for _, test := range tests {
			t.Run(test.id, func(t *testing.T) {
				d, err := ctx.ResolveSubtype(shape, test.id)
				require.NoError(t, err)
				require.Equal(t, test.want, d.Raw())

				id, err := ctx.TypeID(d.Raw())
				require.NoError(t, err)
				require.Equal(t, test.wantID, id)
			})
		}
	})

	t.Run("errors", func(t *testing.T) {
		ctx := newContext(subtypeConfig(t), nil)

		_, err := ctx.ResolveSubtype(shape, "Nope")
		require.ErrorIs(t, err, types.ErrTypeNotFound)

		for _, id := range []string{"Other", "list<Square>", "list<Square", "bad id"} {
			_, err = ctx.ResolveSubtype(shape, id)
			var ite *errs.InvalidTypeIDError
			require.True(t, errors.As(err, &ite), id)
			require.Equal(t, id, ite.TypeID)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		ctx := newContext(subtypeConfig(t), nil)
		_, err := ctx.TypeFromID(shape, "Nope")
		require.True(t, errs.IsInvalidTypeIDError(err))
		require.Contains(t, err.Error(), "known type ids = [Circle, Square]")

		ctx = newContext(subtypeConfig(t).Without(bind.FailOnInvalidSubtype), nil)
		d, err := ctx.TypeFromID(shape, "Nope")
		require.NoError(t, err)
		require.Nil(t, d)
	})

	t.Run("handlers", func(t *testing.T) {
		square := types.Of(reflect.TypeOf(Square{}))
		other := types.Of(reflect.TypeOf(Other{}))

		ctx := newContext(subtypeConfig(t).WithHandler(typeIDHandler{result: bind.Handled(square)}), nil)
		d, err := ctx.TypeFromID(shape, "Nope")
		require.NoError(t, err)
		require.Same(t, square, d)

		d, err = ctx.HandleMissingTypeID(shape, "")
		require.NoError(t, err)
		require.Same(t, square, d)

		ctx = newContext(subtypeConfig(t).WithHandler(typeIDHandler{result: bind.Handled(nil)}), nil)
		d, err = ctx.TypeFromID(shape, "Nope")
		require.NoError(t, err)
		require.Nil(t, d)

		ctx = newContext(subtypeConfig(t).WithHandler(typeIDHandler{result: bind.Handled(other)}), nil)
		_, err = ctx.TypeFromID(shape, "Nope")
		require.True(t, errs.IsInvalidTypeIDError(err))
		require.Contains(t, err.Error(), "non-subtype")

		_, err = newContext(subtypeConfig(t), nil).HandleMissingTypeID(shape, "")
		require.True(t, errs.IsMissingTypeIDError(err))
	})
}

func TestAttributes(t *testing.T) {
	cfg := bind.NewConfig().WithAttribute("a", 1).WithAttribute("b", 2)
	ctx := newContext(cfg, nil)

	require.Equal(t, 1, ctx.Attribute("a"))
	ctx.SetAttribute("a", 10)
	ctx.SetAttribute("c", 3)
	ctx.SetAttribute("b", nil)
	require.Equal(t, 10, ctx.Attribute("a"))
	require.Nil(t, ctx.Attribute("b"))
	require.Equal(t, 3, ctx.Attribute("c"))

	// the configuration is left untouched
	require.Equal(t, 1, cfg.Attribute("a"))
	require.Equal(t, 2, cfg.Attribute("b"))
	require.Equal(t, 2, newContext(cfg, nil).Attribute("b"))

	t.Run("uncomparable keys", func(t *testing.T) {
		key := []string{"a"}
		require.Same(t, cfg, cfg.WithAttribute(key, 1))
		require.Nil(t, cfg.Attribute(key))

		ctx := newContext(cfg, nil)
		ctx.SetAttribute(key, 1)
		ctx.SetAttribute(nil, 1)
		ctx.SetAttribute([1]any{map[string]int{}}, 1)
		require.Nil(t, ctx.Attribute(key))
		require.Nil(t, ctx.Attribute(nil))
		require.Equal(t, 1, ctx.Attribute("a"))
	})
}

func TestBuffers(t *testing.T) {
	ctx := newContext(bind.NewConfig(), nil)

	small := ctx.LeaseBuffer()
	require.Empty(t, small)
	big := ctx.LeaseBuffer()
	big = append(big, make([]any, 100)...)

	ctx.ReleaseBuffer(big)
	ctx.ReleaseBuffer(small)

	buf := ctx.LeaseBuffer()
	require.Empty(t, buf)
	require.GreaterOrEqual(t, cap(buf), 100)
}

func TestParseDate(t *testing.T) {
	ctx := newContext(bind.NewConfig(), nil)

	d, err := ctx.ParseDate("2021-01-01 10:05:59", "")
	require.NoError(t, err)
	require.True(t, d.Equal(time.Date(2021, 1, 1, 10, 5, 59, 0, time.UTC)))

	d, err = ctx.ParseDate("2021/03/04", "2006/01/02")
	require.NoError(t, err)
	require.True(t, d.Equal(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)))

	_, err = ctx.ParseDate("not a date", "")
	require.Error(t, err)
	_, err = ctx.ParseDate("", "")
	require.Error(t, err)
}

func TestInjectables(t *testing.T) {
	_, err := newContext(bind.NewConfig(), nil).FindInjectableValue("clock", "now", reflect.Value{})
	require.True(t, errs.IsDefinitionError(err))
	require.Contains(t, err.Error(), "No injectable values configured")

	ctx := newContext(bind.NewConfig().WithInjectables(bind.InjectableValues{"clock": 42}), nil)
	v, err := ctx.FindInjectableValue("clock", "now", reflect.Value{})
	require.NoError(t, err)
	require.Equal(t, 42, v)

	_, err = ctx.FindInjectableValue("other", "now", reflect.Value{})
	require.True(t, errs.IsDefinitionError(err))
}

func TestCheckUnresolvedObjectIDs(t *testing.T) {
	nodeT := reflect.TypeOf(&listNode{})
	setup := func(ctx *bind.Context) {
		var holder listNode
		for i, id := range []int{1, 2} {
			k, err := identity.NewKey("property", nodeT, id)
			require.NoError(t, err)
			e := ctx.Identity().FindOrCreate(k, nil)
			identity.NewFieldReferring(&identity.ForwardReference{
				Entry:    e,
				Type:     nodeT,
				Location: token.Location{Offset: i, Line: 1, Column: i + 1},
			}, reflect.ValueOf(&holder).Elem().Field(0))
		}
	}

	ctx := newContext(bind.NewConfig(), nil)
	require.NoError(t, ctx.CheckUnresolvedObjectIDs())
	setup(ctx)
	err := ctx.CheckUnresolvedObjectIDs()
	var ure *errs.UnresolvedReferenceError
	require.True(t, errors.As(err, &ure))
	require.Len(t, ure.Unresolved, 2)
	require.Equal(t, int64(1), ure.Unresolved[0].ID)
	require.Equal(t, int64(2), ure.Unresolved[1].ID)
	require.Equal(t, 2, ure.Unresolved[1].Location.Column)

	ctx = newContext(bind.NewConfig().Without(bind.FailOnUnresolvedObjectIDs), nil)
	setup(ctx)
	require.NoError(t, ctx.CheckUnresolvedObjectIDs())
}

func TestConfig(t *testing.T) {
	cfg := bind.NewConfig()
	require.True(t, cfg.Enabled(bind.FailOnUnknownProperties))
	require.False(t, cfg.Enabled(bind.FailOnEmptyBeans))

	other := cfg.Without(bind.FailOnUnknownProperties).With(bind.AcceptCaseInsensitiveProperties)
	require.True(t, cfg.Enabled(bind.FailOnUnknownProperties))
	require.False(t, other.Enabled(bind.FailOnUnknownProperties))
	require.Equal(t, "Name", cfg.PropertyKey("Name"))
	require.Equal(t, other.PropertyKey("NAME"), other.PropertyKey("name"))

	require.Equal(t, "FailOnUnknownProperties|FailOnEmptyBeans", (bind.FailOnUnknownProperties | bind.FailOnEmptyBeans).String())
	require.Equal(t, time.UTC, cfg.WithLocation(nil).Location())
}
