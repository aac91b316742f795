package codec_test

import (
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/codec"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/jsontoken"
	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

func newRoot(cfg *bind.Config) *bind.Root {
	f := codec.NewFactory(nil, nil)
	return bind.NewRoot(cfg, f, f)
}

func decodeFrom(root *bind.Root, cur token.Cursor, v any) error {
	if _, err := cur.NextValue(); err != nil {
		return err
	}
	ctx := root.NewDecodeContext(nil, cur)
	dst := reflect.ValueOf(v).Elem()
	dec, err := ctx.FindDecoder(types.Of(dst.Type()), bind.SecondarySite(nil))
	if err != nil {
		return err
	}
	if err := dec.Decode(ctx, cur, dst); err != nil {
		return err
	}
	return ctx.CheckUnresolvedObjectIDs()
}

func decode(t *testing.T, root *bind.Root, input string, v any) error {
	t.Helper()
	cur, err := jsontoken.NewCursor([]byte(input))
	require.NoError(t, err)
	return decodeFrom(root, cur, v)
}

func encode(t *testing.T, root *bind.Root, v any) (string, error) {
	t.Helper()
	em := jsontoken.NewEmitter()
	defer em.Release()

	ctx := root.NewEncodeContext(nil)
	rv := reflect.ValueOf(v)
	enc, err := ctx.FindEncoder(types.Of(rv.Type()), bind.SecondarySite(nil))
	if err != nil {
		return "", err
	}
	if err := enc.Encode(ctx, em, rv); err != nil {
		return "", err
	}
	return em.String(), nil
}

type Color int

func (Color) EnumNames() []string { return []string{"red", "green", "blue"} }

type Level string

func (Level) EnumNames() []string { return []string{"low", "high"} }

type fixedInt struct {
	bind.BaseHandler
}

func (fixedInt) HandleWeirdStringValue(_ *bind.Context, target reflect.Type, _ string, _ string) (bind.Result, error) {
	if target.Kind() == reflect.Int {
		return bind.Handled(7), nil
	}
	return bind.Result{}, nil
}

func TestScalars(t *testing.T) {
	root := newRoot(nil)

	tests := []struct {
		name  string
		input string
		ptr   any
		want  any
		fails bool
	}{
		{"bool", `true`, new(bool), true, false},
		{"bool from string", `"false"`, new(bool), false, false},
		{"bool from junk", `"yes"`, new(bool), nil, true},
		{"int8", `127`, new(int8), int8(127), false},
		{"int8 overflow", `128`, new(int8), nil, true},
		{"int from string", `"12"`, new(int), 12, false},
		{"int from float", `1.5`, new(int), nil, true},
		{"uint negative", `-1`, new(uint), nil, true},
		{"uint16", `65535`, new(uint16), uint16(65535), false},
		{"float32", `1.5`, new(float32), float32(1.5), false},
		{"float from junk", `"abc"`, new(float64), nil, true},
		{"string from number", `12`, new(string), "12", false},
		{"string", `"héllo"`, new(string), "héllo", false},
		{"null int", `null`, new(int), 0, false},
		{"bytes", `"aGVsbG8="`, new([]byte), []byte("hello"), false},
		{"bad bytes", `"%%%"`, new([]byte), nil, true},
		{"int from object", `{}`, new(int), nil, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := decode(t, root, test.input, test.ptr)
			if test.fails {
				require.Error(t, err)
				require.True(t, errs.IsInputMismatchError(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, reflect.ValueOf(test.ptr).Elem().Interface())
		})
	}

	t.Run("handled", func(t *testing.T) {
		root := newRoot(bind.NewConfig().WithHandler(fixedInt{}))
		var n int
		require.NoError(t, decode(t, root, `"seven"`, &n))
		require.Equal(t, 7, n)
	})

	t.Run("encode", func(t *testing.T) {
		tests := []struct {
			v    any
			want string
		}{
			{true, `true`},
			{int8(-3), `-3`},
			{uint64(42), `42`},
			{float32(1.5), `1.5`},
			{2.25, `2.25`},
			{"a\"b", `"a\"b"`},
			{[]byte("hello"), `"aGVsbG8="`},
			{[]byte(nil), `null`},
		}
		for _, test := range tests {
			got, err := encode(t, root, test.v)
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		}
	})
}

func TestEnums(t *testing.T) {
	root := newRoot(nil)

	var c Color
	require.NoError(t, decode(t, root, `"green"`, &c))
	require.Equal(t, Color(1), c)

	require.NoError(t, decode(t, root, `2`, &c))
	require.Equal(t, Color(2), c)

	err := decode(t, root, `"purple"`, &c)
	require.True(t, errs.IsInputMismatchError(err))
	err = decode(t, root, `3`, &c)
	require.True(t, errs.IsInputMismatchError(err))

	var l Level
	require.NoError(t, decode(t, root, `"high"`, &l))
	require.Equal(t, Level("high"), l)

	got, err := encode(t, root, Color(1))
	require.NoError(t, err)
	require.Equal(t, `"green"`, got)

	got, err = encode(t, root, Level("low"))
	require.NoError(t, err)
	require.Equal(t, `"low"`, got)

	_, err = encode(t, root, Color(9))
	require.True(t, errs.IsDefinitionError(err))
}

type Meeting struct {
	At     time.Time  `bind:"at,format=2006-01-02"`
	Stamp  time.Time  `bind:"stamp,format=timestamp"`
	Plain  time.Time  `bind:"plain,omitempty"`
	Remote netip.Addr `bind:"remote"`
}

func TestTimes(t *testing.T) {
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("decode", func(t *testing.T) {
		root := newRoot(nil)

		var tm time.Time
		require.NoError(t, decode(t, root, `"2024-03-01T10:00:00Z"`, &tm))
		require.True(t, day.Equal(tm), "got %v", tm)

		require.NoError(t, decode(t, root, `1709287200000`, &tm))
		require.True(t, day.Equal(tm), "got %v", tm)

		require.NoError(t, decode(t, root, `null`, &tm))
		require.True(t, tm.IsZero())

		err := decode(t, root, `"not a date"`, &tm)
		require.True(t, errs.IsInputMismatchError(err))
	})

	t.Run("encode", func(t *testing.T) {
		got, err := encode(t, newRoot(nil), day)
		require.NoError(t, err)
		require.Equal(t, `"2024-03-01T10:00:00Z"`, got)

		got, err = encode(t, newRoot(bind.NewConfig().With(bind.WriteDatesAsTimestamps)), day)
		require.NoError(t, err)
		require.Equal(t, `1709287200000`, got)
	})

	t.Run("property formats", func(t *testing.T) {
		root := newRoot(nil)

		m := Meeting{At: day, Stamp: day, Remote: netip.MustParseAddr("10.0.0.1")}
		got, err := encode(t, root, m)
		require.NoError(t, err)
		require.Equal(t, `{"at":"2024-03-01","stamp":1709287200000,"remote":"10.0.0.1"}`, got)

		var back Meeting
		require.NoError(t, decode(t, root, `{"at":"2024-03-05","stamp":1709287200000,"remote":"::1"}`, &back))
		require.Equal(t, 5, back.At.Day())
		require.True(t, day.Equal(back.Stamp))
		require.Equal(t, netip.IPv6Loopback(), back.Remote)

		err = decode(t, root, `{"remote":"nope"}`, &back)
		require.True(t, errs.IsInputMismatchError(err))
		require.Equal(t, []errs.PathRef{errs.FieldRef(reflect.TypeOf(back), "remote")}, errs.PathOf(err))
	})
}

func TestPointers(t *testing.T) {
	root := newRoot(nil)

	var p *int
	require.NoError(t, decode(t, root, `5`, &p))
	require.NotNil(t, p)
	require.Equal(t, 5, *p)

	require.NoError(t, decode(t, root, `null`, &p))
	require.Nil(t, p)

	got, err := encode(t, root, p)
	require.NoError(t, err)
	require.Equal(t, `null`, got)

	n := 3
	got, err = encode(t, root, &n)
	require.NoError(t, err)
	require.Equal(t, `3`, got)
}

type Tangle map[string]Tangle

type Chain []Chain

func TestCollections(t *testing.T) {
	t.Run("slices", func(t *testing.T) {
		root := newRoot(nil)

		var s []int
		require.NoError(t, decode(t, root, `[1,2,3]`, &s))
		require.Equal(t, []int{1, 2, 3}, s)

		require.NoError(t, decode(t, root, `[]`, &s))
		require.NotNil(t, s)
		require.Empty(t, s)

		require.NoError(t, decode(t, root, `null`, &s))
		require.Nil(t, s)

		err := decode(t, root, `5`, &s)
		require.True(t, errs.IsInputMismatchError(err))

		err = decode(t, root, `[1,"x"]`, &s)
		require.True(t, errs.IsInputMismatchError(err))
		require.Equal(t, []errs.PathRef{errs.IndexRef(reflect.TypeOf(s), 1)}, errs.PathOf(err))
	})

	t.Run("single value", func(t *testing.T) {
		root := newRoot(bind.NewConfig().With(bind.AcceptSingleValueAsArray))

		var s []string
		require.NoError(t, decode(t, root, `"a"`, &s))
		require.Equal(t, []string{"a"}, s)

		type holder struct {
			Names []string `bind:"names,format=single-as-array"`
		}
		var h holder
		require.NoError(t, decode(t, newRoot(nil), `{"names":"b"}`, &h))
		require.Equal(t, []string{"b"}, h.Names)
	})

	t.Run("arrays", func(t *testing.T) {
		root := newRoot(nil)

		a := [3]int{9, 9, 9}
		require.NoError(t, decode(t, root, `[1,2]`, &a))
		require.Equal(t, [3]int{1, 2, 0}, a)

		var small [1]int
		err := decode(t, root, `[1,2]`, &small)
		require.True(t, errs.IsInputMismatchError(err))

		got, err := encode(t, root, [2]int{1, 2})
		require.NoError(t, err)
		require.Equal(t, `[1,2]`, got)
	})

	t.Run("encode", func(t *testing.T) {
		root := newRoot(nil)

		got, err := encode(t, root, []string{"a", "b"})
		require.NoError(t, err)
		require.Equal(t, `["a","b"]`, got)

		got, err = encode(t, root, []string(nil))
		require.NoError(t, err)
		require.Equal(t, `null`, got)

		got, err = encode(t, root, [][]int{{1}, {}})
		require.NoError(t, err)
		require.Equal(t, `[[1],[]]`, got)
	})

	t.Run("recursive", func(t *testing.T) {
		root := newRoot(nil)

		var tg Tangle
		require.NoError(t, decode(t, root, `{"a":{"b":{}},"c":null}`, &tg))
		require.Equal(t, Tangle{"a": Tangle{"b": Tangle{}}, "c": nil}, tg)

		got, err := encode(t, root, tg)
		require.NoError(t, err)
		require.Equal(t, `{"a":{"b":{}},"c":null}`, got)

		var c Chain
		require.NoError(t, decode(t, root, `[[],[[]]]`, &c))
		require.Equal(t, Chain{Chain{}, Chain{Chain{}}}, c)

		got, err = encode(t, root, c)
		require.NoError(t, err)
		require.Equal(t, `[[],[[]]]`, got)
	})
}

func TestMaps(t *testing.T) {
	root := newRoot(nil)

	t.Run("decode", func(t *testing.T) {
		var m map[string]int
		require.NoError(t, decode(t, root, `{"b":2,"a":1}`, &m))
		require.Equal(t, map[string]int{"a": 1, "b": 2}, m)

		var im map[int]string
		require.NoError(t, decode(t, root, `{"1":"x","-2":"y"}`, &im))
		require.Equal(t, map[int]string{1: "x", -2: "y"}, im)

		err := decode(t, root, `{"x":"y"}`, &im)
		require.True(t, errs.IsInputMismatchError(err))

		var am map[netip.Addr]bool
		require.NoError(t, decode(t, root, `{"127.0.0.1":true}`, &am))
		require.Equal(t, map[netip.Addr]bool{netip.MustParseAddr("127.0.0.1"): true}, am)

		var fm map[float64]int
		err = decode(t, root, `{}`, &fm)
		require.True(t, errs.IsDefinitionError(err))
	})

	t.Run("encode", func(t *testing.T) {
		got, err := encode(t, root, map[string]int{"b": 2, "a": 1})
		require.NoError(t, err)
		require.Equal(t, `{"a":1,"b":2}`, got)

		got, err = encode(t, root, map[int]bool{10: true, 2: false})
		require.NoError(t, err)
		require.Equal(t, `{"10":true,"2":false}`, got)

		got, err = encode(t, root, map[string]int(nil))
		require.NoError(t, err)
		require.Equal(t, `null`, got)

		_, err = encode(t, root, map[float64]int{1: 1})
		require.True(t, errs.IsDefinitionError(err))
	})
}

func TestAny(t *testing.T) {
	root := newRoot(nil)

	var v any
	require.NoError(t, decode(t, root, `{"a":[1,2.5,"x",true,null],"b":{}}`, &v))
	require.Equal(t, map[string]any{
		"a": []any{int64(1), 2.5, "x", true, nil},
		"b": map[string]any{},
	}, v)

	got, err := encode(t, root, map[string]any{"k": []any{1, "x", nil}})
	require.NoError(t, err)
	require.Equal(t, `{"k":[1,"x",null]}`, got)
}
