package jsontoken_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaisql/databind/jsontoken"
	"github.com/chaisql/databind/token"
)

func TestCursor(t *testing.T) {
	c, err := jsontoken.NewCursor([]byte("{\"a\": [1, \"x\\ty\"],\n \"b\": {\"c\": null}, \"d\": true}"))
	require.NoError(t, err)
	require.Equal(t, token.None, c.CurrentToken())

	want := []struct {
		tok  token.Token
		name string
		text string
	}{
		{token.StartObject, "", "start object"},
		{token.FieldName, "a", "a"},
		{token.StartArray, "a", "start array"},
		{token.Number, "", "1"},
		{token.String, "", "x\ty"},
		{token.EndArray, "a", "end array"},
		{token.FieldName, "b", "b"},
		{token.StartObject, "b", "start object"},
		{token.FieldName, "c", "c"},
		{token.Null, "c", "null"},
		{token.EndObject, "b", "end object"},
		{token.FieldName, "d", "d"},
		{token.True, "d", "true"},
		{token.EndObject, "", "end object"},
		{token.None, "", ""},
	}

	for _, w := range want {
		tok, err := c.NextToken()
		require.NoError(t, err)
		require.Equal(t, w.tok, tok)
		require.Equal(t, w.name, c.FieldName())
		require.Equal(t, w.text, c.Text())
	}

	t.Run("Location", func(t *testing.T) {
		c, err := jsontoken.NewCursor([]byte("{\n  \"a\": 10\n}"))
		require.NoError(t, err)
		_, _ = c.NextValue()
		tok, _ := c.NextValue()
		require.Equal(t, token.Number, tok)
		require.Equal(t, token.Location{Offset: 9, Line: 2, Column: 8}, c.CurrentLocation())
	})

	t.Run("SkipChildren", func(t *testing.T) {
		c, err := jsontoken.NewCursor([]byte(`[{"a": [1, 2]}, 3]`))
		require.NoError(t, err)
		_, _ = c.NextValue()
		tok, _ := c.NextValue()
		require.Equal(t, token.StartObject, tok)
		require.NoError(t, c.SkipChildren())
		require.Equal(t, token.EndObject, c.CurrentToken())
		tok, _ = c.NextValue()
		require.Equal(t, token.Number, tok)
		n, err := c.Int()
		require.NoError(t, err)
		require.EqualValues(t, 3, n)
	})

	t.Run("Replay", func(t *testing.T) {
		c, err := jsontoken.NewCursor([]byte(`{"x": 1.5, "y": 2}`))
		require.NoError(t, err)
		_, _ = c.NextValue()
		m := c.Mark()
		_, _ = c.NextValue()
		f, err := c.Float()
		require.NoError(t, err)
		require.Equal(t, 1.5, f)
		c.Reset(m)
		require.Equal(t, token.StartObject, c.CurrentToken())
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, in := range []string{``, `{"a": 1} 2`, `[1, 2`} {
			_, err := jsontoken.NewCursor([]byte(in))
			require.Error(t, err, in)
		}
	})
}

func TestEmitter(t *testing.T) {
	e := jsontoken.NewEmitter()
	defer e.Release()

	require.NoError(t, e.WriteStartObject())
	require.NoError(t, e.WriteFieldName("a"))
	require.NoError(t, e.WriteStartArray())
	require.NoError(t, e.WriteValue(1))
	require.NoError(t, e.WriteValue("q\"\n"))
	require.NoError(t, e.WriteValue(2.5))
	require.NoError(t, e.WriteValue(true))
	require.NoError(t, e.WriteNull())
	require.NoError(t, e.WriteEndArray())
	require.NoError(t, e.WriteFieldName("b"))
	require.NoError(t, e.WriteValue(uint8(7)))
	require.NoError(t, e.WriteEndObject())

	require.Equal(t, `{"a":[1,"q\"\n",2.5,true,null],"b":7}`, e.String())

	require.Error(t, e.WriteValue(1))
	require.Error(t, e.WriteEndArray())
}
