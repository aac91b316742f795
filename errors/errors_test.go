package errors_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/token"
)

type Point struct{ X, Y int }

func TestWithPath(t *testing.T) {
	pt := reflect.TypeOf(Point{})
	var err error = &errs.InputMismatchError{
		Problem: errs.Problem{Msg: "cannot decode", Location: &token.Location{Line: 1, Column: 4}},
		Type:    reflect.TypeOf(0),
	}

	err = errs.WithPath(err, errs.FieldRef(pt, "x"))
	err = errors.Wrap(err, "decoding")
	err = errs.WithPath(err, errs.IndexRef(reflect.TypeOf([]Point{}), 2))

	path := errs.PathOf(err)
	require.Len(t, path, 2)
	require.Equal(t, 2, path[0].Index)
	require.Equal(t, "x", path[1].Field)

	require.True(t, errs.IsInputMismatchError(err))
	require.False(t, errs.IsDefinitionError(err))

	msg := err.Error()
	require.Contains(t, msg, "line: 1, column: 4")
	require.Contains(t, msg, `errors_test.Point["x"]`)
	require.Contains(t, msg, "[2]->")

	require.Nil(t, errs.WithPath(nil, errs.IndexRef(pt, 0)))

	plain := errors.New("plain")
	require.Equal(t, plain, errs.WithPath(plain, errs.IndexRef(pt, 0)))
	require.Nil(t, errs.PathOf(plain))
}

func TestKinds(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{&errs.DefinitionError{}, errs.IsDefinitionError},
		{&errs.InvalidFormatError{}, errs.IsInputMismatchError},
		{&errs.InvalidTypeIDError{}, errs.IsInvalidTypeIDError},
		{&errs.MissingTypeIDError{}, errs.IsMissingTypeIDError},
		{&errs.UnresolvedReferenceError{}, errs.IsUnresolvedReferenceError},
		{&errs.UnrecognizedPropertyError{}, errs.IsUnrecognizedPropertyError},
	}

	for _, test := range tests {
		t.Run(reflect.TypeOf(test.err).String(), func(t *testing.T) {
			require.True(t, test.check(errors.Wrap(test.err, "wrapped")))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	err := errs.Wrap(cause, nil)

	var me *errs.MappingError
	require.ErrorAs(t, err, &me)
	require.ErrorIs(t, err, cause)

	def := &errs.DefinitionError{}
	require.Same(t, def, errs.Wrap(def, nil))
	require.NoError(t, errs.Wrap(nil, nil))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", errs.Truncate("abc"))

	long := strings.Repeat("a", errs.MaxQuotedLength) + strings.Repeat("b", 10) + strings.Repeat("c", errs.MaxQuotedLength)
	got := errs.Truncate(long)
	require.Equal(t, strings.Repeat("a", errs.MaxQuotedLength)+"]...["+strings.Repeat("c", errs.MaxQuotedLength), got)
	require.Equal(t, `"x"`, errs.Quote("x"))
}
