// Package identity tracks object identities while binding: ids read before
// the object they designate, pending references waiting for them,
// and ids generated while encoding.
package identity

import (
	"fmt"
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Key identifies an object within one binding operation.
// Two ids only match if they were produced by the same kind of generator
// within the same scope.
type Key struct {
	Generator string
	Scope     reflect.Type
	ID        any
}

func (k Key) String() string {
	return fmt.Sprintf("[%v]", k.ID)
}

// NewKey returns a key for id. Integer ids are normalized so that the same
// number read into different integer types designates the same object.
func NewKey(generator string, scope reflect.Type, id any) (Key, error) {
	id = normalize(id)
	if id == nil {
		return Key{}, errors.New("object id cannot be null")
	}
	if !reflect.ValueOf(id).Comparable() {
		return Key{}, errors.Newf("object id of type %T is not comparable", id)
	}
	return Key{Generator: generator, Scope: scope, ID: id}, nil
}

func normalize(id any) any {
	if id == nil {
		return nil
	}
	v := reflect.ValueOf(id)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := v.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range
		if f == math.Trunc(f) && f >= math.MinInt64 && f < 1<<63 {
			return int64(f)
		}
		return f
	case reflect.String:
		return v.String()
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return normalize(v.Elem().Interface())
	}
	return id
}
