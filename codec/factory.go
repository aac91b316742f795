// Package codec provides the standard converters: scalars, times, enums,
// pointers, collections, maps, structs and polymorphic interface values,
// and the Factory that builds them.
package codec

import (
	"encoding"
	"reflect"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/property"
	"github.com/chaisql/databind/introspect"
	"github.com/chaisql/databind/types"
)

var (
	timeType            = reflect.TypeOf(time.Time{})
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Factory builds the converters of Go types. It implements both
// bind.DecoderFactory and bind.EncoderFactory.
type Factory struct {
	introspector *introspect.Introspector
	collector    *property.Collector

	mu     sync.RWMutex
	custom map[reflect.Type]introspect.Converter
}

var (
	_ bind.DecoderFactory = (*Factory)(nil)
	_ bind.EncoderFactory = (*Factory)(nil)
)

// NewFactory returns a factory describing structs with in and building
// their writers with c. Nil arguments use defaults.
func NewFactory(in *introspect.Introspector, c *property.Collector) *Factory {
	if in == nil {
		in = introspect.New()
	}
	if c == nil {
		c = new(property.Collector)
	}
	return &Factory{
		introspector: in,
		collector:    c,
		custom:       make(map[reflect.Type]introspect.Converter),
	}
}

// Register makes conv the converter of t, taking precedence over the
// standard ones.
func (f *Factory) Register(t reflect.Type, conv introspect.Converter) error {
	if conv.Encoder == nil && conv.Decoder == nil {
		return errors.Newf("converter for %s has neither encoder nor decoder", t)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom[t] = conv
	return nil
}

func (f *Factory) lookup(t reflect.Type) (introspect.Converter, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.custom[t]
	return c, ok
}

// Introspector returns the introspector describing structs.
func (f *Factory) Introspector() *introspect.Introspector { return f.introspector }

// NewDecoder implements the bind.DecoderFactory interface.
func (f *Factory) NewDecoder(ctx *bind.Context, t *types.Descriptor) (bind.Decoder, error) {
	raw := t.Raw()
	if c, ok := f.lookup(raw); ok && c.Decoder != nil {
		return c.Decoder, nil
	}

	switch {
	case raw == timeType:
		return new(timeDecoder), nil
	case t.IsEnum() && enumKind(raw.Kind()):
		return newEnumCodec(raw), nil
	case reflect.PointerTo(raw).Implements(textUnmarshalerType) && raw.Kind() != reflect.Pointer && raw.Kind() != reflect.Interface:
		return textDecoder{t: raw}, nil
	}

	switch raw.Kind() {
	case reflect.Bool:
		return boolDecoder{}, nil
	case reflect.Int:
		return signed[int]{}, nil
	case reflect.Int8:
		return signed[int8]{}, nil
	case reflect.Int16:
		return signed[int16]{}, nil
	case reflect.Int32:
		return signed[int32]{}, nil
	case reflect.Int64:
		return signed[int64]{}, nil
	case reflect.Uint:
		return unsigned[uint]{}, nil
	case reflect.Uint8:
		return unsigned[uint8]{}, nil
	case reflect.Uint16:
		return unsigned[uint16]{}, nil
	case reflect.Uint32:
		return unsigned[uint32]{}, nil
	case reflect.Uint64, reflect.Uintptr:
		return unsigned[uint64]{}, nil
	case reflect.Float32:
		return floating[float32]{}, nil
	case reflect.Float64:
		return floating[float64]{}, nil
	case reflect.String:
		return stringDecoder{}, nil
	case reflect.Pointer:
		return &pointerDecoder{t: t}, nil
	case reflect.Slice:
		if raw.Elem().Kind() == reflect.Uint8 {
			return bytesDecoder{}, nil
		}
		return &sliceDecoder{t: t}, nil
	case reflect.Array:
		return &arrayDecoder{t: t}, nil
	case reflect.Map:
		kd, err := newKeyDecoder(ctx, raw.Key())
		if err != nil {
			return nil, err
		}
		return &mapDecoder{t: t, key: kd}, nil
	case reflect.Interface:
		if t.IsAny() {
			return anyDecoder{}, nil
		}
		return &interfaceDecoder{base: t}, nil
	case reflect.Struct:
		desc, err := f.introspector.Describe(raw)
		if err != nil {
			return nil, err
		}
		return &beanDecoder{t: raw, desc: desc, in: f.introspector}, nil
	}

	return nil, ctx.ReportBadTypeDefinition(raw, "cannot decode values of kind %s", raw.Kind())
}

// NewEncoder implements the bind.EncoderFactory interface.
func (f *Factory) NewEncoder(ctx *bind.Context, t *types.Descriptor) (bind.Encoder, error) {
	raw := t.Raw()
	if c, ok := f.lookup(raw); ok && c.Encoder != nil {
		return c.Encoder, nil
	}

	switch {
	case raw == timeType:
		return new(timeEncoder), nil
	case t.IsEnum() && enumKind(raw.Kind()):
		return newEnumCodec(raw), nil
	case raw.Implements(textMarshalerType) && raw.Kind() != reflect.Pointer && raw.Kind() != reflect.Interface:
		return textEncoder{}, nil
	}

	switch raw.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return scalarEncoder{}, nil
	case reflect.Pointer:
		return &pointerEncoder{t: t}, nil
	case reflect.Slice:
		if raw.Elem().Kind() == reflect.Uint8 {
			return bytesEncoder{}, nil
		}
		return &sliceEncoder{t: t}, nil
	case reflect.Array:
		return &sliceEncoder{t: t}, nil
	case reflect.Map:
		if err := checkKeyType(ctx, raw.Key()); err != nil {
			return nil, err
		}
		return &mapEncoder{t: t}, nil
	case reflect.Interface:
		if t.IsAny() {
			return anyEncoder{}, nil
		}
		return &interfaceEncoder{base: t}, nil
	case reflect.Struct:
		desc, err := f.introspector.Describe(raw)
		if err != nil {
			return nil, err
		}
		return &beanEncoder{t: raw, desc: desc, collector: f.collector}, nil
	}

	return nil, ctx.ReportBadTypeDefinition(raw, "cannot encode values of kind %s", raw.Kind())
}
