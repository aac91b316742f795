package jsontoken

import (
	"bytes"
	"math"
	"reflect"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/token"
)

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

type level struct {
	array bool
	count int
}

// Emitter is a token.Emitter writing compact JSON.
type Emitter struct {
	buf       *bytes.Buffer
	stack     []level
	afterName bool
}

var _ token.Emitter = (*Emitter)(nil)

// NewEmitter returns an emitter backed by a pooled buffer.
// Call Release once the output has been consumed.
func NewEmitter() *Emitter {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &Emitter{buf: buf}
}

// Bytes returns a copy of the output.
func (e *Emitter) Bytes() []byte {
	return bytes.Clone(e.buf.Bytes())
}

// String returns the output.
func (e *Emitter) String() string {
	return e.buf.String()
}

// Release returns the buffer to the pool. The emitter must not be used afterwards.
func (e *Emitter) Release() {
	if e.buf == nil {
		return
	}
	bufferPool.Put(e.buf)
	e.buf = nil
}

func (e *Emitter) beforeValue() error {
	if e.afterName {
		e.afterName = false
		return nil
	}
	if len(e.stack) == 0 {
		if e.buf.Len() > 0 {
			return errors.New("json: cannot write more than one root value")
		}
		return nil
	}
	top := &e.stack[len(e.stack)-1]
	if !top.array {
		return errors.New("json: expected a field name")
	}
	if top.count > 0 {
		e.buf.WriteByte(',')
	}
	top.count++
	return nil
}

func (e *Emitter) WriteStartObject() error {
	if err := e.beforeValue(); err != nil {
		return err
	}
	e.buf.WriteByte('{')
	e.stack = append(e.stack, level{})
	return nil
}

func (e *Emitter) WriteEndObject() error {
	return e.end(false, '}')
}

func (e *Emitter) WriteStartArray() error {
	if err := e.beforeValue(); err != nil {
		return err
	}
	e.buf.WriteByte('[')
	e.stack = append(e.stack, level{array: true})
	return nil
}

func (e *Emitter) WriteEndArray() error {
	return e.end(true, ']')
}

func (e *Emitter) end(array bool, c byte) error {
	if len(e.stack) == 0 || e.stack[len(e.stack)-1].array != array || e.afterName {
		return errors.Newf("json: unexpected %q", c)
	}
	e.stack = e.stack[:len(e.stack)-1]
	e.buf.WriteByte(c)
	return nil
}

func (e *Emitter) WriteFieldName(name string) error {
	if len(e.stack) == 0 || e.stack[len(e.stack)-1].array || e.afterName {
		return errors.Newf("json: unexpected field name %q", name)
	}
	top := &e.stack[len(e.stack)-1]
	if top.count > 0 {
		e.buf.WriteByte(',')
	}
	top.count++
	appendString(e.buf, name)
	e.buf.WriteByte(':')
	e.afterName = true
	return nil
}

func (e *Emitter) WriteNull() error {
	if err := e.beforeValue(); err != nil {
		return err
	}
	e.buf.WriteString("null")
	return nil
}

func (e *Emitter) WriteValue(v any) error {
	if v == nil {
		return e.WriteNull()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Newf("json: unsupported value %v", f)
		}
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return errors.Newf("json: unsupported scalar of type %s", rv.Type())
	}

	if err := e.beforeValue(); err != nil {
		return err
	}

	var scratch [64]byte
	switch rv.Kind() {
	case reflect.String:
		appendString(e.buf, rv.String())
	case reflect.Bool:
		e.buf.Write(strconv.AppendBool(scratch[:0], rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.Write(strconv.AppendInt(scratch[:0], rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.buf.Write(strconv.AppendUint(scratch[:0], rv.Uint(), 10))
	case reflect.Float32:
		e.buf.Write(strconv.AppendFloat(scratch[:0], rv.Float(), 'g', -1, 32))
	case reflect.Float64:
		e.buf.Write(strconv.AppendFloat(scratch[:0], rv.Float(), 'g', -1, 64))
	}
	return nil
}

// CanOmitFields implements the token.Emitter interface.
func (e *Emitter) CanOmitFields() bool { return true }

const hex = "0123456789abcdef"

func appendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}
			buf.WriteString(s[start:i])
			switch b {
			case '"', '\\':
				buf.WriteByte('\\')
				buf.WriteByte(b)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[b>>4])
				buf.WriteByte(hex[b&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString(s[start:i])
			buf.WriteString(`�`)
			i += size
			start = i
			continue
		}
		i += size
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}
