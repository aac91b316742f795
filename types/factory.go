package types

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
)

var (
	// ErrTypeNotFound is returned when a type name is not bound to any type.
	// Callers may recover from it.
	ErrTypeNotFound = errors.New("type not found")

	// ErrMalformedTypeName is returned when a type name or a canonical
	// type string cannot be parsed.
	ErrMalformedTypeName = errors.New("malformed type name")
)

// A Factory maps type names to Go types and back.
// It is safe for concurrent use.
type Factory struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	names  map[reflect.Type]string
}

// NewFactory returns a factory knowing the builtin scalar types.
func NewFactory() *Factory {
	f := Factory{
		byName: make(map[string]reflect.Type),
		names:  make(map[reflect.Type]string),
	}

	for _, v := range []any{
		false, "", int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0),
	} {
		t := reflect.TypeOf(v)
		f.byName[t.Name()] = t
		f.names[t] = t.Name()
	}
	f.byName["any"] = anyType
	f.names[anyType] = "any"
	f.byName["bytes"] = bytesType
	f.names[bytesType] = "bytes"
	timeType := reflect.TypeOf(time.Time{})
	f.byName["time"] = timeType
	f.names[timeType] = "time"

	return &f
}

// Register binds name to t. Registering the same pair twice is a no-op,
// binding an existing name to another type returns an error.
// The first name registered for a type is the one returned by NameOf.
func (f *Factory) Register(name string, t reflect.Type) error {
	if err := validateName(name); err != nil {
		return err
	}
	if t == nil {
		return errors.Newf("cannot register nil type under %q", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.byName[name]; ok {
		if cur == t {
			return nil
		}
		return errors.Newf("type name %q already bound to %s", name, TypeName(cur))
	}
	f.byName[name] = t
	if _, ok := f.names[t]; !ok {
		f.names[t] = name
	}
	return nil
}

// Register binds name to the type T in f.
func Register[T any](f *Factory, name string) error {
	return f.Register(name, reflect.TypeOf((*T)(nil)).Elem())
}

// FindType returns the type bound to name.
// It returns an error wrapping ErrTypeNotFound if the name is unknown,
// and one wrapping ErrMalformedTypeName if the name is not valid.
func (f *Factory) FindType(name string) (reflect.Type, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f.mu.RLock()
	t, ok := f.byName[name]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrTypeNotFound, "%q", name)
	}
	return t, nil
}

// NameOf returns the name bound to t.
func (f *Factory) NameOf(t reflect.Type) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	name, ok := f.names[t]
	return name, ok
}

// Names returns the sorted list of registered names.
func (f *Factory) Names() []string {
	f.mu.RLock()
	names := maps.Keys(f.byName)
	f.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Specialize returns a descriptor of raw carrying the type parameters of base.
// It is used once a discriminator resolved to a subtype of base.
func (f *Factory) Specialize(base *Descriptor, raw reflect.Type) *Descriptor {
	if base.raw == raw {
		return base
	}
	if base.explicit && TakesParams(raw) {
		return Parameterized(raw, base.params...)
	}
	return Of(raw)
}

// CanonicalName returns the wire form of d, using registered names.
// Descriptors with explicit parameters are written Name<P1,P2>.
func (f *Factory) CanonicalName(d *Descriptor) (string, error) {
	switch d.raw.Kind() {
	case reflect.Slice:
		if d.raw.Name() == "" && d.raw != bytesType {
			return f.wrapCanonical("list", d.params...)
		}
	case reflect.Map:
		if d.raw.Name() == "" {
			return f.wrapCanonical("map", d.params...)
		}
	case reflect.Pointer:
		return f.wrapCanonical("ptr", d.params...)
	}

	name, ok := f.NameOf(d.raw)
	if !ok {
		return "", errors.Wrapf(ErrTypeNotFound, "no name registered for %s", TypeName(d.raw))
	}
	if !d.explicit {
		return name, nil
	}
	return f.wrapCanonical(name, d.params...)
}

func (f *Factory) wrapCanonical(name string, params ...*Descriptor) (string, error) {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('<')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		s, err := f.CanonicalName(p)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	sb.WriteByte('>')
	return sb.String(), nil
}

// FromCanonical parses a canonical type string such as
// "list<Point>", "map<string,ptr<Point>>" or "Box<int>".
func (f *Factory) FromCanonical(s string) (*Descriptor, error) {
	p := canonicalParser{f: f, s: s}
	d, err := p.parse()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, errors.Wrapf(ErrMalformedTypeName, "unexpected %q at offset %d in %q", p.s[p.pos:], p.pos, s)
	}
	return d, nil
}

type canonicalParser struct {
	f   *Factory
	s   string
	pos int
}

func (p *canonicalParser) parse() (*Descriptor, error) {
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune("<>,", rune(p.s[p.pos])) {
		p.pos++
	}
	name := strings.TrimSpace(p.s[start:p.pos])

	var params []*Descriptor
	if p.pos < len(p.s) && p.s[p.pos] == '<' {
		p.pos++
		for {
			d, err := p.parse()
			if err != nil {
				return nil, err
			}
			params = append(params, d)

			if p.pos >= len(p.s) {
				return nil, errors.Wrapf(ErrMalformedTypeName, "unbalanced '<' in %q", p.s)
			}
			c := p.s[p.pos]
			p.pos++
			if c == '>' {
				break
			}
			if c != ',' {
				return nil, errors.Wrapf(ErrMalformedTypeName, "unexpected %q in %q", c, p.s)
			}
		}
	}

	switch name {
	case "list":
		if len(params) != 1 {
			return nil, errors.Wrapf(ErrMalformedTypeName, "list expects 1 parameter, got %d", len(params))
		}
		return Of(reflect.SliceOf(params[0].raw)), nil
	case "map":
		if len(params) != 2 {
			return nil, errors.Wrapf(ErrMalformedTypeName, "map expects 2 parameters, got %d", len(params))
		}
		if !params[0].raw.Comparable() {
			return nil, errors.Wrapf(ErrMalformedTypeName, "invalid map key %s", params[0])
		}
		return Of(reflect.MapOf(params[0].raw, params[1].raw)), nil
	case "ptr":
		if len(params) != 1 {
			return nil, errors.Wrapf(ErrMalformedTypeName, "ptr expects 1 parameter, got %d", len(params))
		}
		return Of(reflect.PointerTo(params[0].raw)), nil
	}

	t, err := p.f.FindType(name)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 && !TakesParams(t) {
		return nil, errors.Wrapf(ErrMalformedTypeName, "type %s takes no parameters", name)
	}
	return Parameterized(t, params...), nil
}

func validateName(name string) error {
	if name == "" {
		return errors.Wrap(ErrMalformedTypeName, "empty name")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("<>,", r) {
			return errors.Wrapf(ErrMalformedTypeName, "invalid character %q in %q", r, name)
		}
	}
	return nil
}
