package databind

import (
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	"github.com/chaisql/databind/bind/property"
	"github.com/chaisql/databind/codec"
	"github.com/chaisql/databind/introspect"
	"github.com/chaisql/databind/types"
)

type namedType struct {
	name string
	t    reflect.Type
}

type typeConverter struct {
	t    reflect.Type
	conv introspect.Converter
}

type namedConverter struct {
	name string
	conv introspect.Converter
}

type namedGenerator struct {
	name string
	gen  identity.Generator
}

// Builder holds the settings of a Mapper. It is immutable: every method
// returns a modified copy, leaving the receiver untouched, so partially
// configured builders can be shared.
type Builder struct {
	config     *bind.Config
	types      []namedType
	converters []typeConverter
	named      []namedConverter
	generators []namedGenerator
	modifiers  []property.Modifier
	ignored    []reflect.Type
	registerer prometheus.Registerer
}

// NewBuilder returns a builder with the default configuration.
func NewBuilder() Builder {
	return Builder{config: bind.NewConfig()}
}

// grow returns s with room for one more element, never sharing its
// backing array with s.
func grow[T any](s []T, v T) []T {
	return append(s[:len(s):len(s)], v)
}

func (b Builder) withConfig(fn func(c *bind.Config) *bind.Config) Builder {
	if b.config == nil {
		b.config = bind.NewConfig()
	}
	b.config = fn(b.config)
	return b
}

// Enable turns features on.
func (b Builder) Enable(features ...bind.Feature) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.With(features...) })
}

// Disable turns features off.
func (b Builder) Disable(features ...bind.Feature) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.Without(features...) })
}

// WithHandler appends h to the problem handlers. Handlers are consulted
// in the order they were added.
func (b Builder) WithHandler(h bind.ProblemHandler) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithHandler(h) })
}

// WithView sets the default active view.
func (b Builder) WithView(view string) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithView(view) })
}

// WithInjectables sets the source of the values injected into tagged fields.
func (b Builder) WithInjectables(inj bind.Injectables) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithInjectables(inj) })
}

// WithAttribute sets a mapper level attribute.
func (b Builder) WithAttribute(key, value any) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithAttribute(key, value) })
}

func (b Builder) WithLocation(loc *time.Location) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithLocation(loc) })
}

func (b Builder) WithLocale(tag language.Tag) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithLocale(tag) })
}

// WithDateLayout sets the layout used to read and write times.
// With no layout, times are written as RFC 3339 and parsed leniently.
func (b Builder) WithDateLayout(layout string) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithDateLayout(layout) })
}

func (b Builder) WithTypeProperty(name string) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithTypeProperty(name) })
}

func (b Builder) WithIDProperty(name string) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithIDProperty(name) })
}

func (b Builder) WithLogger(l *zap.Logger) Builder {
	return b.withConfig(func(c *bind.Config) *bind.Config { return c.WithLogger(l) })
}

// RegisterType binds the type id name to t.
func (b Builder) RegisterType(name string, t reflect.Type) Builder {
	b.types = grow(b.types, namedType{name: name, t: t})
	return b
}

// Register binds the type id name to T.
func Register[T any](b Builder, name string) Builder {
	return b.RegisterType(name, reflect.TypeOf((*T)(nil)).Elem())
}

// WithConverter makes conv the converter of every value of type t.
func (b Builder) WithConverter(t reflect.Type, conv introspect.Converter) Builder {
	b.converters = grow(b.converters, typeConverter{t: t, conv: conv})
	return b
}

// WithNamedConverter registers conv for the fields tagged with using=name.
func (b Builder) WithNamedConverter(name string, conv introspect.Converter) Builder {
	b.named = grow(b.named, namedConverter{name: name, conv: conv})
	return b
}

// WithGenerator registers an id generator for the types tagged with
// identity=name.
func (b Builder) WithGenerator(name string, gen identity.Generator) Builder {
	b.generators = grow(b.generators, namedGenerator{name: name, gen: gen})
	return b
}

// WithModifier adds a modifier of the property writers of every struct.
func (b Builder) WithModifier(m property.Modifier) Builder {
	b.modifiers = grow(b.modifiers, m)
	return b
}

// WithIgnoredType drops the properties of type t.
func (b Builder) WithIgnoredType(t reflect.Type) Builder {
	b.ignored = grow(b.ignored, t)
	return b
}

// WithRegisterer registers the converter cache metrics of the mapper
// with r when it is built.
func (b Builder) WithRegisterer(r prometheus.Registerer) Builder {
	b.registerer = r
	return b
}

// Build returns a Mapper with the settings of the builder.
func (b Builder) Build() (*Mapper, error) {
	cfg := b.config
	if cfg == nil {
		cfg = bind.NewConfig()
	}

	tf := types.NewFactory()
	for _, nt := range b.types {
		if err := tf.Register(nt.name, nt.t); err != nil {
			return nil, errors.Wrapf(err, "failed to register type %s", nt.t)
		}
	}
	cfg = cfg.WithTypeFactory(tf)

	in := introspect.New()
	for _, nc := range b.named {
		if err := in.RegisterConverter(nc.name, nc.conv); err != nil {
			return nil, err
		}
	}
	for _, ng := range b.generators {
		if err := in.RegisterGenerator(ng.name, ng.gen); err != nil {
			return nil, err
		}
	}

	collector := property.Collector{
		Modifiers:    b.modifiers,
		IgnoredTypes: b.ignored,
	}
	f := codec.NewFactory(in, &collector)
	for _, tc := range b.converters {
		if err := f.Register(tc.t, tc.conv); err != nil {
			return nil, err
		}
	}

	root := bind.NewRoot(cfg, f, f)
	if b.registerer != nil {
		for _, c := range root.Collectors() {
			if err := b.registerer.Register(c); err != nil {
				return nil, errors.Wrap(err, "failed to register cache metrics")
			}
		}
	}

	cfg.Logger().Debug("mapper built",
		zap.Int("types", len(b.types)),
		zap.Int("converters", len(b.converters)+len(b.named)))
	return &Mapper{root: root, config: cfg}, nil
}
