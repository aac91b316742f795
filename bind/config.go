package bind

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/chaisql/databind/types"
)

// Feature is a binding option that can be turned on or off.
type Feature uint32

// List of features.
const (
	// FailOnUnknownProperties fails decoding when the input contains a
	// property the target type does not know.
	FailOnUnknownProperties Feature = 1 << iota
	// FailOnUnresolvedObjectIDs fails decoding when references to object
	// ids are left unresolved at the end of the operation.
	FailOnUnresolvedObjectIDs
	// FailOnInvalidSubtype fails decoding when a type id cannot be resolved.
	// When disabled, the value is decoded as null.
	FailOnInvalidSubtype
	// FailOnSelfReferences fails encoding when a property refers to the
	// object holding it. When disabled, the property is written as null.
	FailOnSelfReferences
	// FailOnEmptyBeans fails encoding a struct without any property.
	FailOnEmptyBeans
	// DefaultViewInclusion includes properties without views when a view is active.
	DefaultViewInclusion
	// RequireSettersForGetters drops read only properties not explicitly named.
	RequireSettersForGetters
	// AcceptSingleValueAsArray decodes a value that is not an array into a
	// one element collection.
	AcceptSingleValueAsArray
	// AcceptCaseInsensitiveProperties matches property names regardless of case.
	AcceptCaseInsensitiveProperties
	// WrapErrors wraps errors returned by custom converters so that they
	// carry the location and the reference chain.
	WrapErrors
	// WriteDatesAsTimestamps writes times as Unix milliseconds.
	WriteDatesAsTimestamps
)

// DefaultFeatures are the features enabled by default.
const DefaultFeatures = FailOnUnknownProperties | FailOnUnresolvedObjectIDs |
	FailOnInvalidSubtype | FailOnSelfReferences | DefaultViewInclusion | WrapErrors

var featureNames = []string{
	"FailOnUnknownProperties",
	"FailOnUnresolvedObjectIDs",
	"FailOnInvalidSubtype",
	"FailOnSelfReferences",
	"FailOnEmptyBeans",
	"DefaultViewInclusion",
	"RequireSettersForGetters",
	"AcceptSingleValueAsArray",
	"AcceptCaseInsensitiveProperties",
	"WrapErrors",
	"WriteDatesAsTimestamps",
}

func (f Feature) String() string {
	var names []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

const (
	// DefaultTypeProperty is the name of the property holding type ids.
	DefaultTypeProperty = "@type"
	// DefaultIDProperty is the name of the property holding generated object ids.
	DefaultIDProperty = "@id"
)

// Config holds the settings of binding operations.
// A Config is immutable: every With method returns a modified copy.
type Config struct {
	features     Feature
	location     *time.Location
	locale       language.Tag
	dateLayout   string
	view         string
	handlers     []ProblemHandler
	injectables  Injectables
	attributes   map[any]any
	typeFactory  *types.Factory
	typeProperty string
	idProperty   string
	logger       *zap.Logger
}

// NewConfig returns a configuration with the default features.
func NewConfig() *Config {
	return &Config{
		features:     DefaultFeatures,
		location:     time.UTC,
		locale:       language.Und,
		typeFactory:  types.NewFactory(),
		typeProperty: DefaultTypeProperty,
		idProperty:   DefaultIDProperty,
	}
}

func (c *Config) clone() *Config {
	cp := *c
	return &cp
}

// Enabled reports whether all of the given features are enabled.
func (c *Config) Enabled(f Feature) bool { return c.features&f == f }

// Features returns the enabled features.
func (c *Config) Features() Feature { return c.features }

// With returns a copy of c with the given features enabled.
func (c *Config) With(features ...Feature) *Config {
	cp := c.clone()
	for _, f := range features {
		cp.features |= f
	}
	return cp
}

// Without returns a copy of c with the given features disabled.
func (c *Config) Without(features ...Feature) *Config {
	cp := c.clone()
	for _, f := range features {
		cp.features &^= f
	}
	return cp
}

func (c *Config) Location() *time.Location { return c.location }

// WithLocation returns a copy of c using loc to interpret times without offset.
func (c *Config) WithLocation(loc *time.Location) *Config {
	if loc == nil {
		loc = time.UTC
	}
	cp := c.clone()
	cp.location = loc
	return cp
}

func (c *Config) Locale() language.Tag { return c.locale }

func (c *Config) WithLocale(tag language.Tag) *Config {
	cp := c.clone()
	cp.locale = tag
	return cp
}

// DateLayout returns the layout used to read and write times.
// An empty layout reads any common format and writes RFC 3339.
func (c *Config) DateLayout() string { return c.dateLayout }

func (c *Config) WithDateLayout(layout string) *Config {
	cp := c.clone()
	cp.dateLayout = layout
	return cp
}

// View returns the active view, or the empty string.
func (c *Config) View() string { return c.view }

func (c *Config) WithView(view string) *Config {
	cp := c.clone()
	cp.view = view
	return cp
}

// Handlers returns the problem handlers, in the order they are consulted.
func (c *Config) Handlers() []ProblemHandler {
	return c.handlers
}

// WithHandler returns a copy of c with h appended to the problem handlers.
// Handlers are consulted in the order they were added.
func (c *Config) WithHandler(h ProblemHandler) *Config {
	cp := c.clone()
	cp.handlers = make([]ProblemHandler, len(c.handlers), len(c.handlers)+1)
	copy(cp.handlers, c.handlers)
	cp.handlers = append(cp.handlers, h)
	return cp
}

// WithoutHandlers returns a copy of c without any problem handler.
func (c *Config) WithoutHandlers() *Config {
	cp := c.clone()
	cp.handlers = nil
	return cp
}

func (c *Config) Injectables() Injectables { return c.injectables }

func (c *Config) WithInjectables(inj Injectables) *Config {
	cp := c.clone()
	cp.injectables = inj
	return cp
}

// Attribute returns the value of a configuration level attribute.
func (c *Config) Attribute(key any) any {
	if !validKey(key) {
		return nil
	}
	return c.attributes[key]
}

// WithAttribute returns a copy of c with the attribute set.
// Keys must be comparable: c is returned unchanged otherwise.
func (c *Config) WithAttribute(key, value any) *Config {
	if !validKey(key) {
		c.Logger().Warn("attribute dropped, key is not comparable", zap.String("key", fmt.Sprintf("%T", key)))
		return c
	}
	cp := c.clone()
	cp.attributes = make(map[any]any, len(c.attributes)+1)
	for k, v := range c.attributes {
		cp.attributes[k] = v
	}
	cp.attributes[key] = value
	return cp
}

func (c *Config) TypeFactory() *types.Factory { return c.typeFactory }

func (c *Config) WithTypeFactory(f *types.Factory) *Config {
	cp := c.clone()
	cp.typeFactory = f
	return cp
}

// TypeProperty returns the name of the property holding type ids.
func (c *Config) TypeProperty() string { return c.typeProperty }

func (c *Config) WithTypeProperty(name string) *Config {
	cp := c.clone()
	cp.typeProperty = name
	return cp
}

// IDProperty returns the name of the property holding generated object ids.
func (c *Config) IDProperty() string { return c.idProperty }

func (c *Config) WithIDProperty(name string) *Config {
	cp := c.clone()
	cp.idProperty = name
	return cp
}

// Logger returns the logger of the configuration, or the package logger.
func (c *Config) Logger() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return Logger()
}

func (c *Config) WithLogger(l *zap.Logger) *Config {
	cp := c.clone()
	cp.logger = l
	return cp
}

// PropertyKey returns the key used to match a property name: the name
// itself, or its case folded form if case insensitive matching is enabled.
// With a locale set, folding follows the casing rules of that language.
func (c *Config) PropertyKey(name string) string {
	if !c.Enabled(AcceptCaseInsensitiveProperties) {
		return name
	}
	if c.locale == language.Und {
		return cases.Fold().String(name)
	}
	return cases.Lower(c.locale).String(name)
}
