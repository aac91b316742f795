package bind

import (
	"reflect"

	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// A Decoder reads one value from a cursor into dst, which is settable.
// The cursor is positioned on the first token of the value and must be
// left on its last token.
type Decoder interface {
	Decode(ctx *Context, cur token.Cursor, dst reflect.Value) error
}

// An Encoder writes one value.
type Encoder interface {
	Encode(ctx *Context, em token.Emitter, v reflect.Value) error
}

// DecoderFactory builds the decoder of a type on cache miss.
// It may call back into the context to find the decoders of nested types.
type DecoderFactory interface {
	NewDecoder(ctx *Context, t *types.Descriptor) (Decoder, error)
}

// EncoderFactory builds the encoder of a type on cache miss.
type EncoderFactory interface {
	NewEncoder(ctx *Context, t *types.Descriptor) (Encoder, error)
}

// SiteKind tells how a converter is used.
type SiteKind uint8

const (
	// Secondary converters serve container elements and root values.
	Secondary SiteKind = iota
	// Primary converters are bound to a named property, whose settings apply.
	Primary
)

func (k SiteKind) String() string {
	if k == Primary {
		return "primary"
	}
	return "secondary"
}

// Member describes the property a converter is bound to.
type Member struct {
	Name  string
	Owner reflect.Type
	// Format holds the format settings of the property, such as a date layout.
	Format string
	Views  []string
}

// Site is where a converter is used.
type Site struct {
	Kind   SiteKind
	Member *Member
}

// PrimarySite returns the site of a converter bound to m.
func PrimarySite(m *Member) Site {
	return Site{Kind: Primary, Member: m}
}

// SecondarySite returns the site of a converter bound to a container element
// or a root value, optionally within the property m.
func SecondarySite(m *Member) Site {
	return Site{Kind: Secondary, Member: m}
}

// Format returns the format settings applying to the site.
// Only primary sites carry property settings.
func (s Site) Format() string {
	if s.Kind != Primary || s.Member == nil {
		return ""
	}
	return s.Member.Format
}

// Contextual is implemented by converters that specialize themselves
// for the site they serve. C is Decoder or Encoder.
type Contextual[C any] interface {
	CreateContextual(ctx *Context, site Site) (C, error)
}

// Resolvable is implemented by converters that look up the converters of
// nested types after being built. Until Resolve returns, the converter is
// visible to the lookups it triggers, which lets recursive types refer
// to themselves.
type Resolvable interface {
	Resolve(ctx *Context) error
}

// Emptiable is implemented by encoders able to tell whether a value
// is empty, for properties omitted when empty.
type Emptiable interface {
	IsEmpty(ctx *Context, v reflect.Value) bool
}

// TypedEncoder is implemented by encoders that can write the type id
// of the value within its own representation.
type TypedEncoder interface {
	EncodeWithType(ctx *Context, em token.Emitter, v reflect.Value, tw *TypeWriter) error
}

// ReferenceReader is implemented by decoders of types carrying an object
// identity. ReadReference decodes an object id and returns the object it
// designates, or an *identity.ForwardReference error if it was not read yet.
type ReferenceReader interface {
	UsesObjectIdentity() bool
	ReadReference(ctx *Context, cur token.Cursor) (any, error)
}

// IdentityUser is implemented by encoders writing object identities.
type IdentityUser interface {
	UsesObjectIdentity() bool
}

// lazyDecoder stands for a decoder whose construction is in progress.
// It looks the actual decoder up each time it is used, since it may be
// shared by operations running concurrently.
type lazyDecoder struct {
	t    *types.Descriptor
	site Site
}

func (l *lazyDecoder) Decode(ctx *Context, cur token.Cursor, dst reflect.Value) error {
	dec, err := ctx.FindDecoder(l.t, l.site)
	if err != nil {
		return err
	}
	if _, lazy := dec.(*lazyDecoder); lazy {
		return ctx.ReportBadDefinition(l.t.Raw(), "unresolvable cycle while building decoder")
	}
	return dec.Decode(ctx, cur, dst)
}

type lazyEncoder struct {
	t    *types.Descriptor
	site Site
}

func (l *lazyEncoder) Encode(ctx *Context, em token.Emitter, v reflect.Value) error {
	enc, err := ctx.FindEncoder(l.t, l.site)
	if err != nil {
		return err
	}
	if _, lazy := enc.(*lazyEncoder); lazy {
		return ctx.ReportBadDefinition(l.t.Raw(), "unresolvable cycle while building encoder")
	}
	return enc.Encode(ctx, em, v)
}
