package property

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/token"
)

// A Modifier changes the writers of a type after they are built.
// It may add, remove or reorder writers, and must not modify the writers
// it receives: use the With methods of Writer to derive new ones.
type Modifier interface {
	ModifyProperties(desc *BeanDescription, writers []*Writer) []*Writer
}

// ModifierFunc adapts a function to the Modifier interface.
type ModifierFunc func(desc *BeanDescription, writers []*Writer) []*Writer

func (f ModifierFunc) ModifyProperties(desc *BeanDescription, writers []*Writer) []*Writer {
	return f(desc, writers)
}

// Collector builds the writers of struct types.
type Collector struct {
	Modifiers []Modifier
	// IgnoredTypes are never written as properties.
	IgnoredTypes []reflect.Type
}

// Result is the output of the collector for one type.
// It is immutable and can be shared by every operation.
type Result struct {
	// Writers lists the properties in the order they are written.
	Writers []*Writer
	// Filtered lists, in the same order, the writers to use when a view is
	// active. A nil entry is never written under a view. Filtered is nil
	// when views do not change the output.
	Filtered []FieldWriter
	// TypeID writes the member holding the type id, if any.
	TypeID *Writer
	// Identity writes the ids of the objects, if the type has an identity.
	Identity *IdentityWriter

	all []FieldWriter
}

// For returns the writers to use under view.
func (r *Result) For(view string) []FieldWriter {
	if view != "" && r.Filtered != nil {
		return r.Filtered
	}
	return r.all
}

// Collect builds the writers of the type described by desc. It returns nil
// if the type has no property, letting the caller decide whether an empty
// object is acceptable.
func (c *Collector) Collect(ctx *bind.Context, desc *BeanDescription) (*Result, error) {
	var res Result

	// divert the type id member and drop back references
	candidates := make([]*Candidate, 0, len(desc.Candidates))
	for i := range desc.Candidates {
		cand := &desc.Candidates[i]
		switch {
		case cand.TypeID:
			if res.TypeID != nil {
				return nil, ctx.ReportBadTypeDefinition(desc.Type, "multiple type id properties: %q and %q", res.TypeID.Name(), cand.Name)
			}
			res.TypeID = NewWriter(desc.Type, cand)
		case cand.BackReference:
		default:
			candidates = append(candidates, cand)
		}
	}

	candidates = c.removeIgnorableTypes(candidates)

	if ctx.Enabled(bind.RequireSettersForGetters) {
		candidates = removeSetterlessGetters(candidates)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	writers := make([]*Writer, 0, len(candidates))
	for _, cand := range candidates {
		w, err := c.buildWriter(ctx, desc, cand)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	for _, m := range c.Modifiers {
		writers = m.ModifyProperties(desc, writers)
	}

	if len(desc.Ignored) > 0 {
		kept := writers[:0:0]
		for _, w := range writers {
			if !desc.IsIgnored(w.Name()) {
				kept = append(kept, w)
			}
		}
		writers = kept
	}

	if desc.Identity != nil {
		var err error
		writers, err = c.wireIdentity(ctx, desc, writers, &res)
		if err != nil {
			return nil, err
		}
	}

	res.Writers = writers
	res.all = make([]FieldWriter, len(writers))
	for i, w := range writers {
		res.all[i] = w
	}
	res.Filtered = filterViews(writers, ctx.Enabled(bind.DefaultViewInclusion))

	ctx.Logger().Debug("properties collected",
		zap.Stringer("type", desc.Type),
		zap.Int("writers", len(writers)),
		zap.Bool("views", res.Filtered != nil))
	return &res, nil
}

func (c *Collector) isIgnoredType(t reflect.Type) bool {
	for _, it := range c.IgnoredTypes {
		if it == t {
			return true
		}
	}
	return t.Implements(ignoredType) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(ignoredType))
}

func (c *Collector) removeIgnorableTypes(candidates []*Candidate) []*Candidate {
	kept := candidates[:0]
	for _, cand := range candidates {
		if !c.isIgnoredType(cand.Type) {
			kept = append(kept, cand)
		}
	}
	return kept
}

func removeSetterlessGetters(candidates []*Candidate) []*Candidate {
	kept := candidates[:0]
	for _, cand := range candidates {
		if cand.HasMutator || cand.Explicit {
			kept = append(kept, cand)
		}
	}
	return kept
}

func (c *Collector) buildWriter(ctx *bind.Context, desc *BeanDescription, cand *Candidate) (*Writer, error) {
	w := NewWriter(desc.Type, cand)

	if cand.Encoder != nil {
		enc, err := ctx.ContextualizeEncoder(w.declared, cand.Encoder, bind.PrimarySite(w.member))
		if err != nil {
			return nil, ctx.PropertyDefinitionFailure(desc.Type, cand.Name, err)
		}
		w.encoder = enc
	}

	if w.declared.IsInterface() && !w.declared.IsAny() {
		w.typeWriter = ctx.NewTypeWriter(w.declared)
	}
	return w, nil
}

// wireIdentity attaches the identity writer. For ids held by a regular
// property, that property is moved first.
func (c *Collector) wireIdentity(ctx *bind.Context, desc *BeanDescription, writers []*Writer, res *Result) ([]*Writer, error) {
	info := desc.Identity

	if !info.PropertyBased() {
		prop := info.Property
		if prop == "" {
			prop = ctx.Config().IDProperty()
		}
		res.Identity = &IdentityWriter{
			Generator:  info.Generator.ForScope(desc.Type),
			Property:   prop,
			AlwaysAsID: info.AlwaysAsID,
		}
		return writers, nil
	}

	for i, w := range writers {
		if w.Name() != info.Property {
			continue
		}
		if i > 0 {
			reordered := make([]*Writer, 0, len(writers))
			reordered = append(reordered, w)
			reordered = append(reordered, writers[:i]...)
			reordered = append(reordered, writers[i+1:]...)
			writers = reordered
		}
		res.Identity = &IdentityWriter{
			Generator:  NewPropertyGenerator(w, desc.Type),
			AlwaysAsID: info.AlwaysAsID,
			IDWriter:   w,
		}
		return writers, nil
	}

	return nil, ctx.ReportBadTypeDefinition(desc.Type, "Invalid Object Id definition: cannot find property with name %q", info.Property)
}

type viewWriter struct {
	*Writer
}

func (v viewWriter) SerializeAsField(ctx *bind.Context, em token.Emitter, bean reflect.Value) error {
	view := ctx.ActiveView()
	for _, name := range v.views {
		if name == view {
			return v.Writer.SerializeAsField(ctx, em, bean)
		}
	}
	return v.omit(em)
}

// filterViews returns the writers used when a view is active, or nil when
// views make no difference.
func filterViews(writers []*Writer, defaultInclusion bool) []FieldWriter {
	var hasViews bool
	for _, w := range writers {
		if len(w.views) > 0 {
			hasViews = true
			break
		}
	}
	if !hasViews && defaultInclusion {
		return nil
	}

	filtered := make([]FieldWriter, len(writers))
	for i, w := range writers {
		switch {
		case len(w.views) > 0:
			filtered[i] = viewWriter{w}
		case defaultInclusion:
			filtered[i] = w
		}
	}
	return filtered
}

// IsEmptyBean reports whether a type has nothing to write.
func IsEmptyBean(res *Result) bool {
	return res == nil || (len(res.Writers) == 0 && res.Identity == nil && res.TypeID == nil)
}
