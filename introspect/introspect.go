// Package introspect describes struct types for binding, reading the
// declarations found in the tags of their fields.
//
// Fields are bound under their lowercased name unless the tag names them:
//
//	type User struct {
//		_       struct{} `bind:"identity=property,idprop=id,ignore=password"`
//		ID      int      `bind:"id"`
//		Name    string   `bind:"name,omitempty"`
//		Created time.Time `bind:"created,format=2006-01-02"`
//		Notes   string   `bind:"notes,view=admin"`
//		Secret  string   `bind:"-"`
//	}
//
// Exported fields of embedded structs are promoted, as with encoding/json.
package introspect

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/bind"
	"github.com/chaisql/databind/bind/identity"
	"github.com/chaisql/databind/bind/property"
	errs "github.com/chaisql/databind/errors"
	"github.com/chaisql/databind/types"
)

// TagName is the struct tag key read by the introspector.
const TagName = "bind"

// Identity kinds recognized by the identity type option, besides the names
// of registered generators.
const (
	IdentityProperty = "property"
	IdentityIntSeq   = "intseq"
	IdentityUUID     = "uuid"
	IdentityXID      = "xid"
)

// Converter is a pair of converters that fields refer to with using=name.
// Either side may be nil when the field is only encoded or decoded.
type Converter struct {
	Encoder bind.Encoder
	Decoder bind.Decoder
}

// Introspector describes struct types. Descriptions are computed once per
// type and cached. It is safe for concurrent use.
type Introspector struct {
	mu         sync.RWMutex
	converters map[string]Converter
	generators map[string]identity.Generator

	cache sync.Map
}

// New returns an introspector without any named converter or generator.
func New() *Introspector {
	return &Introspector{
		converters: make(map[string]Converter),
		generators: make(map[string]identity.Generator),
	}
}

// RegisterConverter makes c available to fields tagged using=name.
// It must be called before the first type using it is described.
func (in *Introspector) RegisterConverter(name string, c Converter) error {
	if name == "" {
		return errors.New("converter name cannot be empty")
	}
	if c.Encoder == nil && c.Decoder == nil {
		return errors.Newf("converter %q has neither encoder nor decoder", name)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.converters[name]; ok {
		return errors.Newf("converter %q already registered", name)
	}
	in.converters[name] = c
	return nil
}

// RegisterGenerator makes g available to types tagged identity=name.
func (in *Introspector) RegisterGenerator(name string, g identity.Generator) error {
	switch name {
	case "", IdentityProperty, IdentityIntSeq, IdentityUUID, IdentityXID:
		return errors.Newf("invalid generator name %q", name)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.generators[name]; ok {
		return errors.Newf("generator %q already registered", name)
	}
	in.generators[name] = g
	return nil
}

func (in *Introspector) converter(name string) (Converter, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	c, ok := in.converters[name]
	return c, ok
}

func (in *Introspector) generator(name string) (identity.Generator, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	g, ok := in.generators[name]
	return g, ok
}

// Describe returns the description of the struct type t.
// A malformed declaration is reported as an errors.DefinitionError.
func (in *Introspector) Describe(t reflect.Type) (*property.BeanDescription, error) {
	if t.Kind() != reflect.Struct {
		return nil, badDefinition(t, "", "not a struct")
	}
	if d, ok := in.cache.Load(t); ok {
		return d.(*property.BeanDescription), nil
	}

	desc, err := in.describe(t)
	if err != nil {
		return nil, err
	}
	d, _ := in.cache.LoadOrStore(t, desc)
	return d.(*property.BeanDescription), nil
}

type placed struct {
	at    int
	depth int
}

func (in *Introspector) describe(t reflect.Type) (*property.BeanDescription, error) {
	desc := property.BeanDescription{Type: t}
	names := make(map[string]placed)

	if err := in.collect(t, nil, &desc, names, 0); err != nil {
		return nil, err
	}

	// shadowed fields leave holes
	kept := desc.Candidates[:0]
	for _, c := range desc.Candidates {
		if c.Index != nil {
			kept = append(kept, c)
		}
	}
	desc.Candidates = kept

	return &desc, nil
}

func (in *Introspector) collect(t reflect.Type, index []int, desc *property.BeanDescription, names map[string]placed, depth int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup(TagName)

		if sf.Name == "_" {
			if depth == 0 && hasTag {
				if err := in.applyTypeTag(t, tag, desc); err != nil {
					return err
				}
			}
			continue
		}

		if tag == "-" {
			continue
		}

		// embedded structs are flattened unless the tag names them
		if name, _, _ := strings.Cut(tag, ","); sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				if !sf.IsExported() {
					continue
				}
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := in.collect(ft, appendIndex(index, i), desc, names, depth+1); err != nil {
					return err
				}
				continue
			}
		}

		if !sf.IsExported() {
			continue
		}

		cand, ok, err := in.candidate(t, sf, tag, appendIndex(index, i))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		prev, exists := names[cand.Name]
		switch {
		case !exists:
			names[cand.Name] = placed{at: len(desc.Candidates), depth: depth}
			desc.Candidates = append(desc.Candidates, cand)
		case prev.depth > depth:
			desc.Candidates[prev.at] = property.Candidate{}
			names[cand.Name] = placed{at: len(desc.Candidates), depth: depth}
			desc.Candidates = append(desc.Candidates, cand)
		case prev.depth == depth:
			return badDefinition(desc.Type, cand.Name, "conflicting fields for property %q", cand.Name)
		}
	}
	return nil
}

func appendIndex(index []int, i int) []int {
	out := make([]int, len(index)+1)
	copy(out, index)
	out[len(index)] = i
	return out
}

func (in *Introspector) candidate(owner reflect.Type, sf reflect.StructField, tag string, index []int) (property.Candidate, bool, error) {
	ft, err := parseFieldTag(tag)
	if err != nil {
		return property.Candidate{}, false, badDefinition(owner, sf.Name, "%v", err)
	}
	if ft.ignored {
		return property.Candidate{}, false, nil
	}

	c := property.Candidate{
		Name:          strings.ToLower(sf.Name),
		Index:         index,
		Type:          sf.Type,
		Explicit:      ft.name != "",
		HasMutator:    !ft.readOnly,
		TypeID:        ft.typeID,
		BackReference: ft.backRef,
		Views:         ft.views,
		Suppress:      ft.suppress,
		Format:        ft.format,
	}
	if ft.name != "" {
		c.Name = ft.name
	}
	if ft.inject != "" {
		c.Inject = ft.inject
	}

	if ft.typeID && sf.Type.Kind() != reflect.String {
		return c, false, badDefinition(owner, c.Name, "type id member must be a string, not %s", types.ShortName(sf.Type))
	}

	if ft.converter != "" {
		conv, ok := in.converter(ft.converter)
		if !ok {
			return c, false, badDefinition(owner, c.Name, "no converter registered under %q", ft.converter)
		}
		c.Encoder = conv.Encoder
		c.Decoder = conv.Decoder
	}

	return c, true, nil
}

func (in *Introspector) applyTypeTag(t reflect.Type, tag string, desc *property.BeanDescription) error {
	tt, err := parseTypeTag(tag)
	if err != nil {
		return badDefinition(t, "", "%v", err)
	}
	desc.Ignored = tt.ignored
	desc.IgnoreUnknown = tt.ignoreUnknown

	if tt.identity == "" {
		return nil
	}

	info := property.IdentityInfo{
		Property:   tt.idProperty,
		AlwaysAsID: tt.alwaysAsID,
	}
	switch tt.identity {
	case IdentityProperty:
		if tt.idProperty == "" {
			return badDefinition(t, "", "property based identity requires idprop")
		}
	case IdentityIntSeq:
		info.Generator = identity.NewIntSequence(t)
	case IdentityUUID:
		info.Generator = identity.NewUUIDGenerator(t)
	case IdentityXID:
		info.Generator = identity.NewXIDGenerator(t)
	default:
		g, ok := in.generator(tt.identity)
		if !ok {
			return badDefinition(t, "", "unknown identity generator %q", tt.identity)
		}
		info.Generator = g.ForScope(t)
	}
	desc.Identity = &info
	return nil
}

func badDefinition(t reflect.Type, prop string, format string, args ...any) error {
	msg := fmt.Sprintf("Invalid type definition for type %s: %s", types.ShortName(t), fmt.Sprintf(format, args...))
	if prop != "" {
		msg = fmt.Sprintf("Invalid definition for property %q (of type %s): %s", prop, types.ShortName(t), fmt.Sprintf(format, args...))
	}
	return &errs.DefinitionError{Problem: errs.Problem{Msg: msg}, Type: t, Property: prop}
}
