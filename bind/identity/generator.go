package identity

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/chaisql/databind/types"
)

// A Generator produces the ids written for objects while encoding.
// Generators hold per operation state and are derived from a prototype
// with NewForEncoding at the start of each operation.
type Generator interface {
	// Kind names the generator. Ids from generators of different kinds never match.
	Kind() string
	// Scope is the type ids are unique in, or nil for the whole operation.
	Scope() reflect.Type
	// ForScope returns a generator of the same kind for another scope.
	ForScope(scope reflect.Type) Generator
	// NewForEncoding returns a fresh generator for one operation.
	NewForEncoding() Generator
	// GenerateID returns the id of item.
	GenerateID(item any) (any, error)
	// CanUseFor reports whether the generator can serve objects declared
	// with the other generator.
	CanUseFor(other Generator) bool
}

// KeyFor returns the key of id produced by g.
func KeyFor(g Generator, id any) (Key, error) {
	return NewKey(g.Kind(), g.Scope(), id)
}

type scoped struct {
	scope reflect.Type
}

func (s scoped) Scope() reflect.Type { return s.scope }

func sameKind(a, b Generator) bool {
	return a.Kind() == b.Kind() && a.Scope() == b.Scope()
}

// IntSequence generates increasing integer ids, starting at 1.
type IntSequence struct {
	scoped
	next int64
}

// NewIntSequence returns an IntSequence prototype.
func NewIntSequence(scope reflect.Type) *IntSequence {
	return &IntSequence{scoped: scoped{scope: scope}}
}

func (g *IntSequence) Kind() string { return "int-sequence" }

func (g *IntSequence) ForScope(scope reflect.Type) Generator {
	if scope == g.scope {
		return g
	}
	return NewIntSequence(scope)
}

func (g *IntSequence) NewForEncoding() Generator {
	return &IntSequence{scoped: g.scoped, next: 1}
}

func (g *IntSequence) GenerateID(any) (any, error) {
	if g.next == 0 {
		g.next = 1
	}
	id := g.next
	g.next++
	return id, nil
}

func (g *IntSequence) CanUseFor(other Generator) bool { return sameKind(g, other) }

// UUIDGenerator generates random UUID strings.
type UUIDGenerator struct {
	scoped
}

// NewUUIDGenerator returns a UUIDGenerator. UUIDs are unique globally so
// the scope is only used to tell generators apart.
func NewUUIDGenerator(scope reflect.Type) *UUIDGenerator {
	return &UUIDGenerator{scoped: scoped{scope: scope}}
}

func (g *UUIDGenerator) Kind() string { return "uuid" }

func (g *UUIDGenerator) ForScope(scope reflect.Type) Generator {
	if scope == g.scope {
		return g
	}
	return NewUUIDGenerator(scope)
}

func (g *UUIDGenerator) NewForEncoding() Generator { return g }

func (g *UUIDGenerator) GenerateID(any) (any, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

func (g *UUIDGenerator) CanUseFor(other Generator) bool { return sameKind(g, other) }

// XIDGenerator generates short sortable ids, such as "9m4e2mr0ui3e8a215n4g".
type XIDGenerator struct {
	scoped
}

// NewXIDGenerator returns an XIDGenerator.
func NewXIDGenerator(scope reflect.Type) *XIDGenerator {
	return &XIDGenerator{scoped: scoped{scope: scope}}
}

func (g *XIDGenerator) Kind() string { return "xid" }

func (g *XIDGenerator) ForScope(scope reflect.Type) Generator {
	if scope == g.scope {
		return g
	}
	return NewXIDGenerator(scope)
}

func (g *XIDGenerator) NewForEncoding() Generator { return g }

func (g *XIDGenerator) GenerateID(any) (any, error) {
	return xid.New().String(), nil
}

func (g *XIDGenerator) CanUseFor(other Generator) bool { return sameKind(g, other) }

// WritableID is the id of one object being encoded.
type WritableID struct {
	Generator Generator
	ID        any
	// Written reports whether the object was written in full once already.
	Written bool
}

// GenerateID returns the id of item, generating it on first call.
func (w *WritableID) GenerateID(item any) (any, error) {
	if w.ID != nil {
		return w.ID, nil
	}
	id, err := w.Generator.GenerateID(item)
	if err != nil {
		return nil, err
	}
	w.ID = id
	return id, nil
}

// Writables tracks the ids of objects written during one encoding operation.
type Writables struct {
	generators []Generator
	seen       map[writableKey]*WritableID
}

type writableKey struct {
	kind string
	item any
}

// NewWritables returns an empty tracker.
func NewWritables() *Writables {
	return &Writables{seen: make(map[writableKey]*WritableID)}
}

// Find returns the id of item. Objects are recognized by address, so only
// pointers can be written by reference; other items get a new id each time.
func (w *Writables) Find(item any, proto Generator) *WritableID {
	var gen Generator
	for _, g := range w.generators {
		if g.CanUseFor(proto) {
			gen = g
			break
		}
	}
	if gen == nil {
		gen = proto.NewForEncoding()
		w.generators = append(w.generators, gen)
	}

	if item == nil || reflect.TypeOf(item).Kind() != reflect.Pointer {
		return &WritableID{Generator: gen}
	}

	k := writableKey{kind: gen.Kind() + "/" + scopeName(gen.Scope()), item: item}
	if id, ok := w.seen[k]; ok {
		return id
	}
	id := WritableID{Generator: gen}
	w.seen[k] = &id
	return &id
}

func scopeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return types.TypeName(t)
}
