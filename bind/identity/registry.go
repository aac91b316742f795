package identity

import (
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/token"
)

// ErrAlreadyBound is returned when an id is bound to two different objects.
var ErrAlreadyBound = errors.New("object id already bound")

// A Resolver stores the objects bound to ids.
// Resolvers are created per binding operation and shared by every id
// whose prototype they can serve.
type Resolver interface {
	// BindItem associates item with key.
	BindItem(key Key, item any) error
	// ResolveID returns the item bound to key.
	ResolveID(key Key) (any, bool)
	// NewForDecoding returns a fresh resolver for one binding operation.
	NewForDecoding() Resolver
	// CanUseFor reports whether this resolver can serve ids that were
	// declared with the other resolver.
	CanUseFor(other Resolver) bool
}

// SimpleResolver is the default Resolver, backed by a map.
type SimpleResolver struct {
	items map[Key]any
}

func (r *SimpleResolver) BindItem(key Key, item any) error {
	if r.items == nil {
		r.items = make(map[Key]any)
	} else if cur, ok := r.items[key]; ok {
		if sameItem(cur, item) {
			return nil
		}
		return errors.Wrapf(ErrAlreadyBound, "id %v", key.ID)
	}
	r.items[key] = item
	return nil
}

func (r *SimpleResolver) ResolveID(key Key) (any, bool) {
	item, ok := r.items[key]
	return item, ok
}

func (r *SimpleResolver) NewForDecoding() Resolver {
	return new(SimpleResolver)
}

func (r *SimpleResolver) CanUseFor(other Resolver) bool {
	_, ok := other.(*SimpleResolver)
	return ok
}

func sameItem(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && ta.Comparable() {
		return a == b
	}
	return false
}

// An Entry tracks one id: the item it designates, once known,
// and the references that were read before it.
type Entry struct {
	key        Key
	resolver   Resolver
	item       any
	bound      bool
	referrings []Referring
}

// Key returns the key of the entry. It never changes.
func (e *Entry) Key() Key { return e.key }

// Item returns the bound item, if any.
func (e *Entry) Item() (any, bool) { return e.item, e.bound }

// Resolve returns the item designated by the id, consulting the resolver
// if it was not bound during this operation.
func (e *Entry) Resolve() (any, bool) {
	if e.bound {
		return e.item, true
	}
	if item, ok := e.resolver.ResolveID(e.key); ok {
		e.item, e.bound = item, true
	}
	return e.item, e.bound
}

// BindItem binds the id to item, then replays the pending references
// in the order they were recorded.
// An id can only be bound once.
func (e *Entry) BindItem(item any) error {
	if e.bound {
		if sameItem(e.item, item) {
			return nil
		}
		return errors.Wrapf(ErrAlreadyBound, "id %v", e.key.ID)
	}
	if err := e.resolver.BindItem(e.key, item); err != nil {
		return err
	}
	e.item, e.bound = item, true

	refs := e.referrings
	e.referrings = nil
	for _, r := range refs {
		if err := r.HandleResolved(e.key.ID, item); err != nil {
			return err
		}
	}
	return nil
}

// AppendReferring records a reference waiting for the id to be bound.
func (e *Entry) AppendReferring(r Referring) {
	e.referrings = append(e.referrings, r)
}

// HasReferrings reports whether references are waiting for the id.
func (e *Entry) HasReferrings() bool { return len(e.referrings) > 0 }

// Referrings returns the pending references.
func (e *Entry) Referrings() []Referring {
	return append([]Referring(nil), e.referrings...)
}

// tryResolve binds the entry using its resolver, for resolvers able to
// find items that were not part of the input.
func (e *Entry) tryResolve() (bool, error) {
	item, ok := e.resolver.ResolveID(e.key)
	if !ok {
		return false, nil
	}
	e.item, e.bound = item, true

	refs := e.referrings
	e.referrings = nil
	for _, r := range refs {
		if err := r.HandleResolved(e.key.ID, item); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Registry holds the ids of one decoding operation, in the order
// they were first seen. It must not be shared between operations.
type Registry struct {
	entries   map[Key]*Entry
	order     []*Entry
	resolvers []Resolver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Key]*Entry),
	}
}

// FindOrCreate returns the entry of key, creating it if this is the first
// time the id is seen. The resolver of a new entry is taken from the pool
// of resolvers already used by this registry when one can serve proto,
// otherwise a new one is derived from proto.
// A nil proto stands for SimpleResolver.
func (r *Registry) FindOrCreate(key Key, proto Resolver) *Entry {
	if e, ok := r.entries[key]; ok {
		return e
	}

	if proto == nil {
		proto = (*SimpleResolver)(nil)
	}

	var resolver Resolver
	for _, res := range r.resolvers {
		if res.CanUseFor(proto) {
			resolver = res
			break
		}
	}
	if resolver == nil {
		resolver = proto.NewForDecoding()
		r.resolvers = append(r.resolvers, resolver)
	}

	e := Entry{key: key, resolver: resolver}
	r.entries[key] = &e
	r.order = append(r.order, &e)
	return &e
}

// Len returns the number of ids seen.
func (r *Registry) Len() int { return len(r.order) }

// NumResolvers returns the number of distinct resolvers in use.
func (r *Registry) NumResolvers() int { return len(r.resolvers) }

// Unresolved is a reference that could not be satisfied.
type Unresolved struct {
	Key      Key
	Type     reflect.Type
	Location token.Location
}

// Drain gives the resolvers a last chance to bind pending ids and returns
// every reference still unresolved, in the order ids were first seen.
// The registry is emptied.
func (r *Registry) Drain() ([]Unresolved, error) {
	var out []Unresolved
	for _, e := range r.order {
		if e.bound || !e.HasReferrings() {
			continue
		}
		ok, err := e.tryResolve()
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		for _, ref := range e.referrings {
			out = append(out, Unresolved{Key: e.key, Type: ref.ValueType(), Location: ref.Location()})
		}
	}

	r.entries = make(map[Key]*Entry)
	r.order = nil
	r.resolvers = nil
	return out, nil
}
