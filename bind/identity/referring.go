package identity

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/token"
	"github.com/chaisql/databind/types"
)

// A Referring is a reference read before the object it designates.
// It is replayed once the id gets bound.
type Referring interface {
	// HandleResolved stores value where the reference was read.
	HandleResolved(id any, value any) error
	// ValueType is the type expected at the location of the reference.
	ValueType() reflect.Type
	// Location is where the reference was read.
	Location() token.Location
}

// ForwardReference is returned by decoders reading an id that is not bound yet.
// Containers catch it and register a Referring on the entry, any other caller
// lets it propagate.
type ForwardReference struct {
	Entry    *Entry
	Type     reflect.Type
	Location token.Location
}

func (f *ForwardReference) Error() string {
	return fmt.Sprintf("unresolved forward reference %v for type %s\n at [%s]", f.Entry.Key(), types.ShortName(f.Type), f.Location)
}

// AsForwardReference returns the forward reference found in err, if any.
func AsForwardReference(err error) (*ForwardReference, bool) {
	var fr *ForwardReference
	if errors.As(err, &fr) {
		return fr, true
	}
	return nil, false
}

type referringBase struct {
	typ reflect.Type
	loc token.Location
}

func (r referringBase) ValueType() reflect.Type  { return r.typ }
func (r referringBase) Location() token.Location { return r.loc }

// FieldReferring stores the resolved value into a settable location,
// typically a struct field.
type FieldReferring struct {
	referringBase
	dst  reflect.Value
	then func() error
}

// NewFieldReferring registers a reference on the entry of fr that will store
// the resolved value into dst.
func NewFieldReferring(fr *ForwardReference, dst reflect.Value) *FieldReferring {
	r := FieldReferring{
		referringBase: referringBase{typ: fr.Type, loc: fr.Location},
		dst:           dst,
	}
	fr.Entry.AppendReferring(&r)
	return &r
}

// Then sets a function called after the resolved value is stored, when
// dst is a copy of the final location.
func (r *FieldReferring) Then(fn func() error) *FieldReferring {
	r.then = fn
	return r
}

func (r *FieldReferring) HandleResolved(id any, value any) error {
	if !types.Assign(r.dst, value) {
		return errors.Newf("cannot assign object of type %T with id %v to %s", value, id, r.dst.Type())
	}
	if r.then != nil {
		return r.then()
	}
	return nil
}

// MapReferring stores the resolved value into a map entry.
type MapReferring struct {
	referringBase
	m   reflect.Value
	key reflect.Value
}

// NewMapReferring registers a reference on the entry of fr that will store
// the resolved value under key in m.
func NewMapReferring(fr *ForwardReference, m, key reflect.Value) *MapReferring {
	r := MapReferring{
		referringBase: referringBase{typ: fr.Type, loc: fr.Location},
		m:             m,
		key:           key,
	}
	fr.Entry.AppendReferring(&r)
	return &r
}

func (r *MapReferring) HandleResolved(id any, value any) error {
	v := reflect.New(r.m.Type().Elem()).Elem()
	if !types.Assign(v, value) {
		return errors.Newf("cannot assign object of type %T with id %v to %s", value, id, v.Type())
	}
	r.m.SetMapIndex(r.key, v)
	return nil
}

// CollectionAccumulator collects the elements of an array while some of
// them are references to ids not bound yet. Elements read after a pending
// reference are buffered with it, so that once the id is bound, the
// resolved value and the buffered elements take the position the reference
// had in the input.
type CollectionAccumulator struct {
	elemType   reflect.Type
	result     []any
	referrings []*collectionReferring
	store      func(values []any) error
}

type collectionReferring struct {
	referringBase
	parent *CollectionAccumulator
	id     any
	next   []any
}

func (r *collectionReferring) HandleResolved(id any, value any) error {
	return r.parent.resolve(id, value)
}

// NewCollectionAccumulator returns an accumulator for elements of type
// elemType, appending to buf.
func NewCollectionAccumulator(elemType reflect.Type, buf []any) *CollectionAccumulator {
	return &CollectionAccumulator{elemType: elemType, result: buf[:0]}
}

// Add appends a decoded element.
func (a *CollectionAccumulator) Add(v any) {
	if len(a.referrings) == 0 {
		a.result = append(a.result, v)
		return
	}
	last := a.referrings[len(a.referrings)-1]
	last.next = append(last.next, v)
}

// HandleUnresolved records a pending reference at the current position.
func (a *CollectionAccumulator) HandleUnresolved(fr *ForwardReference) {
	r := collectionReferring{
		referringBase: referringBase{typ: a.elemType, loc: fr.Location},
		parent:        a,
		id:            fr.Entry.Key().ID,
	}
	a.referrings = append(a.referrings, &r)
	fr.Entry.AppendReferring(&r)
}

func (a *CollectionAccumulator) resolve(id any, value any) error {
	previous := &a.result
	for i, ref := range a.referrings {
		if ref.id == id {
			a.referrings = append(a.referrings[:i], a.referrings[i+1:]...)
			*previous = append(*previous, value)
			*previous = append(*previous, ref.next...)
			if a.store != nil {
				return a.store(a.result)
			}
			return nil
		}
		previous = &ref.next
	}

	return errors.Newf("trying to resolve a forward reference with id %v that was not previously seen as unresolved", id)
}

// Values returns the elements whose position is known.
func (a *CollectionAccumulator) Values() []any { return a.result }

// Pending reports whether references are still waiting for their id.
func (a *CollectionAccumulator) Pending() bool { return len(a.referrings) > 0 }

// Finish calls store with the elements whose position is known.
// If references are pending, store is called again each time one of them
// is resolved.
func (a *CollectionAccumulator) Finish(store func(values []any) error) error {
	a.store = store
	return store(a.result)
}
