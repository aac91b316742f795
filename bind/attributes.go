package bind

import "reflect"

// nullValue masks a configuration level attribute removed for one operation.
type nullValue struct{}

// Attributes is the attribute bag of one operation. Lookups fall through
// to the attributes of the configuration, which are never modified:
// values set during the operation are stored in a separate map created
// on first write.
type Attributes struct {
	shared    map[any]any
	nonShared map[any]any
}

func newAttributes(shared map[any]any) Attributes {
	return Attributes{shared: shared}
}

// validKey reports whether key can index an attribute map.
func validKey(key any) bool {
	return key != nil && reflect.ValueOf(key).Comparable()
}

// Get returns the value of an attribute, or nil.
func (a *Attributes) Get(key any) any {
	if !validKey(key) {
		return nil
	}
	if v, ok := a.nonShared[key]; ok {
		if _, null := v.(nullValue); null {
			return nil
		}
		return v
	}
	return a.shared[key]
}

// Set sets an attribute for the current operation only.
// Setting nil removes the attribute, including one set in the configuration.
// It reports false, and does nothing, if key is nil or not comparable.
func (a *Attributes) Set(key, value any) bool {
	if !validKey(key) {
		return false
	}
	if value == nil {
		if _, ok := a.shared[key]; ok {
			value = nullValue{}
		} else {
			delete(a.nonShared, key)
			return true
		}
	}
	if a.nonShared == nil {
		a.nonShared = make(map[any]any)
	}
	a.nonShared[key] = value
	return true
}
