// ABOUTME: Insertion-ordered JSON object used as the wire codec's map type.
// ABOUTME: Keeps key order stable so encoded envelopes and schemas read as written.

package jsonwire

// Object is a JSON object that remembers the order in which keys were first set.
// The zero value is an empty object ready for use.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set stores value under key. Re-setting an existing key keeps its original position.
// Returns the object so calls can be chained.
func (o *Object) Set(key string, value any) *Object {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present (even if its value is null).
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key from the object.
func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// IsEmpty reports whether the object has no keys. Parse failures produce an empty object.
func (o *Object) IsEmpty() bool {
	return o.Len() == 0
}

// String returns the string stored under key; ok is false if absent or not a string.
func (o *Object) String(key string) (string, bool) {
	v, _ := o.Get(key)
	s, ok := v.(string)
	return s, ok
}

// Object returns the nested object stored under key.
func (o *Object) Object(key string) (*Object, bool) {
	v, _ := o.Get(key)
	obj, ok := v.(*Object)
	return obj, ok
}

// Array returns the array stored under key.
func (o *Object) Array(key string) ([]any, bool) {
	v, _ := o.Get(key)
	arr, ok := v.([]any)
	return arr, ok
}

// Bool returns the boolean stored under key.
func (o *Object) Bool(key string) (bool, bool) {
	v, _ := o.Get(key)
	b, ok := v.(bool)
	return b, ok
}

// Int returns the integer stored under key.
func (o *Object) Int(key string) (int64, bool) {
	v, _ := o.Get(key)
	i, ok := v.(int64)
	return i, ok
}

// Float returns the number stored under key as a float64, accepting integers too.
func (o *Object) Float(key string) (float64, bool) {
	v, _ := o.Get(key)
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Range calls fn for each key/value pair in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, value any) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// MarshalJSON lets an Object be embedded in values encoded with encoding/json.
func (o *Object) MarshalJSON() ([]byte, error) {
	return Marshal(o)
}
