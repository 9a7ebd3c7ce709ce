package resolver

import (
	"bytes"
	"encoding/json"
)

// ResultTree is one shaped object of a response. Keys are response keys
// (aliases) in the order they were set. Values are scalars in wire form,
// nested trees, lists of trees, or an error reported for that key only.
type ResultTree struct {
	keys   []string
	values map[string]any
}

// NewResultTree returns an empty tree.
func NewResultTree() *ResultTree {
	return &ResultTree{values: make(map[string]any)}
}

// Set stores value under key, keeping the position of an existing key.
func (t *ResultTree) Set(key string, value any) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Lookup returns the value stored under key.
func (t *ResultTree) Lookup(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (t *ResultTree) Keys() []string {
	return append([]string(nil), t.keys...)
}

// child returns the tree under key, creating it when missing.
func (t *ResultTree) child(key string) *ResultTree {
	if existing, ok := t.values[key].(*ResultTree); ok {
		return existing
	}
	sub := NewResultTree()
	t.Set(key, sub)
	return sub
}

// MarshalJSON writes keys in order. Stored errors become null.
func (t *ResultTree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		value := t.values[key]
		if _, isErr := value.(error); isErr {
			value = nil
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
