// Package schema defines ordered key sets used to map between labelled
// quantities (states, inputs, outputs, events) and the flat float vectors
// the numerical code operates on. A Schema is built once, when a model or
// distribution is constructed, and every later access goes through
// validated indices rather than string lookups.
package schema

import (
	"fmt"
)

// ErrKeyNotFound is wrapped by errors reporting a key missing from a schema
// or from a supplied map.
var ErrKeyNotFound = fmt.Errorf("key not found")

// Schema is an immutable ordered list of keys with O(1) index lookup.
type Schema struct {
	keys  []string
	index map[string]int
}

// New builds a schema from the given keys, preserving order.
// Duplicate keys are a programming error and panic.
func New(keys ...string) *Schema {
	index := make(map[string]int, len(keys))
	stored := make([]string, len(keys))
	for i, k := range keys {
		if _, dup := index[k]; dup {
			panic(fmt.Sprintf("schema: duplicate key %q", k))
		}
		index[k] = i
		stored[i] = k
	}
	return &Schema{keys: stored, index: index}
}

// Len returns the number of keys.
func (s *Schema) Len() int { return len(s.keys) }

// Keys returns a copy of the ordered key list.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Key returns the key at position i.
func (s *Schema) Key(i int) string { return s.keys[i] }

// Index returns the position of key, or -1 if the schema does not contain it.
func (s *Schema) Index(key string) int {
	i, ok := s.index[key]
	if !ok {
		return -1
	}
	return i
}

// Contains reports whether key is part of the schema.
func (s *Schema) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Equal reports whether two schemas have identical keys in identical order.
func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if other == nil || len(s.keys) != len(other.keys) {
		return false
	}
	for i, k := range s.keys {
		if other.keys[i] != k {
			return false
		}
	}
	return true
}

// Vector converts a labelled map into a vector ordered by the schema.
// Every schema key must be present in m; extra keys in m are ignored.
func (s *Schema) Vector(m map[string]float64) ([]float64, error) {
	out := make([]float64, len(s.keys))
	for i, k := range s.keys {
		v, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, k)
		}
		out[i] = v
	}
	return out, nil
}

// Map converts a schema-ordered vector into a labelled map.
// The vector length must match the schema length.
func (s *Schema) Map(v []float64) map[string]float64 {
	if len(v) != len(s.keys) {
		panic(fmt.Sprintf("schema: vector length %d does not match schema length %d", len(v), len(s.keys)))
	}
	out := make(map[string]float64, len(s.keys))
	for i, k := range s.keys {
		out[k] = v[i]
	}
	return out
}
