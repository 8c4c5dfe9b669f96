package kv

import (
	"github.com/indigo-web/iter"
	"github.com/indigo-web/utils/strcomp"
)

type Pair struct {
	Key, Value string
}

// Storage is an associative structure for (string, string) pairs preserving
// both insertion order and duplicates. Lookup is case-insensitive and linear,
// which proves to be more efficient than a map on the low entry counts headers
// usually have.
type Storage struct {
	pairs      []Pair
	uniqueBuff []string
	valuesBuff []string
}

func New() *Storage {
	return NewPrealloc(0)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromMap returns a new instance with already inserted values from the given
// map. Note: as maps are unordered, the resulting underlying structure will
// also hold the pairs in no particular order.
func NewFromMap(m map[string][]string) *Storage {
	s := NewPrealloc(len(m))

	for key, values := range m {
		for _, value := range values {
			s.Add(key, value)
		}
	}

	return s
}

// Add adds a new pair of key and value.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// Value returns the first value corresponding to the key, otherwise an empty string.
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or the
// fallback passed via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool indicating whether the key exists at all.
func (s *Storage) Get(key string) (string, bool) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns all values by the key. Returns nil if the key doesn't exist.
//
// WARNING: calling it twice will override values returned by the first call.
// Consider copying the returned slice for safe use.
func (s *Storage) Values(key string) (values []string) {
	s.valuesBuff = s.valuesBuff[:0]

	for _, pair := range s.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			s.valuesBuff = append(s.valuesBuff, pair.Value)
		}
	}

	if len(s.valuesBuff) == 0 {
		return nil
	}

	return s.valuesBuff
}

// Keys returns all unique presented keys.
//
// WARNING: calling it twice will override values returned by the first call.
// Consider copying the returned slice for safe use.
func (s *Storage) Keys() []string {
	s.uniqueBuff = s.uniqueBuff[:0]

	for _, pair := range s.pairs {
		if contains(s.uniqueBuff, pair.Key) {
			continue
		}

		s.uniqueBuff = append(s.uniqueBuff, pair.Key)
	}

	return s.uniqueBuff
}

// Has indicates whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Iter returns an iterator over the pairs in insertion order.
func (s *Storage) Iter() iter.Iterator[Pair] {
	return iter.Slice(s.pairs)
}

// Expose returns the underlying pairs slice.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Len returns the number of stored pairs, counting duplicates.
func (s *Storage) Len() int {
	return len(s.pairs)
}

// Clear all the entries, preserving the allocated memory for reuse.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

func contains(collection []string, key string) bool {
	for _, element := range collection {
		if strcomp.EqualFold(element, key) {
			return true
		}
	}

	return false
}
