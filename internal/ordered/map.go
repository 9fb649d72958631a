// Package ordered provides a map that remembers insertion order.
package ordered

import "iter"

// Map associates keys with values and iterates in first-insertion order. Overwriting a key
// keeps its original position. The zero value is ready to use.
type Map[K comparable, V any] struct {
	keys  []K
	index map[K]int
	vals  []V
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

// Set inserts or overwrites k and reports whether it was newly inserted.
func (m *Map[K, V]) Set(k K, v V) bool {
	if m.index == nil {
		m.index = make(map[K]int)
	}
	if i, ok := m.index[k]; ok {
		m.vals[i] = v
		return false
	}
	m.index[k] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
	return true
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	if m == nil || m.index == nil {
		var zero V
		return zero, false
	}
	i, ok := m.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return m.vals[i], true
}

func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Get(k)
	return ok
}

func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return append([]K(nil), m.keys...)
}

// Values returns a copy of the values in key order.
func (m *Map[K, V]) Values() []V {
	if m == nil {
		return nil
	}
	return append([]V(nil), m.vals...)
}

// All iterates key/value pairs in order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		for i, k := range m.keys {
			if !yield(k, m.vals[i]) {
				return
			}
		}
	}
}

// Filter returns a new map holding the pairs for which keep returns true, in order.
func (m *Map[K, V]) Filter(keep func(K, V) bool) *Map[K, V] {
	out := New[K, V]()
	for k, v := range m.All() {
		if keep(k, v) {
			out.Set(k, v)
		}
	}
	return out
}
