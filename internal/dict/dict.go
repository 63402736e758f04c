package dict

import "strings"

type entry[V any] struct {
	key   string
	value V
}

// Dict is a string-keyed map with case-insensitive keys that remembers
// insertion order. The casing of the first insert of a key is kept.
type Dict[V any] struct {
	order   []string // normalized keys in insertion order
	entries map[string]*entry[V]
}

// New creates an empty Dict.
func New[V any]() *Dict[V] {
	return &Dict[V]{entries: make(map[string]*entry[V])}
}

// FromMap builds a Dict from a plain map. Go map iteration order is random,
// so callers that care about order should Set keys themselves.
func FromMap[V any](m map[string]V) *Dict[V] {
	d := New[V]()
	for k, v := range m {
		d.Set(k, v)
	}
	return d
}

func normalize(key string) string {
	return strings.ToLower(key)
}

// Set inserts or replaces the value for key. Last write wins.
func (d *Dict[V]) Set(key string, value V) {
	nk := normalize(key)
	if e, ok := d.entries[nk]; ok {
		e.value = value
		return
	}
	d.entries[nk] = &entry[V]{key: key, value: value}
	d.order = append(d.order, nk)
}

// Get returns the value for key.
func (d *Dict[V]) Get(key string) (V, bool) {
	if d == nil {
		var zero V
		return zero, false
	}
	e, ok := d.entries[normalize(key)]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether key is present.
func (d *Dict[V]) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key if present.
func (d *Dict[V]) Delete(key string) {
	nk := normalize(key)
	if _, ok := d.entries[nk]; !ok {
		return
	}
	delete(d.entries, nk)
	for i, k := range d.order {
		if k == nk {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (d *Dict[V]) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Keys returns keys in insertion order with their original casing.
func (d *Dict[V]) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.order))
	for _, nk := range d.order {
		keys = append(keys, d.entries[nk].key)
	}
	return keys
}

// Each calls fn for every entry in insertion order.
func (d *Dict[V]) Each(fn func(key string, value V)) {
	if d == nil {
		return
	}
	for _, nk := range d.order {
		e := d.entries[nk]
		fn(e.key, e.value)
	}
}

// Merge copies every entry of other into d, overwriting on collision.
func (d *Dict[V]) Merge(other *Dict[V]) {
	other.Each(func(k string, v V) {
		d.Set(k, v)
	})
}

// Clone returns a shallow copy.
func (d *Dict[V]) Clone() *Dict[V] {
	cp := New[V]()
	cp.Merge(d)
	return cp
}

// Map returns a plain map snapshot keyed by original casing.
func (d *Dict[V]) Map() map[string]V {
	m := make(map[string]V, d.Len())
	d.Each(func(k string, v V) {
		m[k] = v
	})
	return m
}
