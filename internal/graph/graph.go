package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// ErrNotFound is returned when an id is not present in a Map.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by Add when the id is already registered.
var ErrDuplicate = errors.New("already exists")

// Node is anything that can take part in a dependency graph.
type Node interface {
	ID() string
	Needs() []string
}

// Normalize returns the canonical form of an id. Ids compare case-insensitively.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Map is a registry of nodes keyed by case-insensitive id.
// Iteration follows insertion order so listings are deterministic.
type Map[T Node] struct {
	order []string
	items map[string]T
}

// NewMap creates an empty Map.
func NewMap[T Node]() *Map[T] {
	return &Map[T]{items: make(map[string]T)}
}

// Add registers item. Returns an error if its id already exists.
func (m *Map[T]) Add(item T) error {
	key := Normalize(item.ID())
	if key == "" {
		return fmt.Errorf("item id is empty")
	}
	if _, exists := m.items[key]; exists {
		return fmt.Errorf("item %q: %w", item.ID(), ErrDuplicate)
	}
	m.items[key] = item
	m.order = append(m.order, key)
	return nil
}

// Set registers item, replacing any previous item with the same id.
func (m *Map[T]) Set(item T) {
	key := Normalize(item.ID())
	if _, exists := m.items[key]; !exists {
		m.order = append(m.order, key)
	}
	m.items[key] = item
}

// Get returns the item registered under id.
func (m *Map[T]) Get(id string) (T, bool) {
	item, ok := m.items[Normalize(id)]
	return item, ok
}

// Has reports whether id is registered.
func (m *Map[T]) Has(id string) bool {
	_, ok := m.items[Normalize(id)]
	return ok
}

// Delete removes id from the map.
func (m *Map[T]) Delete(id string) {
	key := Normalize(id)
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// Len returns the number of items.
func (m *Map[T]) Len() int {
	return len(m.order)
}

// Values returns all items in insertion order.
func (m *Map[T]) Values() []T {
	values := make([]T, 0, len(m.order))
	for _, key := range m.order {
		values = append(values, m.items[key])
	}
	return values
}

// Keys returns the ids of all items in insertion order, as registered.
func (m *Map[T]) Keys() []string {
	keys := make([]string, 0, len(m.order))
	for _, key := range m.order {
		keys = append(keys, m.items[key].ID())
	}
	return keys
}

// Resolve looks up every id in ids, failing on the first unknown one.
func (m *Map[T]) Resolve(ids []string) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		item, ok := m.Get(id)
		if !ok {
			return nil, fmt.Errorf("target %q: %w", id, ErrNotFound)
		}
		out = append(out, item)
	}
	return out, nil
}

// Order returns every item of the map in a topological order using
// gammazero/toposort. Fails on a missing dependency or a cycle.
func (m *Map[T]) Order() ([]T, error) {
	var edges []toposort.Edge
	for _, key := range m.order {
		item := m.items[key]
		needs := item.Needs()
		if len(needs) == 0 {
			edges = append(edges, toposort.Edge{nil, key})
			continue
		}
		for _, dep := range needs {
			depKey := Normalize(dep)
			if _, exists := m.items[depKey]; !exists {
				return nil, fmt.Errorf("%q needs %q: %w", item.ID(), dep, ErrNotFound)
			}
			// Edge (dep, item) means dep must come before item
			edges = append(edges, toposort.Edge{depKey, key})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]T, 0, len(m.order))
	for _, key := range sorted {
		if key == nil {
			continue
		}
		order = append(order, m.items[key.(string)])
	}
	return order, nil
}
