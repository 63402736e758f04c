package graph

import "fmt"

// Missing pairs an item with the ids it needs that are not registered.
type Missing[T Node] struct {
	Item T
	IDs  []string
}

// frame is one level of an explicit depth-first traversal.
type frame[T Node] struct {
	key  string
	item T
	next int // index of the next entry of item.Needs() to visit
}

// Flatten expands targets into an execution order: every dependency is
// emitted before the items that need it and no item is emitted twice.
// It fails with ErrNotFound on the first needed id missing from the map.
//
// Traversal uses an explicit stack so deep graphs do not grow the goroutine stack.
// Edges back into the active path are ignored; cycles are reported by
// DetectCyclicalReferences, not here.
func (m *Map[T]) Flatten(targets []T) ([]T, error) {
	out := make([]T, 0, len(targets))
	done := make(map[string]bool)
	onPath := make(map[string]bool)

	for _, target := range targets {
		rootKey := Normalize(target.ID())
		if done[rootKey] {
			continue
		}

		stack := []frame[T]{{key: rootKey, item: target}}
		onPath[rootKey] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			needs := top.item.Needs()

			if top.next < len(needs) {
				dep := needs[top.next]
				top.next++

				depKey := Normalize(dep)
				if done[depKey] || onPath[depKey] {
					continue
				}
				depItem, ok := m.items[depKey]
				if !ok {
					return nil, fmt.Errorf("%q needs %q: %w", top.item.ID(), dep, ErrNotFound)
				}
				onPath[depKey] = true
				stack = append(stack, frame[T]{key: depKey, item: depItem})
				continue
			}

			finished := *top
			stack = stack[:len(stack)-1]
			delete(onPath, finished.key)
			done[finished.key] = true
			out = append(out, finished.item)
		}
	}

	return out, nil
}

// DetectMissingDependencies lists every item whose Needs reference ids that
// are not in the map. Items with no missing ids are omitted.
func (m *Map[T]) DetectMissingDependencies() []Missing[T] {
	var out []Missing[T]
	for _, key := range m.order {
		item := m.items[key]
		var missing []string
		for _, dep := range item.Needs() {
			if _, ok := m.items[Normalize(dep)]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			out = append(out, Missing[T]{Item: item, IDs: missing})
		}
	}
	return out
}

// DetectCyclicalReferences returns every item from which a cycle can be
// reached. Each item is tried as a root exactly once. Unknown ids in Needs
// are skipped.
func (m *Map[T]) DetectCyclicalReferences() []T {
	var out []T
	for _, key := range m.order {
		if m.reachesCycle(key) {
			out = append(out, m.items[key])
		}
	}
	return out
}

const (
	unvisited uint8 = iota
	active
	finished
)

func (m *Map[T]) reachesCycle(root string) bool {
	state := map[string]uint8{root: active}
	stack := []frame[T]{{key: root, item: m.items[root]}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		needs := top.item.Needs()

		if top.next < len(needs) {
			depKey := Normalize(needs[top.next])
			top.next++

			depItem, ok := m.items[depKey]
			if !ok {
				continue
			}
			switch state[depKey] {
			case active:
				return true
			case finished:
				continue
			}
			state[depKey] = active
			stack = append(stack, frame[T]{key: depKey, item: depItem})
			continue
		}

		state[top.key] = finished
		stack = stack[:len(stack)-1]
	}

	return false
}
