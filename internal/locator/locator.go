// Package locator is a small typed service container. Engines use it to
// find optional collaborators and fall back to defaults when one is missing.
package locator

import (
	"reflect"
	"sync"
)

// Locator maps a static type to one service instance.
type Locator struct {
	mu       sync.RWMutex
	services map[reflect.Type]any
}

// New creates an empty Locator.
func New() *Locator {
	return &Locator{services: make(map[reflect.Type]any)}
}

// Register stores svc under the type T, replacing any previous service.
func Register[T any](l *Locator, svc T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services[reflect.TypeFor[T]()] = svc
}

// Get returns the service registered under T. A nil Locator has no services.
func Get[T any](l *Locator) (T, bool) {
	var zero T
	if l == nil {
		return zero, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	svc, ok := l.services[reflect.TypeFor[T]()]
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	return typed, ok
}

// GetOr returns the service registered under T, or fallback.
func GetOr[T any](l *Locator, fallback T) T {
	if svc, ok := Get[T](l); ok {
		return svc
	}
	return fallback
}
