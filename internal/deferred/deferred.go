// Package deferred holds values that are either known up front or computed
// lazily, once, against a run context.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnresolved is returned by Value when the value has not been resolved yet.
var ErrUnresolved = errors.New("deferred value has not been resolved")

// ResolveFunc computes a value from a context of type C.
type ResolveFunc[C, T any] func(ctx context.Context, c C) (T, error)

// Value is a slot that holds either a cached T or the function that produces it.
// The zero value is resolved to the zero T.
type Value[C, T any] struct {
	mu       sync.Mutex
	value    T
	resolved bool
	resolve  ResolveFunc[C, T]
	group    singleflight.Group
}

// Literal returns a Value that is already resolved to v.
func Literal[C, T any](v T) *Value[C, T] {
	return &Value[C, T]{value: v, resolved: true}
}

// Factory returns a Value computed by fn, which ignores the context.
func Factory[C, T any](fn func() T) *Value[C, T] {
	return &Value[C, T]{resolve: func(context.Context, C) (T, error) {
		return fn(), nil
	}}
}

// Bind returns a Value computed from the context by fn.
func Bind[C, T any](fn func(c C) T) *Value[C, T] {
	return &Value[C, T]{resolve: func(_ context.Context, c C) (T, error) {
		return fn(c), nil
	}}
}

// Async returns a Value computed by fn, which may block and may fail.
func Async[C, T any](fn func(ctx context.Context, c C) (T, error)) *Value[C, T] {
	return &Value[C, T]{resolve: fn}
}

// HasValue reports whether the value is resolved.
func (v *Value[C, T]) HasValue() bool {
	if v == nil {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolved || v.resolve == nil
}

// Value returns the cached value or ErrUnresolved.
func (v *Value[C, T]) Value() (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.resolved && v.resolve != nil {
		return zero, ErrUnresolved
	}
	return v.value, nil
}

// Resolve returns the cached value, invoking the resolution function on the
// first call only. Concurrent callers share one invocation. A failed
// resolution is not cached.
func (v *Value[C, T]) Resolve(ctx context.Context, c C) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	v.mu.Lock()
	if v.resolved || v.resolve == nil {
		val := v.value
		v.mu.Unlock()
		return val, nil
	}
	v.mu.Unlock()

	res, err, _ := v.group.Do("resolve", func() (any, error) {
		v.mu.Lock()
		if v.resolved {
			val := v.value
			v.mu.Unlock()
			return val, nil
		}
		fn := v.resolve
		v.mu.Unlock()

		val, err := invoke(ctx, fn, c)
		if err != nil {
			return val, err
		}

		v.mu.Lock()
		v.value = val
		v.resolved = true
		v.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}

// Clone returns an independent copy. A resolved value stays resolved; an
// unresolved one keeps its function and will resolve separately.
func (v *Value[C, T]) Clone() *Value[C, T] {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return &Value[C, T]{value: v.value, resolved: v.resolved, resolve: v.resolve}
}

func invoke[C, T any](ctx context.Context, fn ResolveFunc[C, T], c C) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deferred value panicked: %v", r)
		}
	}()
	return fn(ctx, c)
}
