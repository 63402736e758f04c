package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/orchestrator"
)

// ErrHandlerNotFound is returned when a task has no handler of its own and
// none is registered for it.
var ErrHandlerNotFound = errors.New("handler not found")

// Handlers is the registry tasks without their own handler are dispatched
// through. Registered handlers run behind a per-key circuit breaker.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	breakers *orchestrator.Breakers
}

// NewHandlers creates a registry. breakers may be nil to disable circuit breaking.
func NewHandlers(breakers *orchestrator.Breakers) *Handlers {
	return &Handlers{
		handlers: make(map[string]Handler),
		breakers: breakers,
	}
}

// Register stores h under key, replacing any previous handler.
func (r *Handlers) Register(key string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[graph.Normalize(key)] = h
}

// Lookup returns the handler registered under key.
func (r *Handlers) Lookup(key string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	key = graph.Normalize(key)

	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if r.breakers == nil {
		return h, true
	}
	return guarded{handler: h, breaker: r.breakers.Get(key)}, true
}

// For returns the handler for t: the one named by its Uses when set, else
// the one registered under its id.
func (r *Handlers) For(t *Task) (Handler, error) {
	key := t.Uses()
	if key == "" {
		key = t.ID()
	}
	if h, ok := r.Lookup(key); ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrHandlerNotFound, key)
}

type guarded struct {
	handler Handler
	breaker *gobreaker.CircuitBreaker
}

func (g guarded) Handle(ctx context.Context, tc *Context) (map[string]any, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.handler.Handle(ctx, tc)
	})
	if err != nil {
		return nil, err
	}
	out, _ := res.(map[string]any)
	return out, nil
}
