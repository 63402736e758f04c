package execution

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Properties are the deferred settings shared by tasks and jobs.
type Properties struct {
	Timeout *Deferred[int] // seconds, <= 0 uses the configured default
	Env     *Deferred[map[string]string]
	Inputs  *Deferred[map[string]any]
	Cwd     *Deferred[string]
	Force   *Deferred[bool]
	If      *Deferred[bool]
}

// DefaultProperties returns properties that run unconditionally with the default timeout.
func DefaultProperties() Properties {
	return Properties{
		Timeout: Literal(0),
		Env:     Literal[map[string]string](nil),
		Inputs:  Literal[map[string]any](nil),
		Cwd:     Literal(""),
		Force:   Literal(false),
		If:      Literal(true),
	}
}

// Clone returns unresolved copies so one run never sees another run's values.
func (p Properties) Clone() Properties {
	return Properties{
		Timeout: p.Timeout.Clone(),
		Env:     p.Env.Clone(),
		Inputs:  p.Inputs.Clone(),
		Cwd:     p.Cwd.Clone(),
		Force:   p.Force.Clone(),
		If:      p.If.Clone(),
	}
}

// Resolved holds the resolved values of Properties.
type Resolved struct {
	Timeout int
	Env     map[string]string
	Inputs  map[string]any
	Cwd     string
	Force   bool
	If      bool
}

// Resolve resolves every property against c. A nil property keeps its
// default value.
func (p Properties) Resolve(ctx context.Context, c *Context) (Resolved, error) {
	r := Resolved{If: true}
	var err error

	if p.Timeout != nil {
		if r.Timeout, err = p.Timeout.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving timeout: %w", err)
		}
	}
	if p.Env != nil {
		if r.Env, err = p.Env.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving env: %w", err)
		}
	}
	if p.Inputs != nil {
		if r.Inputs, err = p.Inputs.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving inputs: %w", err)
		}
	}
	if p.Cwd != nil {
		if r.Cwd, err = p.Cwd.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving cwd: %w", err)
		}
	}
	if p.Force != nil {
		if r.Force, err = p.Force.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving force: %w", err)
		}
	}
	if p.If != nil {
		if r.If, err = p.If.Resolve(ctx, c); err != nil {
			return r, fmt.Errorf("resolving if: %w", err)
		}
	}
	return r, nil
}

// Apply merges the resolved Env into c and replaces its Cwd when set.
func (r Resolved) Apply(c *Context) {
	for k, v := range r.Env {
		c.Env.Set(k, v)
	}
	if r.Cwd != "" {
		c.Cwd = r.Cwd
	}
}

// EffectiveTimeout returns Timeout in seconds, or fallback when Timeout <= 0.
func (r Resolved) EffectiveTimeout(fallback time.Duration) time.Duration {
	if r.Timeout > 0 {
		// Clamp so huge values do not wrap into an already expired deadline.
		if int64(r.Timeout) > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(r.Timeout) * time.Second
	}
	return fallback
}
