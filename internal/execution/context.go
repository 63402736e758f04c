package execution

import (
	"context"
	"os"
	"strings"

	"github.com/aristath/taskrunner/internal/deferred"
	"github.com/aristath/taskrunner/internal/dict"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/secrets"
)

// Context is the ambient state threaded through a run. Nested contexts are
// cloned from their parent and merged back by whoever created them.
type Context struct {
	Name     string
	Env      *dict.Dict[string]
	Secrets  *dict.Dict[string]
	Outputs  *dict.Dict[any]
	Cwd      string
	Args     []string
	Services *locator.Locator
}

// NewContext creates an empty context.
func NewContext(name string, services *locator.Locator) *Context {
	return &Context{
		Name:     name,
		Env:      dict.New[string](),
		Secrets:  dict.New[string](),
		Outputs:  dict.New[any](),
		Services: services,
	}
}

// FromProcess creates a context seeded with the process environment and working directory.
func FromProcess(name string, services *locator.Locator, args []string) *Context {
	c := NewContext(name, services)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			c.Env.Set(k, v)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		c.Cwd = wd
	}
	c.Args = append([]string(nil), args...)
	return c
}

// Clone snapshots Env, Secrets and Outputs into a new context named name.
func (c *Context) Clone(name string) *Context {
	return &Context{
		Name:     name,
		Env:      c.Env.Clone(),
		Secrets:  c.Secrets.Clone(),
		Outputs:  c.Outputs.Clone(),
		Cwd:      c.Cwd,
		Args:     append([]string(nil), c.Args...),
		Services: c.Services,
	}
}

// AddSecret records a secret, registers it with masker (when not nil) and
// exposes it as an upper-cased environment variable.
func (c *Context) AddSecret(key, value string, masker secrets.Masker) {
	c.Secrets.Set(key, value)
	if masker != nil {
		masker.Add(value)
	}
	c.Env.Set(secrets.EnvName(key), value)
}

// Absorb merges a child context back into c. The child's entries win on
// key collision.
func (c *Context) Absorb(child *Context, masker secrets.Masker) {
	if child == nil {
		return
	}
	c.Env.Merge(child.Env)
	c.Outputs.Merge(child.Outputs)
	child.Secrets.Each(func(k, v string) {
		c.AddSecret(k, v, masker)
	})
}

// Environ returns Env as KEY=VALUE pairs for a subprocess.
func (c *Context) Environ() []string {
	out := make([]string, 0, c.Env.Len())
	c.Env.Each(func(k, v string) {
		out = append(out, k+"="+v)
	})
	return out
}

// Deferred is a lazily resolved property evaluated against a run Context.
type Deferred[T any] = deferred.Value[*Context, T]

// Literal returns an already resolved property.
func Literal[T any](v T) *Deferred[T] {
	return deferred.Literal[*Context](v)
}

// Factory returns a property computed once by fn.
func Factory[T any](fn func() T) *Deferred[T] {
	return deferred.Factory[*Context](fn)
}

// Bind returns a property computed from the run context.
func Bind[T any](fn func(c *Context) T) *Deferred[T] {
	return deferred.Bind(fn)
}

// Async returns a property computed by a function that may block or fail.
func Async[T any](fn func(ctx context.Context, c *Context) (T, error)) *Deferred[T] {
	return deferred.Async(fn)
}
