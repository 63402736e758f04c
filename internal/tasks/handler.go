package tasks

import (
	"context"

	"github.com/aristath/taskrunner/internal/execution"
)

// Handler runs a task and returns its outputs.
type Handler interface {
	Handle(ctx context.Context, tc *Context) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tc *Context) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, tc *Context) (map[string]any, error) {
	return f(ctx, tc)
}

// Func wraps a function returning outputs.
func Func(fn func(ctx context.Context, tc *Context) (map[string]any, error)) Handler {
	return HandlerFunc(fn)
}

// Action wraps a function that cannot fail and has no outputs.
func Action(fn func()) Handler {
	return HandlerFunc(func(context.Context, *Context) (map[string]any, error) {
		fn()
		return nil, nil
	})
}

// ActionErr wraps a function without outputs.
func ActionErr(fn func() error) Handler {
	return HandlerFunc(func(context.Context, *Context) (map[string]any, error) {
		return nil, fn()
	})
}

// ActionContext wraps a function that reports through tc instead of
// returning outputs.
func ActionContext(fn func(ctx context.Context, tc *Context) error) Handler {
	return HandlerFunc(func(ctx context.Context, tc *Context) (map[string]any, error) {
		return nil, fn(ctx, tc)
	})
}

// Context is what a handler sees: the task's scoped run context and its
// resolved inputs. Values set through SetEnv, SetOutput and SetSecret are
// visible to later tasks of the same run.
type Context struct {
	*execution.Context
	Task   *Task
	Inputs map[string]any

	report *execution.Context
}

// NewContext creates a handler context over scope. Values the handler
// reports are collected separately and returned by Reported.
func NewContext(scope *execution.Context, task *Task, inputs map[string]any) *Context {
	return &Context{
		Context: scope,
		Task:    task,
		Inputs:  inputs,
		report:  execution.NewContext(scope.Name, scope.Services),
	}
}

// Reported returns what the handler set through SetEnv, SetOutput and SetSecret.
func (c *Context) Reported() *execution.Context {
	return c.report
}

// Input returns the resolved input named key.
func (c *Context) Input(key string) (any, bool) {
	v, ok := c.Inputs[key]
	return v, ok
}

// InputString returns the input named key when it is a string.
func (c *Context) InputString(key string) string {
	s, _ := c.Inputs[key].(string)
	return s
}

func (c *Context) SetEnv(key, value string) {
	c.Env.Set(key, value)
	c.report.Env.Set(key, value)
}

func (c *Context) SetOutput(key string, value any) {
	c.Outputs.Set(key, value)
	c.report.Outputs.Set(key, value)
}

// SetSecret records a secret. It is masked and exported as an environment
// variable once the task finishes.
func (c *Context) SetSecret(key, value string) {
	c.AddSecret(key, value, nil)
	c.report.Secrets.Set(key, value)
}
