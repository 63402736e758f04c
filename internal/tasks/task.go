// Package tasks defines tasks, their handlers and the engine that runs one
// task at a time.
package tasks

import (
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
)

// Task is the smallest runnable unit.
type Task struct {
	id          string
	name        string
	description string
	uses        string
	needs       []string
	props       execution.Properties
	handler     Handler
}

// Option configures a Task.
type Option func(*Task)

// New creates a task. Without a handler option the task is dispatched
// through the Handlers registry.
func New(id string, opts ...Option) *Task {
	t := &Task{
		id:    id,
		name:  id,
		props: execution.DefaultProperties(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) ID() string          { return t.id }
func (t *Task) Name() string        { return t.name }
func (t *Task) Description() string { return t.description }
func (t *Task) Uses() string        { return t.uses }
func (t *Task) Needs() []string     { return t.needs }
func (t *Task) Handler() Handler    { return t.handler }

// Properties returns the task's deferred properties. Engines clone them
// before resolving.
func (t *Task) Properties() execution.Properties { return t.props }

func WithName(name string) Option {
	return func(t *Task) { t.name = name }
}

func WithDescription(description string) Option {
	return func(t *Task) { t.description = description }
}

// WithUses names the registered handler to dispatch to instead of the task id.
func WithUses(uses string) Option {
	return func(t *Task) { t.uses = uses }
}

func WithNeeds(ids ...string) Option {
	return func(t *Task) { t.needs = append(t.needs, ids...) }
}

// WithTimeout sets the timeout in seconds.
func WithTimeout(v *execution.Deferred[int]) Option {
	return func(t *Task) { t.props.Timeout = v }
}

func WithEnv(v *execution.Deferred[map[string]string]) Option {
	return func(t *Task) { t.props.Env = v }
}

func WithInputs(v *execution.Deferred[map[string]any]) Option {
	return func(t *Task) { t.props.Inputs = v }
}

func WithCwd(v *execution.Deferred[string]) Option {
	return func(t *Task) { t.props.Cwd = v }
}

// WithForce lets the task run after an earlier item failed or was cancelled.
func WithForce(v *execution.Deferred[bool]) Option {
	return func(t *Task) { t.props.Force = v }
}

// WithIf gates the task; false skips it.
func WithIf(v *execution.Deferred[bool]) Option {
	return func(t *Task) { t.props.If = v }
}

func WithHandler(h Handler) Option {
	return func(t *Task) { t.handler = h }
}

// Registry is a case-insensitive, insertion-ordered map of tasks.
type Registry = graph.Map[*Task]

// NewRegistry creates a registry holding tasks in order.
func NewRegistry(tasks ...*Task) (*Registry, error) {
	r := graph.NewMap[*Task]()
	for _, t := range tasks {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
