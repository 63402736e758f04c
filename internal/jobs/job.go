// Package jobs groups tasks into jobs and runs each job's tasks through a
// nested task orchestrator.
package jobs

import (
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/tasks"
)

// Job is a named group of tasks with its own dependencies.
type Job struct {
	id          string
	name        string
	description string
	needs       []string
	props       execution.Properties
	tasks       *tasks.Registry
	err         error // first error met while adding tasks
}

// Option configures a Job.
type Option func(*Job)

// New creates a job.
func New(id string, opts ...Option) *Job {
	j := &Job{
		id:    id,
		name:  id,
		props: execution.DefaultProperties(),
		tasks: graph.NewMap[*tasks.Task](),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) ID() string             { return j.id }
func (j *Job) Name() string           { return j.name }
func (j *Job) Description() string    { return j.description }
func (j *Job) Needs() []string        { return j.needs }
func (j *Job) Tasks() *tasks.Registry { return j.tasks }

// Properties returns the job's deferred properties.
func (j *Job) Properties() execution.Properties { return j.props }

// Err reports a task that could not be added, such as a duplicate id.
func (j *Job) Err() error { return j.err }

func WithName(name string) Option {
	return func(j *Job) { j.name = name }
}

func WithDescription(description string) Option {
	return func(j *Job) { j.description = description }
}

func WithNeeds(ids ...string) Option {
	return func(j *Job) { j.needs = append(j.needs, ids...) }
}

// WithTasks adds tasks to the job's own registry.
func WithTasks(ts ...*tasks.Task) Option {
	return func(j *Job) {
		for _, t := range ts {
			if err := j.tasks.Add(t); err != nil && j.err == nil {
				j.err = err
			}
		}
	}
}

// WithTimeout sets the timeout in seconds for the whole job.
func WithTimeout(v *execution.Deferred[int]) Option {
	return func(j *Job) { j.props.Timeout = v }
}

func WithEnv(v *execution.Deferred[map[string]string]) Option {
	return func(j *Job) { j.props.Env = v }
}

func WithInputs(v *execution.Deferred[map[string]any]) Option {
	return func(j *Job) { j.props.Inputs = v }
}

func WithCwd(v *execution.Deferred[string]) Option {
	return func(j *Job) { j.props.Cwd = v }
}

func WithForce(v *execution.Deferred[bool]) Option {
	return func(j *Job) { j.props.Force = v }
}

func WithIf(v *execution.Deferred[bool]) Option {
	return func(j *Job) { j.props.If = v }
}

// Registry is a case-insensitive, insertion-ordered map of jobs.
type Registry = graph.Map[*Job]

// NewRegistry creates a registry holding jobs in order.
func NewRegistry(jobs ...*Job) (*Registry, error) {
	r := graph.NewMap[*Job]()
	for _, j := range jobs {
		if err := r.Add(j); err != nil {
			return nil, err
		}
	}
	return r, nil
}
