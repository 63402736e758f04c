package jobs

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/orchestrator"
	"github.com/aristath/taskrunner/internal/pipeline"
	"github.com/aristath/taskrunner/internal/tasks"
)

// Run is the state of one job execution as it moves through the pipeline.
type Run struct {
	Job      *Job
	Props    execution.Properties
	Resolved execution.Resolved
	Scope    *execution.Context
	Report   *execution.Context
	Status   execution.Status
	Tracker  *orchestrator.Tracker
	Tasks    *execution.Summary // nested task run, nil until the job starts
}

// PipelineFactory builds the job pipeline from the engine's default stages,
// innermost first.
type PipelineFactory func(stages ...pipeline.Middleware[*Run]) *pipeline.Pipeline[*Run]

// Engine executes one job: context application wrapping a nested task run.
type Engine struct {
	pipeline *pipeline.Pipeline[*Run]
	services *locator.Locator
	tasks    *tasks.Engine
	bus      *events.EventBus
	defaults config.Execution
	logger   *zap.Logger
}

// NewEngine creates a job engine and the task engine it runs job tasks with.
func NewEngine(services *locator.Locator) *Engine {
	bus, _ := locator.Get[*events.EventBus](services)

	e := &Engine{
		services: services,
		tasks:    tasks.NewEngine(services),
		bus:      bus,
		defaults: locator.GetOr(services, config.DefaultExecution()),
		logger:   locator.GetOr(services, zap.NewNop()),
	}
	if e.defaults.DefaultTimeout <= 0 {
		e.defaults = config.DefaultExecution()
	}

	build := locator.GetOr[PipelineFactory](services, pipeline.New[*Run])
	e.pipeline = build(e.runStage, e.applyStage)
	return e
}

// Execute runs job and reports its result. It never panics.
func (e *Engine) Execute(ctx context.Context, job *Job, step orchestrator.Step) orchestrator.Outcome {
	parent := step.Parent
	if parent == nil {
		parent = execution.NewContext(job.ID(), e.services)
	}

	run := &Run{
		Job:     job,
		Props:   job.Properties().Clone(),
		Scope:   parent.Clone(job.ID()),
		Report:  execution.NewContext(job.ID(), parent.Services),
		Status:  step.Status,
		Tracker: orchestrator.NewTracker(job.ID(), job.Name(), events.JobTopics, e.bus, e.logger),
	}

	err := e.pipeline.Run(ctx, run)
	if !run.Tracker.State.Status().IsTerminal() {
		switch {
		case err != nil && ctx.Err() != nil:
			run.Tracker.Cancel(err)
		case err != nil:
			run.Tracker.Fail(err)
		default:
			run.Tracker.Fail(errors.New("pipeline finished without running the job"))
		}
	}

	result := run.Tracker.Result()
	if run.Tasks != nil {
		result.Children = run.Tasks.Results
	}
	return orchestrator.Outcome{Result: result, Reported: run.Report}
}

func (e *Engine) applyStage(ctx context.Context, run *Run, next pipeline.Next) error {
	if err := run.Job.Err(); err != nil {
		run.Tracker.Fail(err)
		return nil
	}

	resolved, err := run.Props.Resolve(ctx, run.Scope)
	if err != nil {
		run.Tracker.Fail(err)
		return nil
	}

	run.Resolved = resolved
	run.Tracker.Inputs = resolved.Inputs
	resolved.Apply(run.Scope)

	return next(ctx)
}

// runStage applies the cancel, force and if rules, then runs every task of
// the job under the job's timeout.
func (e *Engine) runStage(ctx context.Context, run *Run, _ pipeline.Next) error {
	t := run.Tracker

	if err := ctx.Err(); err != nil {
		t.Cancel(err)
		return nil
	}
	if run.Status.Halted() && !run.Resolved.Force {
		t.Skip()
		return nil
	}
	if !run.Resolved.If {
		t.Skip()
		return nil
	}

	timeout := run.Resolved.EffectiveTimeout(e.defaults.DefaultTimeout.Std())
	scope, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.Start()
	nested := orchestrator.New[*tasks.Task](run.Job.Tasks(), e.tasks, events.TaskTopics, e.services)
	run.Tasks = nested.Run(scope, run.Scope)

	switch run.Tasks.Status {
	case execution.StatusCancelled:
		t.Cancel(run.Tasks.Err)
	case execution.StatusFailed:
		t.Fail(run.Tasks.Err)
	default:
		t.Ok(e.promote(run))
	}
	return nil
}

// promote moves what the job's tasks reported into the job's report. Task
// outputs are re-keyed from "task.<id>" to "job.<job>.task.<id>"; the
// returned map holds them under their task keys.
func (e *Engine) promote(run *Run) map[string]any {
	reported := run.Tasks.Reported
	prefix := "job." + graph.Normalize(run.Job.ID()) + "."

	run.Report.Env.Merge(reported.Env)
	reported.Secrets.Each(func(k, v string) {
		run.Report.Secrets.Set(k, v)
	})

	outputs := make(map[string]any)
	reported.Outputs.Each(func(k string, v any) {
		if strings.HasPrefix(strings.ToLower(k), "task.") {
			run.Report.Outputs.Set(prefix+k, v)
			outputs[k] = v
			return
		}
		run.Report.Outputs.Set(k, v)
	})
	return outputs
}

// NewOrchestrator creates an orchestrator over registry backed by a job engine.
func NewOrchestrator(registry *Registry, services *locator.Locator) *orchestrator.Orchestrator[*Job] {
	return orchestrator.New[*Job](registry, NewEngine(services), events.JobTopics, services)
}
