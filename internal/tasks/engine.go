package tasks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/orchestrator"
	"github.com/aristath/taskrunner/internal/pipeline"
)

// ErrPanic marks a failure caused by a panicking handler.
var ErrPanic = errors.New("handler panicked")

// Run is the state of one task execution as it moves through the pipeline.
type Run struct {
	Task     *Task
	Props    execution.Properties // per-run copy of the task's properties
	Resolved execution.Resolved
	Scope    *execution.Context // what the handler sees
	Report   *execution.Context // what is merged back into the run
	Status   execution.Status   // orchestrator status before this task
	Tracker  *orchestrator.Tracker
}

func (r *Run) handlerContext() *Context {
	return &Context{
		Context: r.Scope,
		Task:    r.Task,
		Inputs:  r.Resolved.Inputs,
		report:  r.Report,
	}
}

// PipelineFactory builds the task pipeline from the engine's default stages,
// which are passed innermost first. Register one in the service locator to
// add or replace stages.
type PipelineFactory func(stages ...pipeline.Middleware[*Run]) *pipeline.Pipeline[*Run]

// Engine executes one task through a two-stage pipeline: context
// application wrapping execution.
type Engine struct {
	pipeline *pipeline.Pipeline[*Run]
	services *locator.Locator
	bus      *events.EventBus
	handlers *Handlers
	defaults config.Execution
	logger   *zap.Logger
}

// NewEngine creates a task engine. The event bus, handler registry, execution
// defaults, logger and pipeline factory are looked up in services.
func NewEngine(services *locator.Locator) *Engine {
	bus, _ := locator.Get[*events.EventBus](services)
	handlers, _ := locator.Get[*Handlers](services)

	e := &Engine{
		services: services,
		bus:      bus,
		handlers: handlers,
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

// Execute runs task and reports its result. It never panics.
func (e *Engine) Execute(ctx context.Context, task *Task, step orchestrator.Step) orchestrator.Outcome {
	parent := step.Parent
	if parent == nil {
		parent = execution.NewContext(task.ID(), e.services)
	}

	run := &Run{
		Task:    task,
		Props:   task.Properties().Clone(),
		Scope:   parent.Clone(task.ID()),
		Report:  execution.NewContext(task.ID(), parent.Services),
		Status:  step.Status,
		Tracker: orchestrator.NewTracker(task.ID(), task.Name(), events.TaskTopics, e.bus, e.logger),
	}

	err := e.pipeline.Run(ctx, run)
	if !run.Tracker.State.Status().IsTerminal() {
		switch {
		case err != nil && ctx.Err() != nil:
			run.Tracker.Cancel(err)
		case err != nil:
			run.Tracker.Fail(err)
		default:
			run.Tracker.Fail(errors.New("pipeline finished without running the task"))
		}
	}

	return orchestrator.Outcome{Result: run.Tracker.Result(), Reported: run.Report}
}

// applyStage resolves the task's properties against its scoped context.
func (e *Engine) applyStage(ctx context.Context, run *Run, next pipeline.Next) error {
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

// runStage applies the cancel, force and if rules, then invokes the handler
// under the task's timeout.
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
	outputs, err := e.invoke(scope, run)

	switch {
	case err == nil:
		t.Ok(outputs)
	case scope.Err() != nil:
		t.Cancel(err)
	default:
		t.Fail(err)
	}
	return nil
}

func (e *Engine) invoke(ctx context.Context, run *Run) (outputs map[string]any, err error) {
	h := run.Task.Handler()
	if h == nil {
		if h, err = e.handlers.For(run.Task); err != nil {
			return nil, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task handler panicked",
				zap.String("task", run.Task.ID()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return h.Handle(ctx, run.handlerContext())
}

// NewOrchestrator creates an orchestrator over registry backed by a task engine.
func NewOrchestrator(registry *Registry, services *locator.Locator) *orchestrator.Orchestrator[*Task] {
	return orchestrator.New[*Task](registry, NewEngine(services), events.TaskTopics, services)
}
