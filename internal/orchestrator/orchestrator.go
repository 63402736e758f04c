// Package orchestrator runs a selection of tasks or jobs one at a time in
// dependency order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/secrets"
)

var (
	ErrCyclicalReferences  = errors.New("cyclical references")
	ErrMissingDependencies = errors.New("missing dependencies")
)

// Step is what an Engine needs to know about the run an item belongs to.
type Step struct {
	Parent *execution.Context // running context; engines clone it, never write to it
	Status execution.Status   // run status before this item
}

// Outcome is what an Engine hands back for one item.
type Outcome struct {
	Result   *execution.Result
	Reported *execution.Context // env, secrets and outputs to merge forward, may be nil
}

// Engine executes one item. Failures are reported through the Outcome, never
// returned or panicked.
type Engine[T graph.Node] interface {
	Execute(ctx context.Context, item T, step Step) Outcome
}

// Orchestrator is a sequential multi-target runner over a registry.
type Orchestrator[T graph.Node] struct {
	items    *graph.Map[T]
	engine   Engine[T]
	topics   events.Topics
	services *locator.Locator
	bus      *events.EventBus
	masker   secrets.Masker
	logger   *zap.Logger
}

// New creates an orchestrator. The event bus, secret masker and logger are
// looked up in services; each is optional.
func New[T graph.Node](items *graph.Map[T], engine Engine[T], topics events.Topics, services *locator.Locator) *Orchestrator[T] {
	bus, _ := locator.Get[*events.EventBus](services)
	masker, _ := locator.Get[secrets.Masker](services)
	return &Orchestrator[T]{
		items:    items,
		engine:   engine,
		topics:   topics,
		services: services,
		bus:      bus,
		masker:   masker,
		logger:   locator.GetOr(services, zap.NewNop()),
	}
}

// Items returns the registry the orchestrator runs over.
func (o *Orchestrator[T]) Items() *graph.Map[T] {
	return o.items
}

// Run validates the registry, flattens targets with their dependencies and
// executes them in order. With no targets every registered item is a target.
// Run always returns a summary; errors are reported in it.
func (o *Orchestrator[T]) Run(ctx context.Context, parent *execution.Context, targets ...string) *execution.Summary {
	if parent == nil {
		parent = execution.NewContext(o.topics.Kind, o.services)
	}

	s := &execution.Summary{
		RunID:     uuid.NewString(),
		Status:    execution.StatusSuccess,
		Context:   parent.Clone(parent.Name),
		Reported:  execution.NewContext(parent.Name, parent.Services),
		StartedAt: time.Now(),
	}
	defer func() { s.EndedAt = time.Now() }()

	logger := o.logger.With(zap.String("run_id", s.RunID), zap.String("kind", o.topics.Kind))

	// Both diagnostics are reported independently and neither aborts the run.
	if cyclic := o.items.DetectCyclicalReferences(); len(cyclic) > 0 {
		ids := idsOf(cyclic)
		halt(s, execution.StatusFailed, fmt.Errorf("%w: %s", ErrCyclicalReferences, strings.Join(ids, ", ")))
		o.send(logger, events.CyclicalReferencesEvent{Type: o.topics.Cyclical, IDs: ids, At: time.Now()})
		logger.Error("cyclical references", zap.Strings("ids", ids))
	}

	if missing := o.items.DetectMissingDependencies(); len(missing) > 0 {
		byID := make(map[string][]string, len(missing))
		for _, m := range missing {
			byID[m.Item.ID()] = m.IDs
		}
		halt(s, execution.StatusFailed, fmt.Errorf("%w: %s", ErrMissingDependencies, describeMissing(byID)))
		o.send(logger, events.MissingDependenciesEvent{Type: o.topics.Missing, Missing: byID, At: time.Now()})
		logger.Error("missing dependencies", zap.Any("missing", byID))
	}

	if len(targets) == 0 {
		targets = o.items.Keys()
	}

	roots, err := o.items.Resolve(targets)
	if err != nil {
		halt(s, execution.StatusFailed, err)
		logger.Error("resolving targets", zap.Error(err))
		return s
	}

	ordered, err := o.items.Flatten(roots)
	if err != nil {
		halt(s, execution.StatusFailed, err)
		logger.Error("flattening targets", zap.Error(err))
		return s
	}

	logger.Debug("run planned", zap.Strings("order", idsOf(ordered)))

	for _, item := range ordered {
		out := o.engine.Execute(ctx, item, Step{Parent: s.Context, Status: s.Status})
		if out.Result == nil {
			out.Result = &execution.Result{ID: item.ID(), Status: execution.StatusFailed, Err: errors.New("engine returned no result")}
		}
		o.merge(s, item.ID(), out)

		if out.Result.Status.Halted() {
			err := out.Result.Err
			if err == nil {
				err = errors.New(out.Result.Status.String())
			}
			halt(s, out.Result.Status, fmt.Errorf("%s %q: %w", o.topics.Kind, item.ID(), err))
			break
		}
	}

	return s
}

// merge folds one item's outcome into the summary and running context.
// Later items win on key collision.
func (o *Orchestrator[T]) merge(s *execution.Summary, id string, out Outcome) {
	s.Results = append(s.Results, out.Result)

	if out.Reported != nil {
		s.Context.Absorb(out.Reported, o.masker)
		s.Reported.Absorb(out.Reported, o.masker)
	}

	if out.Result.Status == execution.StatusSuccess {
		key := o.topics.Kind + "." + graph.Normalize(id)
		s.Context.Outputs.Set(key, out.Result.Outputs)
		s.Reported.Outputs.Set(key, out.Result.Outputs)
	}
}

func (o *Orchestrator[T]) send(logger *zap.Logger, e events.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Send(e); err != nil {
		logger.Debug("event not sent", zap.String("topic", e.Topic()), zap.Error(err))
	}
}

// halt records a failing status. Failed is never downgraded and the first
// error is kept.
func halt(s *execution.Summary, status execution.Status, err error) {
	if s.Status != execution.StatusFailed {
		s.Status = status
	}
	if s.Err == nil {
		s.Err = err
	}
}

func idsOf[T graph.Node](items []T) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID()
	}
	return ids
}

func describeMissing(byID map[string][]string) string {
	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s needs %s", k, strings.Join(byID[k], ", "))
	}
	return strings.Join(parts, "; ")
}
