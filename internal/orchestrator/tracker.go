package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
)

// Tracker moves one task or job through its State and publishes an
// ItemEvent for every transition.
type Tracker struct {
	State  execution.State
	ID     string
	Name   string
	Inputs map[string]any

	topics events.Topics
	bus    *events.EventBus
	logger *zap.Logger
}

// NewTracker creates a Tracker. bus may be nil.
func NewTracker(id, name string, topics events.Topics, bus *events.EventBus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		ID:     id,
		Name:   name,
		topics: topics,
		bus:    bus,
		logger: logger.With(zap.String(topics.Kind, id)),
	}
}

func (t *Tracker) Start() {
	t.State.Start()
	t.logger.Debug("started")
	t.publish(t.topics.Started)
}

func (t *Tracker) Ok(outputs map[string]any) {
	t.State.Ok(outputs)
	t.logger.Debug("completed", zap.Duration("duration", t.State.EndedAt().Sub(t.State.StartedAt())))
	t.publish(t.topics.Completed)
}

func (t *Tracker) Fail(err error) {
	t.State.Fail(err)
	t.logger.Warn("failed", zap.Error(err))
	t.publish(t.topics.Failed)
}

func (t *Tracker) Skip() {
	t.State.Skip()
	t.logger.Debug("skipped")
	t.publish(t.topics.Skipped)
}

func (t *Tracker) Cancel(err error) {
	t.State.Cancel(err)
	t.logger.Warn("cancelled", zap.Error(err))
	t.publish(t.topics.Cancelled)
}

// Result snapshots the tracked state.
func (t *Tracker) Result() *execution.Result {
	return t.State.Result(t.ID)
}

func (t *Tracker) publish(topic string) {
	if t.bus == nil {
		return
	}
	e := events.ItemEvent{
		Type:      topic,
		Kind:      t.topics.Kind,
		ID:        t.ID,
		Name:      t.Name,
		Status:    t.State.Status().String(),
		Inputs:    t.Inputs,
		Outputs:   t.State.Outputs(),
		Err:       t.State.Err(),
		StartedAt: t.State.StartedAt(),
		EndedAt:   t.State.EndedAt(),
		At:        time.Now(),
	}
	if err := t.bus.Send(e); err != nil {
		t.logger.Debug("event not sent", zap.String("topic", topic), zap.Error(err))
	}
}
