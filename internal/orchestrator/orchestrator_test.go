package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/locator"
)

type item struct {
	id    string
	needs []string
}

func (i item) ID() string      { return i.id }
func (i item) Needs() []string { return i.needs }

type fakeEngine struct {
	outcomes map[string]execution.Status
	ran      []string
	seen     []execution.Status
}

func (f *fakeEngine) Execute(_ context.Context, it item, step Step) Outcome {
	f.ran = append(f.ran, it.id)
	f.seen = append(f.seen, step.Status)

	status, ok := f.outcomes[it.id]
	if !ok {
		status = execution.StatusSuccess
	}
	result := &execution.Result{ID: it.id, Status: status, Outputs: map[string]any{"id": it.id}}
	if status == execution.StatusFailed {
		result.Err = errors.New(it.id + " broke")
	}

	reported := execution.NewContext(it.id, nil)
	reported.Env.Set("LAST", it.id)
	return Outcome{Result: result, Reported: reported}
}

type collected struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collected) handle(e events.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return false
}

func setup(t *testing.T, items ...item) (*graph.Map[item], *locator.Locator, *events.EventBus, *collected) {
	t.Helper()
	m := graph.NewMap[item]()
	for _, it := range items {
		require.NoError(t, m.Add(it))
	}
	bus := events.NewEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	got := &collected{}
	bus.Subscribe("tasks:*", got.handle)

	services := locator.New()
	locator.Register(services, bus)
	return m, services, bus, got
}

func TestRunOrderAndMerge(t *testing.T) {
	m, services, _, _ := setup(t,
		item{id: "a"},
		item{id: "b", needs: []string{"a"}},
		item{id: "unrelated"},
	)
	engine := &fakeEngine{}

	s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "B")

	assert.Equal(t, []string{"a", "b"}, engine.ran)
	assert.Equal(t, execution.StatusSuccess, s.Status)
	assert.NoError(t, s.Err)
	require.Len(t, s.Results, 2)

	last, _ := s.Context.Env.Get("LAST")
	assert.Equal(t, "b", last, "later items win on key collision")

	out, ok := s.Context.Outputs.Get("task.a")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": "a"}, out)
	assert.True(t, s.Reported.Outputs.Has("task.b"))
	assert.False(t, s.EndedAt.Before(s.StartedAt))
}

func TestRunWithoutTargetsRunsEverything(t *testing.T) {
	m, services, _, _ := setup(t, item{id: "x"}, item{id: "y"})
	engine := &fakeEngine{}

	New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil)

	assert.Equal(t, []string{"x", "y"}, engine.ran)
}

func TestRunStopsAtFailure(t *testing.T) {
	tests := []struct {
		name       string
		outcome    execution.Status
		wantStatus execution.Status
	}{
		{name: "failed", outcome: execution.StatusFailed, wantStatus: execution.StatusFailed},
		{name: "cancelled", outcome: execution.StatusCancelled, wantStatus: execution.StatusCancelled},
		{name: "skipped continues", outcome: execution.StatusSkipped, wantStatus: execution.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, services, _, _ := setup(t,
				item{id: "a"},
				item{id: "b", needs: []string{"a"}},
			)
			engine := &fakeEngine{outcomes: map[string]execution.Status{"a": tt.outcome}}

			s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "b")

			assert.Equal(t, tt.wantStatus, s.Status)
			if tt.outcome.Halted() {
				assert.Equal(t, []string{"a"}, engine.ran)
				assert.Error(t, s.Err)
				assert.False(t, s.Context.Outputs.Has("task.a"))
			} else {
				assert.Equal(t, []string{"a", "b"}, engine.ran)
			}
		})
	}
}

func TestCyclicalReferencesReportedAndRunContinues(t *testing.T) {
	m, services, bus, got := setup(t,
		item{id: "a", needs: []string{"b"}},
		item{id: "b", needs: []string{"a"}},
		item{id: "c"},
	)
	engine := &fakeEngine{}

	s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "c")

	assert.Equal(t, execution.StatusFailed, s.Status)
	assert.ErrorIs(t, s.Err, ErrCyclicalReferences)
	assert.Equal(t, []string{"c"}, engine.ran)
	assert.Equal(t, []execution.Status{execution.StatusFailed}, engine.seen, "engine sees the failed run status")

	require.NoError(t, bus.Close())
	require.Len(t, got.events, 1)
	cyc, ok := got.events[0].(events.CyclicalReferencesEvent)
	require.True(t, ok)
	assert.Equal(t, events.TopicTasksCyclicalReferences, cyc.Topic())
	assert.ElementsMatch(t, []string{"a", "b"}, cyc.IDs)
}

func TestMissingDependenciesReported(t *testing.T) {
	m, services, bus, got := setup(t,
		item{id: "a", needs: []string{"ghost"}},
		item{id: "b"},
	)

	s := New[item](m, &fakeEngine{}, events.TaskTopics, services).Run(context.Background(), nil, "b")

	assert.Equal(t, execution.StatusFailed, s.Status)
	assert.ErrorIs(t, s.Err, ErrMissingDependencies)
	assert.ErrorContains(t, s.Err, "a needs ghost")

	require.NoError(t, bus.Close())
	require.Len(t, got.events, 1)
	missing, ok := got.events[0].(events.MissingDependenciesEvent)
	require.True(t, ok)
	assert.Equal(t, map[string][]string{"a": {"ghost"}}, missing.Missing)
}

func TestBothDiagnosticsReported(t *testing.T) {
	m, services, bus, got := setup(t,
		item{id: "a", needs: []string{"a"}},
		item{id: "b", needs: []string{"ghost"}},
	)

	s := New[item](m, &fakeEngine{}, events.TaskTopics, services).Run(context.Background(), nil, "a")

	assert.ErrorIs(t, s.Err, ErrCyclicalReferences, "first diagnostic is kept")

	require.NoError(t, bus.Close())
	topics := make([]string, len(got.events))
	for i, e := range got.events {
		topics[i] = e.Topic()
	}
	assert.Equal(t, []string{events.TopicTasksCyclicalReferences, events.TopicTasksMissingDependencies}, topics)
}

func TestFlattenFailureAbortsRun(t *testing.T) {
	m, services, _, _ := setup(t, item{id: "a", needs: []string{"ghost"}})
	engine := &fakeEngine{}

	s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "a")

	assert.Empty(t, engine.ran)
	assert.Equal(t, execution.StatusFailed, s.Status)
}

func TestUnknownTarget(t *testing.T) {
	m, services, _, _ := setup(t, item{id: "a"})
	engine := &fakeEngine{}

	s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "nope")

	assert.ErrorIs(t, s.Err, graph.ErrNotFound)
	assert.Empty(t, engine.ran)
}

func TestFailedIsNotDowngraded(t *testing.T) {
	m, services, _, _ := setup(t,
		item{id: "a"},
		item{id: "b", needs: []string{"ghost"}},
	)
	engine := &fakeEngine{outcomes: map[string]execution.Status{"a": execution.StatusCancelled}}

	s := New[item](m, engine, events.TaskTopics, services).Run(context.Background(), nil, "a")

	assert.Equal(t, execution.StatusFailed, s.Status)
}

func TestTrackerPublishesTransitions(t *testing.T) {
	bus := events.NewEventBus()
	var topics []string
	bus.Subscribe("task:*", func(e events.Event) bool {
		topics = append(topics, e.Topic())
		return false
	})

	tr := NewTracker("build", "Build", events.TaskTopics, bus, nil)
	tr.Inputs = map[string]any{"target": "linux"}
	tr.Start()
	tr.Ok(map[string]any{"out": 1})

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{events.TopicTaskStarted, events.TopicTaskCompleted}, topics)

	r := tr.Result()
	assert.Equal(t, "build", r.ID)
	assert.Equal(t, execution.StatusSuccess, r.Status)
}

func TestTrackerWithoutBus(t *testing.T) {
	tr := NewTracker("a", "a", events.JobTopics, nil, nil)
	tr.Skip()
	assert.Equal(t, execution.StatusSkipped, tr.Result().Status)
}
