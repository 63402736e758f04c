package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/events"
)

func item(topic, kind, status string, started bool) events.ItemEvent {
	e := events.ItemEvent{Type: topic, Kind: kind, ID: "x", Status: status, At: time.Now()}
	if started {
		e.StartedAt = time.Now().Add(-time.Second)
		e.EndedAt = time.Now()
	}
	return e
}

func TestObserveItems(t *testing.T) {
	c := NewCollector()

	c.Observe(item(events.TopicTaskStarted, events.KindTask, "running", true))
	c.Observe(item(events.TopicTaskCompleted, events.KindTask, "success", true))
	c.Observe(item(events.TopicTaskStarted, events.KindTask, "running", true))
	c.Observe(item(events.TopicTaskFailed, events.KindTask, "failed", true))
	c.Observe(item(events.TopicTaskSkipped, events.KindTask, "skipped", false))
	c.Observe(item(events.TopicJobStarted, events.KindJob, "running", true))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.itemsStarted.WithLabelValues(events.KindTask)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsFinished.WithLabelValues(events.KindTask, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsFinished.WithLabelValues(events.KindTask, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsFinished.WithLabelValues(events.KindTask, "skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.itemsActive.WithLabelValues(events.KindTask)), "a skip that never started does not change active")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsActive.WithLabelValues(events.KindJob)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.itemDuration))
}

func TestObserveDiagnostics(t *testing.T) {
	c := NewCollector()

	c.Observe(events.CyclicalReferencesEvent{Type: events.TopicTasksCyclicalReferences, IDs: []string{"a"}})
	c.Observe(events.Diagnostic(events.SeverityWarning, "careful", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.diagnostics.WithLabelValues(events.TopicTasksCyclicalReferences, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.diagnostics.WithLabelValues(events.TopicDiagnostics, "warning")))
}

func TestAttachAndHandler(t *testing.T) {
	bus := events.NewEventBus()
	c := NewCollector()
	c.Attach(bus)

	require.NoError(t, bus.Send(item(events.TopicJobCompleted, events.KindJob, "success", true)))
	require.NoError(t, bus.Close())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `taskrunner_items_finished_total{kind="job",status="success"} 1`), body)
}
