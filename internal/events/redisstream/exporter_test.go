package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/secrets"
)

// recordingClient captures XAdd calls. Every other method panics.
type recordingClient struct {
	redis.Cmdable
	adds []*redis.XAddArgs
	err  error
}

func (c *recordingClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	c.adds = append(c.adds, a)
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	return redis.NewStringResult("1-0", nil)
}

func decode(t *testing.T, a *redis.XAddArgs) Record {
	t.Helper()
	values, ok := a.Values.(map[string]interface{})
	require.True(t, ok)
	var r Record
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &r))
	return r
}

func TestNewRecord(t *testing.T) {
	now := time.Now()
	r := NewRecord(events.ItemEvent{
		Type: events.TopicTaskFailed, Kind: "task", ID: "build", Status: "failed",
		Err: errors.New("exit 1"), StartedAt: now.Add(-2 * time.Second), EndedAt: now, At: now,
	})
	assert.Equal(t, "task:failed", r.Topic)
	assert.Equal(t, "exit 1", r.Error)
	assert.Equal(t, int64(2000), r.DurationMS)
	assert.Empty(t, r.Severity)

	r = NewRecord(events.MissingDependenciesEvent{Type: events.TopicTasksMissingDependencies, Missing: map[string][]string{"a": {"x"}}})
	assert.Equal(t, []string{"x"}, r.Missing["a"])
	assert.Equal(t, "error", r.Severity)
}

func TestExportMasksSecrets(t *testing.T) {
	masker := secrets.NewList()
	masker.Add("s3cret")
	client := &recordingClient{}
	x := New(client, "taskrunner:events", masker, nil)

	err := x.Export(context.Background(), events.ItemEvent{
		Type: events.TopicTaskCompleted, Kind: "task", ID: "login", Status: "success",
		Outputs: map[string]any{"token": "s3cret"},
	})
	require.NoError(t, err)
	require.Len(t, client.adds, 1)

	a := client.adds[0]
	assert.Equal(t, "taskrunner:events", a.Stream)
	assert.True(t, a.Approx)
	assert.Equal(t, "***", decode(t, a).Outputs["token"])
}

func TestRunDrainsUntilClosed(t *testing.T) {
	client := &recordingClient{err: errors.New("connection refused")}
	x := New(client, "s", nil, nil)

	ch := make(chan events.Event, 2)
	ch <- events.Diagnostic(events.SeverityInfo, "one", nil)
	ch <- events.Diagnostic(events.SeverityInfo, "two", nil)
	close(ch)

	require.NoError(t, x.Run(context.Background(), ch))
	assert.Len(t, client.adds, 2, "export errors do not stop the loop")
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(&recordingClient{}, "s", nil, nil).Run(ctx, make(chan events.Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportLive(t *testing.T) {
	addr := os.Getenv("TASKRUNNER_TEST_REDIS")
	if addr == "" {
		t.Skip("TASKRUNNER_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	stream := "taskrunner:test:" + time.Now().Format("150405.000000")
	defer client.Del(ctx, stream)

	x := New(client, stream, nil, nil)
	require.NoError(t, x.Export(ctx, events.Diagnostic(events.SeverityWarning, "hello", nil)))

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, events.TopicDiagnostics, entries[0].Values["topic"])
}
