package reporter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/secrets"
)

func TestConsoleItems(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{
			name:  "success",
			event: events.ItemEvent{Kind: "task", ID: "build", Status: "success", StartedAt: now.Add(-1500 * time.Millisecond), EndedAt: now},
			want:  "+ task build 1.5s\n",
		},
		{
			name:  "failed",
			event: events.ItemEvent{Kind: "job", ID: "deploy", Status: "failed", Err: errors.New("exit 2")},
			want:  "x job deploy failed: exit 2\n",
		},
		{
			name:  "skipped with display name",
			event: events.ItemEvent{Kind: "task", ID: "lint", Name: "Lint sources", Status: "skipped"},
			want:  "- task lint (Lint sources) skipped\n",
		},
		{
			name:  "name differing only in case is hidden",
			event: events.ItemEvent{Kind: "job", ID: "release", Name: "Release", Status: "skipped"},
			want:  "- job release skipped\n",
		},
		{
			name:  "cancelled",
			event: events.ItemEvent{Kind: "task", ID: "test", Status: "cancelled"},
			want:  "~ task test cancelled\n",
		},
		{
			name:  "started is quiet",
			event: events.ItemEvent{Kind: "task", ID: "test", Status: "running"},
			want:  "",
		},
		{
			name:  "cycle",
			event: events.CyclicalReferencesEvent{Type: events.TopicTasksCyclicalReferences, IDs: []string{"a", "b"}},
			want:  "! tasks:cyclical-references: a, b\n",
		},
		{
			name:  "missing",
			event: events.MissingDependenciesEvent{Type: events.TopicJobsMissingDependencies, Missing: map[string][]string{"b": {"y"}, "a": {"x", "z"}}},
			want:  "! jobs:missing-dependencies: a needs x, z; b needs y\n",
		},
		{
			name:  "diagnostic",
			event: events.Diagnostic(events.SeverityWarning, "slow", nil),
			want:  "* [warning] slow\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewConsole(&buf, nil, WithColor(false)).Handle(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestConsoleMasksSecrets(t *testing.T) {
	masker := secrets.NewList()
	masker.Add("hunter2")

	var buf bytes.Buffer
	c := NewConsole(&buf, masker, WithColor(false), WithVerbose(true))
	c.Handle(events.ItemEvent{Kind: "task", ID: "login", Status: "failed", Err: errors.New("bad password hunter2")})
	c.Handle(events.ItemEvent{Kind: "task", ID: "login", Status: "success", Outputs: map[string]any{"token": "hunter2"}})

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "bad password ***")
	assert.Contains(t, out, "    token = ***\n")
}

func TestConsoleAttach(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewEventBus()
	NewConsole(&buf, nil, WithColor(false), WithVerbose(true)).Attach(bus)

	require.NoError(t, bus.Send(events.ItemEvent{Type: events.TopicTaskStarted, Kind: "task", ID: "a", Status: "running"}))
	require.NoError(t, bus.Close())

	assert.Equal(t, "> task a started\n", buf.String())
}

func TestConsoleSummary(t *testing.T) {
	var buf bytes.Buffer
	start := time.Now()
	NewConsole(&buf, nil, WithColor(false)).Summary(&execution.Summary{
		Status:    execution.StatusFailed,
		Err:       errors.New(`task "b": boom`),
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Second),
		Results: []*execution.Result{
			{ID: "a", Status: execution.StatusSuccess},
			{ID: "b", Status: execution.StatusFailed},
		},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "= failed in 2s: 1 succeeded, 1 failed, 0 skipped, 0 cancelled", lines[0])
	assert.Equal(t, `  task "b": boom`, strings.TrimRight(lines[1], " "))
}
