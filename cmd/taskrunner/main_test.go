package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/jobs"
	"github.com/aristath/taskrunner/internal/tasks"
)

// isolate points config lookups at an empty temporary home and project.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("PUBLISH", "")
	t.Setenv("SKIP_LINT", "")
	t.Setenv("APP_VERSION", "")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Version:    "+Version)
}

func TestListOrdersDependenciesFirst(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "list", "--no-color")
	require.Equal(t, 0, code)

	version := strings.Index(out, "version: Pick the build version")
	build := strings.Index(out, "build (Build) <- version")
	test := strings.Index(out, "test (Test) <- build")
	require.True(t, version >= 0 && build >= 0 && test >= 0, out)
	assert.Less(t, version, build)
	assert.Less(t, build, test)
	assert.Contains(t, out, "info: Print the build host [uses system-info]")
}

func TestListJobs(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "list", "--jobs", "--no-color")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "release (Release) <- ci")
	assert.Contains(t, out, "  publish [uses publish]")
}

func TestRunTasks(t *testing.T) {
	isolate(t)
	code, out, stderr := runCLI(t, "run", "--no-color", "--log-level", "error", "test")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, out, "+ task version")
	assert.Contains(t, out, "+ task build ")
	assert.Contains(t, out, "+ task test ")
	assert.NotContains(t, out, "task lint", "only the target and what it needs run")
	assert.Contains(t, out, "= success in")
}

func TestRunJobs(t *testing.T) {
	tests := []struct {
		name    string
		publish string
		want    []string
	}{
		{
			name:    "release skipped without PUBLISH",
			publish: "",
			want:    []string{"+ job ci (Continuous integration)", "- job release skipped"},
		},
		{
			name:    "release publishes the ci artifact",
			publish: "1",
			want:    []string{"+ job release ", "published:dist/app-1.2.3.tar.gz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("PUBLISH", tt.publish)
			t.Setenv("APP_VERSION", "1.2.3")

			code, out, stderr := runCLI(t, "run", "--jobs", "--verbose", "--no-color", "--log-level", "error")
			require.Equal(t, 0, code, stderr)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestRunFailureSetsExitCode(t *testing.T) {
	isolate(t)
	registries := func(*tasks.Handlers) (*tasks.Registry, *jobs.Registry, error) {
		tr, err := tasks.NewRegistry(
			tasks.New("broken", tasks.WithHandler(tasks.ActionErr(func() error { return errors.New("boom") }))),
			tasks.New("after", tasks.WithNeeds("broken"), tasks.WithHandler(tasks.Action(func() {}))),
		)
		if err != nil {
			return nil, nil, err
		}
		jr, err := jobs.NewRegistry()
		return tr, jr, err
	}

	var stdout bytes.Buffer
	root := newRootCmd(registries)
	root.SetArgs([]string{"run", "--no-color", "--log-level", "error"})
	root.SetOut(&stdout)

	err := root.ExecuteContext(context.Background())
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, stdout.String(), "x task broken failed: boom")
	assert.NotContains(t, stdout.String(), "task after")
}

func TestUnknownTargetFails(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "run", "--no-color", "--log-level", "error", "ghost")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "= failed")
}

func TestPlanned(t *testing.T) {
	tr, jr, err := defaultRegistries(tasks.NewHandlers(nil))
	require.NoError(t, err)

	assert.Equal(t, 3, planned(false, tr, jr, []string{"test"}))
	assert.Equal(t, 5, planned(false, tr, jr, nil))
	assert.Equal(t, 1+5+1+1, planned(true, tr, jr, []string{"release"}))
	assert.Zero(t, planned(false, tr, jr, []string{"ghost"}))
}
