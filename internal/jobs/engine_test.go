package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/tasks"
)

type topicLog struct {
	mu     sync.Mutex
	topics []string
}

func (l *topicLog) handle(e events.Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics = append(l.topics, e.Topic())
	return false
}

func newServices(t *testing.T) (*locator.Locator, *events.EventBus, *topicLog) {
	t.Helper()
	services := locator.New()
	bus := events.NewEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	log := &topicLog{}
	bus.Subscribe("job:*", log.handle)
	locator.Register(services, bus)
	return services, bus, log
}

func output(values map[string]any) tasks.Handler {
	return tasks.Func(func(context.Context, *tasks.Context) (map[string]any, error) {
		return values, nil
	})
}

func mustRegistry(t *testing.T, jobs ...*Job) *Registry {
	t.Helper()
	r, err := NewRegistry(jobs...)
	require.NoError(t, err)
	return r
}

func TestJobRepublishesTaskOutputs(t *testing.T) {
	services, bus, log := newServices(t)

	var seen any
	registry := mustRegistry(t,
		New("build",
			WithTasks(
				tasks.New("compile", tasks.WithHandler(output(map[string]any{"bin": "app"}))),
				tasks.New("test", tasks.WithNeeds("compile"), tasks.WithHandler(tasks.ActionContext(
					func(_ context.Context, tc *tasks.Context) error {
						tc.SetEnv("BUILD_ID", "42")
						return nil
					}))),
			),
		),
		New("deploy",
			WithNeeds("build"),
			WithTasks(tasks.New("push", tasks.WithHandler(tasks.ActionContext(
				func(_ context.Context, tc *tasks.Context) error {
					seen, _ = tc.Outputs.Get("job.build.task.compile")
					id, _ := tc.Env.Get("BUILD_ID")
					tc.SetOutput("pushed", id)
					return nil
				})))),
		),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil, "deploy")

	require.Equal(t, execution.StatusSuccess, summary.Status, "err: %v", summary.Err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "build", summary.Results[0].ID)
	assert.Equal(t, map[string]any{"bin": "app"}, seen)

	build := summary.Results[0]
	require.Len(t, build.Children, 2)
	assert.Equal(t, "compile", build.Children[0].ID)
	assert.Equal(t, execution.StatusSuccess, build.Children[1].Status)
	assert.Contains(t, build.Outputs, "task.compile")

	jobOut, ok := summary.Context.Outputs.Get("job.build")
	require.True(t, ok)
	assert.Contains(t, jobOut, "task.test")

	pushed, _ := summary.Context.Outputs.Get("pushed")
	assert.Equal(t, "42", pushed)
	assert.True(t, summary.Context.Outputs.Has("job.deploy.task.push"))
	assert.False(t, summary.Context.Outputs.Has("task.compile"), "raw task keys stay inside the job")

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{
		events.TopicJobStarted, events.TopicJobCompleted,
		events.TopicJobStarted, events.TopicJobCompleted,
	}, log.topics)
}

func TestFailedTaskFailsJobAndStopsRun(t *testing.T) {
	services, _, _ := newServices(t)
	registry := mustRegistry(t,
		New("build", WithTasks(
			tasks.New("compile", tasks.WithHandler(tasks.ActionErr(func() error { return errors.New("syntax error") }))),
		)),
		New("deploy", WithNeeds("build"), WithTasks(tasks.New("push", tasks.WithHandler(tasks.Action(func() {}))))),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil, "deploy")

	require.Len(t, summary.Results, 1)
	assert.Equal(t, execution.StatusFailed, summary.Results[0].Status)
	assert.Equal(t, execution.StatusFailed, summary.Status)
	assert.ErrorContains(t, summary.Err, "syntax error")
	require.Len(t, summary.Results[0].Children, 1)
}

func TestJobIfFalseSkips(t *testing.T) {
	services, bus, log := newServices(t)
	ran := false
	registry := mustRegistry(t,
		New("release",
			WithIf(execution.Literal(false)),
			WithTasks(tasks.New("tag", tasks.WithHandler(tasks.Action(func() { ran = true })))),
		),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, execution.StatusSkipped, summary.Results[0].Status)
	assert.Nil(t, summary.Results[0].Children)
	assert.False(t, ran)

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{events.TopicJobSkipped}, log.topics)
}

func TestJobEnvReachesTasks(t *testing.T) {
	services, _, _ := newServices(t)
	var target string
	registry := mustRegistry(t,
		New("build",
			WithEnv(execution.Literal(map[string]string{"GOOS": "linux"})),
			WithTasks(tasks.New("compile", tasks.WithHandler(tasks.ActionContext(
				func(_ context.Context, tc *tasks.Context) error {
					target, _ = tc.Env.Get("GOOS")
					return nil
				})))),
		),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil)

	require.Equal(t, execution.StatusSuccess, summary.Status)
	assert.Equal(t, "linux", target)
	assert.False(t, summary.Context.Env.Has("GOOS"), "job env stays scoped to the job")
}

func TestJobTimeoutCancels(t *testing.T) {
	services, _, _ := newServices(t)
	locator.Register(services, config.Execution{DefaultTimeout: config.Duration(50 * time.Millisecond)})

	registry := mustRegistry(t,
		New("hang", WithTasks(tasks.New("wait", tasks.WithTimeout(execution.Literal(60)), tasks.WithHandler(
			tasks.Func(func(ctx context.Context, _ *tasks.Context) (map[string]any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}))))),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, execution.StatusCancelled, summary.Results[0].Status)
	assert.Equal(t, execution.StatusCancelled, summary.Status)
	assert.ErrorIs(t, summary.Err, context.DeadlineExceeded)
}

func TestDuplicateTaskFailsJob(t *testing.T) {
	services, _, _ := newServices(t)
	registry := mustRegistry(t,
		New("build", WithTasks(tasks.New("a"), tasks.New("A"))),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, execution.StatusFailed, summary.Results[0].Status)
	assert.Error(t, summary.Err)
}

func TestJobSecretsReachLaterJobs(t *testing.T) {
	services, _, _ := newServices(t)
	var token string
	registry := mustRegistry(t,
		New("login", WithTasks(tasks.New("auth", tasks.WithHandler(tasks.ActionContext(
			func(_ context.Context, tc *tasks.Context) error {
				tc.SetSecret("registry.token", "t0k3n")
				return nil
			}))))),
		New("publish", WithNeeds("login"), WithTasks(tasks.New("upload", tasks.WithHandler(tasks.ActionContext(
			func(_ context.Context, tc *tasks.Context) error {
				token, _ = tc.Env.Get("REGISTRY_TOKEN")
				return nil
			}))))),
	)

	summary := NewOrchestrator(registry, services).Run(context.Background(), nil, "publish")

	require.Equal(t, execution.StatusSuccess, summary.Status)
	assert.Equal(t, "t0k3n", token)
	secret, _ := summary.Context.Secrets.Get("registry.token")
	assert.Equal(t, "t0k3n", secret)
}
