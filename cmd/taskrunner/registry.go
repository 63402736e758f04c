package main

import (
	"context"
	"fmt"

	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/jobs"
	"github.com/aristath/taskrunner/internal/shell"
	"github.com/aristath/taskrunner/internal/tasks"
)

// defaultRegistries is the built-in example project: a versioned build that
// is tested, linted and optionally published.
func defaultRegistries(handlers *tasks.Handlers) (*tasks.Registry, *jobs.Registry, error) {
	handlers.Register("system-info", shell.Command("uname", "-a"))
	handlers.Register("publish", tasks.Func(publish))

	taskRegistry, err := tasks.NewRegistry(buildTasks()...)
	if err != nil {
		return nil, nil, err
	}

	jobRegistry, err := jobs.NewRegistry(
		jobs.New("ci",
			jobs.WithName("Continuous integration"),
			jobs.WithTasks(buildTasks()...),
		),
		jobs.New("release",
			jobs.WithName("Release"),
			jobs.WithNeeds("ci"),
			jobs.WithIf(envEquals("PUBLISH", "1")),
			jobs.WithTasks(
				tasks.New("publish",
					tasks.WithUses("publish"),
					tasks.WithInputs(execution.Bind(func(c *execution.Context) map[string]any {
						artifact, _ := c.Outputs.Get("artifact")
						return map[string]any{"artifact": artifact}
					})),
				),
			),
		),
	)
	if err != nil {
		return nil, nil, err
	}
	return taskRegistry, jobRegistry, nil
}

// buildTasks returns fresh task definitions so each registry owns its own.
func buildTasks() []*tasks.Task {
	return []*tasks.Task{
		tasks.New("version",
			tasks.WithDescription("Pick the build version"),
			tasks.WithHandler(tasks.ActionContext(func(_ context.Context, tc *tasks.Context) error {
				version := Version
				if v, ok := tc.Env.Get("APP_VERSION"); ok && v != "" {
					version = v
				}
				tc.SetEnv("APP_VERSION", version)
				tc.SetOutput("version", version)
				return nil
			})),
		),
		tasks.New("info",
			tasks.WithDescription("Print the build host"),
			tasks.WithUses("system-info"),
		),
		tasks.New("build",
			tasks.WithName("Build"),
			tasks.WithNeeds("version"),
			tasks.WithTimeout(execution.Literal(300)),
			tasks.WithHandler(shell.Script(`echo "building $APP_VERSION"
echo "::set-output artifact=dist/app-$APP_VERSION.tar.gz"`)),
		),
		tasks.New("test",
			tasks.WithName("Test"),
			tasks.WithNeeds("build"),
			tasks.WithEnv(execution.Literal(map[string]string{"CI": "true"})),
			tasks.WithHandler(shell.Script(`echo "testing $APP_VERSION (CI=$CI)"`)),
		),
		tasks.New("lint",
			tasks.WithName("Lint"),
			tasks.WithIf(execution.Bind(func(c *execution.Context) bool {
				v, _ := c.Env.Get("SKIP_LINT")
				return v != "1"
			})),
			tasks.WithHandler(shell.Script(`echo "lint clean"`)),
		),
	}
}

func publish(_ context.Context, tc *tasks.Context) (map[string]any, error) {
	artifact := tc.InputString("artifact")
	if artifact == "" {
		return nil, fmt.Errorf("nothing to publish")
	}
	return map[string]any{"published": artifact}, nil
}

func envEquals(key, want string) *execution.Deferred[bool] {
	return execution.Bind(func(c *execution.Context) bool {
		v, _ := c.Env.Get(key)
		return v == want
	})
}
