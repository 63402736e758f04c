package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/jobs"
	"github.com/aristath/taskrunner/internal/tasks"
)

// registriesFunc builds the task and job registries, registering any named
// handlers they use.
type registriesFunc func(handlers *tasks.Handlers) (*tasks.Registry, *jobs.Registry, error)

type rootOptions struct {
	configPath string
	logLevel   string
	registries registriesFunc
}

func newRootCmd(registries registriesFunc) *cobra.Command {
	opts := &rootOptions{registries: registries}

	cmd := &cobra.Command{
		Use:   "taskrunner",
		Short: "Run dependency-ordered tasks and jobs",
		Long: `taskrunner runs tasks and jobs in dependency order, one at a time.

Examples:
  # Run every task
  taskrunner run

  # Run a task and everything it needs
  taskrunner run test

  # Run jobs with the terminal progress view
  taskrunner run --jobs --tui release

  # Show the execution order
  taskrunner list --jobs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "project config file (default .taskrunner/config.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig loads the global config and the project config, which --config
// replaces. It returns the paths so the settings view can write back.
func (o *rootOptions) loadConfig() (cfg *config.Config, globalPath, projectPath string, err error) {
	globalPath, projectPath, err = config.DefaultPaths()
	if err != nil {
		return nil, "", "", err
	}
	if o.configPath != "" {
		projectPath = o.configPath
	}

	cfg, err = config.Load(globalPath, projectPath)
	if err != nil {
		return nil, "", "", err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, globalPath, projectPath, nil
}
