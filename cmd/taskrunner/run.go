package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskrunner/internal/events/redisstream"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/graph"
	"github.com/aristath/taskrunner/internal/jobs"
	"github.com/aristath/taskrunner/internal/logging"
	"github.com/aristath/taskrunner/internal/metrics"
	"github.com/aristath/taskrunner/internal/reporter"
	"github.com/aristath/taskrunner/internal/tasks"
	"github.com/aristath/taskrunner/internal/tui"
)

const subscriberBuffer = 1024

type runOptions struct {
	jobs    bool
	tui     bool
	verbose bool
	noColor bool
	logFile string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run targets and everything they need",
		Long:  "Run the given tasks (or jobs with --jobs) after their dependencies. With no targets every item runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := opts.run(cmd, root, args)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.jobs, "jobs", "j", false, "targets are jobs instead of tasks")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show the terminal progress view")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print start lines and outputs")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this file (default stderr, or taskrunner.log with --tui)")
	return cmd
}

func (o *runOptions) newLogger(level string) (*zap.Logger, error) {
	switch {
	case o.logFile != "":
		return logging.NewFile(level, o.logFile)
	case o.tui:
		return logging.NewFile(level, "taskrunner.log")
	default:
		return logging.New(level)
	}
}

func (o *runOptions) run(cmd *cobra.Command, root *rootOptions, targets []string) (int, error) {
	ctx := cmd.Context()

	cfg, globalPath, projectPath, err := root.loadConfig()
	if err != nil {
		return 1, err
	}
	logger, err := o.newLogger(cfg.Log.Level)
	if err != nil {
		return 1, err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return 1, err
	}
	taskRegistry, jobRegistry, err := root.registries(a.handlers)
	if err != nil {
		return 1, fmt.Errorf("building registry: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopKill := context.AfterFunc(runCtx, func() {
		if err := a.pm.KillAll(); err != nil {
			logger.Warn("killing subprocesses", zap.Error(err))
		}
	})
	defer stopKill()

	var consumers errgroup.Group

	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	if cfg.Metrics.Addr != "" {
		collector := metrics.NewCollector()
		collector.Attach(a.bus)
		consumers.Go(func() error {
			return collector.Serve(serveCtx, cfg.Metrics.Addr, logger)
		})
	}

	if cfg.Events.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		defer client.Close()
		exporter := redisstream.New(client, cfg.Events.RedisStream, a.masker, logger)
		ch := a.bus.SubscribeAll(subscriberBuffer)
		consumers.Go(func() error {
			return exporter.Run(ctx, ch)
		})
	}

	var (
		program *tea.Program
		console *reporter.Console
	)
	if o.tui {
		model := tui.New(a.bus.SubscribeAll(subscriberBuffer), tui.Options{
			Planned:     planned(o.jobs, taskRegistry, jobRegistry, targets),
			Masker:      a.masker,
			Config:      cfg,
			GlobalPath:  globalPath,
			ProjectPath: projectPath,
		})
		program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(cmd.OutOrStdout()))
		stopQuit := context.AfterFunc(ctx, program.Quit)
		defer stopQuit()
		consumers.Go(func() error {
			defer stopServe()
			defer cancelRun()
			_, err := program.Run()
			return err
		})
	} else {
		colorOpt := []reporter.Option{reporter.WithVerbose(o.verbose)}
		if o.noColor {
			colorOpt = append(colorOpt, reporter.WithColor(false))
		}
		console = reporter.NewConsole(cmd.OutOrStdout(), a.masker, colorOpt...)
		console.Attach(a.bus)
	}

	parent := execution.FromProcess("taskrunner", a.services, targets)
	var summary *execution.Summary
	if o.jobs {
		summary = jobs.NewOrchestrator(jobRegistry, a.services).Run(runCtx, parent, targets...)
	} else {
		summary = tasks.NewOrchestrator(taskRegistry, a.services).Run(runCtx, parent, targets...)
	}
	logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Stringer("status", summary.Status),
		zap.Error(summary.Err))

	_ = a.bus.Close()
	if program != nil {
		program.Send(tui.RunFinishedMsg{Summary: summary})
	} else {
		console.Summary(summary)
		stopServe()
	}

	if err := consumers.Wait(); err != nil {
		logger.Warn("event consumer stopped with error", zap.Error(err))
	}
	return summary.ExitCode(), nil
}

// planned counts the executions a run of targets is expected to make.
func planned(useJobs bool, taskRegistry *tasks.Registry, jobRegistry *jobs.Registry, targets []string) int {
	if !useJobs {
		return len(closure(taskRegistry, targets))
	}
	n := 0
	for _, job := range closure(jobRegistry, targets) {
		n += 1 + job.Tasks().Len()
	}
	return n
}

// closure returns targets (all items when empty) and everything they need,
// or nil when the graph cannot be resolved.
func closure[T graph.Node](items *graph.Map[T], targets []string) []T {
	roots := items.Values()
	if len(targets) > 0 {
		resolved, err := items.Resolve(targets)
		if err != nil {
			return nil
		}
		roots = resolved
	}
	flat, err := items.Flatten(roots)
	if err != nil {
		return nil
	}
	return flat
}
