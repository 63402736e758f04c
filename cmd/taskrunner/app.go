package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/orchestrator"
	"github.com/aristath/taskrunner/internal/secrets"
	"github.com/aristath/taskrunner/internal/shell"
	"github.com/aristath/taskrunner/internal/tasks"
)

// app holds the services shared by one invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	bus      *events.EventBus
	masker   *secrets.List
	handlers *tasks.Handlers
	pm       *shell.ProcessManager
	services *locator.Locator
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	minSeverity, err := events.ParseSeverity(cfg.Events.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("events.min_severity: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bus:      events.NewEventBus(events.WithMinSeverity(minSeverity), events.WithLogger(logger)),
		masker:   secrets.NewList(),
		handlers: tasks.NewHandlers(orchestrator.NewBreakers(cfg.Breaker, logger)),
		pm:       shell.NewProcessManager(),
		services: locator.New(),
	}

	locator.Register(a.services, a.bus)
	locator.Register[secrets.Masker](a.services, a.masker)
	locator.Register(a.services, a.handlers)
	locator.Register(a.services, cfg.Execution)
	locator.Register(a.services, logger)
	locator.Register(a.services, a.pm)
	return a, nil
}
