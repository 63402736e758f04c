// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/events"
)

// Collector turns bus events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	itemsStarted  *prometheus.CounterVec
	itemsFinished *prometheus.CounterVec
	itemsActive   *prometheus.GaugeVec
	itemDuration  *prometheus.HistogramVec
	diagnostics   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		itemsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrunner_items_started_total",
				Help: "Total number of tasks and jobs started",
			},
			[]string{"kind"},
		),
		itemsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrunner_items_finished_total",
				Help: "Total number of tasks and jobs that reached a terminal status",
			},
			[]string{"kind", "status"},
		),
		itemsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskrunner_items_active",
				Help: "Number of tasks and jobs currently running",
			},
			[]string{"kind"},
		),
		itemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskrunner_item_duration_seconds",
				Help:    "Task and job execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"kind", "status"},
		),
		diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrunner_diagnostics_total",
				Help: "Total number of graph and free-form diagnostics",
			},
			[]string{"topic", "severity"},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to every topic on bus.
func (c *Collector) Attach(bus *events.EventBus) *events.Subscription {
	return bus.Subscribe("*", func(e events.Event) bool {
		c.Observe(e)
		return false
	})
}

// Observe records one event.
func (c *Collector) Observe(e events.Event) {
	switch ev := e.(type) {
	case events.ItemEvent:
		c.observeItem(ev)
	case events.Leveled:
		c.diagnostics.WithLabelValues(ev.Topic(), ev.Severity().String()).Inc()
	}
}

func (c *Collector) observeItem(e events.ItemEvent) {
	switch e.Topic() {
	case events.TopicTaskStarted, events.TopicJobStarted:
		c.itemsStarted.WithLabelValues(e.Kind).Inc()
		c.itemsActive.WithLabelValues(e.Kind).Inc()
		return
	}

	c.itemsFinished.WithLabelValues(e.Kind, e.Status).Inc()
	if !e.StartedAt.IsZero() {
		c.itemsActive.WithLabelValues(e.Kind).Dec()
		c.itemDuration.WithLabelValues(e.Kind, e.Status).Observe(e.Duration().Seconds())
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
