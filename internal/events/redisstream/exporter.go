// Package redisstream forwards bus events to a Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/secrets"
)

// DefaultMaxLen caps the stream length (approximate trimming).
const DefaultMaxLen = 10000

// Record is the JSON payload stored in the "data" field of each entry.
type Record struct {
	Topic      string              `json:"topic"`
	At         time.Time           `json:"at"`
	Kind       string              `json:"kind,omitempty"`
	ID         string              `json:"id,omitempty"`
	Name       string              `json:"name,omitempty"`
	Status     string              `json:"status,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS int64               `json:"duration_ms,omitempty"`
	Outputs    map[string]any      `json:"outputs,omitempty"`
	IDs        []string            `json:"ids,omitempty"`
	Missing    map[string][]string `json:"missing,omitempty"`
	Severity   string              `json:"severity,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// NewRecord flattens a bus event into a Record.
func NewRecord(e events.Event) Record {
	r := Record{Topic: e.Topic(), At: e.Timestamp()}
	switch ev := e.(type) {
	case events.ItemEvent:
		r.Kind = ev.Kind
		r.ID = ev.ID
		r.Name = ev.Name
		r.Status = ev.Status
		r.DurationMS = ev.Duration().Milliseconds()
		r.Outputs = ev.Outputs
		if ev.Err != nil {
			r.Error = ev.Err.Error()
		}
	case events.CyclicalReferencesEvent:
		r.IDs = ev.IDs
	case events.MissingDependenciesEvent:
		r.Missing = ev.Missing
	case events.DiagnosticEvent:
		r.Message = ev.Message
		if ev.Err != nil {
			r.Error = ev.Err.Error()
		}
	}
	if lv, ok := e.(events.Leveled); ok {
		r.Severity = lv.Severity().String()
	}
	return r
}

// Exporter appends every event it receives to one Redis stream.
type Exporter struct {
	client redis.Cmdable
	stream string
	maxLen int64
	masker secrets.Masker
	logger *zap.Logger
}

// New creates an Exporter. masker and logger may be nil.
func New(client redis.Cmdable, stream string, masker secrets.Masker, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		client: client,
		stream: stream,
		maxLen: DefaultMaxLen,
		masker: masker,
		logger: logger,
	}
}

// Export appends e to the stream.
func (x *Exporter) Export(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(NewRecord(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	payload := string(data)
	if x.masker != nil {
		payload = x.masker.Mask(payload)
	}

	args := &redis.XAddArgs{
		Stream: x.stream,
		MaxLen: x.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"topic": e.Topic(),
			"data":  payload,
		},
	}
	id, err := x.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	x.logger.Debug("event exported",
		zap.String("topic", e.Topic()),
		zap.String("stream", x.stream),
		zap.String("entry", id))
	return nil
}

// Run exports events from ch until it is closed or ctx is done. Export
// failures are logged and do not stop the loop.
func (x *Exporter) Run(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := x.Export(ctx, e); err != nil {
				x.logger.Error("failed to export event",
					zap.String("topic", e.Topic()),
					zap.String("stream", x.stream),
					zap.Error(err))
			}
		}
	}
}
