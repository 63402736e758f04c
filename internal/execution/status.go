package execution

import (
	"fmt"
	"time"
)

// Status represents the current state of a task, job or run.
type Status int

const (
	StatusPending   Status = iota // Not started yet
	StatusRunning                 // Currently executing
	StatusSuccess                 // Finished successfully
	StatusFailed                  // Finished with error
	StatusSkipped                 // Intentionally not run
	StatusCancelled               // Stopped by cancellation or timeout
)

var statusNames = [...]string{"pending", "running", "success", "failed", "skipped", "cancelled"}

func (s Status) String() string {
	if s < StatusPending || s > StatusCancelled {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// Halted reports whether the status stops later items from running.
func (s Status) Halted() bool {
	return s == StatusFailed || s == StatusCancelled
}

// State tracks one item through Pending -> Running -> terminal.
type State struct {
	status    Status
	err       error
	outputs   map[string]any
	startedAt time.Time
	endedAt   time.Time
}

// Start moves to Running, clears any previous error and stamps the start time.
func (s *State) Start() {
	s.status = StatusRunning
	s.err = nil
	s.startedAt = time.Now()
	s.endedAt = time.Time{}
}

// Ok moves to Success with the given outputs.
func (s *State) Ok(outputs map[string]any) {
	s.status = StatusSuccess
	s.outputs = outputs
	s.endedAt = time.Now()
}

// Fail moves to Failed and keeps err.
func (s *State) Fail(err error) {
	s.status = StatusFailed
	s.err = err
	s.endedAt = time.Now()
}

// Skip moves to Skipped. The end time is only stamped if the item started.
func (s *State) Skip() {
	s.status = StatusSkipped
	if !s.startedAt.IsZero() {
		s.endedAt = time.Now()
	}
}

// Cancel moves to Cancelled. The end time is only stamped if the item started.
func (s *State) Cancel(err error) {
	s.status = StatusCancelled
	s.err = err
	if !s.startedAt.IsZero() {
		s.endedAt = time.Now()
	}
}

func (s *State) Status() Status          { return s.status }
func (s *State) Err() error              { return s.err }
func (s *State) Outputs() map[string]any { return s.outputs }
func (s *State) StartedAt() time.Time    { return s.startedAt }
func (s *State) EndedAt() time.Time      { return s.endedAt }

// Result snapshots the state as a Result for id.
func (s *State) Result(id string) *Result {
	return &Result{
		ID:        id,
		Status:    s.status,
		Outputs:   s.outputs,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Err:       s.err,
	}
}

// Result is the outcome of one task or job.
type Result struct {
	ID        string
	Status    Status
	Outputs   map[string]any
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
	Children  []*Result // task results of a job, in execution order
}

// Duration is EndedAt - StartedAt, zero if the item never started.
func (r *Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Summary is the outcome of one orchestrator run.
type Summary struct {
	RunID     string
	Status    Status
	Err       error
	Results   []*Result
	Context   *Context // running context: the parent's state plus everything reported
	Reported  *Context // only what the items reported
	StartedAt time.Time
	EndedAt   time.Time
}

// Result returns the result recorded for id.
func (s *Summary) Result(id string) (*Result, bool) {
	for _, r := range s.Results {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// ExitCode maps the run status to a process exit code.
func (s *Summary) ExitCode() int {
	if s.Err != nil {
		return 1
	}
	switch s.Status {
	case StatusSuccess, StatusSkipped:
		return 0
	default:
		return 1
	}
}
