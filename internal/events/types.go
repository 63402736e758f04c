package events

import (
	"fmt"
	"strings"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	Topic() string
	Timestamp() time.Time
}

// Leveled is implemented by diagnostic events. The bus drops leveled events
// below its minimum severity before they are queued.
type Leveled interface {
	Event
	Severity() Severity
}

// Topic constants
const (
	TopicTaskStarted   = "task:started"
	TopicTaskCompleted = "task:completed"
	TopicTaskFailed    = "task:failed"
	TopicTaskSkipped   = "task:skipped"
	TopicTaskCancelled = "task:cancelled"

	TopicJobStarted   = "job:started"
	TopicJobCompleted = "job:completed"
	TopicJobFailed    = "job:failed"
	TopicJobSkipped   = "job:skipped"
	TopicJobCancelled = "job:cancelled"

	TopicTasksCyclicalReferences  = "tasks:cyclical-references"
	TopicTasksMissingDependencies = "tasks:missing-dependencies"
	TopicJobsCyclicalReferences   = "jobs:cyclical-references"
	TopicJobsMissingDependencies  = "jobs:missing-dependencies"
	TopicDiagnostics              = "diagnostics"
)

// Severity orders diagnostic events from most to least verbose.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityNames = []string{"trace", "debug", "info", "notice", "warning", "error", "fatal"}

func (s Severity) String() string {
	if s < SeverityTrace || s > SeverityFatal {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name. "warn" is accepted for warning.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "warn" {
		return SeverityWarning, nil
	}
	for i, s := range severityNames {
		if s == n {
			return Severity(i), nil
		}
	}
	return SeverityTrace, fmt.Errorf("unknown severity %q", name)
}

// Item kinds carried by ItemEvent.
const (
	KindTask = "task"
	KindJob  = "job"
)

// Topics names the events published for one kind of item.
type Topics struct {
	Kind      string
	Started   string
	Completed string
	Failed    string
	Skipped   string
	Cancelled string
	Cyclical  string
	Missing   string
}

// TaskTopics and JobTopics are the topic sets for tasks and jobs.
var (
	TaskTopics = Topics{
		Kind:      KindTask,
		Started:   TopicTaskStarted,
		Completed: TopicTaskCompleted,
		Failed:    TopicTaskFailed,
		Skipped:   TopicTaskSkipped,
		Cancelled: TopicTaskCancelled,
		Cyclical:  TopicTasksCyclicalReferences,
		Missing:   TopicTasksMissingDependencies,
	}
	JobTopics = Topics{
		Kind:      KindJob,
		Started:   TopicJobStarted,
		Completed: TopicJobCompleted,
		Failed:    TopicJobFailed,
		Skipped:   TopicJobSkipped,
		Cancelled: TopicJobCancelled,
		Cyclical:  TopicJobsCyclicalReferences,
		Missing:   TopicJobsMissingDependencies,
	}
)

// ItemEvent is published on every task or job state transition.
// It carries a snapshot of the item at the time of the transition.
type ItemEvent struct {
	Type      string
	Kind      string
	ID        string
	Name      string
	Status    string
	Inputs    map[string]any
	Outputs   map[string]any
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
	At        time.Time
}

func (e ItemEvent) Topic() string        { return e.Type }
func (e ItemEvent) Timestamp() time.Time { return e.At }
func (e ItemEvent) Failure() error       { return e.Err }

// Duration is the time between start and end, zero if the item never started.
func (e ItemEvent) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.EndedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// CyclicalReferencesEvent reports items that take part in a dependency cycle.
type CyclicalReferencesEvent struct {
	Type string
	IDs  []string
	At   time.Time
}

func (e CyclicalReferencesEvent) Topic() string        { return e.Type }
func (e CyclicalReferencesEvent) Timestamp() time.Time { return e.At }
func (e CyclicalReferencesEvent) Severity() Severity   { return SeverityError }

// MissingDependenciesEvent reports items whose needs are not registered.
// Missing maps item id to the unknown ids it needs.
type MissingDependenciesEvent struct {
	Type    string
	Missing map[string][]string
	At      time.Time
}

func (e MissingDependenciesEvent) Topic() string        { return e.Type }
func (e MissingDependenciesEvent) Timestamp() time.Time { return e.At }
func (e MissingDependenciesEvent) Severity() Severity   { return SeverityError }

// DiagnosticEvent is a free-form message on the diagnostics topic.
type DiagnosticEvent struct {
	Level   Severity
	Message string
	Err     error
	Fields  map[string]any
	At      time.Time
}

func (e DiagnosticEvent) Topic() string        { return TopicDiagnostics }
func (e DiagnosticEvent) Timestamp() time.Time { return e.At }
func (e DiagnosticEvent) Severity() Severity   { return e.Level }
func (e DiagnosticEvent) Failure() error       { return e.Err }

// Diagnostic builds a DiagnosticEvent stamped with the current time.
func Diagnostic(level Severity, message string, err error) DiagnosticEvent {
	return DiagnosticEvent{Level: level, Message: message, Err: err, At: time.Now()}
}
