package autoprobe

import (
	"context"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of an extraction task.
type TaskStatus string

// TaskStatus constants.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions can change s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskEvent is a requested lifecycle transition.
type TaskEvent string

// TaskEvent constants.
const (
	EventStart    TaskEvent = "start"
	EventComplete TaskEvent = "complete"
	EventFail     TaskEvent = "fail"
	EventCancel   TaskEvent = "cancel"
)

// StateTransitionError reports a lifecycle edge that does not exist.
// The task's status is left unchanged.
type StateTransitionError struct {
	TaskID string
	From   TaskStatus
	Event  TaskEvent
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("task %q: cannot %s from %s", e.TaskID, e.Event, e.From)
}

// Transition applies event to a task in status from. It returns the new
// status and whether it differs from from.
//
// Requests against a terminal status are no-ops: the current status is
// returned with changed false and a nil error. Illegal edges from a
// non-terminal status return a *StateTransitionError.
func Transition(from TaskStatus, event TaskEvent) (to TaskStatus, changed bool, err error) {
	if from.IsTerminal() {
		return from, false, nil
	}

	switch {
	case from == TaskPending && event == EventStart:
		return TaskRunning, true, nil
	case from == TaskRunning && event == EventComplete:
		return TaskCompleted, true, nil
	case from == TaskRunning && event == EventFail:
		return TaskFailed, true, nil
	case (from == TaskPending || from == TaskRunning) && event == EventCancel:
		return TaskCancelled, true, nil
	}
	return from, false, &StateTransitionError{From: from, Event: event}
}

// ExtractionTask is one execution of a pattern against one target.
//
// RecordWatermark is the highest record sequence visible when the task
// completed; materialization reads only records at or below it.
type ExtractionTask struct {
	ID              string     `json:"id"`
	PatternID       string     `json:"patternId"`
	Target          string     `json:"target"`
	Status          TaskStatus `json:"status"`
	Error           string     `json:"error,omitempty"`
	SnapshotRef     string     `json:"snapshotRef,omitempty"`
	RecordWatermark int64      `json:"recordWatermark"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// Validate returns an error if the task contains invalid fields.
func (t *ExtractionTask) Validate() error {
	if t.PatternID == "" {
		return Errorf(EINVALID, "task pattern ID required")
	}
	if t.Target == "" {
		return Errorf(EINVALID, "task target required")
	}
	return nil
}

// TaskState is the externally visible status of a task.
type TaskState struct {
	Status TaskStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// TaskService represents a service for managing extraction tasks and their
// records. Transitions on one task are serialized: the first legal
// transition wins and later conflicting requests see the terminal state.
type TaskService interface {
	// CreateTask stores a new pending task.
	CreateTask(ctx context.Context, task *ExtractionTask) error

	// FindTaskByID retrieves a task by ID.
	// Returns ENOTFOUND if the task does not exist.
	FindTaskByID(ctx context.Context, id string) (*ExtractionTask, error)

	// FindTasks retrieves tasks matching the filter.
	FindTasks(ctx context.Context, filter TaskFilter) ([]*ExtractionTask, error)

	// StartTask moves a pending task to running.
	StartTask(ctx context.Context, id string) (*ExtractionTask, error)

	// CancelTask moves a pending or running task to cancelled.
	CancelTask(ctx context.Context, id string) (*ExtractionTask, error)

	// CompleteTask moves a running task to completed and freezes its
	// record watermark.
	CompleteTask(ctx context.Context, id string) (*ExtractionTask, error)

	// FailTask moves a running task to failed, storing msg verbatim.
	FailTask(ctx context.Context, id string, msg string) (*ExtractionTask, error)

	// SubmitRecords appends records to a running task.
	// Returns ECONFLICT if the task is not running; nothing is stored.
	SubmitRecords(ctx context.Context, id string, records []*ExtractionRecord) error

	// FindRecords retrieves a task's records in submission order.
	FindRecords(ctx context.Context, id string, filter RecordFilter) ([]*ExtractionRecord, error)

	// SetSnapshot stores the raw-document snapshot reference of a task.
	SetSnapshot(ctx context.Context, id string, ref string) error
}

// TaskFilter represents a filter for FindTasks.
type TaskFilter struct {
	ID        *string     `json:"id"`
	PatternID *string     `json:"patternId"`
	Status    *TaskStatus `json:"status"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
