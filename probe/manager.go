// Package probe coordinates extraction tasks: it exposes the task
// lifecycle and result operations over the storage services and drives
// tasks through fetching, evaluation and record submission.
package probe

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

// Manager is the entry point for task operations. It enforces the rules
// that span services: tasks reference valid patterns and results exist
// only for completed tasks.
type Manager struct {
	Patterns     autoprobe.PatternService
	Tasks        autoprobe.TaskService
	Materializer autoprobe.Materializer
	Geometry     autoprobe.GeometryCollector
}

// NewManager creates a Manager with the uncached materializer and no
// geometry collector.
func NewManager(patterns autoprobe.PatternService, tasks autoprobe.TaskService) *Manager {
	return &Manager{
		Patterns:     patterns,
		Tasks:        tasks,
		Materializer: autoprobe.DefaultMaterializer,
	}
}

// Result is the materialized output of a task.
type Result struct {
	Task     *autoprobe.ExtractionTask `json:"task"`
	Tree     *autoprobe.PatternTree    `json:"-"`
	Data     autoprobe.PageData        `json:"data"`
	Warnings []autoprobe.RecordWarning `json:"warnings,omitempty"`
}

// CreateTask creates a pending task running patternID against target.
// Returns EINVALID if the stored tree no longer validates.
func (m *Manager) CreateTask(ctx context.Context, patternID, target string) (*autoprobe.ExtractionTask, error) {
	tree, err := m.Patterns.FindPatternByID(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if err := autoprobe.ValidatePattern(tree).Err(); err != nil {
		return nil, err
	}

	task := &autoprobe.ExtractionTask{PatternID: tree.ID, Target: target}
	if err := m.Tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// StartTask moves a pending task to running.
func (m *Manager) StartTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return m.Tasks.StartTask(ctx, id)
}

// CancelTask cancels a pending or running task.
func (m *Manager) CancelTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return m.Tasks.CancelTask(ctx, id)
}

// SubmitRecords appends records to a running task.
func (m *Manager) SubmitRecords(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) error {
	return m.Tasks.SubmitRecords(ctx, id, records)
}

// CompleteTask marks a running task completed.
func (m *Manager) CompleteTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return m.Tasks.CompleteTask(ctx, id)
}

// FailTask marks a running task failed with msg.
func (m *Manager) FailTask(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error) {
	return m.Tasks.FailTask(ctx, id, msg)
}

// TaskStatus returns the status and failure message of a task.
func (m *Manager) TaskStatus(ctx context.Context, id string) (autoprobe.TaskState, error) {
	task, err := m.Tasks.FindTaskByID(ctx, id)
	if err != nil {
		return autoprobe.TaskState{}, err
	}
	return autoprobe.TaskState{Status: task.Status, Error: task.Error}, nil
}

// Materialize builds the nested result of a completed task from the
// records visible at completion. Returns ECONFLICT for any other status.
func (m *Manager) Materialize(ctx context.Context, id string) (*Result, error) {
	task, err := m.Tasks.FindTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != autoprobe.TaskCompleted {
		return nil, autoprobe.Errorf(autoprobe.ECONFLICT, "task not completed")
	}
	watermark := task.RecordWatermark
	return m.materialize(ctx, task, autoprobe.RecordFilter{MaxSeq: &watermark})
}

// MaterializeBestEffort builds a partial result of a failed task from
// whatever records it stored, for debugging. Returns ECONFLICT unless the
// task failed.
func (m *Manager) MaterializeBestEffort(ctx context.Context, id string) (*Result, error) {
	task, err := m.Tasks.FindTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != autoprobe.TaskFailed {
		return nil, autoprobe.Errorf(autoprobe.ECONFLICT, "task not failed")
	}
	return m.materialize(ctx, task, autoprobe.RecordFilter{})
}

func (m *Manager) materialize(ctx context.Context, task *autoprobe.ExtractionTask, filter autoprobe.RecordFilter) (*Result, error) {
	tree, err := m.Patterns.FindPatternByID(ctx, task.PatternID)
	if err != nil {
		return nil, err
	}
	records, err := m.Tasks.FindRecords(ctx, task.ID, filter)
	if err != nil {
		return nil, err
	}

	materializer := m.Materializer
	if materializer == nil {
		materializer = autoprobe.DefaultMaterializer
	}
	data, warnings := materializer.Materialize(tree, records)
	return &Result{Task: task, Tree: tree, Data: data, Warnings: warnings}, nil
}

// ProjectOverlay materializes a completed task and projects it onto the
// geometry collected from the task's target. Elements of activeNodeID are
// flagged active. Returns EINVALID if no geometry collector is configured.
func (m *Manager) ProjectOverlay(ctx context.Context, id string, activeNodeID string) ([]autoprobe.PageElement, error) {
	if m.Geometry == nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "overlay requires a geometry collector")
	}

	result, err := m.Materialize(ctx, id)
	if err != nil {
		return nil, err
	}

	hints, err := m.Geometry.Collect(ctx, result.Tree, result.Task.Target)
	if err != nil {
		return nil, err
	}
	hints.ActiveNodeID = activeNodeID

	return autoprobe.ProjectOverlay(result.Tree, result.Data, hints), nil
}
