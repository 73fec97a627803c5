package mock

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.TaskService = (*TaskService)(nil)

// TaskService is a mock implementation of autoprobe.TaskService.
type TaskService struct {
	CreateTaskFn    func(ctx context.Context, task *autoprobe.ExtractionTask) error
	FindTaskByIDFn  func(ctx context.Context, id string) (*autoprobe.ExtractionTask, error)
	FindTasksFn     func(ctx context.Context, filter autoprobe.TaskFilter) ([]*autoprobe.ExtractionTask, error)
	StartTaskFn     func(ctx context.Context, id string) (*autoprobe.ExtractionTask, error)
	CancelTaskFn    func(ctx context.Context, id string) (*autoprobe.ExtractionTask, error)
	CompleteTaskFn  func(ctx context.Context, id string) (*autoprobe.ExtractionTask, error)
	FailTaskFn      func(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error)
	SubmitRecordsFn func(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) error
	FindRecordsFn   func(ctx context.Context, id string, filter autoprobe.RecordFilter) ([]*autoprobe.ExtractionRecord, error)
	SetSnapshotFn   func(ctx context.Context, id string, ref string) error
}

func (s *TaskService) CreateTask(ctx context.Context, task *autoprobe.ExtractionTask) error {
	return s.CreateTaskFn(ctx, task)
}

func (s *TaskService) FindTaskByID(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.FindTaskByIDFn(ctx, id)
}

func (s *TaskService) FindTasks(ctx context.Context, filter autoprobe.TaskFilter) ([]*autoprobe.ExtractionTask, error) {
	return s.FindTasksFn(ctx, filter)
}

func (s *TaskService) StartTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.StartTaskFn(ctx, id)
}

func (s *TaskService) CancelTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.CancelTaskFn(ctx, id)
}

func (s *TaskService) CompleteTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.CompleteTaskFn(ctx, id)
}

func (s *TaskService) FailTask(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error) {
	return s.FailTaskFn(ctx, id, msg)
}

func (s *TaskService) SubmitRecords(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) error {
	return s.SubmitRecordsFn(ctx, id, records)
}

func (s *TaskService) FindRecords(ctx context.Context, id string, filter autoprobe.RecordFilter) ([]*autoprobe.ExtractionRecord, error) {
	return s.FindRecordsFn(ctx, id, filter)
}

func (s *TaskService) SetSnapshot(ctx context.Context, id string, ref string) error {
	return s.SetSnapshotFn(ctx, id, ref)
}
