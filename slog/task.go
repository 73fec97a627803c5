// Package slog decorates autoprobe services with structured logging.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.TaskService = (*LoggingTaskService)(nil)

// LoggingTaskService wraps a TaskService and logs every state change and
// record submission. Reads are delegated without logging.
type LoggingTaskService struct {
	next   autoprobe.TaskService
	logger *slog.Logger
}

// NewLoggingTaskService creates a new LoggingTaskService.
func NewLoggingTaskService(next autoprobe.TaskService, logger *slog.Logger) *LoggingTaskService {
	return &LoggingTaskService{next: next, logger: logger}
}

// CreateTask delegates to the wrapped service and logs the new task.
func (s *LoggingTaskService) CreateTask(ctx context.Context, task *autoprobe.ExtractionTask) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, err, "task create",
			"task", task.ID,
			"pattern", task.PatternID,
			"target", task.Target,
			"duration", time.Since(begin),
		)
	}(time.Now())
	return s.next.CreateTask(ctx, task)
}

// FindTaskByID delegates to the wrapped service.
func (s *LoggingTaskService) FindTaskByID(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.next.FindTaskByID(ctx, id)
}

// FindTasks delegates to the wrapped service.
func (s *LoggingTaskService) FindTasks(ctx context.Context, filter autoprobe.TaskFilter) ([]*autoprobe.ExtractionTask, error) {
	return s.next.FindTasks(ctx, filter)
}

// StartTask delegates to the wrapped service and logs the transition.
func (s *LoggingTaskService) StartTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, autoprobe.EventStart, id, func() (*autoprobe.ExtractionTask, error) {
		return s.next.StartTask(ctx, id)
	})
}

// CancelTask delegates to the wrapped service and logs the transition.
func (s *LoggingTaskService) CancelTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, autoprobe.EventCancel, id, func() (*autoprobe.ExtractionTask, error) {
		return s.next.CancelTask(ctx, id)
	})
}

// CompleteTask delegates to the wrapped service and logs the transition.
func (s *LoggingTaskService) CompleteTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, autoprobe.EventComplete, id, func() (*autoprobe.ExtractionTask, error) {
		return s.next.CompleteTask(ctx, id)
	})
}

// FailTask delegates to the wrapped service and logs the transition with
// the failure message.
func (s *LoggingTaskService) FailTask(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, autoprobe.EventFail, id, func() (*autoprobe.ExtractionTask, error) {
		return s.next.FailTask(ctx, id, msg)
	}, "message", msg)
}

// SubmitRecords delegates to the wrapped service and logs the batch size.
func (s *LoggingTaskService) SubmitRecords(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, err, "records submit",
			"task", id,
			"count", len(records),
			"duration", time.Since(begin),
		)
	}(time.Now())
	return s.next.SubmitRecords(ctx, id, records)
}

// FindRecords delegates to the wrapped service.
func (s *LoggingTaskService) FindRecords(ctx context.Context, id string, filter autoprobe.RecordFilter) ([]*autoprobe.ExtractionRecord, error) {
	return s.next.FindRecords(ctx, id, filter)
}

// SetSnapshot delegates to the wrapped service.
func (s *LoggingTaskService) SetSnapshot(ctx context.Context, id string, ref string) error {
	return s.next.SetSnapshot(ctx, id, ref)
}

func (s *LoggingTaskService) transition(ctx context.Context, event autoprobe.TaskEvent, id string, fn func() (*autoprobe.ExtractionTask, error), attrs ...any) (task *autoprobe.ExtractionTask, err error) {
	defer func(begin time.Time) {
		status := ""
		if task != nil {
			status = string(task.Status)
		}
		args := append([]any{
			"task", id,
			"event", string(event),
			"status", status,
			"duration", time.Since(begin),
		}, attrs...)
		s.log(ctx, err, "task transition", args...)
	}(time.Now())
	return fn()
}

// log writes at info level, or warn with the error attached.
func (s *LoggingTaskService) log(ctx context.Context, err error, msg string, args ...any) {
	if err != nil {
		s.logger.WarnContext(ctx, msg, append(args, "err", err)...)
		return
	}
	s.logger.InfoContext(ctx, msg, args...)
}
