package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/autoprobe"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ autoprobe.TaskService = (*TaskService)(nil)

// TaskService implements autoprobe.TaskService using SQLite.
//
// Every transition reads and writes the task inside one transaction and
// the UPDATE is conditional on the status that was read, so concurrent
// requests against one task resolve to exactly one winner.
type TaskService struct {
	db *DB

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(db *DB) *TaskService {
	return &TaskService{db: db, Now: time.Now}
}

const taskColumns = `id, pattern_id, target, status, error, snapshot_ref, record_watermark,
	created_at, started_at, finished_at`

// CreateTask stores a new pending task for an existing pattern.
func (s *TaskService) CreateTask(ctx context.Context, task *autoprobe.ExtractionTask) error {
	if err := task.Validate(); err != nil {
		return err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patterns WHERE id = ?", task.PatternID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return autoprobe.Errorf(autoprobe.ENOTFOUND, "pattern not found")
	}

	task.ID = uuid.New().String()
	task.Status = autoprobe.TaskPending
	task.Error = ""
	task.RecordWatermark = 0
	task.CreatedAt = s.Now().UTC()
	task.StartedAt = nil
	task.FinishedAt = nil

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, pattern_id, target, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, task.ID, task.PatternID, task.Target, string(task.Status), formatTime(task.CreatedAt))

	return err
}

// FindTaskByID retrieves a task by ID.
func (s *TaskService) FindTaskByID(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, autoprobe.Errorf(autoprobe.ENOTFOUND, "task not found")
	}
	return task, err
}

// FindTasks retrieves tasks matching the filter, newest first.
func (s *TaskService) FindTasks(ctx context.Context, filter autoprobe.TaskFilter) ([]*autoprobe.ExtractionTask, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + taskColumns + " FROM tasks WHERE 1=1")

	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.PatternID != nil {
		query.WriteString(" AND pattern_id = ?")
		args = append(args, *filter.PatternID)
	}
	if filter.Status != nil {
		query.WriteString(" AND status = ?")
		args = append(args, string(*filter.Status))
	}

	query.WriteString(" ORDER BY created_at DESC, rowid DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*autoprobe.ExtractionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// StartTask moves a pending task to running.
func (s *TaskService) StartTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, id, autoprobe.EventStart, "")
}

// CancelTask moves a pending or running task to cancelled. Cancelling a
// finished task returns it unchanged.
func (s *TaskService) CancelTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, id, autoprobe.EventCancel, "")
}

// CompleteTask moves a running task to completed and freezes the record
// watermark at the highest sequence submitted so far.
func (s *TaskService) CompleteTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, id, autoprobe.EventComplete, "")
}

// FailTask moves a running task to failed, storing msg verbatim.
func (s *TaskService) FailTask(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error) {
	return s.transition(ctx, id, autoprobe.EventFail, msg)
}

func (s *TaskService) transition(ctx context.Context, id string, event autoprobe.TaskEvent, msg string) (*autoprobe.ExtractionTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	task, err := scanTask(tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, autoprobe.Errorf(autoprobe.ENOTFOUND, "task not found")
	} else if err != nil {
		return nil, err
	}

	to, changed, err := autoprobe.Transition(task.Status, event)
	if err != nil {
		var te *autoprobe.StateTransitionError
		if errors.As(err, &te) {
			te.TaskID = id
		}
		return nil, err
	}
	if !changed {
		return task, nil
	}

	from := task.Status
	now := s.Now().UTC()
	task.Status = to
	switch to {
	case autoprobe.TaskRunning:
		task.StartedAt = &now
	case autoprobe.TaskCompleted:
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), 0) FROM records WHERE task_id = ?", id,
		).Scan(&task.RecordWatermark); err != nil {
			return nil, err
		}
		task.FinishedAt = &now
	case autoprobe.TaskFailed:
		task.Error = msg
		task.FinishedAt = &now
	case autoprobe.TaskCancelled:
		task.FinishedAt = &now
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, record_watermark = ?, started_at = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, string(task.Status), task.Error, task.RecordWatermark,
		nullTime(task.StartedAt), nullTime(task.FinishedAt), id, string(from))
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, autoprobe.Errorf(autoprobe.ECONFLICT, "task %s changed concurrently", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}

// SubmitRecords appends records to a running task, assigning each its
// sequence number. Either all records are stored or none are.
func (s *TaskService) SubmitRecords(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) error {
	for _, r := range records {
		if r.TaskID == "" {
			r.TaskID = id
		}
		if r.TaskID != id {
			return autoprobe.Errorf(autoprobe.EINVALID, "record belongs to task %s, not %s", r.TaskID, id)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return autoprobe.Errorf(autoprobe.ENOTFOUND, "task not found")
	} else if err != nil {
		return err
	}
	if autoprobe.TaskStatus(status) != autoprobe.TaskRunning {
		return autoprobe.Errorf(autoprobe.ECONFLICT, "task %s is %s, records are not accepted", id, status)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (task_id, node_id, instance_path, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seqs := make([]int64, len(records))
	for i, r := range records {
		path := r.InstancePath
		if path == nil {
			path = []int{}
		}
		pathJSON, err := json.Marshal(path)
		if err != nil {
			return fmt.Errorf("failed to encode instance path: %w", err)
		}
		valueJSON, err := json.Marshal(r.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		result, err := stmt.ExecContext(ctx, id, r.NodeID, string(pathJSON), string(valueJSON))
		if err != nil {
			return err
		}
		if seqs[i], err = result.LastInsertId(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	for i, r := range records {
		r.Seq = seqs[i]
	}
	return nil
}

// FindRecords retrieves a task's records in submission order.
func (s *TaskService) FindRecords(ctx context.Context, id string, filter autoprobe.RecordFilter) ([]*autoprobe.ExtractionRecord, error) {
	var query strings.Builder
	args := []any{id}

	query.WriteString("SELECT seq, task_id, node_id, instance_path, value FROM records WHERE task_id = ?")

	if filter.NodeID != nil {
		query.WriteString(" AND node_id = ?")
		args = append(args, *filter.NodeID)
	}
	if filter.MaxSeq != nil {
		query.WriteString(" AND seq <= ?")
		args = append(args, *filter.MaxSeq)
	}

	query.WriteString(" ORDER BY seq")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*autoprobe.ExtractionRecord
	for rows.Next() {
		var r autoprobe.ExtractionRecord
		var path, value string
		if err := rows.Scan(&r.Seq, &r.TaskID, &r.NodeID, &path, &value); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(path), &r.InstancePath); err != nil {
			return nil, fmt.Errorf("failed to decode instance path of record %d: %w", r.Seq, err)
		}
		if err := json.Unmarshal([]byte(value), &r.Value); err != nil {
			return nil, fmt.Errorf("failed to decode value of record %d: %w", r.Seq, err)
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

// SetSnapshot stores the raw-document snapshot reference of a task.
func (s *TaskService) SetSnapshot(ctx context.Context, id string, ref string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE tasks SET snapshot_ref = ? WHERE id = ?", ref, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autoprobe.Errorf(autoprobe.ENOTFOUND, "task not found")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*autoprobe.ExtractionTask, error) {
	var task autoprobe.ExtractionTask
	var status, createdAt string
	var startedAt, finishedAt sql.NullString

	if err := row.Scan(&task.ID, &task.PatternID, &task.Target, &status, &task.Error, &task.SnapshotRef,
		&task.RecordWatermark, &createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	task.Status = autoprobe.TaskStatus(status)

	var err error
	if task.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if task.StartedAt, err = parseNullTime(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if task.FinishedAt, err = parseNullTime(finishedAt, "finished_at"); err != nil {
		return nil, err
	}

	return &task, nil
}
