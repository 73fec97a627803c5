// Package prometheus instruments autoprobe services with Prometheus metrics.
package prometheus

import (
	"context"
	"time"

	"github.com/fwojciec/autoprobe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the task lifecycle metrics.
//
// Metrics:
//   - autoprobe_task_transitions_total{event,result} - transition requests by outcome
//   - autoprobe_task_transition_duration_seconds{event} - transition latency
//   - autoprobe_records_submitted_total - records accepted
//   - autoprobe_records_rejected_total{code} - records in rejected batches
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	RecordsSubmitted   prometheus.Counter
	RecordsRejected    *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoprobe_task_transitions_total",
				Help: "Total number of task transition requests",
			},
			[]string{"event", "result"}, // result is the resulting status or an error code
		),
		TransitionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoprobe_task_transition_duration_seconds",
				Help:    "Duration of task transitions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		RecordsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "autoprobe_records_submitted_total",
			Help: "Total number of extraction records accepted",
		}),
		RecordsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoprobe_records_rejected_total",
				Help: "Total number of extraction records in rejected batches",
			},
			[]string{"code"},
		),
	}
}

var _ autoprobe.TaskService = (*TaskService)(nil)

// TaskService wraps a TaskService and records transition and submission
// metrics. Reads are delegated unmeasured.
type TaskService struct {
	next    autoprobe.TaskService
	metrics *Metrics
}

// NewTaskService creates a new TaskService.
func NewTaskService(next autoprobe.TaskService, metrics *Metrics) *TaskService {
	return &TaskService{next: next, metrics: metrics}
}

func (s *TaskService) CreateTask(ctx context.Context, task *autoprobe.ExtractionTask) error {
	return s.next.CreateTask(ctx, task)
}

func (s *TaskService) FindTaskByID(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.next.FindTaskByID(ctx, id)
}

func (s *TaskService) FindTasks(ctx context.Context, filter autoprobe.TaskFilter) ([]*autoprobe.ExtractionTask, error) {
	return s.next.FindTasks(ctx, filter)
}

func (s *TaskService) StartTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.observe(autoprobe.EventStart, func() (*autoprobe.ExtractionTask, error) {
		return s.next.StartTask(ctx, id)
	})
}

func (s *TaskService) CancelTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.observe(autoprobe.EventCancel, func() (*autoprobe.ExtractionTask, error) {
		return s.next.CancelTask(ctx, id)
	})
}

func (s *TaskService) CompleteTask(ctx context.Context, id string) (*autoprobe.ExtractionTask, error) {
	return s.observe(autoprobe.EventComplete, func() (*autoprobe.ExtractionTask, error) {
		return s.next.CompleteTask(ctx, id)
	})
}

func (s *TaskService) FailTask(ctx context.Context, id string, msg string) (*autoprobe.ExtractionTask, error) {
	return s.observe(autoprobe.EventFail, func() (*autoprobe.ExtractionTask, error) {
		return s.next.FailTask(ctx, id, msg)
	})
}

func (s *TaskService) SubmitRecords(ctx context.Context, id string, records []*autoprobe.ExtractionRecord) error {
	err := s.next.SubmitRecords(ctx, id, records)
	if err != nil {
		s.metrics.RecordsRejected.WithLabelValues(autoprobe.ErrorCode(err)).Add(float64(len(records)))
		return err
	}
	s.metrics.RecordsSubmitted.Add(float64(len(records)))
	return nil
}

func (s *TaskService) FindRecords(ctx context.Context, id string, filter autoprobe.RecordFilter) ([]*autoprobe.ExtractionRecord, error) {
	return s.next.FindRecords(ctx, id, filter)
}

func (s *TaskService) SetSnapshot(ctx context.Context, id string, ref string) error {
	return s.next.SetSnapshot(ctx, id, ref)
}

func (s *TaskService) observe(event autoprobe.TaskEvent, fn func() (*autoprobe.ExtractionTask, error)) (*autoprobe.ExtractionTask, error) {
	begin := time.Now()
	task, err := fn()
	s.metrics.TransitionDuration.WithLabelValues(string(event)).Observe(time.Since(begin).Seconds())

	result := "error"
	switch {
	case err != nil:
		result = autoprobe.ErrorCode(err)
	case task != nil:
		result = string(task.Status)
	}
	s.metrics.Transitions.WithLabelValues(string(event), result).Inc()
	return task, err
}
