package probe

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/fwojciec/autoprobe"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPages bounds how many pagination steps one task follows.
const DefaultMaxPages = 10

// Runner drives tasks through fetch, evaluate and submit, following the
// page-level pagination action, then completes them.
//
// Fetch and evaluation failures fail the task with the error text.
// Cancelling the context cancels the task. Run returns an error only when
// the task services themselves fail.
type Runner struct {
	Patterns  autoprobe.PatternService
	Tasks     autoprobe.TaskService
	Fetcher   autoprobe.Fetcher
	Evaluator autoprobe.Evaluator

	// Optional collaborators.
	Snapshots   autoprobe.SnapshotStore
	RateLimiter autoprobe.DomainLimiter
	NewVisited  func() autoprobe.VisitedSet
	Logger      *slog.Logger

	MaxPages    int
	Concurrency int
	RetryDelays []time.Duration
}

// ProgressEvent reports progress while a task runs.
type ProgressEvent struct {
	Type    ProgressType
	TaskID  string
	Page    int
	URL     string
	Records int
}

// ProgressType indicates the type of progress event.
type ProgressType int

const (
	ProgressStarted ProgressType = iota
	ProgressPage
	ProgressFinished
)

// ProgressFunc is a callback for reporting run progress.
type ProgressFunc func(event ProgressEvent)

// Run executes one pending task and returns it in its final state.
func (r *Runner) Run(ctx context.Context, taskID string, progress ProgressFunc) (*autoprobe.ExtractionTask, error) {
	task, err := r.Tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tree, err := r.Patterns.FindPatternByID(ctx, task.PatternID)
	if err != nil {
		return nil, err
	}
	if task, err = r.Tasks.StartTask(ctx, taskID); err != nil {
		return nil, err
	}
	if task.Status != autoprobe.TaskRunning {
		return task, nil
	}
	notify(progress, ProgressEvent{Type: ProgressStarted, TaskID: taskID, URL: task.Target})

	final, err := r.run(ctx, task, tree, progress)
	if err != nil {
		return nil, err
	}
	notify(progress, ProgressEvent{Type: ProgressFinished, TaskID: taskID})
	return final, nil
}

func (r *Runner) run(ctx context.Context, task *autoprobe.ExtractionTask, tree *autoprobe.PatternTree, progress ProgressFunc) (*autoprobe.ExtractionTask, error) {
	visited := r.visitedSet()
	offsets := newPageOffsets(tree)
	maxPages := r.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	target := task.Target
	for page := 0; page < maxPages && target != ""; page++ {
		if !visited.Visit(target) {
			r.logger().Warn("pagination revisits a page", "task", task.ID, "url", target)
			break
		}
		if ctx.Err() != nil {
			return r.cancel(ctx, task.ID)
		}

		content, err := r.fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(ctx, task.ID)
			}
			return r.Tasks.FailTask(ctx, task.ID, failureMessage(err))
		}
		r.snapshot(ctx, task.ID, page, content)

		eval, err := r.Evaluator.Evaluate(ctx, tree, &autoprobe.Document{URL: target, Content: content})
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(ctx, task.ID)
			}
			return r.Tasks.FailTask(ctx, task.ID, failureMessage(err))
		}
		for _, w := range eval.Warnings {
			r.logger().Warn("evaluation warning", "task", task.ID, "url", target, "warning", w)
		}

		records := offsets.apply(page, eval.Records)
		if err := r.Tasks.SubmitRecords(ctx, task.ID, records); err != nil {
			switch autoprobe.ErrorCode(err) {
			case autoprobe.ECONFLICT:
				// Cancelled while we were working.
				return r.Tasks.FindTaskByID(ctx, task.ID)
			case autoprobe.EINVALID:
				return r.Tasks.FailTask(ctx, task.ID, failureMessage(err))
			}
			if ctx.Err() != nil {
				return r.cancel(ctx, task.ID)
			}
			return nil, err
		}
		notify(progress, ProgressEvent{Type: ProgressPage, TaskID: task.ID, Page: page, URL: target, Records: len(records)})

		target = eval.NextURL
	}

	return r.Tasks.CompleteTask(ctx, task.ID)
}

// RunAll runs independent tasks in parallel, bounded by Concurrency.
// Results are in the order of ids.
func (r *Runner) RunAll(ctx context.Context, ids []string, progress ProgressFunc) ([]*autoprobe.ExtractionTask, error) {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	safeProgress := func(event ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		notify(progress, event)
	}

	results := make([]*autoprobe.ExtractionTask, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			task, err := r.Run(gctx, id, safeProgress)
			if err != nil {
				return err
			}
			results[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) fetch(ctx context.Context, target string) (string, error) {
	if r.RateLimiter != nil {
		u, err := url.Parse(target)
		if err != nil {
			return "", autoprobe.Errorf(autoprobe.EINVALID, "invalid target %q", target)
		}
		if err := r.RateLimiter.Wait(ctx, u.Hostname()); err != nil {
			return "", err
		}
	}
	delays := r.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	return FetchWithRetryDelays(ctx, target, r.Fetcher.Fetch, r.logger(), delays)
}

// snapshot stores the raw page. The first page's reference is recorded
// on the task. Failures are logged and do not affect the task.
func (r *Runner) snapshot(ctx context.Context, taskID string, page int, content string) {
	if r.Snapshots == nil {
		return
	}
	ref, err := r.Snapshots.Save(ctx, taskID, page, content)
	if err != nil {
		r.logger().Warn("snapshot failed", "task", taskID, "page", page, "error", err)
		return
	}
	if page > 0 {
		return
	}
	if err := r.Tasks.SetSnapshot(ctx, taskID, ref); err != nil {
		r.logger().Warn("snapshot reference not stored", "task", taskID, "error", err)
	}
}

// cancel records a context cancellation on the task. The store call must
// outlive the cancelled context.
func (r *Runner) cancel(ctx context.Context, taskID string) (*autoprobe.ExtractionTask, error) {
	task, err := r.Tasks.CancelTask(context.WithoutCancel(ctx), taskID)
	if err != nil {
		return nil, errors.Join(ctx.Err(), err)
	}
	return task, nil
}

func (r *Runner) visitedSet() autoprobe.VisitedSet {
	if r.NewVisited != nil {
		return r.NewVisited()
	}
	return mapVisited{}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// failureMessage renders err for storage on a failed task.
func failureMessage(err error) string {
	if autoprobe.ErrorCode(err) == autoprobe.EINTERNAL {
		return err.Error()
	}
	return autoprobe.ErrorMessage(err)
}

func notify(progress ProgressFunc, event ProgressEvent) {
	if progress != nil {
		progress(event)
	}
}

// mapVisited is the exact visited set used when no filter is configured.
type mapVisited map[string]bool

func (m mapVisited) Visit(url string) bool {
	if m[url] {
		return false
	}
	m[url] = true
	return true
}

// pageOffsets renumbers records from successive pages so their outermost
// list indices continue where the previous page stopped. Page-level
// records outside any list are kept from the first page only.
type pageOffsets struct {
	outer  map[string]string // node id -> outermost list ancestor id
	offset map[string]int    // list id -> index of the next page's first item
}

func newPageOffsets(tree *autoprobe.PatternTree) *pageOffsets {
	p := &pageOffsets{
		outer:  make(map[string]string),
		offset: make(map[string]int),
	}
	index := make(map[string]*autoprobe.PatternNode, len(tree.Nodes))
	for _, n := range tree.Nodes {
		if n == nil {
			continue
		}
		if _, ok := index[n.ID]; !ok {
			index[n.ID] = n
		}
	}

	var walk func(id, outer string, depth int)
	walk = func(id, outer string, depth int) {
		n, ok := index[id]
		if !ok || depth > len(index) {
			return
		}
		if outer == "" && n.Type == autoprobe.NodeList {
			outer = n.ID
		} else if outer != "" {
			p.outer[n.ID] = outer
		}
		for _, c := range n.Children {
			walk(c, outer, depth+1)
		}
	}
	walk(tree.RootID, "", 0)
	return p
}

func (p *pageOffsets) apply(page int, records []*autoprobe.ExtractionRecord) []*autoprobe.ExtractionRecord {
	out := make([]*autoprobe.ExtractionRecord, 0, len(records))
	next := make(map[string]int)
	for _, rec := range records {
		list, inList := p.outer[rec.NodeID]
		if !inList || len(rec.InstancePath) == 0 {
			if page == 0 {
				out = append(out, rec)
			}
			continue
		}
		if end := rec.InstancePath[0] + 1; end > next[list] {
			next[list] = end
		}
		if shift := p.offset[list]; shift > 0 {
			path := make([]int, len(rec.InstancePath))
			copy(path, rec.InstancePath)
			path[0] += shift
			rec = &autoprobe.ExtractionRecord{
				TaskID:       rec.TaskID,
				NodeID:       rec.NodeID,
				InstancePath: path,
				Value:        rec.Value,
			}
		}
		out = append(out, rec)
	}
	for list, n := range next {
		p.offset[list] += n
	}
	return out
}
