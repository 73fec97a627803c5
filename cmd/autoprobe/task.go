package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/probe"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Run executes the task list command.
func (c *TaskListCmd) Run(deps *Dependencies) error {
	filter := autoprobe.TaskFilter{Limit: c.Limit}

	if c.Status != "" {
		status := autoprobe.TaskStatus(c.Status)
		if !status.IsValid() {
			fmt.Fprintf(deps.Stderr, "error: unknown status %q\n", c.Status)
			return autoprobe.Errorf(autoprobe.EINVALID, "unknown status %q", c.Status)
		}
		filter.Status = &status
	}
	if c.Pattern != "" {
		tree, err := findPattern(deps, c.Pattern)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
			return err
		}
		filter.PatternID = &tree.ID
	}

	tasks, err := deps.Tasks.FindTasks(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if len(tasks) == 0 {
		fmt.Fprintln(deps.Stdout, "No tasks found. Use 'autoprobe run' to start one.")
		return nil
	}

	for _, t := range tasks {
		fmt.Fprintf(deps.Stdout, "%s  %-9s  %s  %s\n", t.ID, t.Status, t.CreatedAt.Format(time.DateTime), t.Target)
	}
	return nil
}

// Run executes the task status command.
func (c *TaskStatusCmd) Run(deps *Dependencies) error {
	task, err := deps.Tasks.FindTaskByID(deps.Ctx, c.ID)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Task:     %s\n", task.ID)
	fmt.Fprintf(deps.Stdout, "Pattern:  %s\n", task.PatternID)
	fmt.Fprintf(deps.Stdout, "Target:   %s\n", task.Target)
	fmt.Fprintf(deps.Stdout, "Status:   %s\n", task.Status)
	if task.Error != "" {
		fmt.Fprintf(deps.Stdout, "Error:    %s\n", task.Error)
	}
	if task.SnapshotRef != "" {
		fmt.Fprintf(deps.Stdout, "Snapshot: %s\n", task.SnapshotRef)
	}
	fmt.Fprintf(deps.Stdout, "Created:  %s\n", task.CreatedAt.Format(time.DateTime))
	if task.StartedAt != nil && task.FinishedAt != nil {
		fmt.Fprintf(deps.Stdout, "Duration: %s\n", task.FinishedAt.Sub(*task.StartedAt).Round(time.Millisecond))
	}
	return nil
}

// Run executes the task cancel command.
func (c *TaskCancelCmd) Run(deps *Dependencies) error {
	task, err := deps.Manager.CancelTask(deps.Ctx, c.ID)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	if task.Status != autoprobe.TaskCancelled {
		fmt.Fprintf(deps.Stdout, "Task %s already %s\n", task.ID, task.Status)
		return nil
	}
	fmt.Fprintf(deps.Stdout, "Cancelled task %s\n", task.ID)
	return nil
}

// Run executes the task result command.
func (c *TaskResultCmd) Run(deps *Dependencies) error {
	var (
		result *probe.Result
		err    error
	)
	if c.BestEffort {
		result, err = deps.Manager.MaterializeBestEffort(deps.Ctx, c.ID)
	} else {
		result, err = deps.Manager.Materialize(deps.Ctx, c.ID)
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(deps.Stderr, "warning: %s: %s\n", w.Kind, w.Message)
	}

	var out any = result.Data
	if c.Query != "" {
		out, err = QueryData(result.Data, c.Query)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
			return err
		}
	}

	return encode(deps.Stdout, c.Format, out)
}

// QueryData applies a JSONPath expression to materialized data and
// returns every match.
func QueryData(data autoprobe.PageData, query string) ([]any, error) {
	x, err := jp.ParseString(query)
	if err != nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "invalid query %q: %s", query, err)
	}

	// Round trip through JSON so absent values become nulls and nested
	// records become plain maps.
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	generic, err := oj.Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	matches := x.Get(generic)
	if matches == nil {
		matches = []any{}
	}
	return matches, nil
}

// Run executes the task overlay command.
func (c *TaskOverlayCmd) Run(deps *Dependencies) error {
	elements, err := deps.Manager.ProjectOverlay(deps.Ctx, c.ID, c.Active)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}
	if c.Flat {
		elements = autoprobe.FlattenElements(elements)
	}
	if elements == nil {
		elements = []autoprobe.PageElement{}
	}
	return encode(deps.Stdout, "json", elements)
}
