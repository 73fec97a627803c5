package main

import (
	"fmt"
	"net/url"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/probe"
)

// Run executes the run command: one task per URL, run in parallel.
func (c *RunCmd) Run(deps *Dependencies) error {
	tree, err := findPattern(deps, c.Pattern)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	for _, target := range c.URLs {
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fmt.Fprintf(deps.Stderr, "error: invalid URL %q: must be http or https\n", target)
			return autoprobe.Errorf(autoprobe.EINVALID, "invalid URL %q", target)
		}
	}

	ids := make([]string, 0, len(c.URLs))
	for _, target := range c.URLs {
		task, err := deps.Manager.CreateTask(deps.Ctx, tree.ID, target)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
			return err
		}
		ids = append(ids, task.ID)
	}

	fmt.Fprintf(deps.Stdout, "Running %q against %d target(s)...\n", tree.Name, len(ids))

	// RunAll serializes progress callbacks.
	progress := func(ev probe.ProgressEvent) {
		if ev.Type == probe.ProgressPage {
			fmt.Fprintf(deps.Stdout, "  %s page %d: %d records from %s\n", ev.TaskID, ev.Page+1, ev.Records, ev.URL)
		}
	}

	tasks, err := deps.Runner.RunAll(deps.Ctx, ids, progress)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", autoprobe.ErrorMessage(err))
		return err
	}

	var unfinished int
	for _, t := range tasks {
		line := fmt.Sprintf("%s  %s  %s", t.ID, t.Status, t.Target)
		if t.Error != "" {
			line += "  " + t.Error
		}
		fmt.Fprintln(deps.Stdout, line)
		if t.Status != autoprobe.TaskCompleted {
			unfinished++
		}
	}

	if unfinished > 0 {
		return autoprobe.Errorf(autoprobe.EINTERNAL, "%d of %d tasks did not complete", unfinished, len(tasks))
	}
	fmt.Fprintf(deps.Stdout, "Use 'autoprobe task result <id>' to view results.\n")
	return nil
}
