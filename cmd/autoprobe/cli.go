package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/probe"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   *slog.Logger
	Patterns autoprobe.PatternService
	Tasks    autoprobe.TaskService
	Manager  *probe.Manager
	Runner   *probe.Runner
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose     bool   `short:"v" help:"Enable debug logging"`
	MetricsFile string `name:"metrics-file" type:"path" help:"Write Prometheus metrics to this file on exit"`

	Pattern PatternCmd `cmd:"" help:"Manage extraction patterns"`
	Run     RunCmd     `cmd:"" help:"Run a pattern against one or more URLs"`
	Task    TaskCmd    `cmd:"" help:"Inspect and control extraction tasks"`
}

// PatternCmd groups the pattern subcommands.
type PatternCmd struct {
	Add      PatternAddCmd      `cmd:"" help:"Store a pattern from a YAML or JSON file"`
	List     PatternListCmd     `cmd:"" help:"List stored patterns"`
	Show     PatternShowCmd     `cmd:"" help:"Print a stored pattern"`
	Validate PatternValidateCmd `cmd:"" help:"Validate a pattern file without storing it"`
	Convert  PatternConvertCmd  `cmd:"" help:"Convert a pattern file between v1 and v2"`
	Delete   PatternDeleteCmd   `cmd:"" help:"Delete a pattern no task uses"`
}

// PatternAddCmd is the "pattern add" subcommand.
type PatternAddCmd struct {
	File string `arg:"" type:"existingfile" help:"Pattern file (v1 or v2, YAML or JSON)"`
	Name string `help:"Override the pattern name"`
}

// PatternListCmd is the "pattern list" subcommand.
type PatternListCmd struct{}

// PatternShowCmd is the "pattern show" subcommand.
type PatternShowCmd struct {
	Pattern string `arg:"" help:"Pattern ID or name"`
	Format  string `short:"f" enum:"yaml,json" default:"yaml" help:"Output format (yaml, json)"`
	Version string `enum:"v1,v2" default:"v2" help:"Schema version to print (v1, v2)"`
}

// PatternValidateCmd is the "pattern validate" subcommand.
type PatternValidateCmd struct {
	File string `arg:"" type:"existingfile" help:"Pattern file"`
}

// PatternConvertCmd is the "pattern convert" subcommand.
type PatternConvertCmd struct {
	File   string `arg:"" type:"existingfile" help:"Pattern file"`
	To     string `enum:"v1,v2" default:"v2" help:"Target schema version (v1, v2)"`
	Format string `short:"f" enum:"yaml,json" default:"yaml" help:"Output format (yaml, json)"`
}

// PatternDeleteCmd is the "pattern delete" subcommand.
type PatternDeleteCmd struct {
	Pattern string `arg:"" help:"Pattern ID or name"`
	Force   bool   `help:"Confirm deletion"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct {
	Pattern     string   `arg:"" help:"Pattern ID or name"`
	URLs        []string `arg:"" name:"url" help:"Target URLs"`
	Browser     bool     `short:"b" help:"Render pages in headless Chrome"`
	MaxPages    int      `name:"max-pages" default:"10" help:"Maximum pages followed per target"`
	Concurrency int      `short:"c" default:"4" help:"Concurrent task limit"`
	RPS         float64  `name:"rps" default:"1" help:"Requests per second per host (0 disables limiting)"`
	Sanitize    bool     `help:"Sanitize extracted HTML"`
}

// TaskCmd groups the task subcommands.
type TaskCmd struct {
	List    TaskListCmd    `cmd:"" help:"List tasks"`
	Status  TaskStatusCmd  `cmd:"" help:"Show the status of a task"`
	Cancel  TaskCancelCmd  `cmd:"" help:"Cancel a pending or running task"`
	Result  TaskResultCmd  `cmd:"" help:"Print the materialized result of a task"`
	Overlay TaskOverlayCmd `cmd:"" help:"Print overlay rectangles for a completed task"`
}

// TaskListCmd is the "task list" subcommand.
type TaskListCmd struct {
	Pattern string `help:"Only tasks of this pattern (ID or name)"`
	Status  string `help:"Only tasks with this status (pending, running, completed, failed, cancelled)"`
	Limit   int    `default:"20" help:"Maximum tasks shown"`
}

// TaskStatusCmd is the "task status" subcommand.
type TaskStatusCmd struct {
	ID string `arg:"" help:"Task ID"`
}

// TaskCancelCmd is the "task cancel" subcommand.
type TaskCancelCmd struct {
	ID string `arg:"" help:"Task ID"`
}

// TaskResultCmd is the "task result" subcommand.
type TaskResultCmd struct {
	ID         string `arg:"" help:"Task ID"`
	Query      string `short:"q" help:"JSONPath expression applied to the result data"`
	Format     string `short:"f" enum:"json,yaml" default:"json" help:"Output format (json, yaml)"`
	BestEffort bool   `name:"best-effort" help:"Materialize a failed task's partial records"`
}

// TaskOverlayCmd is the "task overlay" subcommand.
type TaskOverlayCmd struct {
	ID     string `arg:"" help:"Task ID"`
	Active string `help:"Node ID to flag as active"`
	Flat   bool   `help:"Flatten nested elements"`
}
