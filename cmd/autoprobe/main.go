package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/bloom"
	"github.com/fwojciec/autoprobe/etree"
	"github.com/fwojciec/autoprobe/fs"
	"github.com/fwojciec/autoprobe/goquery"
	aphttp "github.com/fwojciec/autoprobe/http"
	"github.com/fwojciec/autoprobe/lru"
	"github.com/fwojciec/autoprobe/probe"
	approm "github.com/fwojciec/autoprobe/prometheus"
	"github.com/fwojciec/autoprobe/rod"
	apslog "github.com/fwojciec/autoprobe/slog"
	"github.com/fwojciec/autoprobe/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path. Set before calling Run().
	DBPath string

	// Directory for raw page snapshots. Empty disables snapshots.
	SnapshotDir string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Services for end-to-end testing.
	PatternService autoprobe.PatternService
	TaskService    autoprobe.TaskService

	// Fetcher overrides the HTTP or browser fetcher used by run.
	Fetcher autoprobe.Fetcher
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath:      defaultDBPath(),
		SnapshotDir: defaultSnapshotDir(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("autoprobe"),
		kong.Description("Extract structured data from web pages with pattern trees."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'autoprobe --help' to see available commands")
	}
	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cmd := kongCtx.Command()

	logOut := io.Discard
	if cli.Verbose {
		logOut = stderr
	}
	deps.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// File-only commands never touch the database.
	if strings.HasPrefix(cmd, "pattern validate") || strings.HasPrefix(cmd, "pattern convert") {
		return kongCtx.Run(deps)
	}

	m.DB = sqlite.NewDB(m.DBPath)
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: Set AUTOPROBE_DB to use a different database path\n")
		return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
	}
	defer m.Close()

	registry := prometheus.NewRegistry()
	metrics := approm.NewMetrics(registry)

	m.PatternService = sqlite.NewPatternService(m.DB)
	m.TaskService = approm.NewTaskService(
		apslog.NewLoggingTaskService(sqlite.NewTaskService(m.DB), deps.Logger),
		metrics,
	)
	deps.Patterns = m.PatternService
	deps.Tasks = m.TaskService

	materializer, err := lru.NewMaterializer(autoprobe.DefaultMaterializer, lru.DefaultSize)
	if err != nil {
		return err
	}
	deps.Manager = probe.NewManager(m.PatternService, m.TaskService)
	deps.Manager.Materializer = materializer

	var snapshots autoprobe.SnapshotStore
	if m.SnapshotDir != "" {
		snapshots = fs.NewSnapshotStore(m.SnapshotDir)
	}

	if strings.HasPrefix(cmd, "run") {
		fetcher := m.Fetcher
		if fetcher == nil {
			if cli.Run.Browser {
				f, err := rod.NewFetcher()
				if err != nil {
					fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
					return fmt.Errorf("failed to start browser: %w", err)
				}
				fetcher = rod.NewLoggingFetcher(f, deps.Logger)
			} else {
				fetcher = rod.NewLoggingFetcher(aphttp.NewFetcher(), deps.Logger)
			}
			defer fetcher.Close()
		}

		var opts []goquery.Option
		if cli.Run.Sanitize {
			opts = append(opts, goquery.WithUGCSanitizer())
		}
		evaluator := apslog.NewLoggingEvaluator(probe.MultiEvaluator{
			goquery.NewEvaluator(opts...),
			etree.NewEvaluator(),
		}, deps.Logger)

		deps.Runner = &probe.Runner{
			Patterns:    m.PatternService,
			Tasks:       m.TaskService,
			Fetcher:     fetcher,
			Evaluator:   evaluator,
			Snapshots:   snapshots,
			RateLimiter: probe.NewDomainLimiter(cli.Run.RPS),
			NewVisited:  bloom.NewVisitedSet,
			Logger:      deps.Logger,
			MaxPages:    cli.Run.MaxPages,
			Concurrency: cli.Run.Concurrency,
		}
	}

	if strings.HasPrefix(cmd, "task overlay") {
		browsers, err := rod.NewBrowserManager()
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer browsers.Close()
		deps.Manager.Geometry = rod.NewGeometryCollector(browsers)
	}

	runErr := kongCtx.Run(deps)

	if cli.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cli.MetricsFile, registry); err != nil {
			deps.Logger.Warn("metrics not written", "path", cli.MetricsFile, "err", err)
		}
	}
	return runErr
}

func defaultDBPath() string {
	if path := os.Getenv("AUTOPROBE_DB"); path != "" {
		return path
	}
	dir := stateDir()
	if dir == "" {
		return "autoprobe.db"
	}
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "autoprobe.db")
}

func defaultSnapshotDir() string {
	if path, ok := os.LookupEnv("AUTOPROBE_SNAPSHOTS"); ok {
		return path
	}
	dir := stateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "snapshots")
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".autoprobe")
}
