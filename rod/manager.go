package rod

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/autoprobe"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultRecycleAfter is the default number of pages a browser renders
// before it is replaced.
const DefaultRecycleAfter = 75

// BrowserManager hands out pages from a headless Chrome and replaces the
// browser after a fixed number of pages, since Chrome's memory use grows
// with every page and never returns to baseline.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	mu           sync.Mutex
	browser      *rod.Browser
	launcher     *launcher.Launcher
	pages        atomic.Int64
	recycleAfter int64
	pageTimeout  time.Duration
	closed       atomic.Bool
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithRecycleAfter sets how many pages a browser renders before it is
// replaced.
func WithRecycleAfter(n int64) ManagerOption {
	return func(bm *BrowserManager) {
		bm.recycleAfter = n
	}
}

// WithPageTimeout bounds how long each page may be used.
func WithPageTimeout(d time.Duration) ManagerOption {
	return func(bm *BrowserManager) {
		bm.pageTimeout = d
	}
}

// NewBrowserManager launches a headless Chrome. Close must be called when
// the manager is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{recycleAfter: DefaultRecycleAfter}
	for _, opt := range opts {
		opt(bm)
	}
	if err := bm.launch(); err != nil {
		return nil, err
	}
	return bm, nil
}

// Page opens a blank page bound to ctx and the page timeout. The returned
// release func closes the page and counts it toward recycling.
// Returns EINVALID once the manager is closed.
func (bm *BrowserManager) Page(ctx context.Context) (*rod.Page, func(), error) {
	if bm.closed.Load() {
		return nil, nil, autoprobe.Errorf(autoprobe.EINVALID, "browser closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	cancel := func() {}
	if bm.pageTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, bm.pageTimeout)
	}

	browser := bm.Browser()
	if browser == nil {
		cancel()
		return nil, nil, autoprobe.Errorf(autoprobe.EINVALID, "browser closed")
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("opening page: %w", err)
	}
	release := func() {
		_ = page.Close()
		cancel()
		bm.pages.Add(1)
	}
	return page.Context(ctx), release, nil
}

// Browser returns the current browser, replacing it first if it has
// rendered its quota of pages.
func (bm *BrowserManager) Browser() *rod.Browser {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.pages.Load() >= bm.recycleAfter {
		bm.recycle()
	}
	return bm.browser
}

// PageCount returns the pages rendered by the current browser.
func (bm *BrowserManager) PageCount() int64 {
	return bm.pages.Load()
}

// LauncherPID returns the process ID of the browser launcher, or 0 once
// closed.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.launcher == nil {
		return 0
	}
	return bm.launcher.PID()
}

// Close shuts the browser down. Close is safe to call multiple times.
func (bm *BrowserManager) Close() error {
	if !bm.closed.CompareAndSwap(false, true) {
		return nil
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.shutdown()
}

func (bm *BrowserManager) launch() error {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(true)

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connecting to browser: %w", err)
	}

	bm.browser = browser
	bm.launcher = l
	return nil
}

// shutdown must be called with mu held.
func (bm *BrowserManager) shutdown() error {
	var err error
	if bm.browser != nil {
		err = bm.browser.Close()
		bm.browser = nil
	}
	if bm.launcher != nil {
		bm.launcher.Kill()
		bm.launcher = nil
	}
	return err
}

// recycle swaps in a fresh browser. The old one is kept if the launch
// fails. Must be called with mu held.
func (bm *BrowserManager) recycle() {
	oldBrowser, oldLauncher := bm.browser, bm.launcher
	bm.browser, bm.launcher = nil, nil

	if err := bm.launch(); err != nil {
		bm.browser, bm.launcher = oldBrowser, oldLauncher
		return
	}

	if oldBrowser != nil {
		_ = oldBrowser.Close()
	}
	if oldLauncher != nil {
		oldLauncher.Kill()
	}
	bm.pages.Store(0)
}
