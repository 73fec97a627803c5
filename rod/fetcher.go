// Package rod renders targets in headless Chrome for JavaScript-heavy
// pages and measures the boxes of pattern matches for overlays.
package rod

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves rendered HTML using Chrome browser automation.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	browsers *BrowserManager
}

// NewFetcher creates a Fetcher with its own browser. Close must be called
// when the Fetcher is no longer needed.
func NewFetcher(opts ...ManagerOption) (*Fetcher, error) {
	bm, err := NewBrowserManager(opts...)
	if err != nil {
		return nil, err
	}
	return &Fetcher{browsers: bm}, nil
}

// NewFetcherWithManager creates a Fetcher that shares bm. Closing the
// Fetcher closes bm.
func NewFetcherWithManager(bm *BrowserManager) *Fetcher {
	return &Fetcher{browsers: bm}
}

// Fetch navigates to url, waits for the load event and returns the
// rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	page, release, err := f.browsers.Page(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := page.Navigate(url); err != nil {
		return "", err
	}
	if err := page.WaitLoad(); err != nil {
		return "", err
	}
	return page.HTML()
}

// LauncherPID returns the process ID of the browser launcher.
func (f *Fetcher) LauncherPID() int {
	return f.browsers.LauncherPID()
}

// Close releases browser resources.
func (f *Fetcher) Close() error {
	return f.browsers.Close()
}
