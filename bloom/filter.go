// Package bloom provides the visited-page set used when following
// pagination, backed by a Bloom filter.
package bloom

import (
	"net/url"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.VisitedSet = (*Filter)(nil)

// DefaultCapacity and DefaultFalsePositiveRate size filters for a
// single task's pagination chain.
const (
	DefaultCapacity          = 10000
	DefaultFalsePositiveRate = 0.001
)

// Filter is a concurrency-safe set of visited page URLs. The Bloom filter
// answers most lookups; its positives are confirmed against the exact set
// of visited URLs, so a false positive never ends a pagination chain.
type Filter struct {
	mu   sync.Mutex
	f    *bloom.BloomFilter
	seen map[string]struct{}

	falsePositives uint
}

// NewFilter creates a new Bloom filter sized for n expected pages
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f:    bloom.NewWithEstimates(n, fpRate),
		seen: make(map[string]struct{}),
	}
}

// NewVisitedSet returns a filter with the default sizing.
func NewVisitedSet() autoprobe.VisitedSet {
	return NewFilter(DefaultCapacity, DefaultFalsePositiveRate)
}

// Visit marks a page visited and reports whether it was new.
// URLs differing only in their fragment are the same page.
func (f *Filter) Visit(rawURL string) bool {
	key := normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f.TestOrAddString(key) {
		if _, ok := f.seen[key]; ok {
			return false
		}
		f.falsePositives++
	}
	f.seen[key] = struct{}{}
	return true
}

// FalsePositives returns how many new pages the Bloom filter reported as
// visited before the exact set overruled it.
func (f *Filter) FalsePositives() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.falsePositives
}

// Test returns true if the page might have been visited.
// False positives are possible; false negatives are not.
func (f *Filter) Test(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.TestString(normalize(rawURL))
}

// EstimatedCount returns the approximate number of visited pages.
func (f *Filter) EstimatedCount() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint(f.f.ApproximatedSize())
}

func normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
