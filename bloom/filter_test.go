package bloom_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/autoprobe/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_Visit(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	// First visit is new
	assert.True(t, f.Visit("https://example.com/products?page=1"))

	// Second visit is not
	assert.False(t, f.Visit("https://example.com/products?page=1"))

	// Different page is new
	assert.True(t, f.Visit("https://example.com/products?page=2"))
	assert.True(t, f.Test("https://example.com/products?page=2"))
}

func TestFilter_FalsePositivesDoNotEndChains(t *testing.T) {
	t.Parallel()

	// A single-bit filter reports every page after the first as visited.
	f := bloom.NewFilter(1, 0.9)

	for i := range 50 {
		assert.True(t, f.Visit(fmt.Sprintf("https://example.com/products?page=%d", i)))
	}
	assert.False(t, f.Visit("https://example.com/products?page=7"))
	assert.Positive(t, f.FalsePositives())
}

func TestFilter_IgnoresFragments(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.True(t, f.Visit("https://example.com/list#top"))
	assert.False(t, f.Visit("https://example.com/list"))
	assert.False(t, f.Visit("https://example.com/list#bottom"))
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	// Empty filter should have count near 0
	assert.Equal(t, uint(0), f.EstimatedCount())

	f.Visit("https://example.com/page1")
	f.Visit("https://example.com/page2")
	f.Visit("https://example.com/page3")

	// Estimated count should be approximately 3
	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_ConcurrentVisitsReportNewOnce(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Visit("https://example.com/same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const (
		numItems   = 10000
		fpRate     = 0.01
		testProbes = 10000
	)

	f := bloom.NewFilter(numItems, fpRate)

	for i := range numItems {
		f.Visit(fmt.Sprintf("https://example.com/added/%d", i))
	}

	falsePositives := 0
	for i := range testProbes {
		if f.Test(fmt.Sprintf("https://example.com/notadded/%d", i)) {
			falsePositives++
		}
	}

	// Allow up to 2% to account for statistical variance
	actualRate := float64(falsePositives) / float64(testProbes)
	assert.Less(t, actualRate, 0.02, "false positive rate %f exceeds 2%%", actualRate)
}
