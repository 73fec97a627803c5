package probe

import (
	"context"
	"strings"
	"sync"

	"github.com/fwojciec/autoprobe"
	"golang.org/x/time/rate"
)

var _ autoprobe.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter spaces out fetches per host. Tasks against different hosts
// proceed concurrently; tasks against the same host share one token bucket
// with a burst of 1.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

// NewDomainLimiter creates a DomainLimiter allowing rps fetches per second
// to each host. A non-positive rps disables limiting.
func NewDomainLimiter(rps float64) *DomainLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &DomainLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

// Wait blocks until a fetch to host is allowed or ctx is done. Host names
// are compared case-insensitively.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	key := strings.ToLower(host)

	d.mu.Lock()
	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(d.limit, 1)
		d.limiters[key] = l
	}
	d.mu.Unlock()

	return l.Wait(ctx)
}
