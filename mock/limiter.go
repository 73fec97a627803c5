package mock

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter is a mock implementation of autoprobe.DomainLimiter.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return l.WaitFn(ctx, domain)
}

var _ autoprobe.VisitedSet = (*VisitedSet)(nil)

// VisitedSet is a mock implementation of autoprobe.VisitedSet.
type VisitedSet struct {
	VisitFn func(url string) bool
}

func (v *VisitedSet) Visit(url string) bool {
	return v.VisitFn(url)
}
