package service

import (
	"sync"

	"golang.org/x/time/rate"
)

// ownerLimiter keeps one token bucket per owner.
type ownerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newOwnerLimiter(perSecond float64, burst int) *ownerLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ownerLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (o *ownerLimiter) Allow(owner string) bool {
	o.mu.Lock()
	l, ok := o.limiters[owner]
	if !ok {
		l = rate.NewLimiter(o.limit, o.burst)
		o.limiters[owner] = l
	}
	o.mu.Unlock()

	return l.Allow()
}
