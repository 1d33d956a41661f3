package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter enforces per-host politeness: a minimum delay between
// consecutive requests to a host and an optional token bucket.
type hostLimiter struct {
	delay    time.Duration
	requests int
	window   time.Duration

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

func newHostLimiter(delay time.Duration, requests int, window time.Duration) *hostLimiter {
	return &hostLimiter{
		delay:    delay,
		requests: requests,
		window:   window,
		last:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *hostLimiter) enabled() bool {
	return l != nil && (l.delay > 0 || l.rateEnabled())
}

func (l *hostLimiter) rateEnabled() bool {
	return l.requests > 0 && l.window > 0
}

// wait blocks until a request to host may be sent.
func (l *hostLimiter) wait(ctx context.Context, host string) error {
	if !l.enabled() || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var (
		sleep   time.Duration
		limiter *rate.Limiter
	)

	l.mu.Lock()
	if l.delay > 0 {
		if last, ok := l.last[host]; ok {
			if rest := time.Until(last.Add(l.delay)); rest > 0 {
				sleep = rest
			}
		}
		// Reserve the slot now so concurrent callers queue behind each other.
		l.last[host] = time.Now().Add(sleep)
	}
	if l.rateEnabled() {
		limiter = l.limiterLocked(host)
	}
	l.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (l *hostLimiter) limiterLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval := l.window / time.Duration(l.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), l.requests)
	l.limiters[host] = limiter
	return limiter
}
