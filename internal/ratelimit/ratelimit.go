// Package ratelimit throttles authentication-sensitive endpoints per
// client key and endpoint class using token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Endpoint classes with independent budgets.
const (
	ClassLogin        = "login"
	ClassRegister     = "register"
	ClassResetRequest = "reset_request"
)

// Rule describes the budget for one endpoint class: at most Limit events
// per Window, with bursts up to Limit.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules mirror the budgets of the protected endpoints: 10/minute
// for login, 5/minute for registration and reset requests.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ClassLogin:        {Limit: 10, Window: time.Minute},
		ClassRegister:     {Limit: 5, Window: time.Minute},
		ClassResetRequest: {Limit: 5, Window: time.Minute},
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter holds per-(key, class) token buckets. The counters are shared
// mutable state across concurrent requests; reserve-and-check happens
// under one lock so parallel bursts cannot undercount.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	buckets map[string]*bucket
	now     func() time.Time

	idleTTL time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithTimeSource overrides the clock (useful for tests).
func WithTimeSource(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter with the given per-class rules. Unknown classes
// are always allowed; callers should register every class they gate.
func New(rules map[string]Rule, opts ...Option) *Limiter {
	l := &Limiter{
		rules:   rules,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		idleTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request from clientKey against the given
// class fits the budget, consuming a slot when it does.
func (l *Limiter) Allow(clientKey, class string) bool {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := class + "|" + clientKey
	b, ok := l.buckets[key]
	if !ok {
		per := rate.Every(rule.Window / time.Duration(rule.Limit))
		b = &bucket{lim: rate.NewLimiter(per, rule.Limit)}
		l.buckets[key] = b
	}
	b.seen = l.now()
	return b.lim.AllowN(b.seen, 1)
}

// RetryAfter returns the wait hint surfaced alongside a rejection.
func (l *Limiter) RetryAfter(class string) time.Duration {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 {
		return 0
	}
	return rule.Window / time.Duration(rule.Limit)
}

// Sweep drops buckets idle longer than the eviction TTL. Run it
// periodically so one-off clients do not pin memory.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cut := l.now().Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.seen.Before(cut) {
			delete(l.buckets, k)
		}
	}
}

// RunSweeper evicts idle buckets every interval until stop is closed.
func (l *Limiter) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-stop:
			return
		}
	}
}
