package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter tracks request rates and daily quotas per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients   map[string]*clientUsage
	lastSweep time.Time
	now       func() time.Time
}

// clientUsage counts requests in fixed windows that start with the first
// request of the window.
type clientUsage struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
	day         time.Time
	dayCount    int
	dayBytes    int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	BytesToday         int64
}

// NewRateLimiter creates a rate limiter. A zero limit is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// Allow records a request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	u := rl.usage(client, now)
	rl.roll(u, now)

	if rl.requestsPerMinute > 0 && u.minuteCount >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.hourCount >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.day.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.dayCount >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.dayCount), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.dayBytes+size > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.dayBytes, Resets: resets}
	}

	u.minuteCount++
	u.hourCount++
	u.dayCount++
	u.dayBytes += size
	return nil
}

func (rl *RateLimiter) usage(client string, now time.Time) *clientUsage {
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{minuteStart: now, hourStart: now, day: startOfDay(now)}
		rl.clients[client] = u
	}
	return u
}

// sweep drops clients whose windows have all expired, at most once a minute.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	today := startOfDay(now)
	for client, u := range rl.clients {
		if u.day.Before(today) && now.Sub(u.hourStart) >= time.Hour {
			delete(rl.clients, client)
		}
	}
}

func (rl *RateLimiter) roll(u *clientUsage, now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minuteCount = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hourCount = now, 0
	}
	if day := startOfDay(now); !day.Equal(u.day) {
		u.day, u.dayCount, u.dayBytes = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Usage returns the current counters of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	rl.roll(u, rl.now())
	return Usage{
		RequestsLastMinute: u.minuteCount,
		RequestsLastHour:   u.hourCount,
		RequestsToday:      u.dayCount,
		BytesToday:         u.dayBytes,
	}
}

// RateLimitError reports a request over the per-minute or per-hour rate.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports a request over a daily quota.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
