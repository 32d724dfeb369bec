package infra

import (
	"fmt"
	"sync"
	"time"
)

// ClientStats reports a client's current request counts and remaining
// quota in both windows.
type ClientStats struct {
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
	LimitMinute        int `json:"limit_minute"`
	LimitHour          int `json:"limit_hour"`
	RemainingMinute    int `json:"remaining_minute"`
	RemainingHour      int `json:"remaining_hour"`
}

// ClientLimiter tracks per-client request timestamps in two sliding
// windows (one minute, one hour) and rejects requests over the
// configured limits. Timestamps are pruned lazily on each check.
//
// The hourly rejection message names a 15-minute retry deadline, but
// the deadline is advisory: admission is governed purely by the
// rolling hour-window count.
type ClientLimiter struct {
	mu             sync.Mutex
	perMinute      int
	perHour        int
	minuteRequests map[string][]time.Time
	hourRequests   map[string][]time.Time
	now            func() time.Time // injectable for tests
}

// NewClientLimiter creates a limiter allowing perMinute requests per
// rolling minute and perHour per rolling hour, per client.
func NewClientLimiter(perMinute, perHour int) *ClientLimiter {
	return &ClientLimiter{
		perMinute:      perMinute,
		perHour:        perHour,
		minuteRequests: make(map[string][]time.Time),
		hourRequests:   make(map[string][]time.Time),
		now:            time.Now,
	}
}

// Limits returns the configured per-minute and per-hour limits.
func (l *ClientLimiter) Limits() (int, int) {
	return l.perMinute, l.perHour
}

// Allow reports whether the client may make another request. On
// rejection the second return value carries a human-readable reason.
func (l *ClientLimiter) Allow(client string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minuteRequests[client] = prune(l.minuteRequests[client], now.Add(-time.Minute))
	l.hourRequests[client] = prune(l.hourRequests[client], now.Add(-time.Hour))

	if len(l.minuteRequests[client]) >= l.perMinute {
		return false, fmt.Sprintf("Rate limit exceeded: %d requests/min", l.perMinute)
	}
	if len(l.hourRequests[client]) >= l.perHour {
		freezeUntil := now.Add(15 * time.Minute)
		return false, fmt.Sprintf("Hourly limit hit. Frozen until %s", freezeUntil.Format("15:04"))
	}
	return true, ""
}

// Record appends the current timestamp to both of the client's
// windows. Call only after Allow admitted the request.
func (l *ClientLimiter) Record(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.minuteRequests[client] = append(l.minuteRequests[client], now)
	l.hourRequests[client] = append(l.hourRequests[client], now)
}

// Stats returns the client's current window counts and remaining quota.
func (l *ClientLimiter) Stats(client string) ClientStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minuteCount := countSince(l.minuteRequests[client], now.Add(-time.Minute))
	hourCount := countSince(l.hourRequests[client], now.Add(-time.Hour))

	return ClientStats{
		RequestsLastMinute: minuteCount,
		RequestsLastHour:   hourCount,
		LimitMinute:        l.perMinute,
		LimitHour:          l.perHour,
		RemainingMinute:    l.perMinute - minuteCount,
		RemainingHour:      l.perHour - hourCount,
	}
}

// prune drops timestamps at or before cutoff.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
