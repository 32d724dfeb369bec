package infra

import (
	"strings"
	"testing"
	"time"
)

func TestLimiterAllowsUnderLimit(t *testing.T) {
	l := NewClientLimiter(5, 100)

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("1.2.3.4")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		l.Record("1.2.3.4")
	}

	allowed, reason := l.Allow("1.2.3.4")
	if allowed {
		t.Fatal("request 6 should be rejected")
	}
	if reason != "Rate limit exceeded: 5 requests/min" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestLimiterPerClientIsolation(t *testing.T) {
	l := NewClientLimiter(1, 100)

	if allowed, _ := l.Allow("10.0.0.1"); !allowed {
		t.Fatal("first client should be allowed")
	}
	l.Record("10.0.0.1")

	if allowed, _ := l.Allow("10.0.0.1"); allowed {
		t.Error("first client should now be over limit")
	}
	if allowed, _ := l.Allow("10.0.0.2"); !allowed {
		t.Error("second client should be unaffected")
	}
}

func TestLimiterMinuteWindowExpiry(t *testing.T) {
	l := NewClientLimiter(2, 100)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	l.Record("c")
	l.Record("c")
	if allowed, _ := l.Allow("c"); allowed {
		t.Fatal("expected rejection at limit")
	}

	// Advance past the minute window.
	clock = clock.Add(61 * time.Second)
	if allowed, _ := l.Allow("c"); !allowed {
		t.Error("expected admission after window expiry")
	}
}

func TestLimiterHourlyFreezeMessage(t *testing.T) {
	l := NewClientLimiter(100, 3)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		l.Record("c")
	}

	allowed, reason := l.Allow("c")
	if allowed {
		t.Fatal("expected hourly rejection")
	}
	if !strings.HasPrefix(reason, "Hourly limit hit. Frozen until ") {
		t.Errorf("unexpected reason: %q", reason)
	}
	// 15 minutes after the injected clock.
	if !strings.HasSuffix(reason, "12:15") {
		t.Errorf("expected freeze time 12:15, got %q", reason)
	}

	// The freeze is advisory: once the rolling hour clears, admission resumes.
	clock = clock.Add(61 * time.Minute)
	if allowed, _ := l.Allow("c"); !allowed {
		t.Error("expected admission after hour window expiry")
	}
}

func TestLimiterStats(t *testing.T) {
	l := NewClientLimiter(10, 100)
	l.Record("c")
	l.Record("c")

	s := l.Stats("c")
	if s.RequestsLastMinute != 2 || s.RequestsLastHour != 2 {
		t.Errorf("expected counts 2/2, got %d/%d", s.RequestsLastMinute, s.RequestsLastHour)
	}
	if s.LimitMinute != 10 || s.LimitHour != 100 {
		t.Errorf("expected limits 10/100, got %d/%d", s.LimitMinute, s.LimitHour)
	}
	if s.RemainingMinute != 8 || s.RemainingHour != 98 {
		t.Errorf("expected remaining 8/98, got %d/%d", s.RemainingMinute, s.RemainingHour)
	}

	// Unknown client reports full quota.
	s = l.Stats("never-seen")
	if s.RequestsLastMinute != 0 || s.RemainingMinute != 10 {
		t.Errorf("expected empty stats for unknown client, got %+v", s)
	}
}
