package poller

import (
	"testing"
	"time"
)

func TestCadenceFixedInterval(t *testing.T) {
	c, err := ParseCadence(45*time.Second, "")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	if got := c.Next(time.Now()); got != 45*time.Second {
		t.Fatalf("Next = %s, want 45s", got)
	}
	if got := c.Interval(); got != 45*time.Second {
		t.Fatalf("Interval = %s, want 45s", got)
	}
}

func TestCadenceCronSpecWins(t *testing.T) {
	c, err := ParseCadence(time.Minute, "*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCadence: %v", err)
	}
	now := time.Date(2025, 3, 10, 12, 1, 0, 0, time.UTC)
	if got := c.Next(now); got != 4*time.Minute {
		t.Fatalf("Next at 12:01 = %s, want 4m until 12:05", got)
	}
	// Interval stays the backoff base even with a schedule set.
	if got := c.Interval(); got != time.Minute {
		t.Fatalf("Interval = %s, want 1m", got)
	}
}

func TestCadenceRejectsBadInput(t *testing.T) {
	if _, err := ParseCadence(0, ""); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := ParseCadence(time.Minute, "not a cron spec"); err == nil {
		t.Fatal("expected error for malformed schedule")
	}
}
