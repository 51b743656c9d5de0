package poller

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Cadence is the normal poll rhythm: a fixed interval, or a standard cron
// expression when operators want polling aligned to wall-clock times.
// Rate-limit waits and failure backoff always override it.
type Cadence struct {
	interval time.Duration
	sched    cron.Schedule
}

// ParseCadence builds a Cadence from the configured interval and optional
// cron spec. The spec, when present, wins.
func ParseCadence(interval time.Duration, spec string) (Cadence, error) {
	if interval <= 0 {
		return Cadence{}, fmt.Errorf("poll interval must be > 0, got %s", interval)
	}
	c := Cadence{interval: interval}

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return c, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Cadence{}, fmt.Errorf("poll.schedule %q: %w", spec, err)
	}
	c.sched = sched
	return c, nil
}

// Next returns how long to sleep after a successful poll at now.
func (c Cadence) Next(now time.Time) time.Duration {
	if c.sched != nil {
		d := c.sched.Next(now).Sub(now)
		if d <= 0 {
			d = time.Second
		}
		return d
	}
	return c.interval
}

// Interval returns the fixed interval (the backoff base).
func (c Cadence) Interval() time.Duration { return c.interval }
