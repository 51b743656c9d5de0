package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuth marks a rejected credential. It is fatal: the poll loop stops and
// the error surfaces to the process boundary.
var ErrAuth = errors.New("authentication failed")

// RateLimitedError means the caller must not fetch again before RetryAt.
// It is returned both for server 403/429 responses and locally when a fetch
// is attempted before the X-Poll-Interval window has elapsed.
type RateLimitedError struct {
	RetryAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.RetryAt.Format(time.RFC3339))
}

// TransientError wraps network failures, timeouts and 5xx responses.
// Callers retry these with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }
