// Package poller runs the fetch/dedup/dispatch loop.
package poller

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"ghnotifyd/internal/dedup"
	"ghnotifyd/internal/github"
	"ghnotifyd/internal/metrics"
	"ghnotifyd/internal/notify"
	"ghnotifyd/pkg/logx"
)

// FeedClient is the slice of the GitHub client the loop needs.
type FeedClient interface {
	Fetch(ctx context.Context) ([]github.Notification, error)
}

// Dispatcher is the slice of the notification dispatcher the loop needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, item github.Notification) (notify.Handle, error)
}

type Config struct {
	Cadence Cadence
	// BackoffMax caps the exponential backoff after consecutive transient
	// failures. The backoff base is the cadence interval.
	BackoffMax time.Duration
}

// Poller drives the cycle: fetch, sync + filter the dedup set, dispatch new
// items in feed order, sleep. Transient failures back off exponentially,
// server rate limits are honored exactly, and an authentication failure is
// the only error that escapes Run.
type Poller struct {
	cfg        Config
	client     FeedClient
	tracker    *dedup.Tracker
	dispatcher Dispatcher
	mc         *metrics.Collector
	log        logx.Logger

	rng *rand.Rand
}

func New(cfg Config, client FeedClient, tracker *dedup.Tracker, dispatcher Dispatcher, mc *metrics.Collector, log logx.Logger) *Poller {
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cfg:        cfg,
		client:     client,
		tracker:    tracker,
		dispatcher: dispatcher,
		mc:         mc,
		log:        log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run polls until ctx is canceled. The first fetch happens immediately.
//
// Returns nil on cancellation; a non-nil return is an authentication failure
// the process owner must surface.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0

	for {
		delay, err := p.cycle(ctx, &failures)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// cycle performs one fetch and returns how long to sleep before the next.
func (p *Poller) cycle(ctx context.Context, failures *int) (time.Duration, error) {
	items, err := p.client.Fetch(ctx)

	switch {
	case err == nil:
		p.handleItems(ctx, items)
		*failures = 0
		return p.cfg.Cadence.Next(time.Now()), nil

	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return 0, nil

	case errors.Is(err, github.ErrAuth):
		p.mc.RecordPoll(metrics.OutcomeAuthError)
		p.log.Error("credential rejected; stopping", logx.Err(err))
		return 0, err

	default:
		var rl *github.RateLimitedError
		if errors.As(err, &rl) {
			p.mc.RecordPoll(metrics.OutcomeRateLimited)
			wait := time.Until(rl.RetryAt)
			if wait < time.Second {
				wait = time.Second
			}
			p.log.Debug("rate limited", logx.Time("retry_at", rl.RetryAt), logx.Duration("wait", wait))
			return wait, nil
		}

		*failures++
		p.mc.RecordPoll(metrics.OutcomeTransient)
		wait := p.backoff(*failures)
		p.log.Warn("fetch failed", logx.Err(err), logx.Int("consecutive", *failures), logx.Duration("backoff", wait))
		return wait, nil
	}
}

func (p *Poller) handleItems(ctx context.Context, items []github.Notification) {
	// A nil slice is a "no changes" response: the conditional fetch matched,
	// nothing was listed, and the dedup set must not be touched. A non-nil
	// (possibly empty) slice is a complete unread listing.
	if items == nil {
		p.mc.RecordPoll(metrics.OutcomeNotModified)
		return
	}
	p.mc.RecordPoll(metrics.OutcomeSuccess)

	p.tracker.Sync(items)
	fresh := p.tracker.FilterNew(items)
	p.mc.SetDedupSize(p.tracker.Len())
	if len(fresh) == 0 {
		return
	}

	p.log.Info("new notifications", logx.Int("count", len(fresh)))
	for _, item := range fresh {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.dispatcher.Dispatch(ctx, item); err != nil {
			// Already marked seen: dropping beats re-showing it every cycle.
			p.log.Warn("notification dropped", logx.String("id", item.ID), logx.Err(err))
		}
	}
}

// backoff returns the jittered exponential delay for the nth consecutive
// failure, based on the cadence interval and capped at BackoffMax.
func (p *Poller) backoff(failures int) time.Duration {
	wait := p.cfg.Cadence.Interval()
	for i := 1; i < failures && wait < p.cfg.BackoffMax; i++ {
		wait *= 2
	}
	if wait > p.cfg.BackoffMax {
		wait = p.cfg.BackoffMax
	}
	// 20% jitter.
	if j := int64(wait) / 5; j > 0 {
		wait += time.Duration(p.rng.Int63n(j + 1))
	}
	return wait
}
