package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ghnotifyd/internal/github"
	"ghnotifyd/internal/metrics"
	"ghnotifyd/pkg/logx"
)

// ErrSurfaceUnavailable means the notification surface rejected or could not
// receive the show request. The item is dropped, not retried: it is already
// marked seen upstream, and a missed alert beats a duplicate storm.
var ErrSurfaceUnavailable = errors.New("notification surface unavailable")

// Dispatcher maps feed items to displayed notifications and remembers, per
// displayed handle, the URL to open on activation.
type Dispatcher struct {
	surface Surface
	log     logx.Logger
	mc      *metrics.Collector

	// mu is held across Show and the map insertion so an activation lookup
	// for a handle can never observe the map without its entry: no handle is
	// returned to anyone before its URL is recorded.
	mu        sync.Mutex
	displayed map[Handle]string
}

func NewDispatcher(surface Surface, mc *metrics.Collector, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		surface:   surface,
		log:       log,
		mc:        mc,
		displayed: make(map[Handle]string),
	}
}

// Dispatch shows one item. On success the returned handle is already mapped
// to the item's target URL (when it has one). Items without a target URL are
// shown without a click action and never enter the map.
func (d *Dispatcher) Dispatch(ctx context.Context, item github.Notification) (Handle, error) {
	p := buildPayload(item)

	d.mu.Lock()
	defer d.mu.Unlock()

	h, err := d.surface.Show(ctx, p)
	if err != nil {
		d.mc.RecordNotificationDropped()
		return 0, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	if p.Clickable {
		d.displayed[h] = item.TargetURL()
	}
	d.mc.RecordNotificationShown()
	d.log.Debug("notification shown",
		logx.Uint32("handle", uint32(h)),
		logx.String("id", item.ID),
		logx.String("repo", item.Repository.FullName),
		logx.String("reason", item.Reason),
	)
	return h, nil
}

// OnActivated consumes the map entry for a handle, returning the URL to open.
// Unknown or already-consumed handles return ok=false with no side effect.
func (d *Dispatcher) OnActivated(h Handle) (url string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	url, ok = d.displayed[h]
	if ok {
		delete(d.displayed, h)
		d.mc.RecordNotificationActivated()
	}
	return url, ok
}

// OnClosed drops the map entry for a handle the surface reports closed,
// keeping the invariant that mapped handles correspond to displayed
// notifications.
func (d *Dispatcher) OnClosed(h Handle) {
	d.mu.Lock()
	delete(d.displayed, h)
	d.mu.Unlock()
}

// DisplayedCount returns the number of handles currently mapped.
func (d *Dispatcher) DisplayedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.displayed)
}

func buildPayload(item github.Notification) Payload {
	summary := item.Repository.FullName
	if summary == "" {
		summary = "GitHub"
	}
	body := item.Subject.Title
	if item.Subject.Type != "" || item.Reason != "" {
		body = fmt.Sprintf("%s (%s/%s)", item.Subject.Title, item.Subject.Type, item.Reason)
	}
	return Payload{
		Summary:   summary,
		Body:      body,
		Clickable: item.TargetURL() != "",
	}
}
