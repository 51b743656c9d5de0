package notify

import (
	"context"
	"errors"
	"testing"

	"ghnotifyd/internal/github"
	"ghnotifyd/pkg/logx"
)

type fakeSurface struct {
	next   Handle
	err    error
	shown  []Payload
	events chan Event
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{events: make(chan Event, 8)}
}

func (f *fakeSurface) Show(_ context.Context, p Payload) (Handle, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	f.shown = append(f.shown, p)
	return f.next, nil
}

func (f *fakeSurface) Events() <-chan Event { return f.events }

func item(id, title, url string) github.Notification {
	return github.Notification{
		ID:         id,
		Reason:     "mention",
		Repository: github.Repository{FullName: "acme/widget"},
		Subject:    github.Subject{Title: title, URL: url, Type: "Issue"},
	}
}

func TestDispatchRecordsHandleMapping(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())

	h, err := d.Dispatch(context.Background(), item("1", "hello", "https://a"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(surface.shown) != 1 {
		t.Fatalf("expected 1 show call, got %d", len(surface.shown))
	}
	if d.DisplayedCount() != 1 {
		t.Fatalf("expected 1 mapped handle, got %d", d.DisplayedCount())
	}

	url, ok := d.OnActivated(h)
	if !ok || url != "https://a" {
		t.Fatalf("OnActivated = (%q, %v), want (https://a, true)", url, ok)
	}
	// Consumed: a second activation yields nothing.
	if url, ok := d.OnActivated(h); ok {
		t.Fatalf("expected consumed handle, got %q", url)
	}
	if d.DisplayedCount() != 0 {
		t.Fatalf("expected empty map, got %d entries", d.DisplayedCount())
	}
}

func TestDispatchWithoutTargetURL(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())

	h, err := d.Dispatch(context.Background(), item("1", "no link", ""))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(surface.shown) != 1 {
		t.Fatalf("notification without url must still be shown")
	}
	if surface.shown[0].Clickable {
		t.Fatalf("notification without url must not be clickable")
	}
	if _, ok := d.OnActivated(h); ok {
		t.Fatalf("no mapping expected for url-less item")
	}
}

func TestDispatchSurfaceUnavailable(t *testing.T) {
	surface := newFakeSurface()
	surface.err = errors.New("bus gone")
	d := NewDispatcher(surface, nil, logx.Nop())

	_, err := d.Dispatch(context.Background(), item("1", "x", "https://a"))
	if !errors.Is(err, ErrSurfaceUnavailable) {
		t.Fatalf("expected ErrSurfaceUnavailable, got %v", err)
	}
	if d.DisplayedCount() != 0 {
		t.Fatalf("failed dispatch must not map a handle")
	}
}

func TestOnActivatedUnknownHandle(t *testing.T) {
	d := NewDispatcher(newFakeSurface(), nil, logx.Nop())
	if url, ok := d.OnActivated(42); ok {
		t.Fatalf("unknown handle returned %q", url)
	}
}

func TestOnClosedDropsMapping(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())

	h, err := d.Dispatch(context.Background(), item("1", "x", "https://a"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.OnClosed(h)
	if _, ok := d.OnActivated(h); ok {
		t.Fatalf("closed handle must not resolve")
	}
}

func TestPayloadText(t *testing.T) {
	p := buildPayload(item("1", "Fix the flange", "https://a"))
	if p.Summary != "acme/widget" {
		t.Fatalf("Summary = %q", p.Summary)
	}
	if p.Body != "Fix the flange (Issue/mention)" {
		t.Fatalf("Body = %q", p.Body)
	}
	if !p.Clickable {
		t.Fatalf("expected clickable payload")
	}

	p = buildPayload(github.Notification{Subject: github.Subject{Title: "bare"}})
	if p.Summary != "GitHub" {
		t.Fatalf("fallback Summary = %q", p.Summary)
	}
}
