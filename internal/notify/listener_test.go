package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ghnotifyd/pkg/logx"
)

type fakeResolver struct {
	html string
	err  error
}

func (f *fakeResolver) ResolveHTMLURL(_ context.Context, apiURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (f *fakeOpener) Open(_ context.Context, url string) error {
	f.mu.Lock()
	f.opened = append(f.opened, url)
	f.mu.Unlock()
	return nil
}

func (f *fakeOpener) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := append([]string(nil), f.opened...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d opened urls", n)
	return nil
}

func startListener(t *testing.T, surface *fakeSurface, d *Dispatcher, r URLResolver, o Opener) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l := NewListener(surface, d, r, o, logx.Nop())
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestListenerOpensResolvedLink(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())
	opener := &fakeOpener{}
	startListener(t, surface, d, &fakeResolver{html: "https://example.com/issue/1"}, opener)

	h, err := d.Dispatch(context.Background(), item("1", "x", "https://api.example/issues/1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	surface.events <- Event{Kind: EventActivated, Handle: h}
	got := opener.wait(t, 1)
	if got[0] != "https://example.com/issue/1" {
		t.Fatalf("opened %q, want resolved html url", got[0])
	}
	if d.DisplayedCount() != 0 {
		t.Fatalf("activation must consume the mapping")
	}
}

func TestListenerFallsBackToAPIURL(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())
	opener := &fakeOpener{}
	startListener(t, surface, d, &fakeResolver{err: errors.New("boom")}, opener)

	h, err := d.Dispatch(context.Background(), item("1", "x", "https://api.example/issues/1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	surface.events <- Event{Kind: EventActivated, Handle: h}
	got := opener.wait(t, 1)
	if got[0] != "https://api.example/issues/1" {
		t.Fatalf("opened %q, want api url fallback", got[0])
	}
}

func TestListenerIgnoresUnknownActivation(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())
	opener := &fakeOpener{}
	startListener(t, surface, d, &fakeResolver{html: "https://x"}, opener)

	surface.events <- Event{Kind: EventActivated, Handle: 99}
	surface.events <- Event{Kind: EventClosed, Handle: 100}

	// Give the listener time to (not) act.
	time.Sleep(50 * time.Millisecond)
	opener.mu.Lock()
	defer opener.mu.Unlock()
	if len(opener.opened) != 0 {
		t.Fatalf("unexpected opens: %v", opener.opened)
	}
}

func TestListenerClosedEventDropsMapping(t *testing.T) {
	surface := newFakeSurface()
	d := NewDispatcher(surface, nil, logx.Nop())
	opener := &fakeOpener{}
	startListener(t, surface, d, &fakeResolver{html: "https://x"}, opener)

	h, err := d.Dispatch(context.Background(), item("1", "x", "https://a"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	surface.events <- Event{Kind: EventClosed, Handle: h}

	deadline := time.Now().Add(2 * time.Second)
	for d.DisplayedCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("closed event did not drop mapping")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
