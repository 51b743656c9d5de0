package notify

import (
	"context"
	"time"

	"ghnotifyd/pkg/logx"
)

// URLResolver exchanges an API subject URL for a browser-facing one.
type URLResolver interface {
	ResolveHTMLURL(ctx context.Context, apiURL string) (string, error)
}

const resolveTimeout = 15 * time.Second

// Listener is the inbound half of the pipeline: it consumes surface events
// concurrently with the poll loop, resolves activations to links and opens
// them. It shares no state with the poller beyond the dispatcher's handle map.
type Listener struct {
	surface    Surface
	dispatcher *Dispatcher
	resolver   URLResolver
	opener     Opener
	log        logx.Logger
}

func NewListener(surface Surface, dispatcher *Dispatcher, resolver URLResolver, opener Opener, log logx.Logger) *Listener {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Listener{
		surface:    surface,
		dispatcher: dispatcher,
		resolver:   resolver,
		opener:     opener,
		log:        log,
	}
}

// Run consumes surface events until ctx is canceled or the surface closes its
// event stream.
func (l *Listener) Run(ctx context.Context) error {
	events := l.surface.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.handle(ctx, ev)
		}
	}
}

func (l *Listener) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventActivated:
		url, ok := l.dispatcher.OnActivated(ev.Handle)
		if !ok {
			// Unknown or already consumed; also the normal case for
			// notifications shown without a click action.
			l.log.Debug("activation for unknown handle", logx.Uint32("handle", uint32(ev.Handle)))
			return
		}
		l.open(ctx, ev.Handle, url)

	case EventClosed:
		l.dispatcher.OnClosed(ev.Handle)
	}
}

func (l *Listener) open(ctx context.Context, h Handle, apiURL string) {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	url, err := l.resolver.ResolveHTMLURL(rctx, apiURL)
	if err != nil {
		// The API URL still renders; better than swallowing the click.
		l.log.Warn("html_url resolution failed; opening api url", logx.String("url", apiURL), logx.Err(err))
		url = apiURL
	}

	l.log.Info("opening link", logx.Uint32("handle", uint32(h)), logx.String("url", url))
	if err := l.opener.Open(ctx, url); err != nil {
		l.log.Warn("open failed", logx.String("url", url), logx.Err(err))
	}
}
