// Package desktop provides the concrete collaborators of the notification
// core: the freedesktop.org notification surface (session D-Bus) and the
// external link opener.
package desktop

import (
	"context"
	"fmt"
	"time"

	dbus "github.com/godbus/dbus/v5"

	"ghnotifyd/internal/notify"
	"ghnotifyd/pkg/logx"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyIface = "org.freedesktop.Notifications"

	sigActionInvoked      = notifyIface + ".ActionInvoked"
	sigNotificationClosed = notifyIface + ".NotificationClosed"

	// actionDefault is the well-known key the server reports when the user
	// clicks the notification body.
	actionDefault = "default"
)

type SurfaceConfig struct {
	AppName string
	Icon    string
	// ExpireTimeout of 0 leaves the on-screen duration to the server.
	ExpireTimeout time.Duration
}

// Surface shows notifications via org.freedesktop.Notifications and forwards
// the server's ActionInvoked/NotificationClosed signals as notify.Events.
type Surface struct {
	cfg  SurfaceConfig
	conn *dbus.Conn
	obj  dbus.BusObject
	log  logx.Logger

	sigs   chan *dbus.Signal
	events chan notify.Event
}

var _ notify.Surface = (*Surface)(nil)

func NewSurface(cfg SurfaceConfig, log logx.Logger) (*Surface, error) {
	if cfg.AppName == "" {
		cfg.AppName = "ghnotifyd"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(notifyPath),
			dbus.WithMatchInterface(notifyIface),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("match %s: %w", member, err)
		}
	}

	s := &Surface{
		cfg:    cfg,
		conn:   conn,
		obj:    conn.Object(notifyDest, notifyPath),
		log:    log,
		sigs:   make(chan *dbus.Signal, 64),
		events: make(chan notify.Event, 64),
	}
	conn.Signal(s.sigs)
	go s.pump()
	return s, nil
}

// Show displays one notification and returns the server-assigned id.
func (s *Surface) Show(ctx context.Context, p notify.Payload) (notify.Handle, error) {
	actions := []string{}
	if p.Clickable {
		actions = []string{actionDefault, "Open"}
	}

	expire := int32(-1) // server default
	if s.cfg.ExpireTimeout > 0 {
		expire = int32(s.cfg.ExpireTimeout / time.Millisecond)
	}

	call := s.obj.CallWithContext(ctx, notifyIface+".Notify", 0,
		s.cfg.AppName,
		uint32(0), // replaces_id: never replace
		s.cfg.Icon,
		p.Summary,
		p.Body,
		actions,
		map[string]dbus.Variant{},
		expire,
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("Notify: %w", err)
	}
	return notify.Handle(id), nil
}

func (s *Surface) Events() <-chan notify.Event { return s.events }

// Close tears down the bus connection. The events channel stays open; readers
// should stop via their own context.
func (s *Surface) Close() error {
	s.conn.RemoveSignal(s.sigs)
	return s.conn.Close()
}

// pump translates raw bus signals into surface events. It exits when the
// connection closes and the signal channel is drained.
func (s *Surface) pump() {
	for sig := range s.sigs {
		ev, ok := translateSignal(sig)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		default:
			// Surface events are advisory; a stalled consumer must not wedge
			// the bus reader.
			s.log.Warn("surface event dropped", logx.Uint32("handle", uint32(ev.Handle)))
		}
	}
}

func translateSignal(sig *dbus.Signal) (notify.Event, bool) {
	switch sig.Name {
	case sigActionInvoked:
		if len(sig.Body) != 2 {
			return notify.Event{}, false
		}
		id, ok1 := sig.Body[0].(uint32)
		key, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 || key != actionDefault {
			return notify.Event{}, false
		}
		return notify.Event{Kind: notify.EventActivated, Handle: notify.Handle(id)}, true

	case sigNotificationClosed:
		if len(sig.Body) < 1 {
			return notify.Event{}, false
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return notify.Event{}, false
		}
		return notify.Event{Kind: notify.EventClosed, Handle: notify.Handle(id)}, true
	}
	return notify.Event{}, false
}
