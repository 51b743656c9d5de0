// Package notify turns feed items into desktop notifications and resolves
// activation signals back to the link each notification carried.
package notify

import "context"

// Handle identifies one displayed notification. It is assigned by the
// notification surface and is only meaningful while that notification is
// (or was very recently) on screen.
type Handle uint32

// Payload is what the surface displays.
type Payload struct {
	Summary string
	Body    string
	// Clickable registers a default action so the server reports activation.
	Clickable bool
}

// EventKind discriminates surface events.
type EventKind int

const (
	// EventActivated means the user invoked the notification's default action.
	EventActivated EventKind = iota
	// EventClosed means the notification left the screen without activation.
	EventClosed
)

// Event is an asynchronous signal from the notification surface.
type Event struct {
	Kind   EventKind
	Handle Handle
}

// Surface is the abstract "show notification" capability. Implementations
// must emit an Event on the Events channel for every activation and closure
// of a handle they returned from Show.
type Surface interface {
	Show(ctx context.Context, p Payload) (Handle, error)
	Events() <-chan Event
}

// Opener is the abstract "open external link" capability. Fire-and-forget:
// callers log failures and move on.
type Opener interface {
	Open(ctx context.Context, url string) error
}
