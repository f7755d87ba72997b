package detection

import (
	"context"
	"errors"

	"callshield/internal/calls"
)

var (
	ErrUnsupportedPlatform = errors.New("detection: call detection not supported on this platform")
	ErrNotRunning          = errors.New("detection: source not running")
	ErrInvalidEvent        = errors.New("detection: invalid event")
)

// Handler consumes one call event.
type Handler func(ctx context.Context, ev calls.Event)

// Handlers is the callback set registered on Start. Nil handlers are skipped.
type Handlers struct {
	OnIncoming     Handler
	OnAnswered     Handler
	OnDisconnected Handler
}

func (h Handlers) dispatch(ctx context.Context, ev calls.Event) {
	var fn Handler
	switch ev.Status {
	case calls.EventIncoming:
		fn = h.OnIncoming
	case calls.EventAnswered:
		fn = h.OnAnswered
	case calls.EventDisconnected:
		fn = h.OnDisconnected
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

// Source is the device capability that observes telephony events.
// The orchestrator only depends on this interface.
type Source interface {
	// Supported reports whether the current platform can deliver events.
	Supported() bool
	// RequestPermissions acquires whatever the platform requires; false means denied.
	RequestPermissions(ctx context.Context) bool
	Start(ctx context.Context, h Handlers) error
	Stop()
	Running() bool
}

// Unsupported is the source used where no call detection exists.
type Unsupported struct {
	Platform string
}

func (Unsupported) Supported() bool { return false }
func (Unsupported) RequestPermissions(context.Context) bool { return false }
func (Unsupported) Start(context.Context, Handlers) error { return ErrUnsupportedPlatform }
func (Unsupported) Stop() {}
func (Unsupported) Running() bool { return false }
