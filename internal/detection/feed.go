package detection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"callshield/internal/calls"
)

// Feed is a push-driven Source: events arrive through Emit, typically from the
// control API or a telephony gateway hook. Delivery is serialized, so handlers
// never run concurrently with each other.
type Feed struct {
	mu       sync.Mutex
	handlers Handlers
	running  bool

	deliver sync.Mutex

	permit func(ctx context.Context) bool
	now    func() time.Time
}

// NewFeed returns a Feed. permit decides RequestPermissions; nil grants.
func NewFeed(permit func(ctx context.Context) bool) *Feed {
	return &Feed{permit: permit, now: time.Now}
}

func (f *Feed) Supported() bool { return true }

func (f *Feed) RequestPermissions(ctx context.Context) bool {
	if f.permit == nil {
		return true
	}
	return f.permit(ctx)
}

func (f *Feed) Start(ctx context.Context, h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	f.running = true
	return nil
}

func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = Handlers{}
	f.running = false
}

func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Emit delivers ev to the registered handler and returns once it has run.
// A zero Timestamp is stamped with the current time.
func (f *Feed) Emit(ctx context.Context, ev calls.Event) error {
	ev.CallerID = strings.TrimSpace(ev.CallerID)
	if ev.CallerID == "" || !ev.Status.Valid() {
		return fmt.Errorf("%w: caller %q status %q", ErrInvalidEvent, ev.CallerID, ev.Status)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = f.now()
	}

	f.deliver.Lock()
	defer f.deliver.Unlock()

	f.mu.Lock()
	h, running := f.handlers, f.running
	f.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	h.dispatch(ctx, ev)
	return nil
}
