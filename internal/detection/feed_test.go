package detection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callshield/internal/calls"
)

func TestFeed_DispatchesByStatus(t *testing.T) {
	f := NewFeed(nil)
	var got []calls.EventStatus
	rec := func(ctx context.Context, ev calls.Event) { got = append(got, ev.Status) }
	if err := f.Start(context.Background(), Handlers{OnIncoming: rec, OnAnswered: rec, OnDisconnected: rec}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, s := range []calls.EventStatus{calls.EventIncoming, calls.EventAnswered, calls.EventDisconnected} {
		if err := f.Emit(context.Background(), calls.Event{CallerID: "+1", Status: s}); err != nil {
			t.Fatalf("emit %s: %v", s, err)
		}
	}
	if len(got) != 3 || got[0] != calls.EventIncoming || got[2] != calls.EventDisconnected {
		t.Fatalf("unexpected dispatch order: %v", got)
	}
}

func TestFeed_RejectsWhenStoppedOrInvalid(t *testing.T) {
	f := NewFeed(nil)
	if err := f.Emit(context.Background(), calls.Event{CallerID: "+1", Status: calls.EventIncoming}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}

	_ = f.Start(context.Background(), Handlers{})
	if err := f.Emit(context.Background(), calls.Event{CallerID: " ", Status: calls.EventIncoming}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := f.Emit(context.Background(), calls.Event{CallerID: "+1", Status: "ringing"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}

	f.Stop()
	if f.Running() {
		t.Fatalf("expected stopped")
	}
}

func TestFeed_StampsMissingTimestamp(t *testing.T) {
	f := NewFeed(nil)
	fixed := time.Unix(1700000000, 0).UTC()
	f.now = func() time.Time { return fixed }

	var ts time.Time
	_ = f.Start(context.Background(), Handlers{OnIncoming: func(ctx context.Context, ev calls.Event) { ts = ev.Timestamp }})
	_ = f.Emit(context.Background(), calls.Event{CallerID: "+1", Status: calls.EventIncoming})
	if !ts.Equal(fixed) {
		t.Fatalf("expected stamped timestamp, got %v", ts)
	}
}

func TestFeed_SerializesDelivery(t *testing.T) {
	f := NewFeed(nil)
	var inFlight, maxInFlight int32
	_ = f.Start(context.Background(), Handlers{OnIncoming: func(ctx context.Context, ev calls.Event) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Emit(context.Background(), calls.Event{CallerID: "+1", Status: calls.EventIncoming})
		}()
	}
	wg.Wait()
	if maxInFlight != 1 {
		t.Fatalf("expected serialized delivery, saw %d concurrent handlers", maxInFlight)
	}
}

func TestFeed_PermissionCallback(t *testing.T) {
	if !NewFeed(nil).RequestPermissions(context.Background()) {
		t.Fatalf("expected nil permit to grant")
	}
	if NewFeed(func(context.Context) bool { return false }).RequestPermissions(context.Background()) {
		t.Fatalf("expected denial")
	}
}

func TestUnsupported(t *testing.T) {
	var s Source = Unsupported{Platform: "ios"}
	if s.Supported() || s.RequestPermissions(context.Background()) || s.Running() {
		t.Fatalf("expected unsupported source to report nothing")
	}
	if err := s.Start(context.Background(), Handlers{}); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}
