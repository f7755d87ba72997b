package reporting

import (
	"sync"
	"time"

	"callshield/internal/calls"
)

// Ticket identifies a call counted by Begin. A ticket issued before the last
// Reset no longer refers to the current counters.
type Ticket struct {
	generation uint64
}

// Tracker records routing outcomes. It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	stats      Stats
	generation uint64
}

func NewTracker() *Tracker { return &Tracker{} }

// Begin counts a new incoming call and marks it as processing.
func (t *Tracker) Begin(callerID string, ts time.Time) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalCalls++
	t.stats.LastCall = &LastCall{CallerID: callerID, Timestamp: ts, Action: calls.OutcomeProcessing}
	return Ticket{generation: t.generation}
}

// Complete records the terminal action of the call behind tk. It reports
// false and changes nothing when Reset ran after the matching Begin.
func (t *Tracker) Complete(tk Ticket, o calls.Outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk.generation != t.generation {
		return false
	}
	switch o {
	case calls.OutcomeRedirected:
		t.stats.RoutedCalls++
	case calls.OutcomeRejected:
		t.stats.RejectedCalls++
	case calls.OutcomeAllowed:
		t.stats.AllowedCalls++
	default:
		o = calls.OutcomeUnknown
		t.stats.UnknownCalls++
	}
	if t.stats.LastCall != nil {
		lc := *t.stats.LastCall
		lc.Action = o
		t.stats.LastCall = &lc
	}
	return true
}

// Snapshot returns a copy; callers may keep it without holding the lock.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if s.LastCall != nil {
		lc := *s.LastCall
		s.LastCall = &lc
	}
	return s
}

// Reset zeroes the counters. Calls still in flight are not counted afterwards.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{}
	t.generation++
}
