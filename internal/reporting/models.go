package reporting

import (
	"time"

	"callshield/internal/calls"
)

// Stats are the in-memory routing counters of one agent process.
//
// Invariant: RoutedCalls + RejectedCalls + AllowedCalls + UnknownCalls <= TotalCalls,
// with equality once every started call has completed.
type Stats struct {
	TotalCalls    int       `json:"total_calls"`
	RoutedCalls   int       `json:"routed_calls"`
	RejectedCalls int       `json:"rejected_calls"`
	AllowedCalls  int       `json:"allowed_calls"`
	UnknownCalls  int       `json:"unknown_calls"`
	LastCall      *LastCall `json:"last_call,omitempty"`
}

type LastCall struct {
	CallerID  string        `json:"caller_id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    calls.Outcome `json:"action"`
}

// Pending is the number of started calls that have not reached a terminal action.
func (s Stats) Pending() int {
	return s.TotalCalls - s.RoutedCalls - s.RejectedCalls - s.AllowedCalls - s.UnknownCalls
}
