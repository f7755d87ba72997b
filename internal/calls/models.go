package calls

import "time"

// Event is one telephony event observed on the device. It is created by the
// event source, never mutated, and consumed once by the orchestrator.
type Event struct {
	CallerID  string      `json:"caller_id"`
	Timestamp time.Time   `json:"timestamp"`
	Status    EventStatus `json:"status"`
}

type EventStatus string

const (
	EventIncoming     EventStatus = "incoming"
	EventAnswered     EventStatus = "answered"
	EventDisconnected EventStatus = "disconnected"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventIncoming, EventAnswered, EventDisconnected:
		return true
	default:
		return false
	}
}

// NotifyStatus is the status vocabulary of the backend /call-status endpoint.
type NotifyStatus string

const (
	NotifyAnswered NotifyStatus = "answered"
	NotifyRejected NotifyStatus = "rejected"
	NotifyMissed   NotifyStatus = "missed"
)

func (s NotifyStatus) Valid() bool {
	switch s {
	case NotifyAnswered, NotifyRejected, NotifyMissed:
		return true
	default:
		return false
	}
}

// Outcome is what the agent did with an incoming call, as shown in lastCall.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeAllowed    Outcome = "allowed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeRedirected Outcome = "redirected"
	OutcomeUnknown    Outcome = "unknown"
)

// NotifyStatusFor maps a terminal outcome to the status reported to the backend.
// A rejected call reports rejected so the backend can tell blocked calls from
// handled ones; every other outcome reports answered. The mobile client this
// agent replaces reported answered for all outcomes, rejects included.
func NotifyStatusFor(o Outcome) NotifyStatus {
	if o == OutcomeRejected {
		return NotifyRejected
	}
	return NotifyAnswered
}
