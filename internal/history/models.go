package history

import (
	"time"

	"callshield/internal/calls"
)

// Entry is an append-only record of one terminal routing action.
//
// Invariants:
// - Entries are never updated or deleted.
// - DeviceID and Action are required.
// - Recording is best-effort; a failed append never blocks routing.
type Entry struct {
	ID       string        `json:"id" db:"id"`
	DeviceID string        `json:"device_id" db:"device_id"`
	CallerID string        `json:"caller_id" db:"caller_id"`
	Action   calls.Outcome `json:"action" db:"action"`

	// RedirectTo is set only for redirected calls.
	RedirectTo string `json:"redirect_to,omitempty" db:"redirect_to"`
	Message    string `json:"message,omitempty" db:"message"`

	// BackendOK is the success flag of the routing response; false for fallbacks.
	BackendOK bool `json:"backend_ok" db:"backend_ok"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
