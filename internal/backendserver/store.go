package backendserver

import (
	"sync"
	"time"

	"callshield/internal/backend"
	"callshield/internal/calls"
)

const maxCallRecords = 1000

// CallRecord is one routing request seen by the backend.
type CallRecord struct {
	ID             string             `json:"id"`
	CallerID       string             `json:"callerId"`
	DeviceID       string             `json:"deviceId,omitempty"`
	Source         string             `json:"source"`
	RequestAction  string             `json:"requestAction,omitempty"`
	Decision       backend.Action     `json:"decision"`
	RedirectNumber string             `json:"redirectNumber,omitempty"`
	Timestamp      string             `json:"timestamp"`
	ReceivedAt     time.Time          `json:"receivedAt"`
	FinalStatus    calls.NotifyStatus `json:"finalStatus,omitempty"`

	// Set on provider webhook calls only.
	ProviderCallID  string `json:"providerCallId,omitempty"`
	Persona         string `json:"persona,omitempty"`
	CallStatus      string `json:"callStatus,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Device is a registered agent.
type Device struct {
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	Platform     string    `json:"platform"`
	RegisteredAt string    `json:"registeredAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Summary is the dashboard analytics payload.
type Summary struct {
	TotalCallsToday      int `json:"total_calls_today"`
	BlockedCallsToday    int `json:"blocked_calls_today"`
	RedirectedCallsToday int `json:"redirected_calls_today"`
	AllowedCallsToday    int `json:"allowed_calls_today"`
	RegisteredDevices    int `json:"registered_devices"`
	BlockedNumbers       int `json:"blocked_numbers"`

	// Decoy persona calls completed today.
	AvgDurationToday     float64 `json:"avg_duration_today"`
	MostEffectivePersona string  `json:"most_effective_persona"`
	TotalTimeWasted      int     `json:"total_time_wasted"`
}

// NoPersona is reported as the most effective persona before any decoy
// call completes.
const NoPersona = "None"


// Store is the in-memory state of the reference backend.
type Store struct {
	mu      sync.RWMutex
	calls   []CallRecord
	devices map[string]Device
}

func NewStore() *Store { return &Store{devices: map[string]Device{}} }

func (s *Store) AddCall(r CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r)
	if len(s.calls) > maxCallRecords {
		s.calls = append([]CallRecord(nil), s.calls[len(s.calls)-maxCallRecords:]...)
	}
}

// UpdateStatus sets the final status on the newest call from callerID.
func (s *Store) UpdateStatus(callerID string, status calls.NotifyStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].CallerID == callerID {
			s.calls[i].FinalStatus = status
			return true
		}
	}
	return false
}

// FinishProviderCall records the provider's final status and duration on
// the call with the given provider id.
func (s *Store) FinishProviderCall(providerCallID, status string, durationSeconds int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].ProviderCallID == providerCallID {
			s.calls[i].CallStatus = status
			s.calls[i].DurationSeconds = durationSeconds
			return true
		}
	}
	return false
}

// History returns the last limit calls in arrival order and the total stored.
func (s *Store) History(limit int) ([]CallRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.calls)
	start := 0
	if limit >= 0 && limit < n {
		start = n - limit
	}
	return append([]CallRecord{}, s.calls[start:]...), n
}

// Recent returns up to limit calls, newest first.
func (s *Store) Recent(limit int) []CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallRecord, 0, limit)
	for i := len(s.calls) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.calls[i])
	}
	return out
}

func (s *Store) Call(id string) (CallRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.calls {
		if c.ID == id {
			return c, true
		}
	}
	return CallRecord{}, false
}

func (s *Store) RegisterDevice(id string, d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[id] = d
}

func (s *Store) Devices() map[string]Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Device, len(s.devices))
	for k, v := range s.devices {
		out[k] = v
	}
	return out
}

// ForwardNumber returns the phone number of the most recently seen device
// that registered one.
func (s *Store) ForwardNumber() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best string
		seen time.Time
	)
	for _, d := range s.devices {
		if d.PhoneNumber != "" && d.LastSeen.After(seen) {
			best, seen = d.PhoneNumber, d.LastSeen
		}
	}
	return best
}

// Summarize counts calls received on the same UTC day as now.
func (s *Store) Summarize(now time.Time, blockedNumbers int) Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := dayStart(now)

	out := Summary{RegisteredDevices: len(s.devices), BlockedNumbers: blockedNumbers, MostEffectivePersona: NoPersona}
	for _, c := range s.calls {
		if c.ReceivedAt.Before(start) {
			continue
		}
		out.TotalCallsToday++
		switch c.Decision {
		case backend.ActionReject:
			out.BlockedCallsToday++
		case backend.ActionRedirect:
			out.RedirectedCallsToday++
		case backend.ActionAllow:
			out.AllowedCallsToday++
		}
	}
	return out
}

func dayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
