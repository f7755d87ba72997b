package decoy

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity bounds how many sessions the engine keeps.
const DefaultCapacity = 500

var ErrNoPersonas = errors.New("decoy: no personas configured")

type Speaker string

const (
	SpeakerPersona Speaker = "ai"
	SpeakerCaller  Speaker = "caller"
)

// StatusInProgress is the status of a session until the provider reports
// a final one.
const StatusInProgress = "in-progress"

// StatusCompleted is the provider status of a call that was answered and
// then hung up.
const StatusCompleted = "completed"

// Turn is one line of the conversation.
type Turn struct {
	At      time.Time `json:"timestamp"`
	Speaker Speaker   `json:"speaker"`
	Message string    `json:"message"`
	// Confidence is set on caller turns only.
	Confidence *float64 `json:"confidence_score,omitempty"`
}

// Session is the conversation held on one provider call.
type Session struct {
	CallSID         string     `json:"call_sid"`
	CallerID        string     `json:"caller_number,omitempty"`
	Persona         string     `json:"persona_used"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"start_time"`
	EndedAt         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int        `json:"duration"`
	Topics          []string   `json:"topics,omitempty"`
	Turns           []Turn     `json:"conversation"`
}

func (s *Session) clone() Session {
	out := *s
	out.Topics = append([]string(nil), s.Topics...)
	out.Turns = append([]Turn(nil), s.Turns...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Stats summarizes finished sessions.
type Stats struct {
	Completed            int     `json:"completed"`
	AvgDurationSeconds   float64 `json:"avg_duration"`
	TotalSecondsWasted   int     `json:"total_time_wasted"`
	MostEffectivePersona string  `json:"most_effective_persona,omitempty"`
}

type Options struct {
	// Personas defaults to DefaultPersonas.
	Personas []Persona
	Rand     *rand.Rand
	Now      func() time.Time
	// Capacity defaults to DefaultCapacity. The oldest session is evicted
	// first.
	Capacity int
}

// Engine holds one Session per provider call id. It is safe for concurrent
// use.
type Engine struct {
	mu       sync.Mutex
	personas []Persona
	rng      *rand.Rand
	now      func() time.Time
	capacity int
	sessions map[string]*Session
	order    []string
}

func New(opts Options) (*Engine, error) {
	e := &Engine{
		personas: opts.Personas,
		rng:      opts.Rand,
		now:      opts.Now,
		capacity: opts.Capacity,
		sessions: map[string]*Session{},
	}
	if e.personas == nil {
		e.personas = DefaultPersonas()
	}
	if len(e.personas) == 0 {
		return nil, ErrNoPersonas
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.capacity <= 0 {
		e.capacity = DefaultCapacity
	}
	return e, nil
}

// Persona returns the persona called name, or the first persona.
func (e *Engine) Persona(name string) Persona {
	for _, p := range e.personas {
		if p.Name == name {
			return p
		}
	}
	return e.personas[0]
}

// Begin starts a session for callSID with a random persona and returns its
// greeting. A repeated Begin for the same call returns the first greeting.
func (e *Engine) Begin(callSID, callerID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[callSID]
	if ok && len(s.Turns) > 0 {
		return s.Turns[0].Message
	}
	if !ok {
		s = e.startLocked(callSID, callerID)
	}
	line := greeting(e.rng, e.Persona(s.Persona))
	s.Turns = append(s.Turns, Turn{At: e.now().UTC(), Speaker: SpeakerPersona, Message: line})
	return line
}

// Reply records one caller turn and returns the persona's answer. Speech for
// an unknown call starts a session on the spot.
func (e *Engine) Reply(callSID, speech string, confidence float64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[callSID]
	if !ok {
		s = e.startLocked(callSID, "")
	}
	now := e.now().UTC()
	speech = strings.TrimSpace(speech)

	var line string
	switch {
	case speech == "":
		line = NoSpeechPrompt
	case confidence < MinConfidence:
		s.Turns = append(s.Turns, Turn{At: now, Speaker: SpeakerCaller, Message: speech, Confidence: &confidence})
		line = Clarify
	default:
		s.Turns = append(s.Turns, Turn{At: now, Speaker: SpeakerCaller, Message: speech, Confidence: &confidence})
		s.Topics = mergeTopics(s.Topics, DetectTopics(speech))
		line = reply(e.rng, e.Persona(s.Persona), speech)
	}
	s.Turns = append(s.Turns, Turn{At: now, Speaker: SpeakerPersona, Message: line})
	return line
}

// Finish records the provider's final status. Only a completed call gets an
// end time and duration. It reports false for an unknown call.
func (e *Engine) Finish(callSID, status string, durationSeconds int) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[callSID]
	if !ok {
		return Session{}, false
	}
	if status != "" {
		s.Status = status
	}
	if status == StatusCompleted {
		end := e.now().UTC()
		s.EndedAt = &end
		if durationSeconds < 0 {
			durationSeconds = 0
		}
		s.DurationSeconds = durationSeconds
	}
	return s.clone(), true
}

func (e *Engine) Session(callSID string) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[callSID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Stats covers completed sessions started at or after since. The most
// effective persona is the one with the longest average call; ties go to
// the lexically smaller name.
func (e *Engine) Stats(since time.Time) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	type acc struct{ total, n int }
	per := map[string]*acc{}
	var out Stats
	for _, s := range e.sessions {
		if s.Status != StatusCompleted || s.StartedAt.Before(since) {
			continue
		}
		out.Completed++
		out.TotalSecondsWasted += s.DurationSeconds
		a := per[s.Persona]
		if a == nil {
			a = &acc{}
			per[s.Persona] = a
		}
		a.total += s.DurationSeconds
		a.n++
	}
	if out.Completed == 0 {
		return out
	}
	out.AvgDurationSeconds = float64(out.TotalSecondsWasted) / float64(out.Completed)

	names := make([]string, 0, len(per))
	for name := range per {
		names = append(names, name)
	}
	sort.Strings(names)
	best := -1.0
	for _, name := range names {
		a := per[name]
		if avg := float64(a.total) / float64(a.n); avg > best {
			best, out.MostEffectivePersona = avg, name
		}
	}
	return out
}

func (e *Engine) startLocked(callSID, callerID string) *Session {
	p := e.personas[e.rng.Intn(len(e.personas))]
	s := &Session{
		CallSID:   callSID,
		CallerID:  callerID,
		Persona:   p.Name,
		Status:    StatusInProgress,
		StartedAt: e.now().UTC(),
	}
	e.sessions[callSID] = s
	e.order = append(e.order, callSID)
	for len(e.order) > e.capacity {
		delete(e.sessions, e.order[0])
		e.order = e.order[1:]
	}
	return s
}

func mergeTopics(have, found []string) []string {
	for _, t := range found {
		dup := false
		for _, h := range have {
			if h == t {
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, t)
		}
	}
	return have
}
