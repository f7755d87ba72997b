package telephony

import (
	"context"
	"time"
)

// InboundCall is a provider-agnostic inbound call event.
type InboundCall struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`

	// From and To are E.164 where possible.
	From       string `json:"from"`
	To         string `json:"to"`
	CallerName string `json:"caller_name,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Decision is what the provider should do with the call.
type Decision struct {
	Action Action `json:"action"`

	// Target is the dial target for ActionDial: a number or a sip: URI.
	Target string `json:"target,omitempty"`

	// Message is spoken for ActionSay, and before listening for ActionGather.
	Message string `json:"message,omitempty"`

	// Voice is the text-to-speech voice for Message. Empty uses the
	// provider default.
	Voice string `json:"voice,omitempty"`

	// GatherURL receives the caller's speech for ActionGather. If the caller
	// stays silent, Fallback is spoken and the call is sent to GatherURL
	// anyway.
	GatherURL string `json:"gather_url,omitempty"`
	Fallback  string `json:"fallback,omitempty"`
}

type Action string

const (
	ActionReject Action = "reject"
	ActionDial   Action = "dial"
	ActionSay    Action = "say"
	ActionGather Action = "gather"
)

// Router decides inbound calls. Provider adapters depend only on this.
type Router interface {
	RouteInbound(ctx context.Context, call InboundCall) (Decision, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, call InboundCall) (Decision, error)

func (f RouterFunc) RouteInbound(ctx context.Context, call InboundCall) (Decision, error) {
	return f(ctx, call)
}

// SpeechTurn is one recognized utterance posted back by a speech gather.
type SpeechTurn struct {
	ProviderCallID string  `json:"provider_call_id"`
	Speech         string  `json:"speech"`
	Confidence     float64 `json:"confidence"`
}

// StatusReport is a provider call status callback.
type StatusReport struct {
	ProviderCallID  string `json:"provider_call_id"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Conversation continues calls that were answered with ActionGather.
type Conversation interface {
	ContinueCall(ctx context.Context, turn SpeechTurn) (Decision, error)
	CallEnded(ctx context.Context, report StatusReport) error
}
