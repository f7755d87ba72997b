package routing

import (
	"callshield/internal/backend"
	"callshield/internal/calls"
)

// Decision is the routing response the orchestrator acts on, together with
// the outcome it maps to.
type Decision struct {
	Response backend.RouteResponse
	Outcome  calls.Outcome
}

const messageForwardingDisabled = "Forwarding to backend disabled"

// localDecision is used when forwarding to the backend is switched off.
func localDecision() backend.RouteResponse {
	return backend.RouteResponse{Success: true, Action: backend.ActionAllow, Message: messageForwardingDisabled}
}

func decide(resp backend.RouteResponse) Decision {
	d := Decision{Response: resp}
	switch resp.Action {
	case backend.ActionAllow:
		d.Outcome = calls.OutcomeAllowed
	case backend.ActionReject:
		d.Outcome = calls.OutcomeRejected
	case backend.ActionRedirect:
		d.Outcome = calls.OutcomeRedirected
	default:
		d.Outcome = calls.OutcomeUnknown
	}
	return d
}
