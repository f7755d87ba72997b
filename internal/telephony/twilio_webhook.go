package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid       string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	CallerName    string
	FromCountry   string
	ForwardedFrom string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	f := TwilioInboundForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallerName:    strings.TrimSpace(r.PostFormValue("CallerName")),
		FromCountry:   r.PostFormValue("FromCountry"),
		ForwardedFrom: normalizePhone(r.PostFormValue("ForwardedFrom")),
	}
	return f, nil
}

// normalizePhone trims whitespace. Withheld numbers arrive as "anonymous",
// empty or similar markers and are mapped to "unknown", which the routing
// policy treats as a spam indicator.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "anonymous", "restricted", "unavailable":
		return "unknown"
	}
	return s
}

func (f TwilioInboundForm) ToInboundCall(occurredAt time.Time) InboundCall {
	return InboundCall{
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		CallerName:     f.CallerName,
		OccurredAt:     occurredAt,
	}
}

var errMissingCallSid = errors.New("telephony: CallSid required")

// ParseTwilioSpeech reads the callback of a speech Gather. A missing or
// malformed Confidence is zero.
func ParseTwilioSpeech(r *http.Request) (SpeechTurn, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechTurn{}, err
	}
	t := SpeechTurn{
		ProviderCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		Speech:         strings.TrimSpace(r.PostFormValue("SpeechResult")),
	}
	if t.ProviderCallID == "" {
		return SpeechTurn{}, errMissingCallSid
	}
	if c, err := strconv.ParseFloat(strings.TrimSpace(r.PostFormValue("Confidence")), 64); err == nil {
		t.Confidence = c
	}
	return t, nil
}

// ParseTwilioStatus reads a call status callback. CallDuration is only
// sent for completed calls; a missing one is zero.
func ParseTwilioStatus(r *http.Request) (StatusReport, error) {
	if err := r.ParseForm(); err != nil {
		return StatusReport{}, err
	}
	rep := StatusReport{
		ProviderCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		Status:         strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if rep.ProviderCallID == "" {
		return StatusReport{}, errMissingCallSid
	}
	if raw := strings.TrimSpace(r.PostFormValue("CallDuration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return StatusReport{}, errors.New("telephony: invalid CallDuration")
		}
		rep.DurationSeconds = n
	}
	return rep, nil
}
