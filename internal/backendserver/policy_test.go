package backendserver

import (
	"math/rand"
	"testing"

	"callshield/internal/backend"
)

func TestPolicy_Decide(t *testing.T) {
	p := NewPolicy([]string{"+1234567890", "spam"}, nil, rand.New(rand.NewSource(1)))

	cases := map[string]struct {
		caller string
		action backend.Action
		msg    string
	}{
		"blocked exact":     {"+1234567890", backend.ActionReject, "Call from +1234567890 blocked"},
		"blocked substring": {"SPAM-caller", backend.ActionReject, "Call from SPAM-caller blocked"},
		"unknown":           {"Unknown", backend.ActionRedirect, "Potential spam call redirected to voicemail"},
		"telemarketer":      {"telemarketer-42", backend.ActionRedirect, "Potential spam call redirected to voicemail"},
		"allowed":           {"+15559876543", backend.ActionAllow, "Call allowed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := p.Decide(tc.caller)
			if !got.Success || got.Action != tc.action || got.Message != tc.msg {
				t.Fatalf("unexpected decision: %+v", got)
			}
			if tc.action == backend.ActionRedirect && got.RedirectNumber != DefaultRedirectNumber {
				t.Fatalf("expected default redirect, got %q", got.RedirectNumber)
			}
		})
	}
}

func TestPolicy_WeightedTargets(t *testing.T) {
	targets := []WeightedTarget{{Number: "+1A", Weight: 3}, {Number: "+1B", Weight: 1}, {Number: "+1C", Weight: 0}}
	p := NewPolicy(nil, targets, rand.New(rand.NewSource(7)))

	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		counts[p.Decide("private").RedirectNumber]++
	}
	if counts["+1C"] != 0 {
		t.Fatalf("zero-weight target selected: %v", counts)
	}
	if counts["+1A"] <= counts["+1B"] {
		t.Fatalf("expected heavier target to dominate: %v", counts)
	}
}

func TestPolicy_BlockUnblock(t *testing.T) {
	p := NewPolicy(nil, nil, nil)
	p.Block("+15550001111")
	if got := p.Block("+15550001111"); len(got) != 1 {
		t.Fatalf("expected idempotent block, got %v", got)
	}
	if p.Decide("+15550001111").Action != backend.ActionReject {
		t.Fatalf("expected reject after block")
	}
	if got := p.Unblock("+15550001111"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
	if p.Decide("+15550001111").Action != backend.ActionAllow {
		t.Fatalf("expected allow after unblock")
	}
}

func TestParseTargets(t *testing.T) {
	got, err := ParseTargets([]string{"+1800VOICEMAIL", " sip:vm@pbx.example.com=3 ", ""})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0].Weight != 1 || got[1].Number != "sip:vm@pbx.example.com" || got[1].Weight != 3 {
		t.Fatalf("unexpected targets: %+v", got)
	}
	for _, bad := range []string{"+1=0", "+1=x", "=2"} {
		if _, err := ParseTargets([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
