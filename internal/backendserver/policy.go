package backendserver

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"callshield/internal/backend"
)

// DefaultRedirectNumber is where suspected spam goes when nothing else is configured.
const DefaultRedirectNumber = "+1800VOICEMAIL"

var spamIndicators = []string{"telemarketer", "unknown", "private"}

// WeightedTarget is one redirect destination.
type WeightedTarget struct {
	// Number is a PSTN number or a sip: URI.
	Number string
	// Weight must be > 0.
	Weight int
}

// ParseTargets reads "number" or "number=weight" entries. A missing weight is 1.
func ParseTargets(entries []string) ([]WeightedTarget, error) {
	out := make([]WeightedTarget, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		number, w, hasWeight := strings.Cut(e, "=")
		t := WeightedTarget{Number: strings.TrimSpace(number), Weight: 1}
		if hasWeight {
			n, err := strconv.Atoi(strings.TrimSpace(w))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("backendserver: invalid weight in %q", e)
			}
			t.Weight = n
		}
		if t.Number == "" {
			return nil, fmt.Errorf("backendserver: empty number in %q", e)
		}
		out = append(out, t)
	}
	return out, nil
}

// Policy decides incoming calls:
//  1. block list (case-insensitive substring of the caller id) rejects
//  2. spam indicators redirect to a weighted target
//  3. everything else is allowed
//
// It is safe for concurrent use.
type Policy struct {
	mu      sync.Mutex
	blocked []string
	targets []WeightedTarget
	rng     *rand.Rand
}

func NewPolicy(blocked []string, targets []WeightedTarget, rng *rand.Rand) *Policy {
	if len(targets) == 0 {
		targets = []WeightedTarget{{Number: DefaultRedirectNumber, Weight: 1}}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{blocked: append([]string(nil), blocked...), targets: targets, rng: rng}
}

func (p *Policy) Decide(callerID string) backend.RouteResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	lower := strings.ToLower(callerID)
	for _, b := range p.blocked {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			return backend.RouteResponse{Success: true, Action: backend.ActionReject, Message: fmt.Sprintf("Call from %s blocked", callerID)}
		}
	}
	for _, ind := range spamIndicators {
		if strings.Contains(lower, ind) {
			return backend.RouteResponse{
				Success:        true,
				Action:         backend.ActionRedirect,
				RedirectNumber: p.pickTarget(),
				Message:        "Potential spam call redirected to voicemail",
			}
		}
	}
	return backend.RouteResponse{Success: true, Action: backend.ActionAllow, Message: "Call allowed"}
}

// Block adds number unless present. It returns the resulting list.
func (p *Policy) Block(number string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.blocked {
		if b == number {
			return p.blockedCopy()
		}
	}
	p.blocked = append(p.blocked, number)
	return p.blockedCopy()
}

// Unblock removes number if present. It returns the resulting list.
func (p *Policy) Unblock(number string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.blocked[:0]
	for _, b := range p.blocked {
		if b != number {
			out = append(out, b)
		}
	}
	p.blocked = out
	return p.blockedCopy()
}

func (p *Policy) Blocked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockedCopy()
}

func (p *Policy) Targets() []WeightedTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WeightedTarget(nil), p.targets...)
}

func (p *Policy) blockedCopy() []string {
	return append([]string{}, p.blocked...)
}

// pickTarget must be called with mu held.
func (p *Policy) pickTarget() string {
	var total int
	for _, t := range p.targets {
		if t.Weight <= 0 {
			continue
		}
		total += t.Weight
	}
	if total <= 0 {
		return DefaultRedirectNumber
	}

	r := p.rng.Intn(total) // 0..total-1

	var acc int
	for _, t := range p.targets {
		if t.Weight <= 0 {
			continue
		}
		acc += t.Weight
		if r < acc {
			return t.Number
		}
	}
	return DefaultRedirectNumber
}
