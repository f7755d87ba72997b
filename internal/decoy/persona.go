// Package decoy keeps spam callers on the line with scripted personas.
//
// A Twilio call the routing policy flags as spam can be answered instead of
// redirected: a persona greets the caller, every speech turn gets a canned
// reply, and the transcript is kept for the dashboard.
package decoy

import "strings"

// Persona is a scripted character.
type Persona struct {
	Name      string            `json:"name"`
	Greetings []string          `json:"greetings"`
	Stalling  []string          `json:"stalling"`
	Questions []string          `json:"questions,omitempty"`
	Traits    map[string]string `json:"traits,omitempty"`
}

const (
	fallbackGreeting = "Hello! How can I help you?"
	fallbackStalling = "That's interesting. Tell me more."
)

// DefaultPersonas returns the built-in cast. Every persona has at least one
// greeting and one stalling phrase.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			Name: "elderly_confused",
			Greetings: []string{
				"Hello? Who is this? I can't hear very well.",
				"Yes? Is this my doctor?",
				"Hello dear, I was just making tea. What did you say?",
			},
			Stalling: []string{
				"Could you speak up? I'm a bit hard of hearing.",
				"Wait, let me get my glasses.",
				"Hold on, let me turn down the TV.",
				"What was that? You'll have to repeat that.",
				"Is this about my grandson? He usually handles these things.",
			},
			Questions: []string{
				"I don't understand all this modern technology.",
				"You'll have to explain that in simple terms.",
				"I need to ask my grandson about this.",
				"This sounds complicated. Can you call back when he's here?",
			},
			Traits: map[string]string{"speech_pace": "slow", "repetition_frequency": "high", "confusion_level": "high"},
		},
		{
			Name: "overly_interested",
			Greetings: []string{
				"Oh wonderful! I've been waiting for a call like this!",
				"This is so exciting! Tell me everything!",
				"Perfect timing! I was just thinking about this!",
			},
			Stalling: []string{
				"This is fascinating! Tell me more!",
				"I have so many questions!",
				"This sounds amazing! How did you get into this business?",
				"I want to know everything about your company!",
			},
			Traits: map[string]string{"enthusiasm_level": "extremely_high", "question_frequency": "constant"},
		},
		{Name: "technical_questioner", Greetings: []string{fallbackGreeting}, Stalling: []string{fallbackStalling}},
		{Name: "price_haggler", Greetings: []string{fallbackGreeting}, Stalling: []string{fallbackStalling}},
		{Name: "story_teller", Greetings: []string{fallbackGreeting}, Stalling: []string{fallbackStalling}},
	}
}

// phrases is every line the persona can use mid-call.
func (p Persona) phrases() []string {
	out := make([]string, 0, len(p.Stalling)+len(p.Questions))
	out = append(out, p.Stalling...)
	return append(out, p.Questions...)
}

// relevant returns the persona phrases sharing a word of four or more
// letters with speech.
func (p Persona) relevant(speech string) []string {
	heard := map[string]bool{}
	for _, w := range words(speech) {
		if len(w) >= 4 {
			heard[w] = true
		}
	}
	var out []string
	for _, phrase := range p.phrases() {
		for _, w := range words(phrase) {
			if heard[w] {
				out = append(out, phrase)
				break
			}
		}
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
}
