package decoy

import (
	"math/rand"
	"strings"
)

// Canned lines used outside any persona.
const (
	NoSpeechPrompt = "I didn't hear anything. Could you repeat that?"
	StillHere      = "I'm still here. Please continue talking."
	Clarify        = "I'm sorry, I didn't quite catch that. Could you speak a bit louder?"
)

// MinConfidence is the speech recognition confidence below which the caller
// is asked to repeat.
const MinConfidence = 0.5

var spamTopics = []string{
	"insurance", "credit", "loan", "debt", "solar", "energy", "electric",
	"savings", "money", "payment", "offer", "deal", "free", "win", "prize",
}

type topicReplies struct {
	keywords []string
	lines    []string
}

// Checked in order; the first group with a keyword in the speech answers.
var topicGroups = []topicReplies{
	{
		keywords: []string{"insurance", "car", "auto", "policy", "coverage"},
		lines: []string{
			"Oh, insurance! You know, I've been thinking about that. What kind of coverage are you offering?",
			"Insurance, interesting! I actually have some questions about my current policy. What makes yours different?",
			"Car insurance, huh? I've been getting so many calls about this. What's your company called again?",
			"Oh insurance! I need to check with my husband about this. He handles all our insurance decisions.",
		},
	},
	{
		keywords: []string{"credit", "debt", "loan", "money", "payment"},
		lines: []string{
			"Credit? Oh my, I'm not sure about that. I've heard so many different things. What exactly are you offering?",
			"Money matters, I see. I need to be very careful with these things. Can you explain more about your company?",
			"A loan? I don't know... I've had some bad experiences before. What are the terms exactly?",
			"Credit services? I'm not sure I understand. Could you walk me through this step by step?",
		},
	},
	{
		keywords: []string{"solar", "energy", "electric", "panels", "savings"},
		lines: []string{
			"Solar panels? Oh, I've been curious about those! How much do they actually cost?",
			"Energy savings, you say? I'm always looking to save money. What kind of savings are we talking about?",
			"Solar energy? That sounds environmentally friendly. Do you have any references I could check?",
			"Electric panels? I'm not very technical. Could you explain how this all works?",
		},
	},
}

var genericReplies = []string{
	"That's fascinating! I don't think I've heard about that before. Can you tell me more?",
	"Oh really? That sounds interesting. I'd love to learn more about this.",
	"Hmm, that's something I haven't considered. What else should I know about this?",
	"That's quite intriguing! I'm curious to hear more details about what you're offering.",
	"Oh my, that sounds like it could be helpful. Could you explain a bit more?",
	"That's very interesting! I want to make sure I understand this correctly. Can you elaborate?",
	"Oh, I see! That's something I should probably know more about. What's the next step?",
	"That sounds promising! I have a few questions though. What exactly does this involve?",
}

// DetectTopics returns the spam topics mentioned in speech, in list order.
func DetectTopics(speech string) []string {
	lower := strings.ToLower(speech)
	var out []string
	for _, t := range spamTopics {
		if strings.Contains(lower, t) {
			out = append(out, t)
		}
	}
	return out
}

// reply picks the answer to one caller turn. Topic groups win over persona
// phrases, and persona phrases win over the generic lines.
func reply(rng *rand.Rand, p Persona, speech string) string {
	lower := strings.ToLower(speech)
	for _, g := range topicGroups {
		for _, k := range g.keywords {
			if strings.Contains(lower, k) {
				return pick(rng, g.lines)
			}
		}
	}
	if rel := p.relevant(speech); len(rel) > 0 {
		return pick(rng, rel)
	}
	return pick(rng, genericReplies)
}

func greeting(rng *rand.Rand, p Persona) string {
	if len(p.Greetings) == 0 {
		return fallbackGreeting
	}
	return pick(rng, p.Greetings)
}

func pick(rng *rand.Rand, lines []string) string {
	return lines[rng.Intn(len(lines))]
}
