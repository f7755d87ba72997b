package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder without any
// provider SDK.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Speech gather timings in seconds.
const (
	gatherSpeechTimeout = 5
	gatherTimeout       = 15
)

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout int      `xml:"speechTimeout,attr"`
	Timeout       int      `xml:"timeout,attr"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps a Decision to TwiML.
func RenderTwiML(d Decision) (string, error) {
	var r twimlResponse

	switch d.Action {
	case ActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "rejected"})
	case ActionSay:
		if strings.TrimSpace(d.Message) == "" {
			return "", errors.New("telephony: message required for say action")
		}
		r.Verbs = append(r.Verbs, twimlSay{Voice: d.Voice, Text: d.Message})
	case ActionGather:
		if strings.TrimSpace(d.GatherURL) == "" {
			return "", errors.New("telephony: gather url required for gather action")
		}
		if d.Message != "" {
			r.Verbs = append(r.Verbs, twimlSay{Voice: d.Voice, Text: d.Message})
		}
		r.Verbs = append(r.Verbs, twimlGather{
			Input:         "speech",
			Action:        d.GatherURL,
			Method:        "POST",
			SpeechTimeout: gatherSpeechTimeout,
			Timeout:       gatherTimeout,
		})
		if d.Fallback != "" {
			r.Verbs = append(r.Verbs, twimlSay{Voice: d.Voice, Text: d.Fallback})
		}
		r.Verbs = append(r.Verbs, twimlRedirect{Method: "POST", URL: d.GatherURL})
	case ActionDial:
		if strings.TrimSpace(d.Target) == "" {
			return "", errors.New("telephony: target required for dial action")
		}
		dial := twimlDial{}
		// sip:... dials a SIP URI; anything else is a PSTN number.
		if strings.HasPrefix(strings.ToLower(d.Target), "sip:") {
			dial.Sip = &twimlSip{URI: d.Target}
		} else {
			dial.Number = d.Target
		}
		if d.Message != "" {
			r.Verbs = append(r.Verbs, twimlSay{Voice: d.Voice, Text: d.Message})
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		return "", errors.New("telephony: unknown action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
