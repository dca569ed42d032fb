// Package assistant produces the relay's scripted replies. It exists so the
// widget can be exercised end to end; it holds no conversational logic.
package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// Reply is one scripted answer.
type Reply struct {
	Text     string
	Topic    string
	Complete bool
}

// Context encodes the reply topic as the opaque context attached to bot
// messages. It returns nil when there is no topic.
func (r Reply) Context() json.RawMessage {
	if r.Topic == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"topic": r.Topic})
	if err != nil {
		return nil
	}
	return data
}

// Responder answers a user message.
type Responder interface {
	Respond(ctx context.Context, history []chat.Entry, text string) (Reply, error)
}

type rule struct {
	topic    string
	keywords []string
	answer   string
}

// CannedResponder matches keywords against the user's text.
type CannedResponder struct {
	greeting    string
	welcomeBack string
	followUp    string
	fallback    string
	rules      []rule
	completion []string
}

// NewCannedResponder returns the studio's default script.
func NewCannedResponder() *CannedResponder {
	return &CannedResponder{
		greeting:    "Hi! I'm your interior design assistant. How can I help you today?",
		welcomeBack: "Welcome back! What else can I help you with for your space?",
		followUp:    "Happy to go into more detail. Tell us about the room and a designer will tailor the answer to it.",
		fallback:    "Thanks for your message! One of our designers will follow up with ideas tailored to your space.",
		rules: []rule{
			{
				topic:    "pricing",
				keywords: []string{"price", "pricing", "cost", "budget", "quote"},
				answer:   "Our packages start with a free consultation. Full-room design is quoted per room after we see your space.",
			},
			{
				topic:    "booking",
				keywords: []string{"book", "appointment", "consult", "schedule", "visit"},
				answer:   "We'd love to meet you! Share a couple of dates that suit you and we'll confirm a consultation slot.",
			},
			{
				topic:    "services",
				keywords: []string{"kitchen", "bathroom", "living room", "bedroom", "office", "renovat"},
				answer:   "We handle full renovations and single-room refreshes, from layout and lighting to furniture and styling.",
			},
			{
				topic:    "portfolio",
				keywords: []string{"gallery", "portfolio", "examples", "before and after"},
				answer:   "Have a look at our gallery for recent before-and-after projects, then tell us which style speaks to you.",
			},
		},
		completion: []string{"thank you", "thanks", "bye", "that's all", "that is all"},
	}
}

// Greeting is the first line shown to new visitors.
func (r *CannedResponder) Greeting() string {
	return r.greeting
}

// Respond implements Responder. A salutation opening an empty conversation
// gets the greeting, and a topic that was just answered gets a follow-up
// instead of the same text twice.
func (r *CannedResponder) Respond(ctx context.Context, history []chat.Entry, text string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range r.completion {
		if strings.Contains(lower, phrase) {
			return Reply{Text: "It was a pleasure helping you plan your space!", Topic: "farewell", Complete: true}, nil
		}
	}

	if isSalutation(lower) {
		if len(history) == 0 {
			return Reply{Text: r.greeting, Topic: "greeting"}, nil
		}
		return Reply{Text: r.welcomeBack, Topic: "greeting"}, nil
	}

	for _, rl := range r.rules {
		for _, kw := range rl.keywords {
			if strings.Contains(lower, kw) {
				if lastAnswer(history) == rl.answer {
					return Reply{Text: r.followUp, Topic: rl.topic}, nil
				}
				return Reply{Text: rl.answer, Topic: rl.topic}, nil
			}
		}
	}

	return Reply{Text: r.fallback}, nil
}

var salutations = map[string]bool{"hi": true, "hello": true, "hey": true, "hiya": true, "greetings": true}

func isSalutation(lower string) bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return len(fields) > 0 && len(fields) <= 3 && salutations[fields[0]]
}

// lastAnswer returns the newest assistant text in history.
func lastAnswer(history []chat.Entry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if msg := history[i].Message(); !msg.FromUser() {
			return msg.Text
		}
	}
	return ""
}
