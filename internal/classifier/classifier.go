// Package classifier scores conversational turns for durable retention.
// Two implementations share one result type: an LLM-backed classifier that
// may fail, and a deterministic rule fallback that never does.
package classifier

import (
	"context"
	"strings"
	"unicode"

	"github.com/nidhogg/mnemo/internal/memory"
)

// Result is the uniform classification outcome: event kind, importance in
// [0,1], and a structured payload that always retains the original message
// text and detected language.
type Result struct {
	Kind       memory.EventKind       `json:"kind"`
	Importance float64                `json:"importance"`
	Payload    map[string]interface{} `json:"payload"`
}

// Classifier maps a message plus a small context excerpt to a Result. Any
// transport failure, timeout, or malformed output is an error return; the
// caller substitutes the fallback.
type Classifier interface {
	Classify(ctx context.Context, message string, convContext map[string]interface{}) (*Result, error)
}

// validKinds is the closed set a classification may produce.
var validKinds = map[memory.EventKind]bool{
	memory.KindInquiry:     true,
	memory.KindFeedback:    true,
	memory.KindRequest:     true,
	memory.KindComplaint:   true,
	memory.KindTransaction: true,
	memory.KindSupport:     true,
	memory.KindInformation: true,
	memory.KindGeneric:     true,
}

// finalizePayload guarantees the invariant payload fields regardless of
// which classifier produced the result.
func finalizePayload(res *Result, message string) {
	if res.Payload == nil {
		res.Payload = map[string]interface{}{}
	}
	res.Payload[memory.PayloadMessageKey] = message
	res.Payload["language"] = detectLanguage(message)
}

// detectLanguage is a codepoint-ratio heuristic: a message that is mostly
// Thai script reads as "th", everything else as "en".
func detectLanguage(message string) string {
	runes := []rune(message)
	if len(runes) == 0 {
		return "en"
	}
	thai := 0
	for _, r := range runes {
		if unicode.Is(unicode.Thai, r) {
			thai++
		}
	}
	if float64(thai) > float64(len(runes))*0.3 {
		return "th"
	}
	return "en"
}

// containsAny reports whether the lowercased message contains any keyword.
func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
