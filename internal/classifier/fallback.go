package classifier

import (
	"context"
	"strings"

	"github.com/nidhogg/mnemo/internal/memory"
)

// rule binds a keyword table to a kind and a conservative default score.
// Rules are matched in order, highest-stakes categories first, so a message
// carrying both a transaction keyword and a question mark still lands in
// durable memory.
type rule struct {
	category   string
	kind       memory.EventKind
	importance float64
	keywords   []string
}

var fallbackRules = []rule{
	{"transaction", memory.KindTransaction, 0.9, []string{
		"buy", "pay", "order", "purchase", "checkout",
		"ซื้อ", "จ่าย", "สั่ง", "ชำระ",
	}},
	{"complaint", memory.KindComplaint, 0.8, []string{
		"problem", "broken", "refund", "not working", "complaint", "terrible",
		"ร้องเรียน", "แย่", "เสีย", "พัง", "คืนเงิน",
	}},
	{"support", memory.KindSupport, 0.6, []string{
		"help", "support", "assist", "stuck",
		"ช่วย", "ติดต่อ",
	}},
	{"feedback", memory.KindFeedback, 0.5, []string{
		"good", "great", "love", "thanks", "thank you",
		"ดี", "ชอบ", "ขอบคุณ", "เยี่ยม",
	}},
	{"inquiry", memory.KindInquiry, 0.4, []string{
		"?", "how", "what", "when", "where", "why",
		"ถาม", "สอบถาม", "ราคา",
	}},
	{"greeting", memory.KindGeneric, 0.1, []string{
		"hello", "hi ", "hey", "good morning",
		"สวัสดี", "หวัดดี",
	}},
}

// Fallback is the deterministic rule-based classifier. It has no failure
// mode: every message maps to a category, unmatched ones to a low-scoring
// generic event.
type Fallback struct{}

// NewFallback returns the rule classifier.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Classify matches the message against the keyword table. The error is
// always nil; the signature exists to satisfy Classifier.
func (f *Fallback) Classify(ctx context.Context, message string, convContext map[string]interface{}) (*Result, error) {
	lower := strings.ToLower(message)

	res := &Result{
		Kind:       memory.KindGeneric,
		Importance: 0.2,
		Payload: map[string]interface{}{
			"classification_method": "fallback",
			"matched_category":      "generic",
		},
	}
	for _, r := range fallbackRules {
		if containsAny(lower, r.keywords) {
			res.Kind = r.kind
			res.Importance = r.importance
			res.Payload["matched_category"] = r.category
			break
		}
	}

	finalizePayload(res, message)
	return res, nil
}
