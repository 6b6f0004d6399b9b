package classifier

import (
	"context"
	"testing"

	"github.com/nidhogg/mnemo/internal/memory"
)

func TestFallbackCategories(t *testing.T) {
	cases := []struct {
		message string
		kind    memory.EventKind
		minimum float64
	}{
		{"I want to order item X", memory.KindTransaction, 0.9},
		{"ซื้อสินค้าชิ้นนี้", memory.KindTransaction, 0.9},
		{"my package arrived broken", memory.KindComplaint, 0.8},
		{"ร้องเรียนเรื่องการจัดส่ง", memory.KindComplaint, 0.8},
		{"can you help me reset my password", memory.KindSupport, 0.6},
		{"thanks, that was great", memory.KindFeedback, 0.5},
		{"what are your opening hours?", memory.KindInquiry, 0.4},
		{"สอบถามราคาหน่อยครับ", memory.KindInquiry, 0.4},
		{"hello there", memory.KindGeneric, 0.1},
		{"xyzzy plugh", memory.KindGeneric, 0.2},
	}

	f := NewFallback()
	for _, tc := range cases {
		res, err := f.Classify(context.Background(), tc.message, nil)
		if err != nil {
			t.Fatalf("fallback must never fail: %v", err)
		}
		if res.Kind != tc.kind {
			t.Errorf("%q: kind = %s, want %s", tc.message, res.Kind, tc.kind)
		}
		if res.Importance < tc.minimum {
			t.Errorf("%q: importance %.2f below %.2f", tc.message, res.Importance, tc.minimum)
		}
	}
}

func TestFallbackHighPriorityWinsOverInquiry(t *testing.T) {
	// A transaction keyword plus a question mark must still score as a
	// transaction, or the retention threshold would drop it.
	res, err := NewFallback().Classify(context.Background(), "what do I pay at checkout?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != memory.KindTransaction {
		t.Fatalf("kind = %s, want TRANSACTION", res.Kind)
	}
	if res.Importance < 0.9 {
		t.Errorf("importance %.2f, want >= 0.9", res.Importance)
	}
}

func TestFallbackPayloadInvariants(t *testing.T) {
	res, _ := NewFallback().Classify(context.Background(), "สวัสดีครับ", nil)

	if res.Payload[memory.PayloadMessageKey] != "สวัสดีครับ" {
		t.Error("payload must retain the original message")
	}
	if res.Payload["language"] != "th" {
		t.Errorf("language = %v, want th", res.Payload["language"])
	}
	if res.Payload["classification_method"] != "fallback" {
		t.Error("fallback results should be tagged for telemetry")
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := detectLanguage("hello world"); got != "en" {
		t.Errorf("detectLanguage(en) = %q", got)
	}
	if got := detectLanguage("สวัสดีครับ"); got != "th" {
		t.Errorf("detectLanguage(th) = %q", got)
	}
	if got := detectLanguage(""); got != "en" {
		t.Errorf("detectLanguage(empty) = %q", got)
	}
}
