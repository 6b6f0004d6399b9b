package memory

import (
	"sort"
	"time"
)

// EventKind categorizes a durably retained conversational turn.
type EventKind string

const (
	KindInquiry     EventKind = "INQUIRY"
	KindFeedback    EventKind = "FEEDBACK"
	KindRequest     EventKind = "REQUEST"
	KindComplaint   EventKind = "COMPLAINT"
	KindTransaction EventKind = "TRANSACTION"
	KindSupport     EventKind = "SUPPORT"
	KindInformation EventKind = "INFORMATION"
	KindGeneric     EventKind = "GENERIC_EVENT"
)

// PayloadMessageKey is the payload field that always carries the verbatim
// user message an event was derived from.
const PayloadMessageKey = "original_message"

// Event is one scored unit of conversational significance. Immutable once
// written to a Record.
type Event struct {
	ID         string                 `json:"id"`
	Kind       EventKind              `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
	Importance float64                `json:"importance"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Message returns the original message text carried in the payload.
func (e *Event) Message() string {
	if s, ok := e.Payload[PayloadMessageKey].(string); ok {
		return s
	}
	return ""
}

// Record is the durable long-term memory for one (tenant, user) pair:
// retained events plus derived attributes and a rolling summary.
type Record struct {
	TenantID       string                 `json:"tenant_id"`
	UserID         string                 `json:"user_id"`
	Events         []Event                `json:"events"`
	Attributes     map[string]interface{} `json:"attributes"`
	HistorySummary string                 `json:"history_summary"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewRecord returns an empty-but-valid record for the given keys.
func NewRecord(tenantID, userID string) *Record {
	now := time.Now().UTC()
	return &Record{
		TenantID:   tenantID,
		UserID:     userID,
		Events:     []Event{},
		Attributes: map[string]interface{}{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Empty reports whether the record carries no durable memory at all.
func (r *Record) Empty() bool {
	return len(r.Events) == 0 && len(r.Attributes) == 0 && r.HistorySummary == ""
}

// AddEvent appends an event and bumps the update timestamp.
func (r *Record) AddEvent(ev Event) {
	r.Events = append(r.Events, ev)
	r.UpdatedAt = time.Now().UTC()
}

// RecentEvents returns up to limit events ordered most-recent-first.
func (r *Record) RecentEvents(limit int) []Event {
	out := make([]Event, len(r.Events))
	copy(out, r.Events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ImportantEvents returns events whose importance meets minScore, in stored
// order. Events below the threshold are excluded, not truncated.
func (r *Record) ImportantEvents(minScore float64) []Event {
	var out []Event
	for _, ev := range r.Events {
		if ev.Importance >= minScore {
			out = append(out, ev)
		}
	}
	return out
}

// Prune applies the retention policy: drop events older than maxAge first,
// then drop the oldest remaining events until at most maxEvents are left.
func (r *Record) Prune(maxAge time.Duration, maxEvents int) {
	if maxAge > 0 {
		cutoff := time.Now().UTC().Add(-maxAge)
		kept := r.Events[:0]
		for _, ev := range r.Events {
			if ev.Timestamp.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		r.Events = kept
	}
	if maxEvents > 0 && len(r.Events) > maxEvents {
		sort.SliceStable(r.Events, func(i, j int) bool {
			return r.Events[i].Timestamp.Before(r.Events[j].Timestamp)
		})
		r.Events = r.Events[len(r.Events)-maxEvents:]
	}
}
