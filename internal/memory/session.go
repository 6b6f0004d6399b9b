package memory

import "time"

// Conversation states tracked on a session.
const (
	StateAwaitingInput        = "awaiting_input"
	StateAwaitingConfirmation = "awaiting_confirmation"
	StateProcessingRequest    = "processing_request"
	StateAwaitingResponse     = "awaiting_response"
)

// HistoryEntry is a single turn in a session's rolling history.
type HistoryEntry struct {
	Role      string                 `json:"role"`
	Text      string                 `json:"text"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session is the short-term working memory for one ongoing conversation,
// keyed by (tenant, user). Mutated only through the manager; destroyed by
// expiry.
type Session struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	History    []HistoryEntry         `json:"history"`
	Summary    string                 `json:"summary"`
	State      string                 `json:"state"`
	LastIntent string                 `json:"last_intent,omitempty"`
	Variables  map[string]interface{} `json:"variables"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession returns a bare session in the initial state, expiring after ttl.
func NewSession(tenantID, userID, sessionID string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		TenantID:  tenantID,
		UserID:    userID,
		SessionID: sessionID,
		History:   []HistoryEntry{},
		State:     StateAwaitingInput,
		Variables: map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session is past its expiry timestamp.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Append adds an entry to the rolling history, dropping the oldest entries
// once maxHistory is exceeded.
func (s *Session) Append(entry HistoryEntry, maxHistory int) {
	s.History = append(s.History, entry)
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	s.UpdatedAt = time.Now().UTC()
}

// RecentHistory returns the last n history entries in order.
func (s *Session) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Touch refreshes the update and expiry timestamps for another ttl window.
func (s *Session) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}
