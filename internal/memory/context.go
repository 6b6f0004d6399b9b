package memory

// Context is the ephemeral payload assembled for one response-generation
// call. It merges the live session window with durable attributes and the
// highest-signal historical events; it is never persisted.
type Context struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	RecentMessages []HistoryEntry         `json:"recent_messages"`
	State          string                 `json:"current_state"`
	LastIntent     string                 `json:"last_intent,omitempty"`
	Variables      map[string]interface{} `json:"session_variables"`
	Summary        string                 `json:"conversation_summary,omitempty"`

	Attributes      map[string]interface{} `json:"user_attributes,omitempty"`
	HistorySummary  string                 `json:"history_summary,omitempty"`
	ImportantEvents []Event                `json:"important_events,omitempty"`

	// Degraded marks a context built without a live session. Response
	// generation stays attemptable; the reason is for telemetry.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}
