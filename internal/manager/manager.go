// Package manager orchestrates the two memory layers: session lifecycle,
// the classify → retention-decision → persistence pipeline, and context
// assembly. It is the only component external callers talk to.
package manager

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/assemble"
	"github.com/nidhogg/mnemo/internal/classifier"
	"github.com/nidhogg/mnemo/internal/config"
	"github.com/nidhogg/mnemo/internal/durable"
	"github.com/nidhogg/mnemo/internal/memory"
	"github.com/nidhogg/mnemo/internal/session"
)

// ErrNoSession is returned when an operation needs a live session and none
// exists.
var ErrNoSession = errors.New("no live session")

const lockStripes = 64

// Manager owns the get/create/update lifecycle of sessions and drives the
// retention pipeline. Updates for one (tenant, user) serialize on a striped
// mutex; independent keys never block each other.
type Manager struct {
	cache     session.Cache
	store     durable.Store
	primary   classifier.Classifier
	fallback  *classifier.Fallback
	assembler *assemble.Assembler
	cfg       config.MemoryConfig
	logger    *zap.Logger

	locks [lockStripes]sync.Mutex
}

// TurnResult reports one addMessage cycle: the updated session, the
// classification outcome for user turns, whether it cleared the retention
// threshold, and any non-fatal degradations hit along the way.
type TurnResult struct {
	Session  *memory.Session `json:"session"`
	Event    *memory.Event   `json:"event,omitempty"`
	Stored   bool            `json:"stored"`
	Warnings []string        `json:"warnings,omitempty"`
}

// New wires a Manager. primary may be nil, in which case every turn uses
// the rule fallback.
func New(cache session.Cache, store durable.Store, primary classifier.Classifier, cfg config.MemoryConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cache:     cache,
		store:     store,
		primary:   primary,
		fallback:  classifier.NewFallback(),
		assembler: assemble.New(cache, store, cfg, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

func (m *Manager) lock(tenantID, userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	return &m.locks[h.Sum32()%lockStripes]
}

// GetOrCreateSession returns the live session for a (tenant, user) pair,
// reconstructing it from durable memory when absent or expired. With no
// intervening writes the reconstruction is idempotent.
func (m *Manager) GetOrCreateSession(ctx context.Context, tenantID, userID, sessionHint string) (*memory.Session, error) {
	l := m.lock(tenantID, userID)
	l.Lock()
	defer l.Unlock()

	sess, _, err := m.getOrCreate(ctx, tenantID, userID, sessionHint)
	return sess, err
}

// getOrCreate implements the cache-hit / reconstruct path. The returned
// bool reports whether the session could be persisted; false means the
// cache is unavailable and the session lives only for this call.
func (m *Manager) getOrCreate(ctx context.Context, tenantID, userID, sessionHint string) (*memory.Session, bool, error) {
	cacheOK := true

	sess, err := m.cache.Get(ctx, tenantID, userID)
	if err != nil {
		// Degrade to an in-memory session for the turn; the conversation
		// continues without cross-turn persistence.
		m.logger.Warn("session cache unavailable, using in-memory session",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		cacheOK = false
		sess = nil
	}

	if sess != nil {
		if sessionHint != "" && sess.SessionID != sessionHint {
			sess.SessionID = sessionHint
			m.persist(ctx, sess)
		}
		return sess, cacheOK, nil
	}

	sess = m.reconstruct(ctx, tenantID, userID, sessionHint)
	if cacheOK {
		m.persist(ctx, sess)
	}
	return sess, cacheOK, nil
}

// reconstruct builds a fresh session seeded from the durable record: its
// summary, attributes, and the state implied by the most recent event. An
// empty record yields a bare session.
func (m *Manager) reconstruct(ctx context.Context, tenantID, userID, sessionHint string) *memory.Session {
	if sessionHint == "" {
		sessionHint = uuid.New().String()
	}
	sess := memory.NewSession(tenantID, userID, sessionHint, m.cfg.SessionTTL())

	rec, err := m.store.Load(ctx, tenantID, userID)
	if err != nil {
		m.logger.Warn("durable store unavailable, reconstructing bare session",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return sess
	}
	if rec.Empty() {
		return sess
	}

	sess.Summary = rec.HistorySummary
	if len(rec.Attributes) > 0 {
		sess.Variables["user_preferences"] = rec.Attributes
		sess.Variables["has_history"] = true
	}

	recent := rec.RecentEvents(5)
	if len(recent) > 0 {
		last := recent[0]
		sess.LastIntent = string(last.Kind)
		sess.State = stateForKind(last.Kind)

		kinds := make([]string, len(recent))
		for i, ev := range recent {
			kinds[i] = string(ev.Kind)
		}
		sess.Variables["recent_activity"] = kinds
	}

	m.logger.Info("session reconstructed from durable memory",
		zap.String("tenant", tenantID),
		zap.String("user", userID),
		zap.Int("events", len(rec.Events)))
	return sess
}

// AddMessage appends one turn to the session, classifies user-authored
// turns, and durably retains events that clear the retention threshold.
// Backend failures degrade the result instead of failing the turn.
func (m *Manager) AddMessage(ctx context.Context, tenantID, userID, text, role string, metadata map[string]interface{}) (*TurnResult, error) {
	l := m.lock(tenantID, userID)
	l.Lock()
	defer l.Unlock()

	sess, cacheOK, err := m.getOrCreate(ctx, tenantID, userID, "")
	if err != nil {
		return nil, err
	}

	res := &TurnResult{Session: sess}
	if !cacheOK {
		res.Warnings = append(res.Warnings, "session cache unavailable; session not persisted")
	}

	sess.Append(memory.HistoryEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}, m.cfg.MaxHistory)

	// Only user-authored turns are classified; bot replies just extend the
	// rolling history.
	if role == "user" {
		cls := m.classify(ctx, text, sess, metadata)
		sess.LastIntent = string(cls.Kind)
		sess.State = stateForKind(cls.Kind)

		ev := memory.Event{
			ID:         uuid.New().String(),
			Kind:       cls.Kind,
			Payload:    cls.Payload,
			Importance: cls.Importance,
			Timestamp:  time.Now().UTC(),
		}
		res.Event = &ev

		if cls.Importance >= m.cfg.RetentionThreshold {
			if err := m.retain(ctx, tenantID, userID, ev); err != nil {
				m.logger.Warn("durable retention failed, turn continues",
					zap.String("tenant", tenantID),
					zap.String("user", userID),
					zap.Error(err))
				res.Warnings = append(res.Warnings, "durable store unavailable; event not retained")
			} else {
				res.Stored = true
			}
		}
	}

	if cacheOK {
		sess.Touch(m.cfg.SessionTTL())
		m.persist(ctx, sess)
	}
	return res, nil
}

// classify runs the primary classifier and absorbs every failure into the
// fallback; callers always get a result.
func (m *Manager) classify(ctx context.Context, text string, sess *memory.Session, metadata map[string]interface{}) *classifier.Result {
	convContext := map[string]interface{}{
		"session_variables":   sess.Variables,
		"current_state":       sess.State,
		"last_intent":         sess.LastIntent,
		"conversation_length": len(sess.History),
	}
	for k, v := range metadata {
		convContext[k] = v
	}

	if m.primary != nil {
		res, err := m.primary.Classify(ctx, text, convContext)
		if err == nil {
			return res
		}
		m.logger.Warn("classifier failed, using fallback", zap.Error(err))
	}

	res, _ := m.fallback.Classify(ctx, text, convContext)
	return res
}

// retain commits the event, the attribute refresh, and the summary refresh
// as one durable update.
func (m *Manager) retain(ctx context.Context, tenantID, userID string, ev memory.Event) error {
	_, err := m.store.Update(ctx, tenantID, userID, func(rec *memory.Record) error {
		rec.AddEvent(ev)
		refreshAttributes(rec, ev)
		rec.HistorySummary = summarize(rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("retain event: %w", err)
	}
	m.logger.Info("event retained",
		zap.String("tenant", tenantID),
		zap.String("user", userID),
		zap.String("kind", string(ev.Kind)),
		zap.Float64("importance", ev.Importance))
	return nil
}

// UpdateSessionVariables merges vars into the live session. It requires an
// existing session; use GetOrCreateSession first on a cold start.
func (m *Manager) UpdateSessionVariables(ctx context.Context, tenantID, userID string, vars map[string]interface{}) error {
	l := m.lock(tenantID, userID)
	l.Lock()
	defer l.Unlock()

	sess, err := m.cache.Get(ctx, tenantID, userID)
	if err != nil {
		// Same posture as the rest of the manager: a cache outage means
		// there is no reachable live session, not a failed operation.
		m.logger.Warn("session cache unavailable, variables not applied",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return fmt.Errorf("session cache unavailable: %w", ErrNoSession)
	}
	if sess == nil {
		return ErrNoSession
	}

	for k, v := range vars {
		sess.Variables[k] = v
	}
	sess.Touch(m.cfg.SessionTTL())
	return m.cache.Put(ctx, sess, m.cfg.SessionTTL())
}

// EndSession drops the live session; durable memory is untouched.
func (m *Manager) EndSession(ctx context.Context, tenantID, userID string) error {
	l := m.lock(tenantID, userID)
	l.Lock()
	defer l.Unlock()
	return m.cache.Delete(ctx, tenantID, userID)
}

// ContextForLLM assembles the bounded, ranked context for one
// response-generation call.
func (m *Manager) ContextForLLM(ctx context.Context, tenantID, userID string, opts assemble.Options) *memory.Context {
	return m.assembler.Assemble(ctx, tenantID, userID, opts)
}

// ContextOptions returns the configured assembly defaults, for callers that
// layer per-request overrides on top.
func (m *Manager) ContextOptions() assemble.Options {
	return m.assembler.Base()
}

func (m *Manager) persist(ctx context.Context, sess *memory.Session) {
	if err := m.cache.Put(ctx, sess, m.cfg.SessionTTL()); err != nil {
		m.logger.Warn("session persist failed",
			zap.String("tenant", sess.TenantID),
			zap.String("user", sess.UserID),
			zap.Error(err))
	}
}

// stateForKind infers the conversation state a classified turn puts the
// session into.
func stateForKind(kind memory.EventKind) string {
	switch kind {
	case memory.KindTransaction:
		return memory.StateAwaitingConfirmation
	case memory.KindRequest:
		return memory.StateProcessingRequest
	case memory.KindInquiry:
		return memory.StateAwaitingResponse
	default:
		return memory.StateAwaitingInput
	}
}
