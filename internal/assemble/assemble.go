// Package assemble builds the per-request Context object: the live session
// window merged with durable attributes and the highest-signal historical
// events.
package assemble

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/config"
	"github.com/nidhogg/mnemo/internal/durable"
	"github.com/nidhogg/mnemo/internal/memory"
	"github.com/nidhogg/mnemo/internal/session"
)

// Options control what a caller gets back. The importance threshold here is
// independent of the retention threshold: a durably stored event can still
// be excluded from a stricter assembly. The zero value means "use the
// assembler's configured defaults", so a partial literal overrides only the
// fields it names.
type Options struct {
	// OmitSummary drops the conversation summary from the context. The
	// zero value includes it.
	OmitSummary       bool
	MaxRecentMessages int
	// MinImportance filters durable events. Zero means the configured
	// threshold; a negative value includes every event.
	MinImportance float64
	MaxEvents     int
}

// DefaultOptions returns the standard assembly shape, used when no
// configuration is supplied.
func DefaultOptions() Options {
	return Options{
		MaxRecentMessages: 10,
		MinImportance:     0.7,
		MaxEvents:         5,
	}
}

// Assembler merges the two memory layers. It holds the same two narrow
// backend interfaces as the manager; neither layer knows about the other.
type Assembler struct {
	cache  session.Cache
	store  durable.Store
	base   Options
	logger *zap.Logger
}

// New creates an Assembler. The context-inclusion threshold and recent
// window come from cfg; zero fields fall back to DefaultOptions.
func New(cache session.Cache, store durable.Store, cfg config.MemoryConfig, logger *zap.Logger) *Assembler {
	base := DefaultOptions()
	if cfg.RecentWindow > 0 {
		base.MaxRecentMessages = cfg.RecentWindow
	}
	if cfg.ContextThreshold > 0 {
		base.MinImportance = cfg.ContextThreshold
	}
	return &Assembler{cache: cache, store: store, base: base, logger: logger}
}

// Base returns the configured default options, for callers that layer
// per-request overrides on top.
func (a *Assembler) Base() Options {
	return a.base
}

// fill backfills unset fields from the configured base.
func (a *Assembler) fill(o Options) Options {
	if o.MaxRecentMessages <= 0 {
		o.MaxRecentMessages = a.base.MaxRecentMessages
	}
	if o.MinImportance == 0 {
		o.MinImportance = a.base.MinImportance
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = a.base.MaxEvents
	}
	return o
}

// Assemble builds a fresh Context. It never fails the caller outright: a
// missing session or an unreachable backend yields a degraded context that
// response generation can still attempt.
func (a *Assembler) Assemble(ctx context.Context, tenantID, userID string, opts Options) *memory.Context {
	opts = a.fill(opts)

	out := &memory.Context{
		TenantID:  tenantID,
		UserID:    userID,
		State:     memory.StateAwaitingInput,
		Variables: map[string]interface{}{},
	}

	sess, err := a.cache.Get(ctx, tenantID, userID)
	if err != nil {
		a.logger.Warn("session cache unavailable during assembly",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		out.Degraded = true
		out.DegradedReason = "session cache unavailable"
	} else if sess == nil {
		out.Degraded = true
		out.DegradedReason = "no session context found"
	} else {
		out.RecentMessages = sess.RecentHistory(opts.MaxRecentMessages)
		out.State = sess.State
		out.LastIntent = sess.LastIntent
		out.Variables = sess.Variables
		if !opts.OmitSummary && sess.Summary != "" {
			out.Summary = sess.Summary
		}
	}

	rec, err := a.store.Load(ctx, tenantID, userID)
	if err != nil {
		a.logger.Warn("durable store unavailable during assembly",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return out
	}
	if len(rec.Attributes) > 0 {
		out.Attributes = rec.Attributes
	}
	out.HistorySummary = rec.HistorySummary
	out.ImportantEvents = rankEvents(rec, opts.MinImportance, opts.MaxEvents)
	return out
}

// rankEvents filters by the inclusion threshold, then keeps the most recent
// limit events ordered most-recent-first. Events below the threshold are
// excluded entirely, never truncated in.
func rankEvents(rec *memory.Record, minImportance float64, limit int) []memory.Event {
	events := rec.ImportantEvents(minImportance)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}
