// Package durable implements the long-term memory layer: one atomically
// overwritten structured record per (tenant, user), with age- and
// count-bounded event retention.
package durable

import (
	"context"
	"time"

	"github.com/nidhogg/mnemo/internal/memory"
)

// RetentionPolicy bounds a record's event log. Age pruning always runs
// before count pruning.
type RetentionPolicy struct {
	MaxAge    time.Duration
	MaxEvents int
}

// Store is the narrow interface the manager and assembler depend on.
//
// Load returns an empty-but-valid record when none exists; there is no
// distinct "not found" error. Update applies fn to the current record and
// commits the result as a whole: a reader either sees the prior version or
// the fully updated one, never a partial write. Retention is applied on
// every Update before commit.
type Store interface {
	Load(ctx context.Context, tenantID, userID string) (*memory.Record, error)
	Update(ctx context.Context, tenantID, userID string, fn func(*memory.Record) error) (*memory.Record, error)
}

// Append adds a single event through a Store's atomic update path.
func Append(ctx context.Context, s Store, tenantID, userID string, ev memory.Event) error {
	_, err := s.Update(ctx, tenantID, userID, func(rec *memory.Record) error {
		rec.AddEvent(ev)
		return nil
	})
	return err
}

// UpdateAttributes merges attrs into a record's durable attributes.
func UpdateAttributes(ctx context.Context, s Store, tenantID, userID string, attrs map[string]interface{}) error {
	_, err := s.Update(ctx, tenantID, userID, func(rec *memory.Record) error {
		for k, v := range attrs {
			rec.Attributes[k] = v
		}
		return nil
	})
	return err
}
