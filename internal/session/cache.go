// Package session provides the short-term memory cache: a TTL-bound
// key-value layer holding one live Session per (tenant, user).
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/mnemo/internal/memory"
)

// Cache is the narrow interface the manager depends on. Get returns
// (nil, nil) when no live session exists; absence and expiry look the
// same to callers.
type Cache interface {
	Get(ctx context.Context, tenantID, userID string) (*memory.Session, error)
	Put(ctx context.Context, sess *memory.Session, ttl time.Duration) error
	Delete(ctx context.Context, tenantID, userID string) error
}

// Key builds the composite cache key for a (tenant, user) pair.
func Key(tenantID, userID string) string {
	return fmt.Sprintf("sm:%s:%s", tenantID, userID)
}
