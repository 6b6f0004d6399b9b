package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nidhogg/mnemo/internal/memory"
)

// MemoryCache is a process-local Cache backed by a map. It serves tests and
// single-node deployments without Redis; expiry is enforced by the
// ExpiresAt check on read.
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string][]byte)}
}

func (c *MemoryCache) Get(ctx context.Context, tenantID, userID string) (*memory.Session, error) {
	c.mu.RLock()
	data, ok := c.sessions[Key(tenantID, userID)]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var sess memory.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, nil
	}
	if sess.Expired(time.Now().UTC()) {
		c.mu.Lock()
		delete(c.sessions, Key(tenantID, userID))
		c.mu.Unlock()
		return nil, nil
	}
	return &sess, nil
}

func (c *MemoryCache) Put(ctx context.Context, sess *memory.Session, ttl time.Duration) error {
	// Round-trip through JSON so callers get value semantics, same as the
	// Redis backend.
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sessions[Key(sess.TenantID, sess.UserID)] = data
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, tenantID, userID string) error {
	c.mu.Lock()
	delete(c.sessions, Key(tenantID, userID))
	c.mu.Unlock()
	return nil
}
