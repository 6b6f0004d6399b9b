package session

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/mnemo/internal/memory"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	sess := memory.NewSession("t1", "u1", "sess1", time.Minute)
	sess.Summary = "greeted the bot"
	if err := c.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Summary != "greeted the bot" {
		t.Errorf("summary = %q", got.Summary)
	}

	// Mutating the returned session must not leak into the cache.
	got.Summary = "mutated"
	again, _ := c.Get(ctx, "t1", "u1")
	if again.Summary != "greeted the bot" {
		t.Error("cache returned shared state instead of a copy")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	got, err := c.Get(context.Background(), "t1", "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing session")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	sess := memory.NewSession("t1", "u1", "sess1", -time.Minute)
	if err := c.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expired session must never be returned as live")
	}
}

func TestMemoryCacheTenantIsolation(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	sess := memory.NewSession("tenant-a", "u1", "sess1", time.Minute)
	if err := c.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "tenant-b", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("tenant B must not see tenant A's session")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	sess := memory.NewSession("t1", "u1", "sess1", time.Minute)
	if err := c.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Delete(ctx, "t1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := c.Get(ctx, "t1", "u1"); got != nil {
		t.Fatal("session survived delete")
	}
}
