package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/assemble"
	"github.com/nidhogg/mnemo/internal/durable"
	"github.com/nidhogg/mnemo/internal/memory"
	"github.com/nidhogg/mnemo/internal/session"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testStore, err = durable.NewPostgresStore(pgDSN, durable.RetentionPolicy{
		MaxAge:    testMemoryConfig().RetentionAge(),
		MaxEvents: testMemoryConfig().MaxEvents,
	}, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		os.Exit(1)
	}
	defer testStore.Close()

	// Run migrations
	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 2. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()

	testCache, err = session.NewRedisCache(redisURL, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis cache: %v\n", err)
		os.Exit(1)
	}
	defer testCache.Close()

	os.Exit(m.Run())
}

// TestConversationCycle drives a full turn cycle against real backends:
// classify, retain, cache, reconstruct, assemble.
func TestConversationCycle(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	res, err := mgr.AddMessage(ctx, "acme", "alice", "I want to order item X", "user", nil)
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if !res.Stored {
		t.Fatal("transaction turn should be durably retained")
	}
	if res.Event.Kind != memory.KindTransaction {
		t.Fatalf("kind = %s, want %s", res.Event.Kind, memory.KindTransaction)
	}
	if res.Session.State != memory.StateAwaitingConfirmation {
		t.Errorf("state = %s", res.Session.State)
	}

	if _, err := mgr.AddMessage(ctx, "acme", "alice", "Got it, confirming your order of item X.", "bot", nil); err != nil {
		t.Fatalf("bot turn: %v", err)
	}

	// The session round-trips through Redis.
	sess, err := testCache.Get(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("redis get: %v", err)
	}
	if sess == nil {
		t.Fatal("session missing from cache")
	}
	if len(sess.History) != 2 {
		t.Errorf("cached history = %d, want 2", len(sess.History))
	}

	// The event round-trips through Postgres.
	rec, err := testStore.Load(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("pg load: %v", err)
	}
	if len(rec.Events) != 1 {
		t.Fatalf("durable events = %d, want 1", len(rec.Events))
	}
	if rec.Events[0].Message() != "I want to order item X" {
		t.Errorf("payload message = %q", rec.Events[0].Message())
	}
	if rec.HistorySummary == "" {
		t.Error("summary should be refreshed on retention")
	}
}

// TestReconstructionAfterExpiry simulates session expiry by flushing Redis
// and verifies the next session is seeded from Postgres.
func TestReconstructionAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	if _, err := mgr.AddMessage(ctx, "acme", "bob", "I need to pay my invoice", "user", nil); err != nil {
		t.Fatalf("add message: %v", err)
	}
	flushSession(t, "acme", "bob")

	sess, err := mgr.GetOrCreateSession(ctx, "acme", "bob", "")
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(sess.History) != 0 {
		t.Error("raw history must not survive expiry")
	}
	if sess.LastIntent != string(memory.KindTransaction) {
		t.Errorf("last intent = %q", sess.LastIntent)
	}
	if sess.Variables["has_history"] != true {
		t.Error("reconstructed session should carry has_history")
	}
	if sess.Summary == "" {
		t.Error("reconstructed session should carry the durable summary")
	}
}

// TestContextAssembly verifies the assembled context merges both layers
// and honors the inclusion threshold.
func TestContextAssembly(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	turns := []string{
		"hello",
		"my delivery arrived broken",
		"I want to buy a replacement",
	}
	for _, text := range turns {
		if _, err := mgr.AddMessage(ctx, "acme", "carol", text, "user", nil); err != nil {
			t.Fatalf("add %q: %v", text, err)
		}
	}

	llmCtx := mgr.ContextForLLM(ctx, "acme", "carol", assemble.Options{
		MaxRecentMessages: 10,
		MinImportance:     0.7,
		MaxEvents:         5,
	})
	if llmCtx.Degraded {
		t.Fatalf("degraded: %s", llmCtx.DegradedReason)
	}
	if len(llmCtx.RecentMessages) != 3 {
		t.Errorf("recent = %d, want 3", len(llmCtx.RecentMessages))
	}
	// Complaint (0.8) and transaction (0.9) clear 0.7; the greeting was
	// never retained.
	if len(llmCtx.ImportantEvents) != 2 {
		t.Errorf("important events = %d, want 2", len(llmCtx.ImportantEvents))
	}
	if llmCtx.HistorySummary == "" {
		t.Error("durable summary missing from context")
	}
}

// TestTenantIsolationOverBackends writes identical user IDs under two
// tenants and checks neither layer leaks across.
func TestTenantIsolationOverBackends(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	if _, err := mgr.AddMessage(ctx, "north", "dave", "I want to order a widget", "user", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AddMessage(ctx, "south", "dave", "hello", "user", nil); err != nil {
		t.Fatal(err)
	}

	northRec, err := testStore.Load(ctx, "north", "dave")
	if err != nil {
		t.Fatal(err)
	}
	southRec, err := testStore.Load(ctx, "south", "dave")
	if err != nil {
		t.Fatal(err)
	}
	if len(northRec.Events) != 1 || len(southRec.Events) != 0 {
		t.Errorf("events north=%d south=%d, want 1 and 0", len(northRec.Events), len(southRec.Events))
	}

	southSess, err := testCache.Get(ctx, "south", "dave")
	if err != nil {
		t.Fatal(err)
	}
	if len(southSess.History) != 1 {
		t.Errorf("south history = %d, want 1", len(southSess.History))
	}
}

// TestEndSessionPreservesDurable ends a session and confirms the durable
// record is untouched while the cache entry is gone.
func TestEndSessionPreservesDurable(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	if _, err := mgr.AddMessage(ctx, "acme", "erin", "I want to purchase a plan", "user", nil); err != nil {
		t.Fatal(err)
	}
	if err := mgr.EndSession(ctx, "acme", "erin"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sess, err := testCache.Get(ctx, "acme", "erin")
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Error("session should be gone from cache")
	}

	rec, err := testStore.Load(ctx, "acme", "erin")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Events) != 1 {
		t.Errorf("durable events = %d, want 1", len(rec.Events))
	}
}

// TestConcurrentTurnsSameUser fires parallel turns for one user and checks
// the durable record loses nothing under the row lock.
func TestConcurrentTurnsSameUser(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	const turns = 10
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func(i int) {
			_, err := mgr.AddMessage(ctx, "acme", "frank", fmt.Sprintf("I want to order item %d", i), "user", nil)
			errs <- err
		}(i)
	}
	for i := 0; i < turns; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("turn: %v", err)
		}
	}

	rec, err := testStore.Load(ctx, "acme", "frank")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Events) != turns {
		t.Errorf("durable events = %d, want %d", len(rec.Events), turns)
	}
}
