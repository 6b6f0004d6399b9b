package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/memory"
)

// PostgresStore keeps each record as a single JSONB row so every logical
// update commits in one transaction.
type PostgresStore struct {
	db     *pgxpool.Pool
	policy RetentionPolicy
	logger *zap.Logger
}

// NewPostgresStore creates a store with a pgx connection pool.
func NewPostgresStore(dsn string, policy RetentionPolicy, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{db: pool, policy: policy, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Load retrieves the record for a (tenant, user) pair. A missing row yields
// an empty record; an unreadable row is treated the same and logged.
func (s *PostgresStore) Load(ctx context.Context, tenantID, userID string) (*memory.Record, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT record FROM memory_records
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.NewRecord(tenantID, userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return s.decode(tenantID, userID, data), nil
}

// Update applies fn to the current record under a row lock, prunes, and
// commits the full replacement in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, tenantID, userID string, fn func(*memory.Record) error) (*memory.Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx, `
		SELECT record FROM memory_records
		WHERE tenant_id = $1 AND user_id = $2
		FOR UPDATE`,
		tenantID, userID,
	).Scan(&data)

	var rec *memory.Record
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rec = memory.NewRecord(tenantID, userID)
	case err != nil:
		return nil, fmt.Errorf("lock record: %w", err)
	default:
		rec = s.decode(tenantID, userID, data)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.Prune(s.policy.MaxAge, s.policy.MaxEvents)
	rec.UpdatedAt = time.Now().UTC()

	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO memory_records (tenant_id, user_id, record, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`,
		tenantID, userID, out, rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

// decode parses a stored record, failing open to an empty record so one
// corrupt row never takes down a turn.
func (s *PostgresStore) decode(tenantID, userID string, data []byte) *memory.Record {
	var rec memory.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Error("corrupt memory record, treating as empty",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return memory.NewRecord(tenantID, userID)
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]interface{}{}
	}
	if rec.Events == nil {
		rec.Events = []memory.Event{}
	}
	return &rec
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}
