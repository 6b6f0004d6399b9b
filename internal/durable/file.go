package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/memory"
)

// FileStore persists one JSON file per (tenant, user) under a per-tenant
// directory. Writes go to a temp file and are committed with an atomic
// rename, so a crash mid-write leaves the previous version intact. It is
// the embedded deployment option and the test double for the Postgres
// backend.
type FileStore struct {
	baseDir string
	policy  RetentionPolicy
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string, policy RetentionPolicy, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		policy:  policy,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) path(tenantID, userID string) string {
	return filepath.Join(s.baseDir, tenantID, userID+".json")
}

// keyLock returns the mutex serializing updates for one (tenant, user).
func (s *FileStore) keyLock(tenantID, userID string) *sync.Mutex {
	key := tenantID + ":" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Load reads the record for a (tenant, user) pair. Missing and unreadable
// files both yield an empty record.
func (s *FileStore) Load(ctx context.Context, tenantID, userID string) (*memory.Record, error) {
	return s.read(tenantID, userID), nil
}

// Update applies fn under the key lock, prunes, and commits via atomic
// rename.
func (s *FileStore) Update(ctx context.Context, tenantID, userID string, fn func(*memory.Record) error) (*memory.Record, error) {
	lock := s.keyLock(tenantID, userID)
	lock.Lock()
	defer lock.Unlock()

	rec := s.read(tenantID, userID)
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.Prune(s.policy.MaxAge, s.policy.MaxEvents)
	rec.UpdatedAt = time.Now().UTC()

	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) read(tenantID, userID string) *memory.Record {
	data, err := os.ReadFile(s.path(tenantID, userID))
	if errors.Is(err, fs.ErrNotExist) {
		return memory.NewRecord(tenantID, userID)
	}
	if err != nil {
		s.logger.Error("read memory record, treating as empty",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return memory.NewRecord(tenantID, userID)
	}

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

func (s *FileStore) write(rec *memory.Record) error {
	path := s.path(rec.TenantID, rec.UserID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tenant dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}
