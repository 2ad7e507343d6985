// Package statestore persists pipeline run state behind a compare-and-swap
// interface. The payload is opaque; callers supply the fingerprint that
// guards each write.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sitegen/internal/config"
)

var (
	// ErrNotFound is returned when no record exists for a run.
	ErrNotFound = errors.New("run state not found")
	// ErrConflict is returned when the stored fingerprint does not match the
	// expected one.
	ErrConflict = errors.New("run state changed concurrently")
	// ErrExists is returned by Save when the run already has a record.
	ErrExists = errors.New("run state already exists")
)

// Record is one persisted run.
type Record struct {
	RunID       string    `json:"run_id"`
	Fingerprint string    `json:"fingerprint"`
	Data        []byte    `json:"data"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence collaborator used by the orchestrator.
type Store interface {
	// Save creates the record for a new run.
	Save(ctx context.Context, runID, fingerprint string, data []byte) error
	// Load returns the current record.
	Load(ctx context.Context, runID string) (Record, error)
	// CompareAndSwap replaces the record only if its fingerprint is still
	// expected. Exactly one of several racing writers succeeds.
	CompareAndSwap(ctx context.Context, runID, expected, fingerprint string, data []byte) error
	// List returns every run ID in ascending order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Open returns the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password.Value(),
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case "nats":
		return OpenNATS(cfg.NATS.URL, cfg.NATS.Bucket)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func validRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}
