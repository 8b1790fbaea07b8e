// Package journal records the outcome of every job the worker executes.
//
// The journal is a side ledger: the coordinator remains the source of truth
// for results, and a failing journal never fails a job. Adapters live in the
// memory and postgres subpackages.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for journal operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("job record not found")

	// ErrConflict is returned when a record with the given ID already exists.
	ErrConflict = errors.New("job record already exists")
)

// Record is one executed job.
type Record struct {
	ID         string          `json:"id"`
	WorkerID   string          `json:"worker_id"`
	EntryPoint string          `json:"entry_point"`
	Outcome    string          `json:"outcome"`
	Payload    json.RawMessage `json:"payload"`
	Duration   time.Duration   `json:"duration"`
	StartedAt  time.Time       `json:"started_at"`
}

// ListOptions filters List results.
type ListOptions struct {
	// Outcome restricts results to one outcome when non-empty.
	Outcome string

	// Limit caps the number of records (default 20, max 100).
	Limit int
}

// EffectiveLimit returns the limit clamped to [1, 100] with 20 as default.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return 20
	case o.Limit > 100:
		return 100
	}
	return o.Limit
}

// Store persists job records.
type Store interface {
	// Save stores a new record. Returns ErrConflict if the ID is taken.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// NewID returns a fresh record ID.
func NewID() string {
	return "job_" + uuid.NewString()
}
