// Package postgres provides a PostgreSQL implementation of journal.Store.
// It uses pgx/v5 for connection pooling and JSONB for job payloads.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/journal"
)

// Store is a PostgreSQL-backed journal.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// New connects to PostgreSQL. If MigrateOnStart is true, schema migrations
// are applied before returning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save inserts a job record.
func (s *Store) Save(ctx context.Context, rec *journal.Record) error {
	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_results (
			id, worker_id, entry_point, outcome, payload, duration_ms, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		rec.ID, rec.WorkerID, rec.EntryPoint, rec.Outcome,
		payload, rec.Duration.Milliseconds(), rec.StartedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return journal.ErrConflict
		}
		return fmt.Errorf("inserting job record: %w", err)
	}

	debug.Log("journal", "job recorded", "id", rec.ID, "outcome", rec.Outcome)
	return nil
}

const selectColumns = `SELECT id, worker_id, entry_point, outcome, payload, duration_ms, started_at FROM job_results`

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*journal.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectColumns+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, journal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job record: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, opts journal.ListOptions) ([]*journal.Record, error) {
	query := selectColumns
	args := []any{}
	if opts.Outcome != "" {
		query += " WHERE outcome = $1"
		args = append(args, opts.Outcome)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT %d", opts.EffectiveLimit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing job records: %w", err)
	}
	defer rows.Close()

	out := []*journal.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*journal.Record, error) {
	var rec journal.Record
	var payload []byte
	var durationMS int64
	if err := row.Scan(
		&rec.ID, &rec.WorkerID, &rec.EntryPoint, &rec.Outcome,
		&payload, &durationMS, &rec.StartedAt,
	); err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}

// isDuplicateKey checks for a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
