// Package ledger records manifest builds in Postgres so repeated builds of the
// same manifest can be counted and inspected.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Build is one finished manifest build
type Build struct {
	ManifestPath string
	RunID        string
	Processed    int
	Errors       int
	Variants     int
}

// Record is the stored state for one manifest path
type Record struct {
	ManifestPath string
	LastRunID    string
	Processed    int
	Errors       int
	Variants     int
	FirstBuiltAt time.Time
	LastBuiltAt  time.Time
	BuildCount   int
}

// Ledger tracks builds per manifest path
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to databaseURL with lib/pq and prepares the ledger table
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Ledger, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	l, err := New(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New creates a ledger over db, creating the table if needed
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{db: db, logger: logger}

	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger table: %w", err)
	}

	return l, nil
}

// ensureTable creates the manifest_builds table if it doesn't exist
func (l *Ledger) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS manifest_builds (
			manifest_path TEXT PRIMARY KEY,
			last_run_id TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			variants INTEGER NOT NULL DEFAULT 0,
			first_built_at TIMESTAMPTZ DEFAULT NOW(),
			last_built_at TIMESTAMPTZ DEFAULT NOW(),
			build_count INTEGER DEFAULT 1
		)
	`

	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create manifest_builds table: %w", err)
	}

	l.logger.Debug("manifest_builds table ready")
	return nil
}

// Record stores a finished build and returns how many builds the manifest
// path has seen
func (l *Ledger) Record(ctx context.Context, b Build) (int, error) {
	// Upsert: increment build_count if exists, insert if not
	query := `
		INSERT INTO manifest_builds (manifest_path, last_run_id, processed, errors, variants, first_built_at, last_built_at, build_count)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		ON CONFLICT (manifest_path) DO UPDATE
		SET last_built_at = NOW(),
		    build_count = manifest_builds.build_count + 1,
		    last_run_id = EXCLUDED.last_run_id,
		    processed = EXCLUDED.processed,
		    errors = EXCLUDED.errors,
		    variants = EXCLUDED.variants
		RETURNING build_count
	`

	var count int
	err := l.db.QueryRowContext(ctx, query, b.ManifestPath, b.RunID, b.Processed, b.Errors, b.Variants).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to record build: %w", err)
	}

	return count, nil
}

// Get returns the record for manifestPath, or nil when it was never built
func (l *Ledger) Get(ctx context.Context, manifestPath string) (*Record, error) {
	query := `
		SELECT manifest_path, last_run_id, processed, errors, variants, first_built_at, last_built_at, build_count
		FROM manifest_builds
		WHERE manifest_path = $1
	`

	var r Record
	err := l.db.QueryRowContext(ctx, query, manifestPath).Scan(
		&r.ManifestPath,
		&r.LastRunID,
		&r.Processed,
		&r.Errors,
		&r.Variants,
		&r.FirstBuiltAt,
		&r.LastBuiltAt,
		&r.BuildCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build record: %w", err)
	}

	return &r, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
