// Package sqlite archives raw feed blobs and feature batches in a local
// SQLite file and reports what has been collected.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// ErrNoBatches is returned by LatestBatch before any batch was archived.
var ErrNoBatches = errors.New("no feature batches archived")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  run_id       TEXT PRIMARY KEY,
  tick         TEXT    NOT NULL,
  processed_at TEXT    NOT NULL,
  records      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_processed_at ON runs(processed_at);

CREATE TABLE IF NOT EXISTS raw_blobs (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id       TEXT NOT NULL,
  source       TEXT NOT NULL,
  tick         TEXT NOT NULL,
  collected_at TEXT NOT NULL,
  body         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_blobs_tick ON raw_blobs(tick, source);

CREATE TABLE IF NOT EXISTS features (
  station_id    TEXT NOT NULL,
  observed_at   TEXT NOT NULL,
  run_id        TEXT NOT NULL,
  comfort_score REAL,
  payload       TEXT NOT NULL,
  PRIMARY KEY (station_id, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_features_run ON features(run_id);
`

// Inventory summarizes the archive contents.
type Inventory struct {
	RawBlobs      int
	RawBySource   map[domain.SourceType]int
	Features      int
	Runs          int
	FirstObserved time.Time // zero when no features are archived
	LastObserved  time.Time
}

// Store is the SQLite archive. It implements pipeline.BatchLoader and
// pipeline.RawArchiver.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the archive at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between the loaders.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("archive opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRawBlobs stores every blob fetched for a tick.
func (s *Store) SaveRawBlobs(ctx context.Context, runID string, tick time.Time, blobs map[domain.SourceType]domain.RawBlob) error {
	if len(blobs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin raw blob tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_blobs (run_id, source, tick, collected_at, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare raw blob insert: %w", err)
	}
	defer stmt.Close()

	for _, source := range domain.SourceTypes {
		blob, ok := blobs[source]
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, runID, string(source), domain.CanonicalTimestamp(tick),
			blob.CollectedAt.UTC().Format(time.RFC3339Nano), blob.Text); err != nil {
			return fmt.Errorf("insert %s blob: %w", source, err)
		}
	}
	return tx.Commit()
}

// LoadBatch records the run and upserts its feature records. A record for a
// (station, timestamp) already archived is replaced by the newer run's.
func (s *Store) LoadBatch(ctx context.Context, batch domain.FeatureBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin feature tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, tick, processed_at, records) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET records = excluded.records, processed_at = excluded.processed_at`,
		batch.RunID, domain.CanonicalTimestamp(batch.Tick),
		batch.ProcessedAt.UTC().Format(time.RFC3339Nano), len(batch.Records)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (station_id, observed_at, run_id, comfort_score, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(station_id, observed_at) DO UPDATE SET
		   run_id = excluded.run_id, comfort_score = excluded.comfort_score, payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare feature upsert: %w", err)
	}
	defer stmt.Close()

	for i := range batch.Records {
		rec := &batch.Records[i]
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("serialize feature record %s: %w", rec.Key(), err)
		}
		var score sql.NullFloat64
		if rec.ComfortScore != nil {
			score = sql.NullFloat64{Float64: *rec.ComfortScore, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.StationID, domain.CanonicalTimestamp(rec.Timestamp),
			batch.RunID, score, string(payload)); err != nil {
			return fmt.Errorf("upsert feature record %s: %w", rec.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feature batch: %w", err)
	}
	s.logger.Debug("archived feature batch", "run_id", batch.RunID, "records", len(batch.Records))
	return nil
}

// Inventory counts the archived blobs, records and runs.
func (s *Store) Inventory(ctx context.Context) (Inventory, error) {
	inv := Inventory{RawBySource: make(map[domain.SourceType]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM raw_blobs GROUP BY source`)
	if err != nil {
		return Inventory{}, fmt.Errorf("count raw blobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return Inventory{}, fmt.Errorf("scan raw blob count: %w", err)
		}
		inv.RawBySource[domain.SourceType(source)] = n
		inv.RawBlobs += n
	}
	if err := rows.Err(); err != nil {
		return Inventory{}, fmt.Errorf("count raw blobs: %w", err)
	}

	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(observed_at), MAX(observed_at) FROM features`).Scan(&inv.Features, &first, &last); err != nil {
		return Inventory{}, fmt.Errorf("count features: %w", err)
	}
	if first.Valid {
		if inv.FirstObserved, err = domain.ParseCanonicalTimestamp(first.String); err != nil {
			return Inventory{}, err
		}
		if inv.LastObserved, err = domain.ParseCanonicalTimestamp(last.String); err != nil {
			return Inventory{}, err
		}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&inv.Runs); err != nil {
		return Inventory{}, fmt.Errorf("count runs: %w", err)
	}
	return inv, nil
}

// LatestBatch returns the most recently processed run with the records that
// still belong to it, ordered by timestamp then station.
func (s *Store) LatestBatch(ctx context.Context) (domain.FeatureBatch, error) {
	var batch domain.FeatureBatch
	var tick, processedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, tick, processed_at FROM runs ORDER BY processed_at DESC, rowid DESC LIMIT 1`).
		Scan(&batch.RunID, &tick, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeatureBatch{}, ErrNoBatches
	}
	if err != nil {
		return domain.FeatureBatch{}, fmt.Errorf("query latest run: %w", err)
	}
	if batch.Tick, err = domain.ParseCanonicalTimestamp(tick); err != nil {
		return domain.FeatureBatch{}, err
	}
	if batch.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
		return domain.FeatureBatch{}, fmt.Errorf("parse processed_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM features WHERE run_id = ? ORDER BY observed_at, station_id`, batch.RunID)
	if err != nil {
		return domain.FeatureBatch{}, fmt.Errorf("query latest features: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return domain.FeatureBatch{}, fmt.Errorf("scan feature: %w", err)
		}
		var rec domain.FeatureRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return domain.FeatureBatch{}, fmt.Errorf("decode feature payload: %w", err)
		}
		batch.Records = append(batch.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.FeatureBatch{}, fmt.Errorf("query latest features: %w", err)
	}
	return batch, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("archive unavailable: %w", err)
	}
	return nil
}
