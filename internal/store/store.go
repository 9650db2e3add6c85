// Package store keeps a history of audit runs in SQLite so that cluster
// statistics from different configurations can be listed side by side.
//
// Cluster ids are stored as produced. They are only meaningful within their
// own run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is not in the database.
var ErrRunNotFound = errors.New("run not found")

// Store is the run-history database.
type Store struct {
	db *sql.DB
}

// RunRecord is one audit run.
type RunRecord struct {
	RunID            string    `json:"run_id"`
	CreatedAt        time.Time `json:"created_at"`
	Seed             int64     `json:"seed"`
	Samples          int       `json:"n_samples"`
	Clusters         int       `json:"n_clusters"`
	Noise            int       `json:"n_noise"`
	NoiseFraction    float64   `json:"noise_fraction"`
	UniqueLabels     int       `json:"unique_labels"`
	Projection       string    `json:"projection"` // e.g. "umap cosine n_neighbors=30 min_dist=0.1"
	Clustering       string    `json:"clustering"`
	EntropyThreshold float64   `json:"entropy_threshold"`
	PurityThreshold  float64   `json:"purity_threshold"`
	OverSplitting    []int     `json:"over_splitting"`
	OverCompression  []int     `json:"over_compression"`
	SettingsTOML     string    `json:"settings_toml,omitempty"`
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", path, err)
	}
	// One writer; the database is local to a single CLI invocation.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists a run and its ranked cluster statistics in one
// transaction. An empty RunID is replaced by a new UUID; the id used is
// returned.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord, ranked []audit.ClusterStats) (string, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	splitting, err := json.Marshal(nonNil(rec.OverSplitting))
	if err != nil {
		return "", err
	}
	compression, err := json.Marshal(nonNil(rec.OverCompression))
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_runs (
			run_id, created_at, seed, n_samples, n_clusters, n_noise, noise_fraction,
			unique_labels, projection, clustering, entropy_threshold, purity_threshold,
			over_splitting, over_compression, settings_toml
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.CreatedAt.UnixNano(), rec.Seed, rec.Samples, rec.Clusters, rec.Noise, rec.NoiseFraction,
		rec.UniqueLabels, rec.Projection, rec.Clustering, rec.EntropyThreshold, rec.PurityThreshold,
		string(splitting), string(compression), rec.SettingsTOML,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_cluster_stats (
			run_id, cluster_id, ambiguity_rank, n, top_label, top_label_count,
			purity, ambiguity, entropy, n_labels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare cluster stats: %w", err)
	}
	defer stmt.Close()

	for rank, cs := range ranked {
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, cs.ClusterID, rank+1, cs.N, cs.TopLabel, cs.TopLabelCount,
			cs.Purity, cs.Ambiguity, cs.Entropy, cs.NLabels,
		); err != nil {
			return "", fmt.Errorf("insert cluster %d: %w", cs.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.RunID, nil
}

const runColumns = `
	run_id, created_at, seed, n_samples, n_clusters, n_noise, noise_fraction,
	unique_labels, projection, clustering, entropy_threshold, purity_threshold,
	over_splitting, over_compression, settings_toml`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var r RunRecord
	var created int64
	var splitting, compression string
	err := row.Scan(
		&r.RunID, &created, &r.Seed, &r.Samples, &r.Clusters, &r.Noise, &r.NoiseFraction,
		&r.UniqueLabels, &r.Projection, &r.Clustering, &r.EntropyThreshold, &r.PurityThreshold,
		&splitting, &compression, &r.SettingsTOML,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created)
	if err := json.Unmarshal([]byte(splitting), &r.OverSplitting); err != nil {
		return nil, fmt.Errorf("decode over_splitting: %w", err)
	}
	if err := json.Unmarshal([]byte(compression), &r.OverCompression); err != nil {
		return nil, fmt.Errorf("decode over_compression: %w", err)
	}
	return &r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+runColumns+` FROM audit_runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+runColumns+` FROM audit_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// GetClusterStats returns a run's cluster statistics ordered by ambiguity
// rank, most ambiguous first.
func (s *Store) GetClusterStats(ctx context.Context, runID string) ([]audit.ClusterStats, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, n, top_label, top_label_count, purity, ambiguity, entropy, n_labels
		FROM audit_cluster_stats
		WHERE run_id = ?
		ORDER BY ambiguity_rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cluster stats: %w", err)
	}
	defer rows.Close()

	stats := []audit.ClusterStats{}
	for rows.Next() {
		var cs audit.ClusterStats
		if err := rows.Scan(&cs.ClusterID, &cs.N, &cs.TopLabel, &cs.TopLabelCount,
			&cs.Purity, &cs.Ambiguity, &cs.Entropy, &cs.NLabels); err != nil {
			return nil, fmt.Errorf("scan cluster stats: %w", err)
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}

// DeleteRun removes a run and its cluster statistics.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
