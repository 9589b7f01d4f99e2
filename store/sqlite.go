// Package store persists sampler results to SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/pthm-cable/slope/sampler"
)

const schema = `
CREATE TABLE IF NOT EXISTS displacement (
	iter INTEGER NOT NULL,
	t REAL NOT NULL,
	displacement REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS effective_stress (
	iter INTEGER NOT NULL,
	t REAL NOT NULL,
	particle_id INTEGER NOT NULL,
	particle_index INTEGER NOT NULL,
	value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS effective_stress_particle ON effective_stress (particle_id, iter);
`

// Store writes tick results into a SQLite database file.
type Store struct {
	db   *sql.DB
	path string

	// Per-particle rows are only written when enabled
	particles bool
}

// Open creates or opens the database at path. When particles is true every
// effective stress annotation is stored, otherwise only displacement.
func Open(path string, particles bool) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path, particles: particles}, nil
}

// WriteTick stores one tick result in a single transaction.
func (s *Store) WriteTick(res sampler.TickResult) (retErr error) {
	if !res.Sampled() && (!s.particles || len(res.Stress.Values) == 0) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if res.Sampled() {
		if _, err := tx.Exec(`INSERT INTO displacement (iter, t, displacement) VALUES (?, ?, ?)`,
			res.Iter, res.Time, res.Displacement); err != nil {
			return fmt.Errorf("insert displacement: %w", err)
		}
	}

	if s.particles && len(res.Stress.Values) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO effective_stress (iter, t, particle_id, particle_index, value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare effective stress: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, v := range res.Stress.Values {
			if _, err := stmt.Exec(res.Iter, res.Time, int64(v.ID), v.Index, v.Value); err != nil {
				return fmt.Errorf("insert effective stress: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Displacement loads the stored series in insertion order.
func (s *Store) Displacement(ctx context.Context) ([]sampler.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t, displacement FROM displacement ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select displacement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []sampler.Sample
	for rows.Next() {
		var smp sampler.Sample
		if err := rows.Scan(&smp.Time, &smp.Displacement); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// EffectiveStress loads the stored history of one particle.
func (s *Store) EffectiveStress(ctx context.Context, id uint32) ([]sampler.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t, value FROM effective_stress WHERE particle_id = ? ORDER BY iter, rowid`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("select effective stress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []sampler.Point
	for rows.Next() {
		var p sampler.Point
		if err := rows.Scan(&p.T, &p.V); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
