// Package state persists run state between invocations: snapshots of the
// destination taken before data is migrated and the outcome of every phase.
package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"dbmigrate/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoSnapshot is returned when no snapshot was taken for an entity key.
var ErrNoSnapshot = errors.New("state: no snapshot")

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed state store.
type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open opens or creates the state database at path and applies pending
// schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	// Keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping %s: %w", path, err)
	}
	s := &Store{db: db, log: logging.Component("state").WithField("path", path)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("state: migrations source: %w", err)
	}
	drv, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("state: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("state: migrate: %w", err)
	}
	from, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("state: migrate up: %w", err)
	}
	to, _, _ := m.Version()
	if from != to {
		s.log.WithFields(logrus.Fields{"from_version": from, "to_version": to}).Info("state schema migrated")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot stores values under entity and key, replacing any earlier
// snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, entity, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshots (entity, key, vals, taken_at) VALUES (?, ?, ?, ?)
ON CONFLICT (entity, key) DO UPDATE SET vals = excluded.vals, taken_at = excluded.taken_at`,
		entity, key, string(b), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("state: save snapshot %s/%s: %w", entity, key, err)
	}
	return nil
}

// Snapshot returns the values stored under entity and key, or ErrNoSnapshot.
func (s *Store) Snapshot(ctx context.Context, entity, key string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT vals FROM snapshots WHERE entity = ? AND key = ?`, entity, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoSnapshot, entity, key)
	}
	if err != nil {
		return nil, fmt.Errorf("state: snapshot %s/%s: %w", entity, key, err)
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("state: decode snapshot %s/%s: %w", entity, key, err)
	}
	return out, nil
}

// HasSnapshot reports whether any snapshot exists for entity.
func (s *Store) HasSnapshot(ctx context.Context, entity string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE entity = ?`, entity).Scan(&n); err != nil {
		return false, fmt.Errorf("state: has snapshot %s: %w", entity, err)
	}
	return n > 0, nil
}

// Reset forgets the snapshots of entity.
func (s *Store) Reset(ctx context.Context, entity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE entity = ?`, entity); err != nil {
		return fmt.Errorf("state: reset %s: %w", entity, err)
	}
	return nil
}

// PhaseRecord is the outcome of one phase of one entity.
type PhaseRecord struct {
	ID       string
	RunID    string
	Entity   string
	Phase    string
	OK       bool
	Error    string
	Findings int
	Started  time.Time
	Duration time.Duration
}

// RecordPhase appends rec to the phase history. A missing ID is generated.
func (s *Store) RecordPhase(ctx context.Context, rec PhaseRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO phase_runs
(id, run_id, entity, phase, ok, error, findings, started_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Entity, rec.Phase, rec.OK, errText, rec.Findings,
		rec.Started.UTC().Format(timeLayout), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("state: record phase %s/%s: %w", rec.Entity, rec.Phase, err)
	}
	return nil
}

// LastPhases returns the latest record per entity and phase, ordered by
// entity and phase.
func (s *Store) LastPhases(ctx context.Context) ([]PhaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.run_id, p.entity, p.phase, p.ok, COALESCE(p.error, ''), p.findings, p.started_at, p.duration_ms
FROM phase_runs p
WHERE p.rowid = (
    SELECT q.rowid FROM phase_runs q
    WHERE q.entity = p.entity AND q.phase = p.phase
    ORDER BY q.started_at DESC, q.rowid DESC LIMIT 1
)
ORDER BY p.entity, p.phase`)
	if err != nil {
		return nil, fmt.Errorf("state: last phases: %w", err)
	}
	defer rows.Close()

	var out []PhaseRecord
	for rows.Next() {
		var (
			rec     PhaseRecord
			started string
			ms      int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Entity, &rec.Phase, &rec.OK, &rec.Error, &rec.Findings, &started, &ms); err != nil {
			return nil, fmt.Errorf("state: last phases: %w", err)
		}
		if rec.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("state: last phases: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
