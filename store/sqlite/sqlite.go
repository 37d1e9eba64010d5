// Package sqlite is a [store.Store] backed by a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/store"
)

// Schema is the DDL applied by [Open].
const Schema = `
CREATE TABLE IF NOT EXISTS takes (
    id           TEXT PRIMARY KEY,
    exercise_id  TEXT NOT NULL,
    recorded_at  INTEGER NOT NULL,
    duration_sec REAL NOT NULL DEFAULT 0,
    sample_rate  INTEGER NOT NULL DEFAULT 0,
    hop_size     INTEGER NOT NULL DEFAULT 0,
    overall      REAL NOT NULL DEFAULT 0,
    offset_ms    REAL NOT NULL DEFAULT 0,
    confidence   REAL NOT NULL DEFAULT 0,
    strategy     TEXT NOT NULL DEFAULT '',
    tendency     TEXT NOT NULL DEFAULT '',
    alignment    TEXT NOT NULL DEFAULT '{}',
    score        TEXT NOT NULL DEFAULT '{}',
    frames       TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_takes_exercise ON takes(exercise_id, recorded_at);
`

// Store implements [store.Store].
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and applies [Schema].
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// one writer keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveTake implements [store.Sink].
func (s *Store) SaveTake(ctx context.Context, t store.Take) error {
	alignmentJSON, err := json.Marshal(t.Alignment)
	if err != nil {
		return fmt.Errorf("sqlite: marshal alignment: %w", err)
	}
	scoreJSON, err := json.Marshal(t.Score)
	if err != nil {
		return fmt.Errorf("sqlite: marshal score: %w", err)
	}
	framesJSON, err := json.Marshal(t.Frames)
	if err != nil {
		return fmt.Errorf("sqlite: marshal frames: %w", err)
	}

	sum := store.Summarize(t)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO takes (id, exercise_id, recorded_at, duration_sec, sample_rate, hop_size,
			overall, offset_ms, confidence, strategy, tendency, alignment, score, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExerciseID, t.RecordedAt.UnixNano(), t.DurationSec, t.SampleRate, t.HopSize,
		sum.Overall, sum.OffsetMs, sum.Confidence, string(sum.Strategy), string(sum.Tendency),
		string(alignmentJSON), string(scoreJSON), string(framesJSON),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("sqlite: save take %q: %w", t.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("sqlite: save take %q: %w", t.ID, err)
	}
	return nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Take, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exercise_id, recorded_at, duration_sec, sample_rate, hop_size, alignment, score, frames
		FROM takes WHERE id = ?`, id)

	var (
		t                                store.Take
		recordedAt                       int64
		alignmentJSON, scoreJSON, frames string
	)
	err := row.Scan(&t.ID, &t.ExerciseID, &recordedAt, &t.DurationSec, &t.SampleRate, &t.HopSize,
		&alignmentJSON, &scoreJSON, &frames)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Take{}, false, nil
	}
	if err != nil {
		return store.Take{}, false, fmt.Errorf("sqlite: get take %q: %w", id, err)
	}

	t.RecordedAt = time.Unix(0, recordedAt).UTC()
	if err := json.Unmarshal([]byte(alignmentJSON), &t.Alignment); err != nil {
		return store.Take{}, false, fmt.Errorf("sqlite: decode alignment of %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(scoreJSON), &t.Score); err != nil {
		return store.Take{}, false, fmt.Errorf("sqlite: decode score of %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(frames), &t.Frames); err != nil {
		return store.Take{}, false, fmt.Errorf("sqlite: decode frames of %q: %w", id, err)
	}
	return t, true, nil
}

// Recent implements [store.Store].
func (s *Store) Recent(ctx context.Context, exerciseID string, limit int) ([]store.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exercise_id, recorded_at, overall, offset_ms, confidence, strategy, tendency
		FROM takes
		WHERE ? = '' OR exercise_id = ?
		ORDER BY recorded_at DESC, id
		LIMIT ?`, exerciseID, exerciseID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query recent takes: %w", err)
	}
	defer rows.Close()

	var out []store.Summary
	for rows.Next() {
		var (
			sum                store.Summary
			recordedAt         int64
			strategy, tendency string
		)
		if err := rows.Scan(&sum.ID, &sum.ExerciseID, &recordedAt, &sum.Overall, &sum.OffsetMs,
			&sum.Confidence, &strategy, &tendency); err != nil {
			return nil, fmt.Errorf("sqlite: scan take: %w", err)
		}
		sum.RecordedAt = time.Unix(0, recordedAt).UTC()
		sum.Strategy = alignment.Strategy(strategy)
		sum.Tendency = scoring.Tendency(tendency)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read takes: %w", err)
	}
	return out, nil
}
