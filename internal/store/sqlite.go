package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gkobilansky/xgoat/internal/experiment"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    definition TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'DRAFT',
    winner_variant TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    points REAL NOT NULL DEFAULT 0,
    user_type TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    user_id TEXT NOT NULL,
    category TEXT NOT NULL,
    event_type TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    variant_name TEXT NOT NULL DEFAULT '',
    conversion_type TEXT NOT NULL DEFAULT '',
    value REAL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_category ON events(category, event_type);
CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, experiment_id, event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_assignment
    ON events(experiment_id, user_id) WHERE event_type = 'AB_TEST_ASSIGNMENT';
`

// OpenSQLite opens (creating if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, exp *experiment.Experiment) error {
	definition, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, definition, status, winner_variant, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = excluded.name,
		     definition = excluded.definition,
		     status = excluded.status,
		     winner_variant = excluded.winner_variant,
		     updated_at = excluded.updated_at`,
		exp.ID, exp.Name, string(definition), string(exp.Status), nullableString(exp.WinnerVariantID),
		exp.CreatedAt.UnixNano(), exp.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

const experimentColumns = `definition, status, winner_variant, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*experiment.Experiment, error) {
	var definition string
	var status string
	var winner sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&definition, &status, &winner, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var exp experiment.Experiment
	if err := json.Unmarshal([]byte(definition), &exp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}
	exp.Status = experiment.Status(status)
	exp.WinnerVariantID = winner.String
	exp.CreatedAt = time.Unix(0, createdAt).UTC()
	exp.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	exp, err := scanExperiment(s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*experiment.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	return exps, nil
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status experiment.Status, winnerVariantID string) error {
	now := time.Now().UnixNano()

	var result sql.Result
	var err error

	if winnerVariantID != "" {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, winner_variant = ?, updated_at = ? WHERE id = ?`,
			string(status), winnerVariantID, now, id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id,
		)
	}

	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

const insertEvent = `INSERT INTO events
    (id, user_id, category, event_type, experiment_id, variant_id, variant_name, conversion_type, value, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func eventArgs(e *Event) []any {
	var value sql.NullFloat64
	if e.Value != nil {
		value = sql.NullFloat64{Float64: *e.Value, Valid: true}
	}
	return []any{
		e.ID, e.UserID, e.Category, e.EventType, e.ExperimentID,
		e.VariantID, e.VariantName, e.ConversionType, value, e.CreatedAt.UnixNano(),
	}
}

func (s *SQLiteStore) Append(ctx context.Context, e *Event) error {
	e.prepare()
	if _, err := s.db.ExecContext(ctx, insertEvent, eventArgs(e)...); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClaimAssignment(ctx context.Context, e *Event) (*Event, bool, error) {
	e.prepare()

	// The partial unique index on (experiment_id, user_id) turns a second
	// assignment for the same pair into a no-op.
	result, err := s.db.ExecContext(ctx, insertEvent+` ON CONFLICT DO NOTHING`, eventArgs(e)...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return e, true, nil
	}

	existing, err := s.Query(ctx, assignmentFilter(e.ExperimentID, e.UserID))
	if err != nil {
		return nil, false, err
	}
	if len(existing) == 0 {
		return nil, false, fmt.Errorf("assignment for %s/%s conflicted but was not found", e.ExperimentID, e.UserID)
	}
	return existing[0], false, nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*Event, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.ExperimentID != "" {
		where = append(where, "experiment_id = ?")
		args = append(args, f.ExperimentID)
	}

	var q strings.Builder
	q.WriteString(`SELECT id, user_id, category, event_type, experiment_id, variant_id, variant_name, conversion_type, value, created_at FROM events`)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	if f.Order == OrderDesc {
		q.WriteString(" ORDER BY created_at DESC, seq DESC")
	} else {
		q.WriteString(" ORDER BY created_at ASC, seq ASC")
	}
	if f.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var value sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &e.EventType, &e.ExperimentID,
			&e.VariantID, &e.VariantName, &e.ConversionType, &value, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if value.Valid {
			v := value.Float64
			e.Value = &v
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return events, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, points, user_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     points = excluded.points,
		     user_type = excluded.user_type,
		     updated_at = excluded.updated_at`,
		u.ID, u.Points, u.UserType, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Points(ctx context.Context, userID string) (float64, bool, error) {
	var points float64
	err := s.db.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, userID).Scan(&points)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get user points: %w", err)
	}
	return points, true, nil
}

func (s *SQLiteStore) UserType(ctx context.Context, userID string) (string, bool, error) {
	var userType string
	err := s.db.QueryRowContext(ctx, `SELECT user_type FROM users WHERE id = ?`, userID).Scan(&userType)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get user type: %w", err)
	}
	return userType, true, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
