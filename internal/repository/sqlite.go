package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/replay/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			parent_run_id TEXT,
			sibling_run_id TEXT,
			type TEXT NOT NULL DEFAULT 'chat',
			name TEXT,
			input TEXT,
			output TEXT,
			created_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			feedback TEXT,
			user_ref TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_parent ON runs(parent_run_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_sibling ON runs(sibling_run_id)`,
		// Events outlive the runs they describe, so no foreign key.
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const runColumns = `run_id, parent_run_id, sibling_run_id, type, name, input, output, created_at, ended_at, feedback, user_ref`

// CreateRun stores a run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.RunRecord) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	output, err := json.Marshal(run.Output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	var user []byte
	if run.User != nil {
		if user, err = json.Marshal(run.User); err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
	}
	runType := run.Type
	if runType == "" {
		runType = domain.RunTypeChat
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullString(run.ParentRunID), nullString(run.SiblingRunID), runType, nullString(run.Name),
		string(input), string(output), run.CreatedAt, run.EndedAt,
		nullStringBytes(run.Feedback), nullStringBytes(user))
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves the runs of a conversation, optionally filtered by type.
func (s *SQLiteStore) ListRuns(ctx context.Context, parentRunID string, types []domain.RunType) ([]domain.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE parent_run_id = ?`
	args := []interface{}{parentRunID}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}
	query += ` ORDER BY created_at ASC, run_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunFeedback replaces the feedback of a run. It reports whether the
// run existed.
func (s *SQLiteStore) UpdateRunFeedback(ctx context.Context, runID string, feedback json.RawMessage) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET feedback = ? WHERE run_id = ?`,
		nullStringBytes(feedback), runID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteRun removes a run together with its retries and every run nested
// under any of them. It returns the removed ids, or nil when runID does
// not exist.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	deleted := []string{runID}
	seen := map[string]bool{runID: true}
	for i := 0; i < len(deleted); i++ {
		rows, err := tx.QueryContext(ctx,
			`SELECT run_id FROM runs WHERE sibling_run_id = ? OR parent_run_id = ? ORDER BY created_at ASC, run_id ASC`,
			deleted[i], deleted[i])
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if !seen[id] {
				seen[id] = true
				deleted = append(deleted, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	for _, id := range deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var parentRunID, siblingRunID, name, input, output, feedback, user sql.NullString
	if err := row.Scan(&run.ID, &parentRunID, &siblingRunID, &run.Type, &name,
		&input, &output, &run.CreatedAt, &run.EndedAt, &feedback, &user); err != nil {
		return nil, err
	}
	run.ParentRunID = parentRunID.String
	run.SiblingRunID = siblingRunID.String
	run.Name = name.String
	if input.Valid {
		if err := json.Unmarshal([]byte(input.String), &run.Input); err != nil {
			return nil, fmt.Errorf("failed to decode input of run %s: %w", run.ID, err)
		}
	}
	if output.Valid {
		if err := json.Unmarshal([]byte(output.String), &run.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output of run %s: %w", run.ID, err)
		}
	}
	if feedback.Valid {
		run.Feedback = json.RawMessage(feedback.String)
	}
	if user.Valid {
		run.User = &domain.UserRef{}
		if err := json.Unmarshal([]byte(user.String), run.User); err != nil {
			return nil, fmt.Errorf("failed to decode user of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
