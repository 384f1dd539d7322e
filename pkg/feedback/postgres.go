package feedback

import (
	"context"
	"database/sql"
	"fmt"

	// registers the postgres driver
	_ "github.com/lib/pq"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS feedback_entries (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	use_case          TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	prompt            TEXT NOT NULL,
	original_response TEXT NOT NULL,
	refined_response  TEXT NOT NULL,
	feedback          TEXT NOT NULL,
	score             INTEGER NOT NULL
)`

	createIndexSQL = `CREATE INDEX IF NOT EXISTS feedback_entries_session_idx ON feedback_entries (session_id, created_at DESC)`

	insertSQL = `INSERT INTO feedback_entries
	(id, session_id, use_case, created_at, prompt, original_response, refined_response, feedback, score)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	historySQL = `SELECT id, session_id, use_case, created_at, prompt, original_response, refined_response, feedback, score
	FROM feedback_entries WHERE session_id = $1 ORDER BY created_at DESC`
)

// PostgresStore keeps entries in a Postgres table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database, checks the connection and creates the table
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the feedback table when it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate feedback table: %w", err)
		}
	}
	return nil
}

// Save implements Store.Save
func (s *PostgresStore) Save(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, insertSQL,
		entry.ID,
		entry.SessionID,
		entry.UseCase,
		entry.Timestamp,
		entry.Prompt,
		entry.OriginalResponse,
		entry.RefinedResponse,
		entry.Feedback,
		entry.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// History implements Store.History
func (s *PostgresStore) History(ctx context.Context, sessionID string, limit int) ([]*Entry, error) {
	query, args := historyQuery(sessionID, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var history []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UseCase, &e.Timestamp, &e.Prompt,
			&e.OriginalResponse, &e.RefinedResponse, &e.Feedback, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		history = append(history, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	return history, nil
}

func historyQuery(sessionID string, limit int) (string, []interface{}) {
	if limit > 0 {
		return historySQL + " LIMIT $2", []interface{}{sessionID, limit}
	}
	return historySQL, []interface{}{sessionID}
}

// Close closes the database
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
