package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/imwg-risk-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
// The database handle is shared with the assessment repository; its owner closes it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a history store on an open SQLite handle and
// creates the schema if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// createSchema creates the history table and indexes.
// seq orders entries written within the same timestamp.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessment_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		assessment_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		performed_by TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_assessment ON assessment_history(assessment_id, timestamp);
	`

	_, err := db.Exec(schema)
	return err
}

// Insert appends one entry.
func (s *SQLiteStore) Insert(ctx context.Context, entry *domain.HistoryEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessment_history (id, assessment_id, action, details, performed_by, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.AssessmentID,
		string(entry.Action),
		string(details),
		entry.PerformedBy,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// ListByAssessment returns the entries for one assessment, most recent first.
func (s *SQLiteStore) ListByAssessment(ctx context.Context, assessmentID string) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assessment_id, action, details, performed_by, timestamp
		FROM assessment_history
		WHERE assessment_id = ?
		ORDER BY timestamp DESC, seq DESC
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the store. The shared handle is left open.
func (s *SQLiteStore) Close() error {
	return nil
}

// scanEntry scans a row into a HistoryEntry.
func scanEntry(s scanner) (*domain.HistoryEntry, error) {
	entry := &domain.HistoryEntry{}
	var action string
	var details []byte
	var performedBy sql.NullString
	var ts time.Time

	if err := s.Scan(&entry.ID, &entry.AssessmentID, &action, &details, &performedBy, &ts); err != nil {
		return nil, err
	}

	entry.Action = domain.HistoryAction(action)
	entry.Timestamp = ts.UTC()
	if performedBy.Valid {
		v := performedBy.String
		entry.PerformedBy = &v
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to decode details: %w", err)
		}
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}
	return entry, nil
}

func scanEntries(rows *sql.Rows) ([]*domain.HistoryEntry, error) {
	entries := make([]*domain.HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}
