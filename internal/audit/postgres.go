package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/imwg-risk-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL history store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL history store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Insert appends one entry.
func (s *PostgresStore) Insert(ctx context.Context, entry *domain.HistoryEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	// details is sent as text; lib/pq would encode []byte as bytea.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessment_history (id, assessment_id, action, details, performed_by, timestamp)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
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
func (s *PostgresStore) ListByAssessment(ctx context.Context, assessmentID string) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assessment_id, action, details, performed_by, timestamp
		FROM assessment_history
		WHERE assessment_id = $1
		ORDER BY timestamp DESC, seq DESC
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
