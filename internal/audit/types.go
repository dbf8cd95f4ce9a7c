// Package audit provides the append-only history of actions taken against
// assessments. Writes are best-effort: a failed write is logged and counted,
// never returned to the operation being audited.
package audit

import (
	"context"
	"time"

	"github.com/imwg-risk-server/internal/domain"
)

// Store defines the persistence operations for history entries.
// Entries are never updated or deleted individually.
type Store interface {
	// Insert appends one entry.
	Insert(ctx context.Context, entry *domain.HistoryEntry) error

	// ListByAssessment returns the entries for one assessment, most recent first.
	ListByAssessment(ctx context.Context, assessmentID string) ([]*domain.HistoryEntry, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// HistoryExport represents the JSON export format of one assessment's trail.
type HistoryExport struct {
	Version      string                 `json:"version"`
	AssessmentID string                 `json:"assessment_id"`
	ExportedAt   time.Time              `json:"exported_at"`
	Count        int                    `json:"count"`
	Entries      []*domain.HistoryEntry `json:"entries"`
}

// UnknownActor is recorded in details when no actor name was supplied.
const UnknownActor = "Unknown"

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}
