package domain

import (
	"context"
)

// AssessmentRepository persists Assessment and Calculation records.
// Implementations own both collections; Calculation rows are removed only
// through Delete of their parent.
type AssessmentRepository interface {
	// Create inserts a new assessment.
	Create(ctx context.Context, assessment *Assessment) error

	// GetByID returns the assessment or an error wrapping ErrNotFound.
	GetByID(ctx context.Context, id string) (*Assessment, error)

	// Update writes the editable fields, updated_at and version of the assessment.
	// The write only applies when the stored version equals expectedVersion;
	// otherwise ErrVersionConflict (or ErrNotFound if the row is gone) is returned.
	Update(ctx context.Context, assessment *Assessment, expectedVersion int) error

	// List returns a most-recent-first page of assessments matching the filter.
	List(ctx context.Context, filter AssessmentFilter) ([]*Assessment, error)

	// Delete removes the assessment and all its calculations.
	Delete(ctx context.Context, id string) error

	// SaveCalculation writes the risk summary onto the assessment and inserts the
	// calculation snapshot atomically, guarded by expectedVersion like Update.
	SaveCalculation(ctx context.Context, assessment *Assessment, calc *Calculation, expectedVersion int) error

	// ListCalculations returns the snapshots of one assessment, most recent first.
	ListCalculations(ctx context.Context, assessmentID string) ([]*Calculation, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// AssessmentCache is a read-through cache of assessments keyed by id.
// Cache failures are never fatal: implementations report them as misses.
// Set never replaces a cached entry with a lower Version, and Delete keeps a
// tombstone so a fill racing the deletion cannot bring the record back.
type AssessmentCache interface {
	Get(ctx context.Context, id string) (*Assessment, bool)
	Set(ctx context.Context, assessment *Assessment)
	Delete(ctx context.Context, id string)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetCacheConfig() *CacheConfig
	Reload() error
	Validate() error
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
