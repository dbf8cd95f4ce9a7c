package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
)

// SQLiteRepository handles assessment persistence on SQLite. The handle comes
// from database.OpenSQLite and may be shared with the audit store.
type SQLiteRepository struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteRepository creates the repository and its schema if it doesn't exist.
func NewSQLiteRepository(db *sql.DB, logger *logrus.Logger) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteRepository{db: db, log: logger}, nil
}

// createSchema mirrors the PostgreSQL migrations.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		patient_id TEXT,
		patient_name TEXT,
		del17p_tp53 TEXT NOT NULL CHECK (del17p_tp53 IN ('positive', 'negative')),
		translocation_combo TEXT NOT NULL CHECK (translocation_combo IN ('positive', 'negative')),
		del1p32_1q TEXT NOT NULL CHECK (del1p32_1q IN ('positive', 'negative')),
		b2m_value REAL,
		creatinine_value REAL,
		clinical_notes TEXT,
		physician_name TEXT,
		institution TEXT,
		risk_result TEXT,
		risk_factors TEXT,
		total_risk_factors INTEGER,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK ((b2m_value IS NULL) = (creatinine_value IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_patient_id ON assessments(patient_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);
	CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);

	CREATE TABLE IF NOT EXISTS risk_calculations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		assessment_id TEXT NOT NULL,
		risk_result TEXT NOT NULL,
		risk_factors TEXT NOT NULL,
		total_risk_factors INTEGER NOT NULL,
		clinical_interpretation TEXT NOT NULL,
		recommendations TEXT NOT NULL,
		calculated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_risk_calculations_assessment ON risk_calculations(assessment_id);
	`

	_, err := db.Exec(schema)
	return err
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Create inserts a new assessment.
func (r *SQLiteRepository) Create(ctx context.Context, a *domain.Assessment) error {
	factors, err := encodeFactors(a.RiskFactors)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.PatientID,
		a.PatientName,
		string(a.Del17pTP53),
		string(a.TranslocationCombo),
		string(a.Del1p32),
		a.B2MValue,
		a.CreatinineValue,
		a.ClinicalNotes,
		a.PhysicianName,
		a.Institution,
		riskResultValue(a.RiskResult),
		nullableText(factors),
		a.TotalRiskFactors,
		string(a.Status),
		a.Version,
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": a.ID,
			"error":         err,
		}).Error("Failed to create assessment")
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetByID retrieves an assessment by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.Assessment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)
	a, err := scanSQLAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return a, nil
}

// Update writes the editable fields when the stored version matches.
func (r *SQLiteRepository) Update(ctx context.Context, a *domain.Assessment, expectedVersion int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE assessments
		SET patient_name = ?, del17p_tp53 = ?, translocation_combo = ?, del1p32_1q = ?,
			b2m_value = ?, creatinine_value = ?, clinical_notes = ?, physician_name = ?,
			institution = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		a.PatientName,
		string(a.Del17pTP53),
		string(a.TranslocationCombo),
		string(a.Del1p32),
		a.B2MValue,
		a.CreatinineValue,
		a.ClinicalNotes,
		a.PhysicianName,
		a.Institution,
		a.Version,
		a.UpdatedAt.UTC(),
		a.ID,
		expectedVersion,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": a.ID,
			"error":         err,
		}).Error("Failed to update assessment")
		return fmt.Errorf("failed to update assessment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return sqlMissOrConflict(ctx, r.db, a.ID)
	}
	return nil
}

// List returns a page of assessments, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.Assessment, error) {
	filter.Normalize()

	where, args := filterClause(filter, func(int) string { return "?" }, `lower(physician_name) LIKE lower(%s) ESCAPE '\'`)
	args = append(args, filter.Limit, filter.Skip)
	query := `SELECT ` + assessmentColumns + ` FROM assessments` + where +
		` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	assessments := make([]*domain.Assessment, 0)
	for rows.Next() {
		a, err := scanSQLAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assessments: %w", err)
	}
	return assessments, nil
}

// Delete removes an assessment and its calculations.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM risk_calculations WHERE assessment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete calculations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// SaveCalculation writes the risk summary and inserts the snapshot in one transaction.
func (r *SQLiteRepository) SaveCalculation(ctx context.Context, a *domain.Assessment, calc *domain.Calculation, expectedVersion int) error {
	factors, err := encodeFactors(calc.RiskFactors)
	if err != nil {
		return err
	}
	if factors == nil {
		factors = []byte("[]")
	}
	recommendations, err := json.Marshal(calc.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE assessments
		SET risk_result = ?, risk_factors = ?, total_risk_factors = ?, status = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(calc.RiskResult),
		string(factors),
		calc.TotalRiskFactors,
		string(a.Status),
		a.Version,
		a.UpdatedAt.UTC(),
		a.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk summary: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return sqlMissOrConflict(ctx, tx, a.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO risk_calculations (`+calculationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		calc.ID,
		calc.AssessmentID,
		string(calc.RiskResult),
		string(factors),
		calc.TotalRiskFactors,
		calc.ClinicalInterpretation,
		string(recommendations),
		calc.CalculatedAt.UTC(),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id":  a.ID,
			"calculation_id": calc.ID,
			"error":          err,
		}).Error("Failed to insert calculation")
		return fmt.Errorf("failed to insert calculation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit calculation: %w", err)
	}
	return nil
}

// ListCalculations returns the snapshots of one assessment, most recent first.
func (r *SQLiteRepository) ListCalculations(ctx context.Context, assessmentID string) ([]*domain.Calculation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+calculationColumns+`
		FROM risk_calculations
		WHERE assessment_id = ?
		ORDER BY calculated_at DESC, seq DESC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	calcs := make([]*domain.Calculation, 0)
	for rows.Next() {
		c := &domain.Calculation{}
		var riskResult, factors, recommendations string
		if err := rows.Scan(&c.ID, &c.AssessmentID, &riskResult, &factors, &c.TotalRiskFactors,
			&c.ClinicalInterpretation, &recommendations, &c.CalculatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calculation: %w", err)
		}
		if err := decodeCalculation(c, riskResult, []byte(factors), []byte(recommendations)); err != nil {
			return nil, err
		}
		calcs = append(calcs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calculations: %w", err)
	}
	return calcs, nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func sqlMissOrConflict(ctx context.Context, q sqlQuerier, id string) error {
	var version int
	err := q.QueryRowContext(ctx, `SELECT version FROM assessments WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check assessment version: %w", err)
	}
	return fmt.Errorf("assessment %s is at version %d: %w", id, version, domain.ErrVersionConflict)
}

// nullableText binds JSON text, or NULL when there is none.
func nullableText(data []byte) interface{} {
	if data == nil {
		return nil
	}
	return string(data)
}

type sqlScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLAssessment(row sqlScanner) (*domain.Assessment, error) {
	a := &domain.Assessment{}
	var del17p, translocation, del1p32, status string
	var riskResult, factors sql.NullString

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&del17p,
		&translocation,
		&del1p32,
		&a.B2MValue,
		&a.CreatinineValue,
		&a.ClinicalNotes,
		&a.PhysicianName,
		&a.Institution,
		&riskResult,
		&factors,
		&a.TotalRiskFactors,
		&status,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Del17pTP53 = domain.MarkerStatus(del17p)
	a.TranslocationCombo = domain.MarkerStatus(translocation)
	a.Del1p32 = domain.MarkerStatus(del1p32)
	a.Status = domain.AssessmentStatus(status)
	if riskResult.Valid {
		a.RiskResult = riskResultFrom(&riskResult.String)
	}
	if factors.Valid {
		if a.RiskFactors, err = decodeFactors([]byte(factors.String)); err != nil {
			return nil, err
		}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
