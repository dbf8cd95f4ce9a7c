package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
)

// PostgresRepository handles assessment persistence on PostgreSQL.
// The schema is owned by the embedded migrations.
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a new assessment repository
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

// pgRow is satisfied by pgx.Row and pgx.Rows.
type pgRow interface {
	Scan(dest ...any) error
}

// Create inserts a new assessment into the database
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Assessment) error {
	factors, err := encodeFactors(a.RiskFactors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assessments (` + assessmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = r.db.Exec(ctx, query,
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
		factors,
		a.TotalRiskFactors,
		string(a.Status),
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": a.ID,
			"error":         err,
		}).Error("Failed to create assessment")
		return fmt.Errorf("creating assessment: %w", err)
	}

	r.log.WithField("assessment_id", a.ID).Debug("Assessment created")
	return nil
}

// GetByID retrieves an assessment by its ID
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`

	a, err := scanPgAssessment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"assessment_id": id,
			"error":         err,
		}).Error("Failed to get assessment by ID")
		return nil, fmt.Errorf("getting assessment by ID: %w", err)
	}
	return a, nil
}

// Update writes the editable fields when the stored version matches.
func (r *PostgresRepository) Update(ctx context.Context, a *domain.Assessment, expectedVersion int) error {
	query := `
		UPDATE assessments
		SET patient_name = $3, del17p_tp53 = $4, translocation_combo = $5, del1p32_1q = $6,
			b2m_value = $7, creatinine_value = $8, clinical_notes = $9, physician_name = $10,
			institution = $11, version = $12, updated_at = $13
		WHERE id = $1 AND version = $2`

	result, err := r.db.Exec(ctx, query,
		a.ID,
		expectedVersion,
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
		a.UpdatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": a.ID,
			"error":         err,
		}).Error("Failed to update assessment")
		return fmt.Errorf("updating assessment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, r.db, a.ID)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id": a.ID,
		"version":       a.Version,
	}).Debug("Assessment updated")
	return nil
}

// List returns a page of assessments, most recent first.
func (r *PostgresRepository) List(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.Assessment, error) {
	filter.Normalize()

	where, args := filterClause(filter, pgPlaceholder, `physician_name ILIKE %s ESCAPE '\'`)
	args = append(args, filter.Limit, filter.Skip)
	query := `SELECT ` + assessmentColumns + ` FROM assessments` + where +
		` ORDER BY created_at DESC, seq DESC` +
		` LIMIT ` + pgPlaceholder(len(args)-1) + ` OFFSET ` + pgPlaceholder(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list assessments")
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer rows.Close()

	assessments := make([]*domain.Assessment, 0)
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assessment row: %w", err)
		}
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assessment rows: %w", err)
	}
	return assessments, nil
}

// Delete removes an assessment and its calculations.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM risk_calculations WHERE assessment_id = $1`, id); err != nil {
		return fmt.Errorf("deleting calculations: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": id,
			"error":         err,
		}).Error("Failed to delete assessment")
		return fmt.Errorf("deleting assessment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	r.log.WithField("assessment_id", id).Info("Assessment deleted")
	return nil
}

// SaveCalculation writes the risk summary and inserts the snapshot in one transaction.
func (r *PostgresRepository) SaveCalculation(ctx context.Context, a *domain.Assessment, calc *domain.Calculation, expectedVersion int) error {
	factors, err := encodeFactors(calc.RiskFactors)
	if err != nil {
		return err
	}
	recommendations, err := json.Marshal(calc.Recommendations)
	if err != nil {
		return fmt.Errorf("marshaling recommendations: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE assessments
		SET risk_result = $3, risk_factors = $4, total_risk_factors = $5, status = $6,
			version = $7, updated_at = $8
		WHERE id = $1 AND version = $2`,
		a.ID,
		expectedVersion,
		string(calc.RiskResult),
		factors,
		calc.TotalRiskFactors,
		string(a.Status),
		a.Version,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving risk summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, tx, a.ID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO risk_calculations (`+calculationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		calc.ID,
		calc.AssessmentID,
		string(calc.RiskResult),
		factors,
		calc.TotalRiskFactors,
		calc.ClinicalInterpretation,
		recommendations,
		calc.CalculatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id":  a.ID,
			"calculation_id": calc.ID,
			"error":          err,
		}).Error("Failed to insert calculation")
		return fmt.Errorf("inserting calculation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing calculation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id": a.ID,
		"risk_result":   calc.RiskResult,
	}).Info("Calculation saved")
	return nil
}

// ListCalculations returns the snapshots of one assessment, most recent first.
func (r *PostgresRepository) ListCalculations(ctx context.Context, assessmentID string) ([]*domain.Calculation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+calculationColumns+`
		FROM risk_calculations
		WHERE assessment_id = $1
		ORDER BY calculated_at DESC, seq DESC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("listing calculations: %w", err)
	}
	defer rows.Close()

	calcs := make([]*domain.Calculation, 0)
	for rows.Next() {
		c := &domain.Calculation{}
		var riskResult string
		var factors, recommendations []byte
		if err := rows.Scan(&c.ID, &c.AssessmentID, &riskResult, &factors, &c.TotalRiskFactors,
			&c.ClinicalInterpretation, &recommendations, &c.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scanning calculation row: %w", err)
		}
		if err := decodeCalculation(c, riskResult, factors, recommendations); err != nil {
			return nil, err
		}
		calcs = append(calcs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calculation rows: %w", err)
	}
	return calcs, nil
}

// Ping checks the connection pool.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrConflict tells a vanished row apart from a stale version.
func (r *PostgresRepository) missOrConflict(ctx context.Context, q pgQuerier, id string) error {
	var version int
	err := q.QueryRow(ctx, `SELECT version FROM assessments WHERE id = $1`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking assessment version: %w", err)
	}
	return fmt.Errorf("assessment %s is at version %d: %w", id, version, domain.ErrVersionConflict)
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func scanPgAssessment(row pgRow) (*domain.Assessment, error) {
	a := &domain.Assessment{}
	var del17p, translocation, del1p32, status string
	var riskResult *string
	var factors []byte

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
	a.RiskResult = riskResultFrom(riskResult)
	if a.RiskFactors, err = decodeFactors(factors); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func decodeCalculation(c *domain.Calculation, riskResult string, factors, recommendations []byte) error {
	c.RiskResult = domain.RiskResult(riskResult)
	var err error
	if c.RiskFactors, err = decodeFactors(factors); err != nil {
		return err
	}
	if c.RiskFactors == nil {
		c.RiskFactors = []domain.RiskFactor{}
	}
	c.Recommendations = make([]string, 0)
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &c.Recommendations); err != nil {
			return fmt.Errorf("unmarshaling recommendations: %w", err)
		}
	}
	c.CalculatedAt = c.CalculatedAt.UTC()
	return nil
}
