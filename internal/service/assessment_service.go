package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/audit"
	"github.com/imwg-risk-server/internal/cache"
	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/metrics"
)

// Health states reported by Health.
const (
	HealthHealthy      = "healthy"
	HealthUnhealthy    = "unhealthy"
	DatabaseConnected  = "connected"
	DatabaseDisconnect = "disconnected"
)

// RiskReport is the full output of one classification.
type RiskReport struct {
	RiskResult             domain.RiskResult   `json:"risk_result"`
	RiskFactors            []domain.RiskFactor `json:"risk_factors"`
	TotalRiskFactors       int                 `json:"total_risk_factors"`
	ClinicalInterpretation string              `json:"clinical_interpretation"`
	Recommendations        []string            `json:"recommendations"`
}

// HealthStatus is reported by Health. The error string is empty when healthy.
type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AssessmentService runs the assessment lifecycle: validation, persistence,
// classification, caching and the audit trail.
type AssessmentService struct {
	repo    domain.AssessmentRepository
	audit   *audit.Log
	cache   domain.AssessmentCache
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewAssessmentService creates a new assessment service. A nil cache disables caching.
func NewAssessmentService(
	repo domain.AssessmentRepository,
	auditLog *audit.Log,
	assessmentCache domain.AssessmentCache,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *AssessmentService {
	if assessmentCache == nil {
		assessmentCache = cache.NoopCache{}
	}
	return &AssessmentService{
		repo:    repo,
		audit:   auditLog,
		cache:   assessmentCache,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// EvaluateProfile classifies a profile without persisting anything.
func EvaluateProfile(profile domain.GeneticProfile) *RiskReport {
	c := Classify(profile)
	return &RiskReport{
		RiskResult:             c.RiskResult,
		RiskFactors:            c.RiskFactors,
		TotalRiskFactors:       len(c.RiskFactors),
		ClinicalInterpretation: GenerateInterpretation(c, profile),
		Recommendations:        GenerateRecommendations(c),
	}
}

// Create validates the submission and stores a new DRAFT assessment at version 1.
func (s *AssessmentService) Create(ctx context.Context, req *domain.CreateAssessmentRequest, performedBy *string) (a *domain.Assessment, err error) {
	defer func() { s.observe("create", err) }()

	if errs := ValidateAssessment(req); len(errs) > 0 {
		s.metrics.ValidationFailures.WithLabelValues("create").Inc()
		return nil, domain.NewValidationError(domain.MsgValidationFailed, errs)
	}

	now := s.now()
	a = &domain.Assessment{
		ID:          uuid.New().String(),
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		GeneticProfile: domain.GeneticProfile{
			Del17pTP53:         domain.MarkerStatus(req.Del17pTP53),
			TranslocationCombo: domain.MarkerStatus(req.TranslocationCombo),
			Del1p32:            domain.MarkerStatus(req.Del1p32),
			B2MValue:           req.B2MValue,
			CreatinineValue:    req.CreatinineValue,
		},
		ClinicalNotes: req.ClinicalNotes,
		PhysicianName: req.PhysicianName,
		Institution:   req.Institution,
		Status:        domain.DRAFT,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}

	actor := resolveActor(performedBy, req.PhysicianName)
	s.audit.Record(ctx, a.ID, domain.ActionCreated, audit.ActorDetails("created_by", actor), actor)

	s.logger.WithFields(logrus.Fields{
		"assessment_id": a.ID,
	}).Info("Assessment created")
	return a, nil
}

// Get returns the assessment, reading through the cache. A fill that lost a
// race with a write is dropped by the cache's version check.
func (s *AssessmentService) Get(ctx context.Context, id string) (*domain.Assessment, error) {
	if a, ok := s.cache.Get(ctx, id); ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return a, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, a)
	return a, nil
}

// Update applies a partial update. The patch fields are checked first, then
// the merged record is checked as a whole. A submitted version must match
// the stored one.
func (s *AssessmentService) Update(ctx context.Context, id string, req *domain.UpdateAssessmentRequest, performedBy *string) (merged *domain.Assessment, err error) {
	defer func() { s.observe("update", err) }()

	if errs := ValidatePatch(req); len(errs) > 0 {
		s.metrics.ValidationFailures.WithLabelValues("update").Inc()
		return nil, domain.NewValidationError(domain.MsgValidationFailed, errs)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != current.Version {
		return nil, fmt.Errorf("assessment %s is at version %d, update was based on %d: %w",
			id, current.Version, *req.Version, domain.ErrVersionConflict)
	}

	merged = current.Clone()
	applyPatch(merged, req)
	if errs := ValidateAssessment(requestFromAssessment(merged)); len(errs) > 0 {
		s.metrics.ValidationFailures.WithLabelValues("update").Inc()
		return nil, domain.NewValidationError(domain.MsgValidationFailed, errs)
	}

	merged.Version = current.Version + 1
	merged.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, merged, current.Version); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, merged)

	actor := resolveActor(performedBy, req.PhysicianName)
	details := audit.ActorDetails("updated_by", actor)
	details["changes"] = req.Changes()
	s.audit.Record(ctx, id, domain.ActionUpdated, details, actor)

	s.logger.WithFields(logrus.Fields{
		"assessment_id": id,
		"version":       merged.Version,
	}).Info("Assessment updated")
	return merged, nil
}

// List returns a page of assessments, most recent first.
func (s *AssessmentService) List(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.Assessment, error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// Delete records the deletion and removes the assessment with its calculations.
func (s *AssessmentService) Delete(ctx context.Context, id string, performedBy *string) (err error) {
	defer func() { s.observe("delete", err) }()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var patientName interface{}
	if a.PatientName != nil {
		patientName = *a.PatientName
	}
	s.audit.Record(ctx, id, domain.ActionDeleted, map[string]interface{}{"patient_name": patientName}, performedBy)

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(ctx, id)

	s.logger.WithField("assessment_id", id).Info("Assessment deleted")
	return nil
}

// Calculate classifies the stored profile, writes the summary onto the
// assessment (status COMPLETED) and stores a new Calculation snapshot.
// The write fails with ErrVersionConflict if the assessment changed meanwhile.
func (s *AssessmentService) Calculate(ctx context.Context, id string, performedBy *string) (calc *domain.Calculation, err error) {
	defer func() { s.observe("calculate", err) }()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(domain.COMPLETED) {
		return nil, fmt.Errorf("assessment %s has unknown status %q", id, a.Status)
	}

	report := EvaluateProfile(a.Profile())
	now := s.now()
	calc = &domain.Calculation{
		ID:                     uuid.New().String(),
		AssessmentID:           id,
		RiskResult:             report.RiskResult,
		RiskFactors:            report.RiskFactors,
		TotalRiskFactors:       report.TotalRiskFactors,
		ClinicalInterpretation: report.ClinicalInterpretation,
		Recommendations:        report.Recommendations,
		CalculatedAt:           now,
	}

	expected := a.Version
	result := report.RiskResult
	total := report.TotalRiskFactors
	a.RiskResult = &result
	a.RiskFactors = report.RiskFactors
	a.TotalRiskFactors = &total
	a.Status = domain.COMPLETED
	a.Version++
	a.UpdatedAt = now

	if err := s.repo.SaveCalculation(ctx, a, calc, expected); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, a)

	s.metrics.Calculations.WithLabelValues(string(calc.RiskResult)).Inc()
	s.audit.Record(ctx, id, domain.ActionCalculated, map[string]interface{}{
		"risk_result":        string(calc.RiskResult),
		"total_risk_factors": calc.TotalRiskFactors,
	}, performedBy)

	s.logger.WithFields(logrus.Fields{
		"assessment_id": id,
		"risk_result":   calc.RiskResult,
		"risk_factors":  calc.TotalRiskFactors,
	}).Info("Risk calculated")
	return calc, nil
}

// History returns the audit trail of an existing assessment, most recent first.
func (s *AssessmentService) History(ctx context.Context, id string) ([]*domain.HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.Entries(ctx, id)
}

// Calculations returns the snapshots of an existing assessment, most recent first.
func (s *AssessmentService) Calculations(ctx context.Context, id string) ([]*domain.Calculation, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListCalculations(ctx, id)
}

// Health pings the store. It reports failure in the status rather than as an error.
func (s *AssessmentService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    HealthHealthy,
		Database:  DatabaseConnected,
		Timestamp: s.now(),
	}
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		status.Status = HealthUnhealthy
		status.Database = DatabaseDisconnect
		status.Error = err.Error()
	}
	return status
}

func (s *AssessmentService) observe(operation string, err error) {
	var verr *domain.ValidationError
	outcome := metrics.Outcome(err)
	switch {
	case errors.As(err, &verr):
		outcome = "invalid"
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		outcome = "conflict"
	}
	s.metrics.AssessmentOperations.WithLabelValues(operation, outcome).Inc()
}

// resolveActor picks who an audit entry is attributed to: the explicit
// performer when given, otherwise the physician named on the submission.
func resolveActor(performedBy, physicianName *string) *string {
	if performedBy != nil && *performedBy != "" {
		return performedBy
	}
	if physicianName != nil && *physicianName != "" {
		return physicianName
	}
	return nil
}

func applyPatch(a *domain.Assessment, req *domain.UpdateAssessmentRequest) {
	if req.PatientName != nil {
		a.PatientName = req.PatientName
	}
	if req.Del17pTP53 != nil {
		a.Del17pTP53 = domain.MarkerStatus(*req.Del17pTP53)
	}
	if req.TranslocationCombo != nil {
		a.TranslocationCombo = domain.MarkerStatus(*req.TranslocationCombo)
	}
	if req.Del1p32 != nil {
		a.Del1p32 = domain.MarkerStatus(*req.Del1p32)
	}
	if req.B2MValue != nil {
		a.B2MValue = req.B2MValue
	}
	if req.CreatinineValue != nil {
		a.CreatinineValue = req.CreatinineValue
	}
	if req.ClinicalNotes != nil {
		a.ClinicalNotes = req.ClinicalNotes
	}
	if req.PhysicianName != nil {
		a.PhysicianName = req.PhysicianName
	}
	if req.Institution != nil {
		a.Institution = req.Institution
	}
}
