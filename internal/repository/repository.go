// Package repository persists assessments and their calculation snapshots.
package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/imwg-risk-server/internal/domain"
)

const assessmentColumns = `id, patient_id, patient_name, del17p_tp53, translocation_combo, del1p32_1q,
	b2m_value, creatinine_value, clinical_notes, physician_name, institution,
	risk_result, risk_factors, total_risk_factors, status, version, created_at, updated_at`

const calculationColumns = `id, assessment_id, risk_result, risk_factors, total_risk_factors,
	clinical_interpretation, recommendations, calculated_at`

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// encodeFactors returns the JSON text stored for a criteria list, or nil for none.
func encodeFactors(factors []domain.RiskFactor) ([]byte, error) {
	if factors == nil {
		return nil, nil
	}
	data, err := json.Marshal(factors)
	if err != nil {
		return nil, fmt.Errorf("marshaling risk factors: %w", err)
	}
	return data, nil
}

func decodeFactors(data []byte) ([]domain.RiskFactor, error) {
	if len(data) == 0 {
		return nil, nil
	}
	factors := make([]domain.RiskFactor, 0)
	if err := json.Unmarshal(data, &factors); err != nil {
		return nil, fmt.Errorf("unmarshaling risk factors: %w", err)
	}
	return factors, nil
}

func riskResultValue(r *domain.RiskResult) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func riskResultFrom(s *string) *domain.RiskResult {
	if s == nil {
		return nil
	}
	r := domain.RiskResult(*s)
	return &r
}

// filterClause builds the WHERE clause for a listing. placeholder renders the
// n-th bind parameter in the driver's syntax.
func filterClause(filter domain.AssessmentFilter, placeholder func(n int) string, physicianMatch string) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, placeholder(len(args))))
	}

	if filter.PatientID != "" {
		add("patient_id = %s", filter.PatientID)
	}
	if filter.PhysicianName != "" {
		add(physicianMatch, "%"+escapeLike(filter.PhysicianName)+"%")
	}
	if filter.RiskResult != "" {
		add("risk_result = %s", string(filter.RiskResult))
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
