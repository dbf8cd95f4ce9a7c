package domain

import (
	"time"
)

// GeneticProfile holds the inputs evaluated by the risk classifier.
type GeneticProfile struct {
	Del17pTP53         MarkerStatus `json:"del17p_tp53"`
	TranslocationCombo MarkerStatus `json:"translocation_combo"`
	Del1p32            MarkerStatus `json:"del1p32_1q"`
	B2MValue           *float64     `json:"b2m_value,omitempty"`        // mg/L
	CreatinineValue    *float64     `json:"creatinine_value,omitempty"` // mg/dL
}

// HasBiomarkers reports whether both β2M and creatinine were provided.
func (p GeneticProfile) HasBiomarkers() bool {
	return p.B2MValue != nil && p.CreatinineValue != nil
}

// RiskFactor is one matched IMWG criterion.
type RiskFactor struct {
	Criterion   string `json:"criterion"`
	Description string `json:"description"`
	IsPositive  bool   `json:"is_positive"`
}

// Assessment is the persisted clinical record for one patient evaluation.
type Assessment struct {
	ID          string  `json:"id"`
	PatientID   *string `json:"patient_id,omitempty"`
	PatientName *string `json:"patient_name,omitempty"`

	GeneticProfile

	ClinicalNotes *string `json:"clinical_notes,omitempty"`
	PhysicianName *string `json:"physician_name,omitempty"`
	Institution   *string `json:"institution,omitempty"`

	// Populated only after a calculation.
	RiskResult       *RiskResult  `json:"risk_result,omitempty"`
	RiskFactors      []RiskFactor `json:"risk_factors"`
	TotalRiskFactors *int         `json:"total_risk_factors,omitempty"`

	Status    AssessmentStatus `json:"status"`
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Profile returns the classifier inputs of the assessment.
func (a *Assessment) Profile() GeneticProfile {
	return a.GeneticProfile
}

// Calculation is an immutable snapshot of one risk evaluation.
type Calculation struct {
	ID                     string       `json:"id"`
	AssessmentID           string       `json:"assessment_id"`
	RiskResult             RiskResult   `json:"risk_result"`
	RiskFactors            []RiskFactor `json:"risk_factors"`
	TotalRiskFactors       int          `json:"total_risk_factors"`
	ClinicalInterpretation string       `json:"clinical_interpretation"`
	Recommendations        []string     `json:"recommendations"`
	CalculatedAt           time.Time    `json:"calculated_at"`
}

// HistoryEntry is one immutable audit record.
type HistoryEntry struct {
	ID           string                 `json:"id"`
	AssessmentID string                 `json:"assessment_id"`
	Action       HistoryAction          `json:"action"`
	Details      map[string]interface{} `json:"details"`
	PerformedBy  *string                `json:"performed_by,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// CreateAssessmentRequest is the payload accepted when creating an assessment.
// Marker fields are plain strings so that missing and invalid values can be
// reported separately by the validator.
type CreateAssessmentRequest struct {
	PatientID          *string  `json:"patient_id,omitempty"`
	PatientName        *string  `json:"patient_name,omitempty"`
	Del17pTP53         string   `json:"del17p_tp53"`
	TranslocationCombo string   `json:"translocation_combo"`
	Del1p32            string   `json:"del1p32_1q"`
	B2MValue           *float64 `json:"b2m_value,omitempty"`
	CreatinineValue    *float64 `json:"creatinine_value,omitempty"`
	ClinicalNotes      *string  `json:"clinical_notes,omitempty"`
	PhysicianName      *string  `json:"physician_name,omitempty"`
	Institution        *string  `json:"institution,omitempty"`
}

// UpdateAssessmentRequest is a partial update. Nil fields are left unchanged.
// Patient identifier is not updatable.
type UpdateAssessmentRequest struct {
	PatientName        *string  `json:"patient_name,omitempty"`
	Del17pTP53         *string  `json:"del17p_tp53,omitempty"`
	TranslocationCombo *string  `json:"translocation_combo,omitempty"`
	Del1p32            *string  `json:"del1p32_1q,omitempty"`
	B2MValue           *float64 `json:"b2m_value,omitempty"`
	CreatinineValue    *float64 `json:"creatinine_value,omitempty"`
	ClinicalNotes      *string  `json:"clinical_notes,omitempty"`
	PhysicianName      *string  `json:"physician_name,omitempty"`
	Institution        *string  `json:"institution,omitempty"`

	// Version, when set, must match the stored version.
	Version *int `json:"version,omitempty"`
}

// Changes returns the fields present in the update, keyed by their JSON names.
func (u *UpdateAssessmentRequest) Changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if u.PatientName != nil {
		changes["patient_name"] = *u.PatientName
	}
	if u.Del17pTP53 != nil {
		changes["del17p_tp53"] = *u.Del17pTP53
	}
	if u.TranslocationCombo != nil {
		changes["translocation_combo"] = *u.TranslocationCombo
	}
	if u.Del1p32 != nil {
		changes["del1p32_1q"] = *u.Del1p32
	}
	if u.B2MValue != nil {
		changes["b2m_value"] = *u.B2MValue
	}
	if u.CreatinineValue != nil {
		changes["creatinine_value"] = *u.CreatinineValue
	}
	if u.ClinicalNotes != nil {
		changes["clinical_notes"] = *u.ClinicalNotes
	}
	if u.PhysicianName != nil {
		changes["physician_name"] = *u.PhysicianName
	}
	if u.Institution != nil {
		changes["institution"] = *u.Institution
	}
	return changes
}

// AssessmentFilter narrows and pages an assessment listing.
type AssessmentFilter struct {
	PatientID     string           // exact match
	PhysicianName string           // case-insensitive substring
	RiskResult    RiskResult       // exact match
	Status        AssessmentStatus // exact match
	Skip          int
	Limit         int
}

// Normalize applies the default limit and caps it at MaxListLimit.
func (f *AssessmentFilter) Normalize() {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
}

// Clone returns a deep copy of the assessment.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	c := *a
	c.PatientID = cloneString(a.PatientID)
	c.PatientName = cloneString(a.PatientName)
	c.B2MValue = cloneFloat(a.B2MValue)
	c.CreatinineValue = cloneFloat(a.CreatinineValue)
	c.ClinicalNotes = cloneString(a.ClinicalNotes)
	c.PhysicianName = cloneString(a.PhysicianName)
	c.Institution = cloneString(a.Institution)
	if a.RiskResult != nil {
		r := *a.RiskResult
		c.RiskResult = &r
	}
	if a.RiskFactors != nil {
		c.RiskFactors = make([]RiskFactor, len(a.RiskFactors))
		copy(c.RiskFactors, a.RiskFactors)
	}
	if a.TotalRiskFactors != nil {
		n := *a.TotalRiskFactors
		c.TotalRiskFactors = &n
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
