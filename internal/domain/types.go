// Package domain contains core business entities and types for multiple myeloma risk
// stratification following the IMWG (International Myeloma Working Group) consensus
// high-risk criteria.
//
// The classification is deterministic and rule-based: four independent genetic and
// biomarker criteria are evaluated, and any positive criterion places the patient in the
// high-risk group.
package domain

import (
	"errors"
	"fmt"
)

// RiskResult represents the IMWG risk verdict for an assessment.
type RiskResult string

const (
	HIGH_RISK     RiskResult = "HIGH_RISK"
	STANDARD_RISK RiskResult = "STANDARD_RISK"
)

// AssessmentStatus is the lifecycle marker of an assessment.
// The only transition is DRAFT -> COMPLETED, performed by a risk calculation.
type AssessmentStatus string

const (
	DRAFT     AssessmentStatus = "DRAFT"
	COMPLETED AssessmentStatus = "COMPLETED"
)

// MarkerStatus is the reported result of a genetic marker test.
type MarkerStatus string

const (
	POSITIVE MarkerStatus = "positive"
	NEGATIVE MarkerStatus = "negative"
)

// HistoryAction tags an audit trail entry.
type HistoryAction string

const (
	ActionCreated    HistoryAction = "created"
	ActionUpdated    HistoryAction = "updated"
	ActionCalculated HistoryAction = "calculated"
	ActionDeleted    HistoryAction = "deleted"
)

// Biomarker limits accepted at input. Values outside are rejected by validation.
const (
	MinB2M        = 0.0
	MaxB2M        = 50.0
	MinCreatinine = 0.0
	MaxCreatinine = 20.0
)

// Criterion 4 thresholds. β2M is inclusive, creatinine is strict.
const (
	B2MHighRiskThreshold       = 5.5
	CreatinineNormalUpperLimit = 1.2
	// B2MBorderlineThreshold triggers an advisory note on standard-risk results.
	// It is not a classification input.
	B2MBorderlineThreshold = 4.0
)

// Pagination limits for assessment listing.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Sentinel errors classified at the API edge.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// IsValid reports whether the risk result is a known verdict.
func (r RiskResult) IsValid() bool {
	switch r {
	case HIGH_RISK, STANDARD_RISK:
		return true
	default:
		return false
	}
}

// String returns the string representation of RiskResult
func (r RiskResult) String() string {
	return string(r)
}

// IsValid reports whether the status is a known lifecycle state.
func (s AssessmentStatus) IsValid() bool {
	switch s {
	case DRAFT, COMPLETED:
		return true
	default:
		return false
	}
}

// String returns the string representation of AssessmentStatus
func (s AssessmentStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Recalculating a COMPLETED assessment keeps it COMPLETED.
func (s AssessmentStatus) CanTransitionTo(next AssessmentStatus) bool {
	switch s {
	case DRAFT:
		return next == DRAFT || next == COMPLETED
	case COMPLETED:
		return next == COMPLETED
	default:
		return false
	}
}

// IsValid reports whether the marker status is positive or negative.
func (m MarkerStatus) IsValid() bool {
	return m == POSITIVE || m == NEGATIVE
}

// IsPositive reports whether the marker was detected.
func (m MarkerStatus) IsPositive() bool {
	return m == POSITIVE
}

// IsValid reports whether the action is one of the audited actions.
func (a HistoryAction) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionCalculated, ActionDeleted:
		return true
	default:
		return false
	}
}

// ParseRiskResult converts a string to RiskResult.
func ParseRiskResult(s string) (RiskResult, error) {
	r := RiskResult(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid risk result %q", s)
	}
	return r, nil
}

// ParseAssessmentStatus converts a string to AssessmentStatus.
func ParseAssessmentStatus(s string) (AssessmentStatus, error) {
	st := AssessmentStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid assessment status %q", s)
	}
	return st, nil
}
