package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/imwg-risk-server/internal/domain"
)

// Tags for range checks on the biomarkers.
const (
	b2mRangeTag        = "gte=0,lte=50"
	creatinineRangeTag = "gte=0,lte=20"
)

var assessmentValidate = mustAssessmentValidator()

// newAssessmentValidator returns a validator with the custom "marker" tag.
func newAssessmentValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("marker", validateMarker); err != nil {
		return nil, fmt.Errorf("registering marker validation: %w", err)
	}
	return v, nil
}

func mustAssessmentValidator() *validator.Validate {
	v, err := newAssessmentValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// validateMarker accepts exactly "positive" or "negative".
func validateMarker(fl validator.FieldLevel) bool {
	return domain.MarkerStatus(fl.Field().String()).IsValid()
}

// markerField describes one required genetic marker and its messages.
type markerField struct {
	requiredMsg string
	invalidMsg  string
}

var (
	del17pField = markerField{
		requiredMsg: "del(17p) and/or TP53 mutation status is required",
		invalidMsg:  "del(17p) and/or TP53 mutation status must be 'positive' or 'negative'",
	}
	translocationField = markerField{
		requiredMsg: "High-risk translocation status is required",
		invalidMsg:  "High-risk translocation status must be 'positive' or 'negative'",
	}
	del1p32Field = markerField{
		requiredMsg: "del(1p32) patterns status is required",
		invalidMsg:  "del(1p32) patterns status must be 'positive' or 'negative'",
	}
)

const (
	msgB2MRange              = "β2-microglobulin value must be between 0 and 50 mg/L"
	msgCreatinineRequired    = "Creatinine value is required when β2-microglobulin is provided"
	msgCreatinineRange       = "Creatinine value must be between 0 and 20 mg/dL"
	msgB2MRequiredCreatinine = "β2-microglobulin value is required when creatinine is provided"
)

// ValidateAssessment checks a full assessment submission and returns every
// problem found, in rule order. An empty result means the submission is valid.
func ValidateAssessment(req *domain.CreateAssessmentRequest) []string {
	var errs []string

	errs = appendMarkerErrors(errs, req.Del17pTP53, del17pField, true)
	errs = appendMarkerErrors(errs, req.TranslocationCombo, translocationField, true)
	errs = appendMarkerErrors(errs, req.Del1p32, del1p32Field, true)

	if req.B2MValue != nil {
		if assessmentValidate.Var(*req.B2MValue, b2mRangeTag) != nil {
			errs = append(errs, msgB2MRange)
		}
		if req.CreatinineValue == nil {
			errs = append(errs, msgCreatinineRequired)
		}
	}

	if req.CreatinineValue != nil {
		if assessmentValidate.Var(*req.CreatinineValue, creatinineRangeTag) != nil {
			errs = append(errs, msgCreatinineRange)
		}
		if req.B2MValue == nil {
			errs = append(errs, msgB2MRequiredCreatinine)
		}
	}

	return errs
}

// ValidatePatch checks only the fields present in a partial update.
// Pairing is not checked here; it is checked on the merged record.
func ValidatePatch(req *domain.UpdateAssessmentRequest) []string {
	var errs []string

	if req.Del17pTP53 != nil {
		errs = appendMarkerErrors(errs, *req.Del17pTP53, del17pField, false)
	}
	if req.TranslocationCombo != nil {
		errs = appendMarkerErrors(errs, *req.TranslocationCombo, translocationField, false)
	}
	if req.Del1p32 != nil {
		errs = appendMarkerErrors(errs, *req.Del1p32, del1p32Field, false)
	}
	if req.B2MValue != nil && assessmentValidate.Var(*req.B2MValue, b2mRangeTag) != nil {
		errs = append(errs, msgB2MRange)
	}
	if req.CreatinineValue != nil && assessmentValidate.Var(*req.CreatinineValue, creatinineRangeTag) != nil {
		errs = append(errs, msgCreatinineRange)
	}

	return errs
}

// appendMarkerErrors reports a missing or invalid marker. For patches an
// explicit empty string counts as invalid rather than missing.
func appendMarkerErrors(errs []string, value string, field markerField, required bool) []string {
	if required && assessmentValidate.Var(value, "required") != nil {
		return append(errs, field.requiredMsg)
	}
	if assessmentValidate.Var(value, "marker") != nil {
		return append(errs, field.invalidMsg)
	}
	return errs
}

// requestFromAssessment rebuilds a full submission from a stored record so
// the merged result of a patch can be revalidated.
func requestFromAssessment(a *domain.Assessment) *domain.CreateAssessmentRequest {
	return &domain.CreateAssessmentRequest{
		PatientID:          a.PatientID,
		PatientName:        a.PatientName,
		Del17pTP53:         string(a.Del17pTP53),
		TranslocationCombo: string(a.TranslocationCombo),
		Del1p32:            string(a.Del1p32),
		B2MValue:           a.B2MValue,
		CreatinineValue:    a.CreatinineValue,
		ClinicalNotes:      a.ClinicalNotes,
		PhysicianName:      a.PhysicianName,
		Institution:        a.Institution,
	}
}
