package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imwg-risk-server/internal/domain"
)

func validRequest() *domain.CreateAssessmentRequest {
	return &domain.CreateAssessmentRequest{
		Del17pTP53:         "negative",
		TranslocationCombo: "negative",
		Del1p32:            "negative",
	}
}

func strPtr(s string) *string { return &s }

func TestNewAssessmentValidator_MarkerTag(t *testing.T) {
	v, err := newAssessmentValidator()
	require.NoError(t, err)

	tests := []struct {
		value string
		valid bool
	}{
		{"positive", true},
		{"negative", true},
		{"Positive", false},
		{"unknown", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := v.Var(tt.value, "marker")
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.NoError(t, assessmentValidate.Var("positive", "marker"))
}

func TestValidateAssessment_Valid(t *testing.T) {
	req := validRequest()
	req.B2MValue = float(0)
	req.CreatinineValue = float(20)

	assert.Empty(t, ValidateAssessment(req))
}

func TestValidateAssessment_Markers(t *testing.T) {
	req := &domain.CreateAssessmentRequest{
		Del17pTP53:         "",
		TranslocationCombo: "maybe",
		Del1p32:            "POSITIVE",
	}

	errs := ValidateAssessment(req)

	assert.Equal(t, []string{
		"del(17p) and/or TP53 mutation status is required",
		"High-risk translocation status must be 'positive' or 'negative'",
		"del(1p32) patterns status must be 'positive' or 'negative'",
	}, errs)
}

func TestValidateAssessment_Biomarkers(t *testing.T) {
	tests := []struct {
		name       string
		b2m        *float64
		creatinine *float64
		expected   []string
	}{
		{
			name:     "β2M without creatinine",
			b2m:      float(3),
			expected: []string{"Creatinine value is required when β2-microglobulin is provided"},
		},
		{
			name:       "Creatinine without β2M",
			creatinine: float(1),
			expected:   []string{"β2-microglobulin value is required when creatinine is provided"},
		},
		{
			name:       "Both out of range",
			b2m:        float(50.1),
			creatinine: float(-0.1),
			expected: []string{
				"β2-microglobulin value must be between 0 and 50 mg/L",
				"Creatinine value must be between 0 and 20 mg/dL",
			},
		},
		{
			name: "Out of range and unpaired",
			b2m:  float(-1),
			expected: []string{
				"β2-microglobulin value must be between 0 and 50 mg/L",
				"Creatinine value is required when β2-microglobulin is provided",
			},
		},
		{
			name:       "Range edges accepted",
			b2m:        float(50),
			creatinine: float(0),
			expected:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.B2MValue = tt.b2m
			req.CreatinineValue = tt.creatinine

			assert.Equal(t, tt.expected, ValidateAssessment(req))
		})
	}
}

func TestValidateAssessment_PairingIndependentOfMarkers(t *testing.T) {
	markers := []string{"positive", "negative", "", "bogus"}
	for _, m := range markers {
		req := &domain.CreateAssessmentRequest{
			Del17pTP53:         m,
			TranslocationCombo: m,
			Del1p32:            m,
			B2MValue:           float(6),
		}
		assert.Contains(t, ValidateAssessment(req), "Creatinine value is required when β2-microglobulin is provided", "marker=%q", m)

		req.B2MValue, req.CreatinineValue = nil, float(1)
		assert.Contains(t, ValidateAssessment(req), "β2-microglobulin value is required when creatinine is provided", "marker=%q", m)
	}
}

func TestValidateAssessment_CollectsEverything(t *testing.T) {
	req := &domain.CreateAssessmentRequest{B2MValue: float(99)}

	errs := ValidateAssessment(req)

	assert.Len(t, errs, 5)
}

func TestValidatePatch(t *testing.T) {
	tests := []struct {
		name     string
		req      domain.UpdateAssessmentRequest
		expected []string
	}{
		{"Empty patch", domain.UpdateAssessmentRequest{}, nil},
		{"Valid marker", domain.UpdateAssessmentRequest{Del1p32: strPtr("positive")}, nil},
		{
			name:     "Empty marker is invalid",
			req:      domain.UpdateAssessmentRequest{Del17pTP53: strPtr("")},
			expected: []string{"del(17p) and/or TP53 mutation status must be 'positive' or 'negative'"},
		},
		{
			name:     "Out of range creatinine",
			req:      domain.UpdateAssessmentRequest{CreatinineValue: float(25)},
			expected: []string{"Creatinine value must be between 0 and 20 mg/dL"},
		},
		{
			name:     "Unpaired value is not a patch error",
			req:      domain.UpdateAssessmentRequest{B2MValue: float(5)},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			assert.Equal(t, tt.expected, ValidatePatch(&req))
		})
	}
}
