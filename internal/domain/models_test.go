package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessmentJSON_RiskFactors(t *testing.T) {
	standard := STANDARD_RISK
	high := HIGH_RISK
	zero, one := 0, 1

	tests := []struct {
		name       string
		assessment Assessment
		want       string
	}{
		{
			name:       "not yet calculated",
			assessment: Assessment{Status: DRAFT},
			want:       `null`,
		},
		{
			name: "calculated without factors",
			assessment: Assessment{
				Status:           COMPLETED,
				RiskResult:       &standard,
				RiskFactors:      []RiskFactor{},
				TotalRiskFactors: &zero,
			},
			want: `[]`,
		},
		{
			name: "calculated with factors",
			assessment: Assessment{
				Status:           COMPLETED,
				RiskResult:       &high,
				RiskFactors:      []RiskFactor{{Criterion: "del17p"}},
				TotalRiskFactors: &one,
			},
			want: `[{"criterion":"del17p","description":"","is_positive":false}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.assessment)
			require.NoError(t, err)

			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &raw))
			require.Contains(t, raw, "risk_factors")
			assert.JSONEq(t, tt.want, string(raw["risk_factors"]))
		})
	}
}

func TestAssessmentClone_KeepsEmptyRiskFactors(t *testing.T) {
	a := &Assessment{RiskFactors: []RiskFactor{}}

	c := a.Clone()
	assert.NotNil(t, c.RiskFactors)
	assert.Empty(t, c.RiskFactors)

	assert.Nil(t, (&Assessment{}).Clone().RiskFactors)
}
