package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imwg-risk-server/internal/domain"
)

func float(v float64) *float64 { return &v }

func negativeProfile() domain.GeneticProfile {
	return domain.GeneticProfile{
		Del17pTP53:         domain.NEGATIVE,
		TranslocationCombo: domain.NEGATIVE,
		Del1p32:            domain.NEGATIVE,
	}
}

func criteriaNames(factors []domain.RiskFactor) []string {
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Criterion)
	}
	return names
}

func TestClassify_AllNegative(t *testing.T) {
	c := Classify(negativeProfile())

	assert.Equal(t, domain.STANDARD_RISK, c.RiskResult)
	assert.NotNil(t, c.RiskFactors)
	assert.Empty(t, c.RiskFactors)
}

func TestClassify_SingleMarkers(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *domain.GeneticProfile)
		criterion string
	}{
		{"del17p", func(p *domain.GeneticProfile) { p.Del17pTP53 = domain.POSITIVE }, CriterionDel17pTP53},
		{"translocation", func(p *domain.GeneticProfile) { p.TranslocationCombo = domain.POSITIVE }, CriterionTranslocation},
		{"del1p32", func(p *domain.GeneticProfile) { p.Del1p32 = domain.POSITIVE }, CriterionDel1p32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := negativeProfile()
			tt.mutate(&p)

			c := Classify(p)

			assert.Equal(t, domain.HIGH_RISK, c.RiskResult)
			require.Len(t, c.RiskFactors, 1)
			assert.Equal(t, tt.criterion, c.RiskFactors[0].Criterion)
			assert.True(t, c.RiskFactors[0].IsPositive)
		})
	}
}

func TestClassify_TranslocationDescription(t *testing.T) {
	p := negativeProfile()
	p.TranslocationCombo = domain.POSITIVE

	c := Classify(p)

	require.Len(t, c.RiskFactors, 1)
	assert.Equal(t,
		"One of these translocations—t(4;14) or t(14;16) or t(14;20)—co-occurring with +1q and/or del(1p)",
		c.RiskFactors[0].Description)
}

func TestClassify_B2MBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		b2m        *float64
		creatinine *float64
		fires      bool
	}{
		{"At threshold with normal creatinine", float(5.5), float(1.19999), true},
		{"Just below β2M threshold", float(5.49999), float(1.0), false},
		{"Creatinine exactly at limit", float(6.0), float(1.2), false},
		{"Creatinine above limit", float(12), float(2.5), false},
		{"Well above threshold", float(8.2), float(0.9), true},
		{"β2M only", float(10), nil, false},
		{"Creatinine only", nil, float(0.5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := negativeProfile()
			p.B2MValue = tt.b2m
			p.CreatinineValue = tt.creatinine

			c := Classify(p)

			if tt.fires {
				assert.Equal(t, domain.HIGH_RISK, c.RiskResult)
				require.Len(t, c.RiskFactors, 1)
				assert.Equal(t, CriterionB2MCreatinine, c.RiskFactors[0].Criterion)
			} else {
				assert.Equal(t, domain.STANDARD_RISK, c.RiskResult)
				assert.Empty(t, c.RiskFactors)
			}
		})
	}
}

func TestClassify_B2MDescriptionEmbedsValues(t *testing.T) {
	p := negativeProfile()
	p.B2MValue = float(6)
	p.CreatinineValue = float(0.85)

	c := Classify(p)

	require.Len(t, c.RiskFactors, 1)
	assert.Equal(t, "β2M: 6.0 mg/L (≥5.5) with creatinine: 0.85 mg/dL (<1.2)", c.RiskFactors[0].Description)
}

func TestClassify_OrderIsFixed(t *testing.T) {
	p := domain.GeneticProfile{
		Del17pTP53:         domain.POSITIVE,
		TranslocationCombo: domain.POSITIVE,
		Del1p32:            domain.POSITIVE,
		B2MValue:           float(7),
		CreatinineValue:    float(1),
	}

	c := Classify(p)

	assert.Equal(t, domain.HIGH_RISK, c.RiskResult)
	assert.Equal(t, []string{
		CriterionDel17pTP53,
		CriterionTranslocation,
		CriterionDel1p32,
		CriterionB2MCreatinine,
	}, criteriaNames(c.RiskFactors))
}

func TestClassify_Deterministic(t *testing.T) {
	p := negativeProfile()
	p.Del1p32 = domain.POSITIVE
	p.B2MValue = float(5.5)
	p.CreatinineValue = float(1.1)

	first := Classify(p)
	second := Classify(p)

	assert.Equal(t, first, second)
}

func TestFormatMeasurement(t *testing.T) {
	assert.Equal(t, "4.0", formatMeasurement(4))
	assert.Equal(t, "5.5", formatMeasurement(5.5))
	assert.Equal(t, "1.19999", formatMeasurement(1.19999))
	assert.Equal(t, "0.0", formatMeasurement(0))
}
