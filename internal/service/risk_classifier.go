package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imwg-risk-server/internal/domain"
)

// Criterion names. Interpretation notes and recommendation groups key off these.
const (
	CriterionDel17pTP53    = "del(17p) and/or TP53 mutation"
	CriterionTranslocation = "High-risk translocation"
	CriterionDel1p32       = "del(1p32) patterns"
	CriterionB2MCreatinine = "High β2-microglobulin with normal creatinine"
)

const (
	descriptionDel17pTP53    = "Assessed using NGS-based method with CCF ≥20% on CD138-positive cells"
	descriptionTranslocation = "One of these translocations—t(4;14) or t(14;16) or t(14;20)—co-occurring with +1q and/or del(1p)"
	descriptionDel1p32       = "Monoallelic del(1p32) with +1q OR biallelic del(1p32)"
)

// criterionRule evaluates one IMWG criterion and returns the matched factor, if any.
type criterionRule func(p domain.GeneticProfile) (domain.RiskFactor, bool)

// imwgCriteria is evaluated in order; the order of matched factors is part of the output.
var imwgCriteria = []criterionRule{
	markerRule(CriterionDel17pTP53, descriptionDel17pTP53, func(p domain.GeneticProfile) domain.MarkerStatus { return p.Del17pTP53 }),
	markerRule(CriterionTranslocation, descriptionTranslocation, func(p domain.GeneticProfile) domain.MarkerStatus { return p.TranslocationCombo }),
	markerRule(CriterionDel1p32, descriptionDel1p32, func(p domain.GeneticProfile) domain.MarkerStatus { return p.Del1p32 }),
	evaluateB2MCreatinine,
}

// markerRule matches when the selected genetic marker is positive.
func markerRule(criterion, description string, marker func(domain.GeneticProfile) domain.MarkerStatus) criterionRule {
	return func(p domain.GeneticProfile) (domain.RiskFactor, bool) {
		if !marker(p).IsPositive() {
			return domain.RiskFactor{}, false
		}
		return positiveFactor(criterion, description), true
	}
}

// Classification is the verdict and ordered matched criteria for a profile.
type Classification struct {
	RiskResult  domain.RiskResult
	RiskFactors []domain.RiskFactor
}

// Classify applies the four IMWG high-risk criteria to a profile.
// Any matched criterion makes the profile HIGH_RISK.
func Classify(profile domain.GeneticProfile) Classification {
	factors := make([]domain.RiskFactor, 0, len(imwgCriteria))
	for _, rule := range imwgCriteria {
		if factor, ok := rule(profile); ok {
			factors = append(factors, factor)
		}
	}

	result := domain.STANDARD_RISK
	if len(factors) > 0 {
		result = domain.HIGH_RISK
	}

	return Classification{
		RiskResult:  result,
		RiskFactors: factors,
	}
}

// evaluateB2MCreatinine requires both values: β2M >= 5.5 mg/L and creatinine < 1.2 mg/dL.
func evaluateB2MCreatinine(p domain.GeneticProfile) (domain.RiskFactor, bool) {
	if !p.HasBiomarkers() {
		return domain.RiskFactor{}, false
	}

	b2m, creatinine := *p.B2MValue, *p.CreatinineValue
	if b2m < domain.B2MHighRiskThreshold || creatinine >= domain.CreatinineNormalUpperLimit {
		return domain.RiskFactor{}, false
	}

	description := fmt.Sprintf("β2M: %s mg/L (≥5.5) with creatinine: %s mg/dL (<1.2)",
		formatMeasurement(b2m), formatMeasurement(creatinine))
	return positiveFactor(CriterionB2MCreatinine, description), true
}

func positiveFactor(criterion, description string) domain.RiskFactor {
	return domain.RiskFactor{
		Criterion:   criterion,
		Description: description,
		IsPositive:  true,
	}
}

// formatMeasurement prints the shortest exact form, keeping one decimal for whole numbers (4 -> "4.0").
func formatMeasurement(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// hasFactor reports whether any matched criterion name contains the marker text.
func hasFactor(factors []domain.RiskFactor, marker string) bool {
	for _, f := range factors {
		if strings.Contains(f.Criterion, marker) {
			return true
		}
	}
	return false
}
