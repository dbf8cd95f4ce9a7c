package service

import (
	"github.com/imwg-risk-server/internal/domain"
)

var highRiskRecommendations = []string{
	"Consider intensive induction therapy with novel agents",
	"Evaluate for autologous stem cell transplantation eligibility",
	"Implement more frequent monitoring schedule",
	"Consider maintenance therapy post-transplant",
	"Discuss prognosis and treatment options with patient and family",
	"Consider enrollment in clinical trials for high-risk patients",
}

var standardRiskRecommendations = []string{
	"Standard treatment protocols are appropriate",
	"Regular monitoring with standard intervals",
	"Consider patient comorbidities in treatment planning",
	"Reassess risk factors during treatment course",
	"Monitor for development of high-risk features over time",
}

// criterionRecommendations are appended, in this order, when the marker matched.
var criterionRecommendations = []struct {
	marker string
	items  []string
}{
	{"del(17p)", []string{
		"Avoid alkylating agents due to del(17p)/TP53 mutations",
		"Consider immunomodulatory drugs and proteasome inhibitors",
	}},
	{"translocation", []string{
		"Consider bortezomib-based regimens for t(4;14) patients",
		"Enhanced monitoring for early progression",
	}},
}

// GenerateRecommendations returns the ordered care recommendations for a classification.
func GenerateRecommendations(c Classification) []string {
	if c.RiskResult != domain.HIGH_RISK {
		return append([]string(nil), standardRiskRecommendations...)
	}

	recs := append([]string(nil), highRiskRecommendations...)
	for _, group := range criterionRecommendations {
		if hasFactor(c.RiskFactors, group.marker) {
			recs = append(recs, group.items...)
		}
	}
	return recs
}
