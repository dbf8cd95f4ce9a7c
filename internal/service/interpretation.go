package service

import (
	"fmt"
	"strings"

	"github.com/imwg-risk-server/internal/domain"
)

const (
	highRiskPrognosis = "This classification indicates a poorer prognosis and requires more intensive treatment strategies and closer monitoring."
	standardRiskText  = "Patient does not meet criteria for High-Risk Multiple Myeloma based on current assessment. " +
		"Standard risk classification allows for conventional treatment approaches with standard monitoring intervals."
)

// interpretationNote is appended once when any matched criterion mentions marker.
type interpretationNote struct {
	marker string
	text   string
}

var highRiskNotes = []interpretationNote{
	{"del(17p)", "del(17p) and/or TP53 mutations are associated with resistance to standard therapies and significantly shorter overall survival."},
	{"translocation", "High-risk translocations, especially when co-occurring with +1q and/or del(1p), significantly impact both progression-free and overall survival."},
	{"β2-microglobulin", "Elevated β2-microglobulin with normal renal function indicates high tumor burden and poor prognosis."},
}

// GenerateInterpretation builds the clinical narrative for a classification.
func GenerateInterpretation(c Classification, profile domain.GeneticProfile) string {
	var b strings.Builder

	if c.RiskResult == domain.HIGH_RISK {
		fmt.Fprintf(&b, "Patient meets criteria for High-Risk Multiple Myeloma based on %d positive risk factor(s):\n\n", len(c.RiskFactors))
		for i, f := range c.RiskFactors {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Criterion, f.Description)
		}
		b.WriteString("\n")
		b.WriteString(highRiskPrognosis)

		for _, note := range highRiskNotes {
			if hasFactor(c.RiskFactors, note.marker) {
				b.WriteString("\n\nNote: ")
				b.WriteString(note.text)
			}
		}
		return b.String()
	}

	b.WriteString(standardRiskText)
	// Borderline band: advisory only, below the criterion threshold.
	if profile.B2MValue != nil && *profile.B2MValue >= domain.B2MBorderlineThreshold {
		fmt.Fprintf(&b, "\n\nNote: β2-microglobulin level of %s mg/L is elevated but does not meet high-risk criteria.",
			formatMeasurement(*profile.B2MValue))
	}
	return b.String()
}
