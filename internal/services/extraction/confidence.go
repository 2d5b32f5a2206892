package extraction

import (
	"strings"
)

// domainTerms are the Spanish grant-domain markers a useful summary mentions
var domainTerms = []string{
	"beneficiario",
	"cuantia",
	"plazo",
	"subvencion",
	"solicitud",
	"requisito",
	"justificacion",
}

// ComputeConfidence scores an extraction heuristically from its summary:
// 0.7 base, +0.1 for a summary in the useful length band, -0.1 for a
// rambling one, plus up to 0.2 for domain-term coverage. Capped at 0.95 -
// the heuristic never claims certainty.
func ComputeConfidence(summary string) float64 {
	confidence := 0.7

	length := len(summary)
	if length >= 200 && length <= 3000 {
		confidence += 0.1
	} else if length > 5000 {
		confidence -= 0.1
	}

	folded := fold(summary)
	matched := 0
	for _, term := range domainTerms {
		if strings.Contains(folded, term) {
			matched++
		}
	}
	confidence += 0.2 * float64(matched) / float64(len(domainTerms))

	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
