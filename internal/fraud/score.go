package fraud

import "github.com/shiftwatch/shiftwatch/internal/models"

// severityWeights is the single severity-to-weight table. Every component
// that needs a weight goes through RiskScore; nothing re-derives weights.
var severityWeights = map[models.Severity]int{
	models.SeverityCritical: 40,
	models.SeverityHigh:     25,
	models.SeverityMedium:   15,
	models.SeverityLow:      5,
}

// maxRiskScore caps the additive score. Multiple flags of the same severity
// add linearly until the clamp.
const maxRiskScore = 100

// RiskScore maps a flag collection to an integer risk score in [0, 100].
// Pure function of the input severities; unknown severities contribute zero.
func RiskScore(flags []models.Flag) int {
	score := 0
	for _, flag := range flags {
		score += severityWeights[flag.Severity]
	}

	return min(score, maxRiskScore)
}
