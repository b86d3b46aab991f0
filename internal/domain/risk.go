package domain

// RiskLevel is the discrete bucket of a composite risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// LevelForScore maps a composite score in [0,1] to a level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.5:
		return RiskMedium
	case score < 0.7:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskFactors holds the per-factor sub-scores, each in [0,1] with 1 the
// riskiest.
type RiskFactors struct {
	Definition float64 `json:"definition"`
	Liquidity  float64 `json:"liquidity"`
	Edge       float64 `json:"edge"`
	Timing     float64 `json:"timing"`
	Regulatory float64 `json:"regulatory"`
}

// RiskAssessment is the analyzer's verdict on one opportunity.
type RiskAssessment struct {
	Score    float64     `json:"score"`
	Level    RiskLevel   `json:"level"`
	Factors  RiskFactors `json:"factors"`
	Warnings []string    `json:"warnings,omitempty"`
}
