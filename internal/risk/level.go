package risk

// Level is the overall risk bucket an assessment lands in.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelElevated Level = "elevated"
	LevelHigh     Level = "high"
	LevelExtreme  Level = "extreme"
)

// ScoreToLevel maps a 0–100 risk score to its bucket. Boundaries are fixed;
// policies tune what is acceptable, not where the buckets sit.
func ScoreToLevel(score int) Level {
	switch {
	case score <= 15:
		return LevelMinimal
	case score <= 30:
		return LevelLow
	case score <= 45:
		return LevelModerate
	case score <= 60:
		return LevelElevated
	case score <= 80:
		return LevelHigh
	default:
		return LevelExtreme
	}
}

// FactorSeverity buckets a single risk factor.
type FactorSeverity string

const (
	SeverityLow      FactorSeverity = "low"
	SeverityMedium   FactorSeverity = "medium"
	SeverityHigh     FactorSeverity = "high"
	SeverityCritical FactorSeverity = "critical"
)

// Factor is one scored component of an assessment. Impact is in [0,1].
type Factor struct {
	Name     string         `json:"name"`
	Severity FactorSeverity `json:"severity"`
	Impact   float64        `json:"impact"`
	Detail   string         `json:"detail,omitempty"`
}

// ImpactSeverity maps a numeric impact to its severity bucket.
func ImpactSeverity(impact float64) FactorSeverity {
	switch {
	case impact < 0.25:
		return SeverityLow
	case impact < 0.5:
		return SeverityMedium
	case impact < 0.75:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
