package health

import (
	"time"

	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
)

type Verdict string

const (
	VerdictHealthy         Verdict = "healthy"
	VerdictWarning         Verdict = "warning"
	VerdictCritical        Verdict = "critical"
	VerdictLiquidationRisk Verdict = "liquidation_risk"
)

// verdictFor maps the position's LTV bucket onto the report verdict.
func verdictFor(s collateral.Status) Verdict {
	switch s {
	case collateral.StatusWarning:
		return VerdictWarning
	case collateral.StatusCritical:
		return VerdictCritical
	case collateral.StatusLiquidating, collateral.StatusLiquidated:
		return VerdictLiquidationRisk
	default:
		return VerdictHealthy
	}
}

// RefinanceOption is a live quote from another provider that beats the loan's
// current rate by at least the configured advantage.
type RefinanceOption struct {
	ProviderID  string  `json:"provider_id"`
	InterestAPR float64 `json:"interest_apr"`
	SavingsAPR  float64 `json:"savings_apr"`
	MaxLTV      float64 `json:"max_ltv"`
}

// Report is the full point-in-time health picture of one loan.
type Report struct {
	LoanID                 string                `json:"loan_id"`
	Status                 loan.Status           `json:"status"`
	Verdict                Verdict               `json:"verdict"`
	CurrentLTV             float64               `json:"current_ltv"`
	Thresholds             collateral.Thresholds `json:"thresholds"`
	HealthFactor           float64               `json:"health_factor"`
	LiquidationDistance    float64               `json:"liquidation_distance"`
	LiquidationProbability float64               `json:"liquidation_probability"`
	AvgVolatility          float64               `json:"avg_volatility"`
	Diversification        float64               `json:"diversification"`
	OpenAlerts             []loan.Alert          `json:"open_alerts,omitempty"`
	Recommendations        []string              `json:"recommendations,omitempty"`
	Refinance              []RefinanceOption     `json:"refinance,omitempty"`
	CheckedAt              time.Time             `json:"checked_at"`
}

// Config tunes the report; zero values fall back to defaults in New.
type Config struct {
	// RefinanceAdvantage is the minimum APR saving, as a fraction, before a
	// competing quote is worth surfacing.
	RefinanceAdvantage float64
	HorizonDays        float64
	QuoteTimeout       time.Duration
}
