package underwriting

import (
	"time"

	"collateral-loan-service/internal/risk"
)

// Config tunes the engine; zero values fall back to defaults in New.
type Config struct {
	Policy          risk.Policy
	StressLadder    []float64
	HorizonDays     float64
	CreditStaleness time.Duration
	DecisionTTL     time.Duration
	BaseAPR         float64
	// DefaultVolatility is assumed for symbols the market-data feed does
	// not cover.
	DefaultVolatility float64
}

type CollateralInput struct {
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
}

type AssessRequest struct {
	UserID     string            `json:"user_id"`
	Amount     float64           `json:"amount"`
	Asset      string            `json:"asset"`
	Collateral []CollateralInput `json:"collateral"`
}

// liquidityTier scores how quickly an asset can be sold without moving the
// market. Lower is more liquid.
var liquidityTier = map[string]float64{
	"USDT": 0.05, "USDC": 0.05, "DAI": 0.1,
	"BTC": 0.25, "ETH": 0.25,
	"SOL": 0.45, "BNB": 0.45,
}

const defaultLiquidityScore = 0.7

func liquidityScore(symbol string) float64 {
	if s, ok := liquidityTier[symbol]; ok {
		return s
	}
	return defaultLiquidityScore
}

// maxLTVScale and aprPremium scale approval terms by risk level: higher risk
// means a lower LTV ceiling and a higher rate.
func maxLTVScale(level risk.Level) float64 {
	switch level {
	case risk.LevelMinimal:
		return 1.0
	case risk.LevelLow:
		return 0.95
	case risk.LevelModerate:
		return 0.9
	case risk.LevelElevated:
		return 0.8
	default:
		return 0.7
	}
}

func aprPremium(level risk.Level) float64 {
	switch level {
	case risk.LevelMinimal:
		return 0
	case risk.LevelLow:
		return 0.005
	case risk.LevelModerate:
		return 0.01
	case risk.LevelElevated:
		return 0.02
	default:
		return 0.035
	}
}

func conditionsFor(level risk.Level) []string {
	switch level {
	case risk.LevelMinimal, risk.LevelLow:
		return nil
	case risk.LevelModerate:
		return []string{"maintain LTV below the safe zone threshold"}
	case risk.LevelElevated:
		return []string{
			"maintain LTV below the safe zone threshold",
			"enable automated collateral top-up",
		}
	default:
		return []string{
			"maintain LTV below the safe zone threshold",
			"enable automated collateral top-up",
			"collateral must include at least 50% stablecoins or majors",
		}
	}
}
