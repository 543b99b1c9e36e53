// Package risk holds the pure quantitative primitives shared by the
// collateral monitor, the loan health service and the underwriting engine.
// Everything here is deterministic given its inputs: no clocks, no state.
package risk

import (
	"math"
)

// HealthFactor is liquidationThreshold / ltv. A factor > 1 means the loan is
// safe, <= 1 means it is liquidation-eligible. Returns +Inf for ltv == 0
// (no debt, nothing to liquidate).
func HealthFactor(ltv, liquidationThreshold float64) float64 {
	if ltv <= 0 {
		return math.Inf(1)
	}
	return liquidationThreshold / ltv
}

// LiquidationDistance is the relative headroom before liquidation:
// (liquidationThreshold - ltv) / ltv. Negative once the threshold is breached.
func LiquidationDistance(ltv, liquidationThreshold float64) float64 {
	if ltv <= 0 {
		return math.Inf(1)
	}
	return (liquidationThreshold - ltv) / ltv
}

// Diversification is the Herfindahl complement 1 - Σ(w_i²).
// 0 for a single asset, approaching 1 as weights spread evenly.
func Diversification(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	var h float64
	for _, w := range weights {
		h += w * w
	}
	d := 1 - h
	if d < 0 {
		return 0
	}
	return d
}

// NormalCDF is the standard normal CDF Φ(z), computed with the
// Abramowitz–Stegun 26.2.17 polynomial approximation (|err| < 1.5e-7).
func NormalCDF(z float64) float64 {
	if z < 0 {
		return 1 - NormalCDF(-z)
	}
	const (
		b0 = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	t := 1 / (1 + b0*z)
	pdf := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	return 1 - pdf*poly
}

// LiquidationProbability estimates the chance that the loan's LTV drifts past
// the liquidation threshold within horizonDays, assuming the collateral value
// follows a random walk with the given annualized volatility.
//
//	z = (threshold - ltv) / (vol · √(horizon/365))
//	p = 1 - Φ(z)
//
// The result is clamped to [0,1]. Already-breached LTVs return 1.
func LiquidationProbability(ltv, liquidationThreshold, annualVol float64, horizonDays float64) float64 {
	if ltv >= liquidationThreshold {
		return 1
	}
	if ltv <= 0 {
		return 0
	}
	sigma := annualVol * math.Sqrt(horizonDays/365)
	if sigma <= 0 {
		return 0
	}
	z := (liquidationThreshold - ltv) / sigma
	p := 1 - NormalCDF(z)
	return clamp01(p)
}

// VolatilityForecast is the weight-averaged annualized volatility of the
// collateral basket scaled to the horizon: Σ(w_i·v_i) · √(horizon/365).
func VolatilityForecast(weights, vols []float64, horizonDays float64) float64 {
	n := len(weights)
	if n == 0 || n != len(vols) {
		return 0
	}
	var v float64
	for i := 0; i < n; i++ {
		v += weights[i] * vols[i]
	}
	return v * math.Sqrt(horizonDays/365)
}

// StressResult is the outcome of a single price-shock scenario.
type StressResult struct {
	PriceShock           float64 `json:"price_shock"`
	CollateralValue      float64 `json:"collateral_value"`
	ResultingLTV         float64 `json:"resulting_ltv"`
	LiquidationTriggered bool    `json:"liquidation_triggered"`
	ExpectedLoss         float64 `json:"expected_loss"`
}

// StressTest applies a single instantaneous price shock to the collateral and
// reports the resulting LTV. priceShock is a fraction: -0.4 means a 40% drop.
// lossGivenDefault is the fraction of the loan lost when liquidation triggers.
func StressTest(collateralValue, loanAmount, priceShock, liquidationThreshold, lossGivenDefault float64) StressResult {
	newValue := collateralValue * (1 + priceShock)
	res := StressResult{
		PriceShock:      priceShock,
		CollateralValue: newValue,
	}
	if newValue <= 0 {
		res.ResultingLTV = math.Inf(1)
		res.LiquidationTriggered = loanAmount > 0
	} else {
		res.ResultingLTV = loanAmount / newValue
		res.LiquidationTriggered = res.ResultingLTV >= liquidationThreshold
	}
	if res.LiquidationTriggered {
		res.ExpectedLoss = loanAmount * lossGivenDefault
	}
	return res
}

// RunStressLadder runs StressTest across the configured scenario ladder.
func RunStressLadder(collateralValue, loanAmount, liquidationThreshold, lossGivenDefault float64, shocks []float64) []StressResult {
	out := make([]StressResult, 0, len(shocks))
	for _, s := range shocks {
		out = append(out, StressTest(collateralValue, loanAmount, s, liquidationThreshold, lossGivenDefault))
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
