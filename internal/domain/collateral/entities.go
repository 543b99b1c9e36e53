package collateral

import (
	"math"
	"time"

	"gorm.io/gorm"

	"collateral-loan-service/internal/risk"
)

// Status is a pure projection of the position's current LTV against its
// thresholds and is never set independently.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusWarning     Status = "warning"
	StatusCritical    Status = "critical"
	StatusLiquidating Status = "liquidating"
	StatusLiquidated  Status = "liquidated"
)

// Rank orders statuses by severity so bucket transitions can be compared.
func (s Status) Rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusLiquidating, StatusLiquidated:
		return 3
	}
	return 0
}

// Thresholds are copied from the loan's policy at position creation so the
// projection is self-contained. SafeZone < MarginCall < Liquidation.
type Thresholds struct {
	SafeZone    float64 `json:"safe_zone"`
	MarginCall  float64 `json:"margin_call"`
	Liquidation float64 `json:"liquidation"`
}

// maxSentinel stands in for +Inf on stored ratios (LTV with no collateral,
// health factor with no debt).
const maxSentinel = 1e6

// StatusForLTV is the step function mapping an LTV to its bucket.
func StatusForLTV(ltv float64, t Thresholds) Status {
	switch {
	case ltv >= t.Liquidation:
		return StatusLiquidating
	case ltv >= t.MarginCall:
		return StatusCritical
	case ltv >= t.SafeZone:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// Asset is one collateral holding. Volatility is annualized (fraction).
type Asset struct {
	Symbol     string  `json:"symbol"`
	Amount     float64 `json:"amount"`
	PriceUSD   float64 `json:"price_usd"`
	ValueUSD   float64 `json:"value_usd"`
	Weight     float64 `json:"weight"`
	Volatility float64 `json:"volatility"`
}

type Monitoring struct {
	Enabled     bool      `json:"enabled"`
	IntervalSec int       `json:"interval_sec,omitempty"` // 0 = company default
	LastCheck   time.Time `json:"last_check,omitempty"`
	NextCheck   time.Time `json:"next_check,omitempty"`
}

type TopUpConfig struct {
	Enabled    bool    `json:"enabled"`
	TriggerLTV float64 `json:"trigger_ltv"`
	MinAmount  float64 `json:"min_amount"`
	MaxAmount  float64 `json:"max_amount"`
	Asset      string  `json:"asset"`
}

type RebalanceConfig struct {
	Enabled       bool               `json:"enabled"`
	TargetWeights map[string]float64 `json:"target_weights,omitempty"`
}

type WithdrawConfig struct {
	Enabled bool    `json:"enabled"`
	SafeLTV float64 `json:"safe_ltv"`
}

// Automation groups the per-position automated remediations, each
// independently switchable.
type Automation struct {
	TopUp     TopUpConfig     `json:"top_up"`
	Rebalance RebalanceConfig `json:"rebalance"`
	Withdraw  WithdrawConfig  `json:"withdraw"`
}

// HistoryEntry records one position mutation (append-only).
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Symbol string    `json:"symbol,omitempty"`
	Amount float64   `json:"amount,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Position is the collateral backing exactly one loan.
type Position struct {
	ID            uint64         `gorm:"primaryKey;column:id" json:"-"`
	PositionID    string         `gorm:"size:32;uniqueIndex:ux_positions_position_id" json:"position_id"`
	LoanID        string         `gorm:"size:32;uniqueIndex:ux_positions_loan_id" json:"loan_id"`
	Assets        []Asset        `gorm:"serializer:json" json:"assets"`
	TotalValueUSD float64        `gorm:"type:decimal(18,2)" json:"total_value_usd"`
	CurrentLTV    float64        `gorm:"type:decimal(8,6)" json:"current_ltv"`
	HealthFactor  float64        `gorm:"type:decimal(10,6)" json:"health_factor"`
	Status        Status         `gorm:"size:16;index" json:"status"`
	Thresholds    Thresholds     `gorm:"embedded;embeddedPrefix:threshold_" json:"thresholds"`
	Monitoring    Monitoring     `gorm:"serializer:json" json:"monitoring"`
	Automation    Automation     `gorm:"serializer:json" json:"automation"`
	History       []HistoryEntry `gorm:"serializer:json" json:"history,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Position) TableName() string { return "collateral_positions" }

// Recompute refreshes TotalValueUSD, per-asset weights, CurrentLTV,
// HealthFactor and Status from current asset prices and the loan's
// outstanding principal. Idempotent: unchanged inputs yield identical output.
// Liquidated positions are frozen and never re-projected.
func (p *Position) Recompute(outstanding float64) {
	var total float64
	for i := range p.Assets {
		p.Assets[i].ValueUSD = p.Assets[i].Amount * p.Assets[i].PriceUSD
		total += p.Assets[i].ValueUSD
	}
	p.TotalValueUSD = total
	for i := range p.Assets {
		if total > 0 {
			p.Assets[i].Weight = p.Assets[i].ValueUSD / total
		} else {
			p.Assets[i].Weight = 0
		}
	}
	if total > 0 {
		p.CurrentLTV = outstanding / total
	} else if outstanding > 0 {
		// collateral wiped out with debt remaining
		p.CurrentLTV = maxSentinel
	} else {
		p.CurrentLTV = 0
	}
	hf := risk.HealthFactor(p.CurrentLTV, p.Thresholds.Liquidation)
	// +Inf does not survive a SQL float column; cap at the sentinel.
	if math.IsInf(hf, 1) || hf > maxSentinel {
		hf = maxSentinel
	}
	p.HealthFactor = hf
	if p.Status != StatusLiquidated {
		p.Status = StatusForLTV(p.CurrentLTV, p.Thresholds)
	}
}

// Weights returns the current weight vector (for diversification scoring).
func (p *Position) Weights() []float64 {
	w := make([]float64, len(p.Assets))
	for i, a := range p.Assets {
		w[i] = a.Weight
	}
	return w
}

// Volatilities returns the per-asset annualized volatilities.
func (p *Position) Volatilities() []float64 {
	v := make([]float64, len(p.Assets))
	for i, a := range p.Assets {
		v[i] = a.Volatility
	}
	return v
}

// AvgVolatility is the value-weighted average annualized volatility.
func (p *Position) AvgVolatility() float64 {
	var v float64
	for _, a := range p.Assets {
		v += a.Weight * a.Volatility
	}
	return v
}

// Symbols lists the asset symbols for price lookups.
func (p *Position) Symbols() []string {
	s := make([]string, len(p.Assets))
	for i, a := range p.Assets {
		s[i] = a.Symbol
	}
	return s
}

// AppendHistory adds an entry stamped at t.
func (p *Position) AppendHistory(t time.Time, kind, symbol string, amount float64, detail string) {
	p.History = append(p.History, HistoryEntry{At: t, Kind: kind, Symbol: symbol, Amount: amount, Detail: detail})
}

// Clone returns a deep copy for the in-memory repository.
func (p *Position) Clone() *Position {
	c := *p
	c.Assets = append([]Asset(nil), p.Assets...)
	c.History = append([]HistoryEntry(nil), p.History...)
	if p.Automation.Rebalance.TargetWeights != nil {
		tw := make(map[string]float64, len(p.Automation.Rebalance.TargetWeights))
		for k, v := range p.Automation.Rebalance.TargetWeights {
			tw[k] = v
		}
		c.Automation.Rebalance.TargetWeights = tw
	}
	return &c
}
