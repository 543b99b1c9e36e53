package risk

import "fmt"

// AbsoluteCreditFloor: requests below this credit score are declined no
// matter which policy is active.
const AbsoluteCreditFloor = 250

// DefaultStressLadder is the scenario set applied when config supplies none.
var DefaultStressLadder = []float64{-0.20, -0.40, -0.60, -0.80}

// Policy is a named threshold bundle consumed by both the collateral monitor
// and the underwriting engine. All LTV fields are fractions in [0,1] with
// SafeZone < MarginCall < Liquidation.
type Policy struct {
	Name             string  `json:"name"`
	MaxRiskScore     int     `json:"max_risk_score"`
	MinCreditScore   int     `json:"min_credit_score"`
	MaxLTV           float64 `json:"max_ltv"`
	SafeZone         float64 `json:"safe_zone"`
	MarginCall       float64 `json:"margin_call"`
	Liquidation      float64 `json:"liquidation"`
	InterestPremium  float64 `json:"interest_premium"`
	LossGivenDefault float64 `json:"loss_given_default"`
}

var policies = map[string]Policy{
	"conservative": {
		Name:             "conservative",
		MaxRiskScore:     40,
		MinCreditScore:   650,
		MaxLTV:           0.50,
		SafeZone:         0.60,
		MarginCall:       0.70,
		Liquidation:      0.80,
		InterestPremium:  0.005,
		LossGivenDefault: 0.05,
	},
	"moderate": {
		Name:             "moderate",
		MaxRiskScore:     60,
		MinCreditScore:   500,
		MaxLTV:           0.65,
		SafeZone:         0.70,
		MarginCall:       0.80,
		Liquidation:      0.85,
		InterestPremium:  0.01,
		LossGivenDefault: 0.10,
	},
	"aggressive": {
		Name:             "aggressive",
		MaxRiskScore:     80,
		MinCreditScore:   350,
		MaxLTV:           0.75,
		SafeZone:         0.78,
		MarginCall:       0.85,
		Liquidation:      0.90,
		InterestPremium:  0.02,
		LossGivenDefault: 0.15,
	},
}

// PolicyByName looks up one of the built-in policies.
func PolicyByName(name string) (Policy, error) {
	p, ok := policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown risk policy %q", name)
	}
	return p, nil
}

// PolicyNames lists the available policies (for config validation messages).
func PolicyNames() []string {
	return []string{"conservative", "moderate", "aggressive"}
}

// Validate checks the threshold ordering invariant.
func (p Policy) Validate() error {
	if !(p.SafeZone < p.MarginCall && p.MarginCall < p.Liquidation) {
		return fmt.Errorf("policy %s: thresholds must satisfy safeZone < marginCall < liquidation", p.Name)
	}
	if p.MaxLTV <= 0 || p.Liquidation > 1 {
		return fmt.Errorf("policy %s: LTV thresholds must be fractions in (0,1]", p.Name)
	}
	return nil
}
