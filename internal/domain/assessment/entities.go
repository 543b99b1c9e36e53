package assessment

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"collateral-loan-service/internal/risk"
)

var (
	ErrNotFound       = errors.New("assessment not found")
	ErrAlreadyDecided = errors.New("assessment already decided")
)

// CollateralOffer is one asset offered against the requested loan.
type CollateralOffer struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"value_usd"`
	Weight   float64 `json:"weight"`
}

// RiskAssessment is the quantitative half of the assessment.
type RiskAssessment struct {
	Level                  risk.Level          `json:"level"`
	Score                  int                 `json:"score"`
	Factors                []risk.Factor       `json:"factors"`
	VolatilityForecast     float64             `json:"volatility_forecast"`
	LiquidationProbability float64             `json:"liquidation_probability"`
	ExpectedLoss           float64             `json:"expected_loss"`
	StressResults          []risk.StressResult `json:"stress_results"`
}

// CreditAnalysis is the externally supplied score/grade.
type CreditAnalysis struct {
	Score       int       `json:"score"` // 0–1000
	Grade       string    `json:"grade"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Terms attached to an approval, scaled by risk level.
type Terms struct {
	MaxLTV         float64 `json:"max_ltv"`
	InterestAPR    float64 `json:"interest_apr"`
	MarginCallLTV  float64 `json:"margin_call_ltv"`
	LiquidationLTV float64 `json:"liquidation_ltv"`
	SafeZoneLTV    float64 `json:"safe_zone_ltv"`
	DurationDays   int     `json:"duration_days"`
}

// Decision is final once recorded; a changed input requires a new assessment.
type Decision struct {
	Approved       bool      `json:"approved"`
	ApprovedAmount float64   `json:"approved_amount"`
	Terms          Terms     `json:"terms"`
	Conditions     []string  `json:"conditions,omitempty"`
	DeclineReasons []string  `json:"decline_reasons,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type Assessment struct {
	ID              uint64            `gorm:"primaryKey;column:id" json:"-"`
	AssessmentID    string            `gorm:"size:32;uniqueIndex:ux_assessments_assessment_id" json:"assessment_id"`
	UserID          string            `gorm:"size:32;index" json:"user_id"`
	RequestedAmount float64           `gorm:"type:decimal(18,2)" json:"requested_amount"`
	RequestedAsset  string            `gorm:"size:16" json:"requested_asset"`
	PolicyName      string            `gorm:"size:16" json:"policy_name"`
	Collateral      []CollateralOffer `gorm:"serializer:json" json:"collateral"`
	Risk            RiskAssessment    `gorm:"serializer:json" json:"risk"`
	Credit          CreditAnalysis    `gorm:"serializer:json" json:"credit"`
	Decision        Decision          `gorm:"serializer:json" json:"decision"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (Assessment) TableName() string { return "underwriting_assessments" }

// Usable reports whether the decision can still back a loan at time now.
func (a *Assessment) Usable(now time.Time) bool {
	return a.Decision.Approved && now.Before(a.Decision.ExpiresAt)
}

// Clone returns a deep copy for the in-memory repository.
func (a *Assessment) Clone() *Assessment {
	c := *a
	c.Collateral = append([]CollateralOffer(nil), a.Collateral...)
	c.Risk.Factors = append([]risk.Factor(nil), a.Risk.Factors...)
	c.Risk.StressResults = append([]risk.StressResult(nil), a.Risk.StressResults...)
	c.Decision.Conditions = append([]string(nil), a.Decision.Conditions...)
	c.Decision.DeclineReasons = append([]string(nil), a.Decision.DeclineReasons...)
	return &c
}
