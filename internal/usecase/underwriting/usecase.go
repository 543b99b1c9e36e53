// Package underwriting scores credit requests and turns them into final,
// timestamped decisions. Assessments are immutable: changed inputs require a
// new assessment, never a re-evaluation.
package underwriting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"collateral-loan-service/internal/domain/assessment"
	"collateral-loan-service/internal/event"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/internal/risk"
	"collateral-loan-service/pkg/id"
)

var (
	ErrInvalidRequest   = errors.New("invalid assessment request")
	ErrStaleCreditScore = errors.New("credit score exceeds staleness window")
	ErrPriceUnavailable = errors.New("price unavailable for collateral symbol")
)

type Usecase struct {
	repo   assessment.Repository
	credit provider.CreditScoreProvider
	oracle provider.PriceOracle
	market provider.MarketData
	bus    *event.Bus
	log    *zap.Logger
	retry  provider.RetryConfig
	cfg    Config
	now    func() time.Time
}

func NewUsecase(repo assessment.Repository, credit provider.CreditScoreProvider, oracle provider.PriceOracle, market provider.MarketData, bus *event.Bus, log *zap.Logger, retry provider.RetryConfig, cfg Config) *Usecase {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	if cfg.CreditStaleness <= 0 {
		cfg.CreditStaleness = 24 * time.Hour
	}
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = 72 * time.Hour
	}
	if cfg.BaseAPR <= 0 {
		cfg.BaseAPR = 0.06
	}
	if cfg.DefaultVolatility <= 0 {
		cfg.DefaultVolatility = 0.8
	}
	if len(cfg.StressLadder) == 0 {
		cfg.StressLadder = risk.DefaultStressLadder
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		repo: repo, credit: credit, oracle: oracle, market: market,
		bus: bus, log: log, retry: retry, cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// Assess runs the full pipeline: collateral valuation → factor scoring →
// stress testing → decision. The assessment is persisted before returning.
func (u *Usecase) Assess(ctx context.Context, req AssessRequest) (*assessment.Assessment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	symbols := make([]string, len(req.Collateral))
	for i, c := range req.Collateral {
		symbols[i] = c.Symbol
	}

	prices, err := u.fetchPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}
	vols := u.fetchVolatilities(ctx, symbols)

	score, err := u.fetchCreditScore(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	// collateral valuation
	offers := make([]assessment.CollateralOffer, len(req.Collateral))
	var totalValue float64
	for i, c := range req.Collateral {
		px, ok := prices[c.Symbol]
		if !ok || px <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, c.Symbol)
		}
		offers[i] = assessment.CollateralOffer{Symbol: c.Symbol, Amount: c.Amount, ValueUSD: c.Amount * px}
		totalValue += offers[i].ValueUSD
	}
	weights := make([]float64, len(offers))
	volVec := make([]float64, len(offers))
	for i := range offers {
		offers[i].Weight = offers[i].ValueUSD / totalValue
		weights[i] = offers[i].Weight
		volVec[i] = vols[offers[i].Symbol]
	}
	impliedLTV := req.Amount / totalValue

	ra := u.scoreRisk(ctx, req, offers, weights, volVec, impliedLTV, totalValue)
	dec := u.decide(req, ra, score, totalValue)

	a := &assessment.Assessment{
		AssessmentID:    id.NewID32(),
		UserID:          req.UserID,
		RequestedAmount: req.Amount,
		RequestedAsset:  req.Asset,
		PolicyName:      u.cfg.Policy.Name,
		Collateral:      offers,
		Risk:            ra,
		Credit: assessment.CreditAnalysis{
			Score: score.Score, Grade: score.Grade, RetrievedAt: score.RetrievedAt,
		},
		Decision: dec,
	}
	if err := u.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	if u.bus != nil {
		u.bus.Publish(event.Event{
			Type:   event.AssessmentDecided,
			UserID: req.UserID,
			Payload: map[string]any{
				"assessment_id": a.AssessmentID,
				"approved":      dec.Approved,
				"risk_level":    string(ra.Level),
				"risk_score":    ra.Score,
			},
		})
	}
	u.log.Info("assessment decided",
		zap.String("assessment_id", a.AssessmentID),
		zap.String("user_id", req.UserID),
		zap.Bool("approved", dec.Approved),
		zap.Int("risk_score", ra.Score),
		zap.String("risk_level", string(ra.Level)))
	return a, nil
}

// Get returns an existing assessment.
func (u *Usecase) Get(ctx context.Context, assessmentID string) (*assessment.Assessment, error) {
	return u.repo.GetByAssessmentID(ctx, assessmentID)
}

func validate(req AssessRequest) error {
	if req.UserID == "" || len(req.UserID) != 32 {
		return fmt.Errorf("%w: user_id must be a 32-char id", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if req.Asset == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidRequest)
	}
	if len(req.Collateral) == 0 {
		return fmt.Errorf("%w: collateral is required", ErrInvalidRequest)
	}
	for _, c := range req.Collateral {
		if c.Symbol == "" || c.Amount <= 0 {
			return fmt.Errorf("%w: collateral entries need symbol and positive amount", ErrInvalidRequest)
		}
	}
	return nil
}

func (u *Usecase) fetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	var prices map[string]float64
	err := provider.Do(ctx, u.retry, "oracle.GetPrices", func(ctx context.Context) error {
		var err error
		prices, err = u.oracle.GetPrices(ctx, symbols)
		return err
	})
	return prices, err
}

// fetchVolatilities is best-effort: uncovered symbols get the default.
func (u *Usecase) fetchVolatilities(ctx context.Context, symbols []string) map[string]float64 {
	got, err := u.market.Volatility24h(ctx, symbols)
	if err != nil {
		u.log.Warn("volatility feed unavailable, using defaults", zap.Error(err))
		got = nil
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if v, ok := got[s]; ok && v > 0 {
			out[s] = v
		} else {
			out[s] = u.cfg.DefaultVolatility
		}
	}
	return out
}

func (u *Usecase) fetchCreditScore(ctx context.Context, userID string) (*provider.CreditScore, error) {
	var score *provider.CreditScore
	err := provider.Do(ctx, u.retry, "credit.GetScore", func(ctx context.Context) error {
		var err error
		score, err = u.credit.GetScore(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !score.RetrievedAt.IsZero() && u.now().Sub(score.RetrievedAt) > u.cfg.CreditStaleness {
		return nil, ErrStaleCreditScore
	}
	return score, nil
}

// scoreRisk computes the five factors and the quantitative tail metrics.
func (u *Usecase) scoreRisk(ctx context.Context, req AssessRequest, offers []assessment.CollateralOffer, weights, vols []float64, impliedLTV, totalValue float64) assessment.RiskAssessment {
	pol := u.cfg.Policy

	ltvImpact := clamp01(impliedLTV / pol.MaxLTV)
	concImpact := clamp01(1 - risk.Diversification(weights))

	var avgVol float64
	for i := range weights {
		avgVol += weights[i] * vols[i]
	}
	volImpact := clamp01(avgVol / 1.2)

	marketImpact := u.marketRisk(ctx)

	var liqImpact float64
	for i, o := range offers {
		liqImpact += weights[i] * liquidityScore(o.Symbol)
	}
	liqImpact = clamp01(liqImpact)

	factors := []risk.Factor{
		{Name: "ltv", Impact: ltvImpact, Severity: risk.ImpactSeverity(ltvImpact),
			Detail: fmt.Sprintf("implied LTV %.2f against policy max %.2f", impliedLTV, pol.MaxLTV)},
		{Name: "concentration", Impact: concImpact, Severity: risk.ImpactSeverity(concImpact),
			Detail: fmt.Sprintf("herfindahl %.2f across %d assets", concImpact, len(offers))},
		{Name: "volatility", Impact: volImpact, Severity: risk.ImpactSeverity(volImpact),
			Detail: fmt.Sprintf("weighted annualized volatility %.2f", avgVol)},
		{Name: "market", Impact: marketImpact, Severity: risk.ImpactSeverity(marketImpact)},
		{Name: "liquidity", Impact: liqImpact, Severity: risk.ImpactSeverity(liqImpact)},
	}

	var sum float64
	for _, f := range factors {
		sum += f.Impact
	}
	score := int(math.Round(100 * sum / float64(len(factors))))
	level := risk.ScoreToLevel(score)

	liqProb := risk.LiquidationProbability(impliedLTV, pol.Liquidation, avgVol, u.cfg.HorizonDays)
	return assessment.RiskAssessment{
		Level:                  level,
		Score:                  score,
		Factors:                factors,
		VolatilityForecast:     risk.VolatilityForecast(weights, vols, u.cfg.HorizonDays),
		LiquidationProbability: liqProb,
		ExpectedLoss:           liqProb * req.Amount * pol.LossGivenDefault,
		StressResults:          risk.RunStressLadder(totalValue, req.Amount, pol.Liquidation, pol.LossGivenDefault, u.cfg.StressLadder),
	}
}

// marketRisk is best-effort: an unavailable index scores neutral.
func (u *Usecase) marketRisk(ctx context.Context) float64 {
	var idx float64
	err := provider.Do(ctx, u.retry, "market.RiskIndex", func(ctx context.Context) error {
		var err error
		idx, err = u.market.MarketRiskIndex(ctx)
		return err
	})
	if err != nil {
		u.log.Warn("market risk index unavailable, assuming neutral", zap.Error(err))
		return 0.5
	}
	return clamp01(idx)
}

// decide applies the active policy: hard declines first, then approval with
// risk-scaled terms.
func (u *Usecase) decide(req AssessRequest, ra assessment.RiskAssessment, credit *provider.CreditScore, totalValue float64) assessment.Decision {
	pol := u.cfg.Policy
	now := u.now()
	dec := assessment.Decision{DecidedAt: now, ExpiresAt: now.Add(u.cfg.DecisionTTL)}

	var reasons []string
	if credit.Score < risk.AbsoluteCreditFloor {
		reasons = append(reasons, fmt.Sprintf("credit score %d below absolute floor %d", credit.Score, risk.AbsoluteCreditFloor))
	}
	if ra.Level == risk.LevelExtreme {
		reasons = append(reasons, fmt.Sprintf("risk level %s is never financed", ra.Level))
	}
	if ra.Score > pol.MaxRiskScore {
		reasons = append(reasons, fmt.Sprintf("risk score %d exceeds %s policy ceiling %d", ra.Score, pol.Name, pol.MaxRiskScore))
	}
	if credit.Score < pol.MinCreditScore {
		reasons = append(reasons, fmt.Sprintf("credit score %d below %s policy minimum %d", credit.Score, pol.Name, pol.MinCreditScore))
	}
	if len(reasons) > 0 {
		dec.DeclineReasons = reasons
		return dec
	}

	approved := math.Min(req.Amount, totalValue*pol.MaxLTV)
	if ra.Score > 40 {
		approved *= 0.8
	}
	dec.Approved = true
	dec.ApprovedAmount = math.Floor(approved*100) / 100
	dec.Conditions = conditionsFor(ra.Level)
	dec.Terms = assessment.Terms{
		MaxLTV:         pol.MaxLTV * maxLTVScale(ra.Level),
		InterestAPR:    u.cfg.BaseAPR + pol.InterestPremium + aprPremium(ra.Level),
		SafeZoneLTV:    pol.SafeZone,
		MarginCallLTV:  pol.MarginCall,
		LiquidationLTV: pol.Liquidation,
		DurationDays:   365,
	}
	return dec
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
