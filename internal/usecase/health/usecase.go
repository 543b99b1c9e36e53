// Package health renders read-only loan health reports: the LTV verdict,
// distance to liquidation, open alerts and, for healthy loans, cheaper
// refinancing offers from the other connected providers.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/internal/risk"
)

type Usecase struct {
	loans     loan.Repository
	positions collateral.Repository
	registry  *provider.Registry
	log       *zap.Logger
	cfg       Config
	now       func() time.Time
}

func NewUsecase(loans loan.Repository, positions collateral.Repository, registry *provider.Registry, log *zap.Logger, cfg Config) *Usecase {
	if cfg.RefinanceAdvantage <= 0 {
		cfg.RefinanceAdvantage = 0.01
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		loans: loans, positions: positions, registry: registry,
		log: log, cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CheckLoanHealth builds the report from stored state; it never calls the
// price oracle, so a report is cheap and reflects the monitor's last pass.
func (u *Usecase) CheckLoanHealth(ctx context.Context, loanID string) (*Report, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	p, err := u.positions.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	// The verdict and distance metrics are judged against the loan's own
	// thresholds, which can differ from the position's monitoring copy.
	th := collateral.Thresholds{
		SafeZone:    l.LTV.SafeZone,
		MarginCall:  l.LTV.MarginCall,
		Liquidation: l.LTV.Liquidation,
	}
	if th.Liquidation <= 0 {
		th = p.Thresholds
	}
	bucket := p.Status
	if bucket != collateral.StatusLiquidated {
		bucket = collateral.StatusForLTV(p.CurrentLTV, th)
	}

	avgVol := p.AvgVolatility()
	r := &Report{
		LoanID:                 l.LoanID,
		Status:                 l.Status,
		Verdict:                verdictFor(bucket),
		CurrentLTV:             p.CurrentLTV,
		Thresholds:             th,
		HealthFactor:           risk.HealthFactor(p.CurrentLTV, th.Liquidation),
		LiquidationDistance:    risk.LiquidationDistance(p.CurrentLTV, th.Liquidation),
		LiquidationProbability: risk.LiquidationProbability(p.CurrentLTV, th.Liquidation, avgVol, u.cfg.HorizonDays),
		AvgVolatility:          avgVol,
		Diversification:        risk.Diversification(p.Weights()),
		OpenAlerts:             l.OpenAlerts(),
		CheckedAt:              u.now(),
	}
	sort.SliceStable(r.OpenAlerts, func(i, j int) bool {
		return r.OpenAlerts[i].Severity.Rank() > r.OpenAlerts[j].Severity.Rank()
	})
	r.Recommendations = recommend(l, p, r)

	if r.Verdict == VerdictHealthy && l.Status == loan.StatusActive {
		r.Refinance = u.refinanceOptions(ctx, l, p)
	}
	return r, nil
}

func recommend(l *loan.Loan, p *collateral.Position, r *Report) []string {
	var out []string
	switch r.Verdict {
	case VerdictLiquidationRisk:
		out = append(out, "add collateral or repay immediately to avoid liquidation")
	case VerdictCritical:
		out = append(out, fmt.Sprintf("add collateral or repay to bring LTV under %.2f", r.Thresholds.MarginCall))
	case VerdictWarning:
		out = append(out, fmt.Sprintf("LTV left the safe zone; consider topping up before it reaches %.2f", r.Thresholds.MarginCall))
	}
	if len(p.Assets) > 0 && r.Diversification == 0 && r.AvgVolatility > 0.3 {
		out = append(out, "collateral is a single volatile asset; diversifying reduces liquidation risk")
	}
	if !p.Automation.TopUp.Enabled && r.Verdict != VerdictHealthy {
		out = append(out, "enable automated top-up to remediate LTV spikes without manual action")
	}
	return out
}

// refinanceOptions asks every other connected provider for a quote on the
// loan's primary collateral and keeps the ones at least the configured
// advantage cheaper. Providers that fail or time out are skipped.
func (u *Usecase) refinanceOptions(ctx context.Context, l *loan.Loan, p *collateral.Position) []RefinanceOption {
	var primary collateral.Asset
	for _, a := range p.Assets {
		if a.Weight > primary.Weight {
			primary = a
		}
	}
	if primary.Symbol == "" {
		return nil
	}

	adapters := u.registry.All()
	results := make([]RefinanceOption, len(adapters))
	found := make([]bool, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		if a.ID() == l.ProviderID {
			continue
		}
		wg.Add(1)
		go func(i int, a provider.Adapter) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, u.cfg.QuoteTimeout)
			defer cancel()
			q, err := a.GetQuote(qctx, primary.Symbol, primary.Amount, l.Principal.Asset, l.LTV.Current)
			if err != nil {
				u.log.Debug("refinance quote failed",
					zap.String("provider_id", a.ID()), zap.Error(err))
				return
			}
			if q.InterestAPR <= 0 || l.Interest.RateAPR-q.InterestAPR < u.cfg.RefinanceAdvantage {
				return
			}
			results[i] = RefinanceOption{
				ProviderID:  a.ID(),
				InterestAPR: q.InterestAPR,
				SavingsAPR:  l.Interest.RateAPR - q.InterestAPR,
				MaxLTV:      q.MaxLTV,
			}
			found[i] = true
		}(i, a)
	}
	wg.Wait()

	var out []RefinanceOption
	for i := range results {
		if found[i] {
			out = append(out, results[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InterestAPR < out[j].InterestAPR })
	return out
}
