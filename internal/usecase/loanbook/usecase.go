// Package loanbook owns the loan lifecycle: creation from an approved
// assessment, repayment, collateral changes, cancellation and default. Every
// status change goes through the repository's compare-and-swap, and every
// read-modify-write cycle runs under a per-loan lock shared with the monitor,
// so concurrent actors (API and monitor) cannot clobber each other.
package loanbook

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"collateral-loan-service/internal/domain/assessment"
	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/entitylock"
	"collateral-loan-service/internal/event"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/pkg/id"
)

// repayEpsilon tolerates float accumulation on the remaining principal.
const repayEpsilon = 0.005

type Usecase struct {
	loans       loan.Repository
	positions   collateral.Repository
	assessments assessment.Repository
	registry    *provider.Registry
	oracle      provider.PriceOracle
	market      provider.MarketData
	bus         *event.Bus
	log         *zap.Logger
	retry       provider.RetryConfig
	locks       *entitylock.Registry
	now         func() time.Time
}

// NewUsecase wires the loan lifecycle. locks must be the same registry the
// monitor holds, so repositories only ever see one writer per loan; nil
// gets a private registry.
func NewUsecase(loans loan.Repository, positions collateral.Repository, assessments assessment.Repository, registry *provider.Registry, oracle provider.PriceOracle, market provider.MarketData, bus *event.Bus, log *zap.Logger, retry provider.RetryConfig, locks *entitylock.Registry) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	if locks == nil {
		locks = entitylock.New()
	}
	return &Usecase{
		loans: loans, positions: positions, assessments: assessments,
		registry: registry, oracle: oracle, market: market,
		bus: bus, log: log, retry: retry, locks: locks,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// CreateLoan turns an unexpired approved assessment into a live loan plus its
// collateral position. The loan is persisted as pending before the provider
// call and activated only after the provider acknowledges.
func (u *Usecase) CreateLoan(ctx context.Context, req CreateLoanRequest) (*loan.Loan, error) {
	if req.UserID == "" || req.AssessmentID == "" || req.ProviderID == "" {
		return nil, fmt.Errorf("%w: user_id, assessment_id and provider_id are required", ErrInvalidRequest)
	}

	a, err := u.assessments.GetByAssessmentID(ctx, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != req.UserID {
		return nil, fmt.Errorf("%w: assessment belongs to another user", ErrInvalidRequest)
	}
	if !a.Usable(u.now()) {
		return nil, ErrAssessmentUnusable
	}
	amount := req.Amount
	if amount == 0 {
		amount = a.Decision.ApprovedAmount
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > a.Decision.ApprovedAmount {
		return nil, ErrAmountExceedsApproval
	}

	adapter, err := u.registry.Get(req.ProviderID)
	if err != nil {
		return nil, err
	}

	var totalValue float64
	primary := a.Collateral[0]
	for _, c := range a.Collateral {
		totalValue += c.ValueUSD
		if c.Weight > primary.Weight {
			primary = c
		}
	}

	u.publish(event.Event{Type: event.LoanRequested, UserID: req.UserID, Payload: map[string]any{
		"assessment_id": a.AssessmentID,
		"provider_id":   req.ProviderID,
		"amount":        amount,
	}})

	var created *provider.CreatedLoan
	err = provider.Do(ctx, u.retry, "adapter.CreateLoan", func(ctx context.Context) error {
		var err error
		created, err = adapter.CreateLoan(ctx, provider.LoanRequest{
			UserID:           req.UserID,
			BorrowAsset:      a.RequestedAsset,
			Amount:           amount,
			CollateralAsset:  primary.Symbol,
			CollateralAmount: primary.Amount,
			MaxLTV:           a.Decision.Terms.MaxLTV,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	apr := created.InterestAPR
	if apr <= 0 {
		apr = a.Decision.Terms.InterestAPR
	}
	l := &loan.Loan{
		LoanID:         id.NewID32(),
		UserID:         req.UserID,
		ProviderID:     req.ProviderID,
		ProviderLoanID: created.ProviderLoanID,
		AssessmentID:   a.AssessmentID,
		Status:         loan.StatusPending,
		Principal:      loan.Principal{Asset: a.RequestedAsset, Amount: amount, Remaining: amount},
		Interest:       loan.Interest{RateAPR: apr},
		LTV: loan.LTVInfo{
			Current:     amount / totalValue,
			Initial:     amount / totalValue,
			Max:         a.Decision.Terms.MaxLTV,
			Liquidation: a.Decision.Terms.LiquidationLTV,
			MarginCall:  a.Decision.Terms.MarginCallLTV,
			SafeZone:    a.Decision.Terms.SafeZoneLTV,
		},
	}
	l.AppendHistory(now, "created", amount, a.RequestedAsset,
		fmt.Sprintf("provider %s loan %s", req.ProviderID, created.ProviderLoanID))
	if err := u.loans.Create(ctx, l); err != nil {
		return nil, err
	}

	p := u.buildPosition(ctx, l, a, req)
	if err := u.positions.Create(ctx, p); err != nil {
		return nil, err
	}

	if _, err := u.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusPending, loan.StatusActive); err != nil {
		return nil, err
	}
	l.Status = loan.StatusActive

	u.publish(event.Event{Type: event.LoanCreated, LoanID: l.LoanID, PositionID: p.PositionID, UserID: req.UserID, Payload: map[string]any{
		"amount": amount,
		"asset":  a.RequestedAsset,
		"ltv":    l.LTV.Current,
	}})
	u.log.Info("loan created",
		zap.String("loan_id", l.LoanID),
		zap.String("position_id", p.PositionID),
		zap.String("provider_id", req.ProviderID),
		zap.Float64("amount", amount))
	return l, nil
}

func (u *Usecase) buildPosition(ctx context.Context, l *loan.Loan, a *assessment.Assessment, req CreateLoanRequest) *collateral.Position {
	vols, err := u.market.Volatility24h(ctx, offerSymbols(a.Collateral))
	if err != nil {
		u.log.Warn("volatility feed unavailable at position creation", zap.Error(err))
		vols = nil
	}
	assets := make([]collateral.Asset, len(a.Collateral))
	for i, c := range a.Collateral {
		price := 0.0
		if c.Amount > 0 {
			price = c.ValueUSD / c.Amount
		}
		assets[i] = collateral.Asset{
			Symbol: c.Symbol, Amount: c.Amount,
			PriceUSD: price, Volatility: vols[c.Symbol],
		}
	}
	p := &collateral.Position{
		PositionID: id.NewID32(),
		LoanID:     l.LoanID,
		Assets:     assets,
		Thresholds: collateral.Thresholds{
			SafeZone:    a.Decision.Terms.SafeZoneLTV,
			MarginCall:  a.Decision.Terms.MarginCallLTV,
			Liquidation: a.Decision.Terms.LiquidationLTV,
		},
		Monitoring: collateral.Monitoring{Enabled: true, IntervalSec: req.MonitorIntervalSec},
		Automation: req.Automation,
	}
	p.Recompute(l.Principal.Remaining)
	p.AppendHistory(u.now(), "created", "", p.TotalValueUSD, "position opened")
	return p
}

// Get returns one loan by its public id.
func (u *Usecase) Get(ctx context.Context, loanID string) (*loan.Loan, error) {
	return u.loans.GetByLoanID(ctx, loanID)
}

// ListByUser returns the user's loans, newest first per repository ordering.
func (u *Usecase) ListByUser(ctx context.Context, userID string) ([]*loan.Loan, error) {
	return u.loans.ListByUserID(ctx, userID)
}

// GetPosition returns the collateral position backing a loan.
func (u *Usecase) GetPosition(ctx context.Context, loanID string) (*collateral.Position, error) {
	return u.positions.GetByLoanID(ctx, loanID)
}

// Repay applies a repayment to the outstanding principal. Full repayment
// closes the loan and stops monitoring; a repayment that brings a margin-call
// loan back under its margin-call threshold resolves the margin call.
func (u *Usecase) Repay(ctx context.Context, req RepayRequest) (*loan.Loan, error) {
	unlock := u.locks.Lock(req.LoanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	switch l.Status {
	case loan.StatusActive, loan.StatusMarginCall, loan.StatusPartiallyLiquidated:
	default:
		return nil, fmt.Errorf("%w: cannot repay a %s loan", ErrLoanNotOpen, l.Status)
	}
	if req.Amount <= 0 || req.Amount > l.Principal.Remaining+repayEpsilon {
		return nil, fmt.Errorf("%w: remaining %.2f", ErrInvalidAmount, l.Principal.Remaining)
	}

	adapter, err := u.registry.Get(l.ProviderID)
	if err != nil {
		return nil, err
	}
	err = provider.Do(ctx, u.retry, "adapter.Repay", func(ctx context.Context) error {
		return adapter.Repay(ctx, l.ProviderLoanID, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	l.Principal.Remaining = math.Max(0, l.Principal.Remaining-req.Amount)
	l.AppendHistory(now, "repayment", req.Amount, l.Principal.Asset, "")

	p, perr := u.positions.GetByLoanID(ctx, req.LoanID)
	if perr == nil {
		p.Recompute(l.Principal.Remaining)
		l.LTV.Current = p.CurrentLTV
	}

	fullyRepaid := l.Principal.Remaining <= repayEpsilon
	if fullyRepaid {
		l.Principal.Remaining = 0
		l.LTV.Current = 0
	}
	if err := u.loans.Save(ctx, l); err != nil {
		return nil, err
	}

	if fullyRepaid {
		if _, err := u.loans.CompareAndSwapStatus(ctx, l.LoanID, l.Status, loan.StatusClosed); err != nil {
			return nil, err
		}
		l.Status = loan.StatusClosed
		if p != nil {
			p.Monitoring.Enabled = false
		}
		u.publish(event.Event{Type: event.LoanClosed, LoanID: l.LoanID, UserID: l.UserID, Payload: map[string]any{
			"repaid": l.Principal.Amount,
		}})
	} else if l.Status == loan.StatusMarginCall && p != nil && p.CurrentLTV < p.Thresholds.MarginCall {
		if _, err := u.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusMarginCall, loan.StatusActive); err != nil {
			return nil, err
		}
		l.Status = loan.StatusActive
		u.publish(event.Event{Type: event.MarginCallResolved, LoanID: l.LoanID, UserID: l.UserID, Payload: map[string]any{
			"ltv": p.CurrentLTV,
		}})
	}

	if p != nil {
		p.AppendHistory(now, "repayment", "", req.Amount, "principal reduced")
		if err := u.positions.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	u.publish(event.Event{Type: event.LoanRepaid, LoanID: l.LoanID, UserID: l.UserID, Payload: map[string]any{
		"amount":    req.Amount,
		"remaining": l.Principal.Remaining,
	}})
	u.log.Info("repayment applied",
		zap.String("loan_id", l.LoanID),
		zap.Float64("amount", req.Amount),
		zap.Float64("remaining", l.Principal.Remaining),
		zap.String("status", string(l.Status)))
	return l, nil
}

// AddCollateral deposits more of one asset into the loan's position. Adding
// enough to clear the margin-call threshold resolves the margin call.
func (u *Usecase) AddCollateral(ctx context.Context, req CollateralChangeRequest) (*collateral.Position, error) {
	if req.Symbol == "" || req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := u.locks.Lock(req.LoanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	switch l.Status {
	case loan.StatusActive, loan.StatusMarginCall, loan.StatusPartiallyLiquidated:
	default:
		return nil, fmt.Errorf("%w: cannot change collateral on a %s loan", ErrLoanNotOpen, l.Status)
	}
	p, err := u.positions.GetByLoanID(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}

	price, err := u.fetchPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	adapter, err := u.registry.Get(l.ProviderID)
	if err != nil {
		return nil, err
	}
	err = provider.Do(ctx, u.retry, "adapter.AddCollateral", func(ctx context.Context) error {
		return adapter.AddCollateral(ctx, l.ProviderLoanID, req.Symbol, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	upsertAsset(p, req.Symbol, req.Amount, price)
	p.Recompute(l.Principal.Remaining)
	p.AppendHistory(now, "collateral_added", req.Symbol, req.Amount, "")
	if err := u.positions.Save(ctx, p); err != nil {
		return nil, err
	}

	l.LTV.Current = p.CurrentLTV
	l.AppendHistory(now, "collateral_added", req.Amount, req.Symbol, "")
	if err := u.loans.Save(ctx, l); err != nil {
		return nil, err
	}

	if l.Status == loan.StatusMarginCall && p.CurrentLTV < p.Thresholds.MarginCall {
		if _, err := u.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusMarginCall, loan.StatusActive); err != nil {
			return nil, err
		}
		u.publish(event.Event{Type: event.MarginCallResolved, LoanID: l.LoanID, UserID: l.UserID, Payload: map[string]any{
			"ltv": p.CurrentLTV,
		}})
	}

	u.publish(event.Event{Type: event.CollateralAdded, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{
		"symbol": req.Symbol,
		"amount": req.Amount,
		"ltv":    p.CurrentLTV,
	}})
	return p, nil
}

// WithdrawCollateral releases collateral, but only while the resulting LTV
// stays strictly inside the safe zone. Withdrawal is never allowed during a
// margin call or liquidation.
func (u *Usecase) WithdrawCollateral(ctx context.Context, req CollateralChangeRequest) (*collateral.Position, error) {
	if req.Symbol == "" || req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := u.locks.Lock(req.LoanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	if l.Status != loan.StatusActive {
		return nil, fmt.Errorf("%w: withdrawal requires an active loan, got %s", ErrLoanNotOpen, l.Status)
	}
	p, err := u.positions.GetByLoanID(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}

	held := assetIndex(p, req.Symbol)
	if held < 0 || p.Assets[held].Amount < req.Amount {
		return nil, ErrInsufficientCollateral
	}

	price, err := u.fetchPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	projected := p.TotalValueUSD - req.Amount*price
	if projected <= 0 || l.Principal.Remaining/projected >= p.Thresholds.SafeZone {
		return nil, fmt.Errorf("%w: projected LTV %.4f, safe zone %.4f",
			ErrPolicyViolation, safeRatio(l.Principal.Remaining, projected), p.Thresholds.SafeZone)
	}

	adapter, err := u.registry.Get(l.ProviderID)
	if err != nil {
		return nil, err
	}
	err = provider.Do(ctx, u.retry, "adapter.WithdrawCollateral", func(ctx context.Context) error {
		return adapter.WithdrawCollateral(ctx, l.ProviderLoanID, req.Symbol, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	p.Assets[held].Amount -= req.Amount
	p.Assets[held].PriceUSD = price
	if p.Assets[held].Amount == 0 {
		p.Assets = append(p.Assets[:held], p.Assets[held+1:]...)
	}
	p.Recompute(l.Principal.Remaining)
	p.AppendHistory(now, "collateral_withdrawn", req.Symbol, req.Amount, "")
	if err := u.positions.Save(ctx, p); err != nil {
		return nil, err
	}

	l.LTV.Current = p.CurrentLTV
	l.AppendHistory(now, "collateral_withdrawn", req.Amount, req.Symbol, "")
	if err := u.loans.Save(ctx, l); err != nil {
		return nil, err
	}

	u.publish(event.Event{Type: event.CollateralWithdrawn, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{
		"symbol": req.Symbol,
		"amount": req.Amount,
		"ltv":    p.CurrentLTV,
	}})
	return p, nil
}

// Cancel aborts a loan that never activated.
func (u *Usecase) Cancel(ctx context.Context, loanID string) error {
	unlock := u.locks.Lock(loanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return err
	}
	if l.Status != loan.StatusPending {
		return fmt.Errorf("%w: only pending loans can be cancelled", ErrLoanNotOpen)
	}
	if _, err := u.loans.CompareAndSwapStatus(ctx, loanID, loan.StatusPending, loan.StatusCancelled); err != nil {
		return err
	}
	u.publish(event.Event{Type: event.LoanCancelled, LoanID: loanID, UserID: l.UserID})
	return nil
}

// MarkDefaulted moves any non-terminal loan to defaulted and freezes its
// monitoring.
func (u *Usecase) MarkDefaulted(ctx context.Context, loanID, reason string) error {
	unlock := u.locks.Lock(loanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return err
	}
	if _, err := u.loans.CompareAndSwapStatus(ctx, loanID, l.Status, loan.StatusDefaulted); err != nil {
		return err
	}
	if p, perr := u.positions.GetByLoanID(ctx, loanID); perr == nil {
		p.Monitoring.Enabled = false
		p.AppendHistory(u.now(), "defaulted", "", 0, reason)
		if err := u.positions.Save(ctx, p); err != nil {
			return err
		}
	}
	u.publish(event.Event{Type: event.LoanDefaulted, LoanID: loanID, UserID: l.UserID, Payload: map[string]any{
		"reason": reason,
	}})
	u.log.Warn("loan defaulted", zap.String("loan_id", loanID), zap.String("reason", reason))
	return nil
}

// AcknowledgeAlert stamps an alert as seen. Alerts are never deleted.
func (u *Usecase) AcknowledgeAlert(ctx context.Context, loanID, alertID string) (*loan.Loan, error) {
	unlock := u.locks.Lock(loanID)
	defer unlock()

	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	for i := range l.Alerts {
		if l.Alerts[i].AlertID == alertID {
			if l.Alerts[i].AcknowledgedAt == nil {
				now := u.now()
				l.Alerts[i].AcknowledgedAt = &now
				if err := u.loans.Save(ctx, l); err != nil {
					return nil, err
				}
			}
			return l, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (u *Usecase) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	var prices map[string]float64
	err := provider.Do(ctx, u.retry, "oracle.GetPrices", func(ctx context.Context) error {
		var err error
		prices, err = u.oracle.GetPrices(ctx, []string{symbol})
		return err
	})
	if err != nil {
		return 0, err
	}
	px, ok := prices[symbol]
	if !ok || px <= 0 {
		return 0, fmt.Errorf("price unavailable for %s", symbol)
	}
	return px, nil
}

func (u *Usecase) publish(ev event.Event) {
	if u.bus != nil {
		u.bus.Publish(ev)
	}
}

func upsertAsset(p *collateral.Position, symbol string, amount, price float64) {
	if i := assetIndex(p, symbol); i >= 0 {
		p.Assets[i].Amount += amount
		p.Assets[i].PriceUSD = price
		return
	}
	p.Assets = append(p.Assets, collateral.Asset{Symbol: symbol, Amount: amount, PriceUSD: price})
}

func assetIndex(p *collateral.Position, symbol string) int {
	for i, a := range p.Assets {
		if a.Symbol == symbol {
			return i
		}
	}
	return -1
}

func offerSymbols(offers []assessment.CollateralOffer) []string {
	s := make([]string, len(offers))
	for i, o := range offers {
		s[i] = o.Symbol
	}
	return s
}

func safeRatio(n, d float64) float64 {
	if d <= 0 {
		return math.Inf(1)
	}
	return n / d
}
