package loanbook

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"collateral-loan-service/internal/adapter/repository/memory"
	"collateral-loan-service/internal/domain/assessment"
	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/event"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/internal/testutil/collateralmock"
	"collateral-loan-service/internal/testutil/loanmock"
	"collateral-loan-service/internal/testutil/providermock"
)

const testUser = "cccccccccccccccccccccccccccccccc"

type fixture struct {
	uc          *Usecase
	loans       *memory.LoanRepository
	positions   *memory.PositionRepository
	assessments *memory.AssessmentRepository
	adapter     *providermock.Adapter
	oracle      *providermock.Oracle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loans:       memory.NewLoanRepository(),
		positions:   memory.NewPositionRepository(),
		assessments: memory.NewAssessmentRepository(),
		adapter:     &providermock.Adapter{IDValue: "alpha"},
		oracle: &providermock.Oracle{
			GetPricesFn: func(ctx context.Context, symbols []string) (map[string]float64, error) {
				return map[string]float64{"BTC": 40_000, "ETH": 2_000, "USDT": 1}, nil
			},
		},
	}
	registry := provider.NewRegistry()
	registry.Register(f.adapter)
	retry := provider.RetryConfig{Attempts: 1, PerCallTime: 100 * time.Millisecond, BaseBackoff: time.Millisecond}
	f.uc = NewUsecase(f.loans, f.positions, f.assessments, registry, f.oracle,
		&providermock.Market{}, event.NewBus(zap.NewNop()), zap.NewNop(), retry, nil)
	return f
}

func approvedAssessment(t *testing.T, f *fixture) *assessment.Assessment {
	t.Helper()
	a := &assessment.Assessment{
		AssessmentID:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		UserID:          testUser,
		RequestedAmount: 10_000,
		RequestedAsset:  "USDT",
		Collateral: []assessment.CollateralOffer{
			{Symbol: "BTC", Amount: 0.5, ValueUSD: 20_000, Weight: 0.5},
			{Symbol: "ETH", Amount: 10, ValueUSD: 20_000, Weight: 0.5},
		},
		Decision: assessment.Decision{
			Approved:       true,
			ApprovedAmount: 10_000,
			Terms: assessment.Terms{
				MaxLTV: 0.65, InterestAPR: 0.08,
				SafeZoneLTV: 0.7, MarginCallLTV: 0.8, LiquidationLTV: 0.85,
				DurationDays: 365,
			},
			DecidedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(72 * time.Hour),
		},
	}
	if err := f.assessments.Create(context.Background(), a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	return a
}

func createLoan(t *testing.T, f *fixture) *loan.Loan {
	t.Helper()
	a := approvedAssessment(t, f)
	l, err := f.uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "alpha",
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	return l
}

func TestCreateLoan_ActivatesWithPosition(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	if l.Status != loan.StatusActive {
		t.Fatalf("status = %s, want active", l.Status)
	}
	if l.Principal.Remaining != 10_000 {
		t.Fatalf("remaining = %v", l.Principal.Remaining)
	}
	if got := l.LTV.Current; got != 0.25 {
		t.Fatalf("ltv = %v, want 0.25", got)
	}

	p, err := f.uc.GetPosition(context.Background(), l.LoanID)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if p.TotalValueUSD != 40_000 {
		t.Fatalf("position value = %v", p.TotalValueUSD)
	}
	if !p.Monitoring.Enabled {
		t.Fatal("monitoring must default to enabled")
	}
	if p.Thresholds.MarginCall != 0.8 || p.Thresholds.Liquidation != 0.85 {
		t.Fatalf("thresholds not copied from terms: %+v", p.Thresholds)
	}
}

func TestCreateLoan_ExpiredAssessmentRejected(t *testing.T) {
	f := newFixture(t)
	a := approvedAssessment(t, f)

	f.uc.WithClock(func() time.Time { return a.Decision.ExpiresAt.Add(time.Minute) })
	_, err := f.uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "alpha",
	})
	if !errors.Is(err, ErrAssessmentUnusable) {
		t.Fatalf("err = %v, want ErrAssessmentUnusable", err)
	}
}

func TestCreateLoan_AmountAboveApprovalRejected(t *testing.T) {
	f := newFixture(t)
	a := approvedAssessment(t, f)
	_, err := f.uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "alpha", Amount: 10_001,
	})
	if !errors.Is(err, ErrAmountExceedsApproval) {
		t.Fatalf("err = %v, want ErrAmountExceedsApproval", err)
	}
}

func TestCreateLoan_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	a := approvedAssessment(t, f)
	_, err := f.uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "nope",
	})
	if !errors.Is(err, provider.ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestCreateLoan_ProviderFailureLeavesNoActiveLoan(t *testing.T) {
	f := newFixture(t)
	a := approvedAssessment(t, f)
	f.adapter.CreateLoanFn = func(ctx context.Context, req provider.LoanRequest) (*provider.CreatedLoan, error) {
		return nil, provider.NewTerminal("create", errors.New("venue rejected"))
	}
	if _, err := f.uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "alpha",
	}); err == nil {
		t.Fatal("want provider failure surfaced")
	}
	if open, _ := f.loans.ListOpen(context.Background()); len(open) != 0 {
		t.Fatalf("open loans = %d, want 0", len(open))
	}
}

func TestRepay_PartialThenFullClosesLoan(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	l2, err := f.uc.Repay(context.Background(), RepayRequest{LoanID: l.LoanID, Amount: 4_000})
	if err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	if l2.Principal.Remaining != 6_000 {
		t.Fatalf("remaining = %v, want 6000", l2.Principal.Remaining)
	}
	if l2.Status != loan.StatusActive {
		t.Fatalf("status = %s", l2.Status)
	}
	if got := l2.LTV.Current; got != 0.15 {
		t.Fatalf("ltv = %v, want 0.15", got)
	}

	l3, err := f.uc.Repay(context.Background(), RepayRequest{LoanID: l.LoanID, Amount: 6_000})
	if err != nil {
		t.Fatalf("final repay: %v", err)
	}
	if l3.Status != loan.StatusClosed {
		t.Fatalf("status = %s, want closed", l3.Status)
	}
	if l3.Principal.Remaining != 0 {
		t.Fatalf("remaining = %v", l3.Principal.Remaining)
	}
	p, _ := f.uc.GetPosition(context.Background(), l.LoanID)
	if p.Monitoring.Enabled {
		t.Fatal("monitoring must stop on a closed loan")
	}

	// closed loan refuses further repayment
	if _, err := f.uc.Repay(context.Background(), RepayRequest{LoanID: l.LoanID, Amount: 1}); !errors.Is(err, ErrLoanNotOpen) {
		t.Fatalf("err = %v, want ErrLoanNotOpen", err)
	}
}

func TestRepay_OverpaymentRejected(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)
	if _, err := f.uc.Repay(context.Background(), RepayRequest{LoanID: l.LoanID, Amount: 10_500}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestRepay_ResolvesMarginCall(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	// force the loan into margin call the way the monitor would
	if _, err := f.loans.CompareAndSwapStatus(context.Background(), l.LoanID, loan.StatusActive, loan.StatusMarginCall); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	p, _ := f.positions.GetByLoanID(context.Background(), l.LoanID)
	for i := range p.Assets {
		p.Assets[i].PriceUSD *= 0.25 // 40k collateral → 10k, LTV 1.0
	}
	p.Recompute(10_000)
	if err := f.positions.Save(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}

	// repaying 9k brings LTV to 1000/10000 = 0.1, under the 0.8 threshold
	l2, err := f.uc.Repay(context.Background(), RepayRequest{LoanID: l.LoanID, Amount: 9_000})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if l2.Status != loan.StatusActive {
		t.Fatalf("status = %s, want active after recovery", l2.Status)
	}
}

func TestAddCollateral_GrowsPositionAndLowersLTV(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	p, err := f.uc.AddCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "BTC", Amount: 0.25})
	if err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	if p.TotalValueUSD != 50_000 {
		t.Fatalf("value = %v, want 50000", p.TotalValueUSD)
	}
	if p.CurrentLTV != 0.2 {
		t.Fatalf("ltv = %v, want 0.2", p.CurrentLTV)
	}
	// new symbol creates a new holding
	p, err = f.uc.AddCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "USDT", Amount: 5_000})
	if err != nil {
		t.Fatalf("AddCollateral USDT: %v", err)
	}
	if len(p.Assets) != 3 {
		t.Fatalf("assets = %d, want 3", len(p.Assets))
	}
}

func TestWithdrawCollateral_SafeZoneGuard(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	// withdrawing 0.45 BTC leaves 22k against 10k debt → LTV 0.4545, fine
	p, err := f.uc.WithdrawCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "BTC", Amount: 0.45})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if p.TotalValueUSD != 22_000 {
		t.Fatalf("value = %v, want 22000", p.TotalValueUSD)
	}

	// withdrawing the rest would leave 20k ETH against 10k debt → 0.5 is
	// still fine; withdrawing 8 ETH leaves 6k against 10k → breach
	if _, err := f.uc.WithdrawCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "ETH", Amount: 8}); !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("err = %v, want ErrPolicyViolation", err)
	}
}

func TestWithdrawCollateral_RefusedDuringMarginCall(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)
	if _, err := f.loans.CompareAndSwapStatus(context.Background(), l.LoanID, loan.StatusActive, loan.StatusMarginCall); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if _, err := f.uc.WithdrawCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "BTC", Amount: 0.01}); !errors.Is(err, ErrLoanNotOpen) {
		t.Fatalf("err = %v, want ErrLoanNotOpen", err)
	}
}

func TestWithdrawCollateral_MoreThanHeld(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)
	if _, err := f.uc.WithdrawCollateral(context.Background(), CollateralChangeRequest{LoanID: l.LoanID, Symbol: "BTC", Amount: 2}); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("err = %v, want ErrInsufficientCollateral", err)
	}
}

func TestCancel_OnlyPending(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)
	if err := f.uc.Cancel(context.Background(), l.LoanID); !errors.Is(err, ErrLoanNotOpen) {
		t.Fatalf("err = %v, want ErrLoanNotOpen for an active loan", err)
	}
}

func TestMarkDefaulted_FreezesMonitoring(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)
	if err := f.uc.MarkDefaulted(context.Background(), l.LoanID, "missed payments"); err != nil {
		t.Fatalf("MarkDefaulted: %v", err)
	}
	got, _ := f.uc.Get(context.Background(), l.LoanID)
	if got.Status != loan.StatusDefaulted {
		t.Fatalf("status = %s", got.Status)
	}
	p, _ := f.uc.GetPosition(context.Background(), l.LoanID)
	if p.Monitoring.Enabled {
		t.Fatal("monitoring must stop on default")
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newFixture(t)
	l := createLoan(t, f)

	got, _ := f.uc.Get(context.Background(), l.LoanID)
	got.AppendAlert(loan.Alert{AlertID: "al-1", Type: "margin_warning", Severity: loan.SeverityWarning, CreatedAt: time.Now()})
	if err := f.loans.Save(context.Background(), got); err != nil {
		t.Fatalf("save: %v", err)
	}

	acked, err := f.uc.AcknowledgeAlert(context.Background(), l.LoanID, "al-1")
	if err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if acked.Alerts[0].AcknowledgedAt == nil {
		t.Fatal("alert not stamped")
	}
	if len(acked.OpenAlerts()) != 0 {
		t.Fatal("acknowledged alert still open")
	}

	if _, err := f.uc.AcknowledgeAlert(context.Background(), l.LoanID, "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestCreateLoan_PositionStoreFailureStopsActivation(t *testing.T) {
	f := newFixture(t)
	a := approvedAssessment(t, f)

	var createdLoan *loan.Loan
	var casCalls int
	loans := &loanmock.Repo{
		CreateFn: func(ctx context.Context, l *loan.Loan) error {
			createdLoan = l
			return nil
		},
		CompareAndSwapStatusFn: func(ctx context.Context, loanID string, from, to loan.Status) (*loan.Loan, error) {
			casCalls++
			return nil, nil
		},
	}
	positions := &collateralmock.Repo{
		CreateFn: func(ctx context.Context, p *collateral.Position) error {
			return errors.New("disk full")
		},
	}
	registry := provider.NewRegistry()
	registry.Register(f.adapter)
	retry := provider.RetryConfig{Attempts: 1, PerCallTime: 100 * time.Millisecond, BaseBackoff: time.Millisecond}
	uc := NewUsecase(loans, positions, f.assessments, registry, f.oracle,
		&providermock.Market{}, event.NewBus(zap.NewNop()), zap.NewNop(), retry, nil)

	_, err := uc.CreateLoan(context.Background(), CreateLoanRequest{
		UserID: testUser, AssessmentID: a.AssessmentID, ProviderID: "alpha",
	})
	if err == nil {
		t.Fatal("expected error when position store fails")
	}
	if createdLoan == nil || createdLoan.Status != loan.StatusPending {
		t.Fatalf("loan should be left pending, got %+v", createdLoan)
	}
	if casCalls != 0 {
		t.Fatalf("loan must not be activated, CAS called %d times", casCalls)
	}
}
