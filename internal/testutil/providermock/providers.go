// Package providermock holds function-backed fakes for every external
// collaborator contract.
package providermock

import (
	"context"

	"collateral-loan-service/internal/provider"
)

// Adapter satisfies provider.Adapter.
type Adapter struct {
	IDValue              string
	ConnectFn            func(ctx context.Context) error
	HealthCheckFn        func(ctx context.Context) bool
	GetQuoteFn           func(ctx context.Context, collateralAsset string, amount float64, borrowAsset string, ltv float64) (*provider.Quote, error)
	CreateLoanFn         func(ctx context.Context, req provider.LoanRequest) (*provider.CreatedLoan, error)
	RepayFn              func(ctx context.Context, providerLoanID string, amount float64) error
	AddCollateralFn      func(ctx context.Context, providerLoanID, asset string, amount float64) error
	WithdrawCollateralFn func(ctx context.Context, providerLoanID, asset string, amount float64) error
}

func (m *Adapter) ID() string {
	if m.IDValue != "" {
		return m.IDValue
	}
	return "mock"
}

func (m *Adapter) Connect(ctx context.Context) error {
	if m.ConnectFn != nil {
		return m.ConnectFn(ctx)
	}
	return nil
}

func (m *Adapter) HealthCheck(ctx context.Context) bool {
	if m.HealthCheckFn != nil {
		return m.HealthCheckFn(ctx)
	}
	return true
}

func (m *Adapter) GetQuote(ctx context.Context, collateralAsset string, amount float64, borrowAsset string, ltv float64) (*provider.Quote, error) {
	if m.GetQuoteFn != nil {
		return m.GetQuoteFn(ctx, collateralAsset, amount, borrowAsset, ltv)
	}
	return &provider.Quote{ProviderID: m.ID(), CollateralAsset: collateralAsset, BorrowAsset: borrowAsset, Amount: amount}, nil
}

func (m *Adapter) CreateLoan(ctx context.Context, req provider.LoanRequest) (*provider.CreatedLoan, error) {
	if m.CreateLoanFn != nil {
		return m.CreateLoanFn(ctx, req)
	}
	return &provider.CreatedLoan{ProviderLoanID: "prov-1", InterestAPR: 0.08}, nil
}

func (m *Adapter) Repay(ctx context.Context, providerLoanID string, amount float64) error {
	if m.RepayFn != nil {
		return m.RepayFn(ctx, providerLoanID, amount)
	}
	return nil
}

func (m *Adapter) AddCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error {
	if m.AddCollateralFn != nil {
		return m.AddCollateralFn(ctx, providerLoanID, asset, amount)
	}
	return nil
}

func (m *Adapter) WithdrawCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error {
	if m.WithdrawCollateralFn != nil {
		return m.WithdrawCollateralFn(ctx, providerLoanID, asset, amount)
	}
	return nil
}

// Oracle satisfies provider.PriceOracle.
type Oracle struct {
	GetPricesFn func(ctx context.Context, symbols []string) (map[string]float64, error)
}

func (m *Oracle) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if m.GetPricesFn != nil {
		return m.GetPricesFn(ctx, symbols)
	}
	return map[string]float64{}, nil
}

// Credit satisfies provider.CreditScoreProvider.
type Credit struct {
	GetScoreFn func(ctx context.Context, userID string) (*provider.CreditScore, error)
}

func (m *Credit) GetScore(ctx context.Context, userID string) (*provider.CreditScore, error) {
	if m.GetScoreFn != nil {
		return m.GetScoreFn(ctx, userID)
	}
	return &provider.CreditScore{Score: 700, Grade: "A"}, nil
}

// Market satisfies provider.MarketData.
type Market struct {
	Volatility24hFn   func(ctx context.Context, symbols []string) (map[string]float64, error)
	MarketRiskIndexFn func(ctx context.Context) (float64, error)
}

func (m *Market) Volatility24h(ctx context.Context, symbols []string) (map[string]float64, error) {
	if m.Volatility24hFn != nil {
		return m.Volatility24hFn(ctx, symbols)
	}
	return map[string]float64{}, nil
}

func (m *Market) MarketRiskIndex(ctx context.Context) (float64, error) {
	if m.MarketRiskIndexFn != nil {
		return m.MarketRiskIndexFn(ctx)
	}
	return 0.3, nil
}
