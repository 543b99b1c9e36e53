// Package provider defines the collaborator contracts the core depends on:
// external lending providers, the price oracle, the credit bureau and market
// data. The core treats all of them as black boxes that may fail; retry
// budgets and deadlines are applied by the callers through Do.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Quote is a borrowing offer from one provider.
type Quote struct {
	ProviderID      string    `json:"provider_id"`
	CollateralAsset string    `json:"collateral_asset"`
	BorrowAsset     string    `json:"borrow_asset"`
	Amount          float64   `json:"amount"`
	InterestAPR     float64   `json:"interest_apr"`
	MaxLTV          float64   `json:"max_ltv"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// LoanRequest is what the core sends when executing an approved assessment.
type LoanRequest struct {
	UserID           string
	BorrowAsset      string
	Amount           float64
	CollateralAsset  string
	CollateralAmount float64
	MaxLTV           float64
}

// CreatedLoan is the provider's acknowledgment.
type CreatedLoan struct {
	ProviderLoanID string
	InterestAPR    float64
}

// Adapter is the opaque lending-provider integration. All calls may block and
// must be given a context deadline by the caller.
type Adapter interface {
	ID() string
	Connect(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
	GetQuote(ctx context.Context, collateralAsset string, amount float64, borrowAsset string, ltv float64) (*Quote, error)
	CreateLoan(ctx context.Context, req LoanRequest) (*CreatedLoan, error)
	Repay(ctx context.Context, providerLoanID string, amount float64) error
	AddCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error
	WithdrawCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error
}

// PriceOracle returns USD prices. On partial failure it returns the subset it
// has; a missing symbol is not an error.
type PriceOracle interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// CreditScore is the bureau's answer; Score in 0–1000.
type CreditScore struct {
	Score       int       `json:"score"`
	Grade       string    `json:"grade"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// CreditScoreProvider may serve stale scores; the underwriting engine enforces
// its own staleness window.
type CreditScoreProvider interface {
	GetScore(ctx context.Context, userID string) (*CreditScore, error)
}

// MarketData supplies the 24h volatility estimates and the broad market risk
// signal consumed by monitoring and underwriting.
type MarketData interface {
	Volatility24h(ctx context.Context, symbols []string) (map[string]float64, error)
	// MarketRiskIndex is an externally computed signal in [0,1].
	MarketRiskIndex(ctx context.Context) (float64, error)
}

// Error wraps a collaborator failure. Retryable failures are retried by Do;
// terminal ones surface immediately.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewRetryable and NewTerminal are the two ways adapters report failures.
func NewRetryable(op string, err error) *Error { return &Error{Op: op, Retryable: true, Err: err} }
func NewTerminal(op string, err error) *Error  { return &Error{Op: op, Retryable: false, Err: err} }

// IsRetryable reports whether err (or anything it wraps) is a retryable
// provider error. Deadline expiry counts as retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}
