package loanmock

import (
	"context"

	domain "collateral-loan-service/internal/domain/loan"
)

// Repo is a function-backed mock that satisfies loan.Repository.
// Only set the methods a test needs; the rest fall back to sane defaults.
type Repo struct {
	CreateFn               func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn          func(ctx context.Context, loanID string) (*domain.Loan, error)
	ListByUserIDFn         func(ctx context.Context, userID string) ([]*domain.Loan, error)
	ListOpenFn             func(ctx context.Context) ([]*domain.Loan, error)
	SaveFn                 func(ctx context.Context, l *domain.Loan) error
	CompareAndSwapStatusFn func(ctx context.Context, loanID string, from, to domain.Status) (*domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) ListByUserID(ctx context.Context, userID string) ([]*domain.Loan, error) {
	if m.ListByUserIDFn != nil {
		return m.ListByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *Repo) ListOpen(ctx context.Context) ([]*domain.Loan, error) {
	if m.ListOpenFn != nil {
		return m.ListOpenFn(ctx)
	}
	return nil, nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) CompareAndSwapStatus(ctx context.Context, loanID string, from, to domain.Status) (*domain.Loan, error) {
	if m.CompareAndSwapStatusFn != nil {
		return m.CompareAndSwapStatusFn(ctx, loanID, from, to)
	}
	return nil, domain.ErrNotFound
}
