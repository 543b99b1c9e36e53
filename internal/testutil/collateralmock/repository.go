package collateralmock

import (
	"context"

	domain "collateral-loan-service/internal/domain/collateral"
)

// Repo is a function-backed mock that satisfies collateral.Repository.
type Repo struct {
	CreateFn          func(ctx context.Context, p *domain.Position) error
	GetByPositionIDFn func(ctx context.Context, positionID string) (*domain.Position, error)
	GetByLoanIDFn     func(ctx context.Context, loanID string) (*domain.Position, error)
	ListMonitoredFn   func(ctx context.Context) ([]*domain.Position, error)
	SaveFn            func(ctx context.Context, p *domain.Position) error
}

func (m *Repo) Create(ctx context.Context, p *domain.Position) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}

func (m *Repo) GetByPositionID(ctx context.Context, positionID string) (*domain.Position, error) {
	if m.GetByPositionIDFn != nil {
		return m.GetByPositionIDFn(ctx, positionID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Position, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) ListMonitored(ctx context.Context) ([]*domain.Position, error) {
	if m.ListMonitoredFn != nil {
		return m.ListMonitoredFn(ctx)
	}
	return nil, nil
}

func (m *Repo) Save(ctx context.Context, p *domain.Position) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, p)
	}
	return nil
}
