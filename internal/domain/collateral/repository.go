package collateral

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("collateral position not found")
	// ErrStatusConflict: compare-and-swap observed a different status.
	ErrStatusConflict = errors.New("position status changed concurrently")
)

type Repository interface {
	Create(ctx context.Context, p *Position) error
	GetByPositionID(ctx context.Context, positionID string) (*Position, error)
	GetByLoanID(ctx context.Context, loanID string) (*Position, error)
	ListMonitored(ctx context.Context) ([]*Position, error)
	Save(ctx context.Context, p *Position) error
}
