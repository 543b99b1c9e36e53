package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	ListByUserID(ctx context.Context, userID string) ([]*Loan, error)
	ListOpen(ctx context.Context) ([]*Loan, error)
	Save(ctx context.Context, l *Loan) error

	// CompareAndSwapStatus transitions loanID from → to atomically.
	// Returns ErrStatusConflict when the stored status is not `from`,
	// ErrInvalidTransition when the move is illegal.
	CompareAndSwapStatus(ctx context.Context, loanID string, from, to Status) (*Loan, error)
}
