// Package mysql is the gorm-backed persistence adapter. The core only sees
// the domain repository interfaces; swapping the engine means swapping this
// package.
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	loanDomain "collateral-loan-service/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, loanDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) ListByUserID(ctx context.Context, userID string) ([]*loanDomain.Loan, error) {
	var out []*loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) ListOpen(ctx context.Context) ([]*loanDomain.Loan, error) {
	terminal := []loanDomain.Status{
		loanDomain.StatusClosed, loanDomain.StatusDefaulted, loanDomain.StatusCancelled,
	}
	var out []*loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminal).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

// CompareAndSwapStatus performs the transition with a guarded UPDATE so two
// concurrent transitions cannot both win (RowsAffected tells us who lost).
func (r *LoanRepository) CompareAndSwapStatus(ctx context.Context, loanID string, from, to loanDomain.Status) (*loanDomain.Loan, error) {
	if !loanDomain.CanTransition(from, to) {
		return nil, loanDomain.ErrInvalidTransition
	}
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("loan_id = ? AND status = ?", loanID, from).
		Updates(map[string]any{
			"status":            to,
			"status_updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// distinguish missing loan from a lost race
		if _, err := r.GetByLoanID(ctx, loanID); err != nil {
			return nil, err
		}
		return nil, loanDomain.ErrStatusConflict
	}
	return r.GetByLoanID(ctx, loanID)
}
