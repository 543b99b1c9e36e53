// Package memory holds the authoritative in-memory repositories. Entities are
// deep-copied on the way in and out so callers never alias stored state, and
// status transitions go through compare-and-swap under the store lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"collateral-loan-service/internal/domain/loan"
)

type LoanRepository struct {
	mu   sync.RWMutex
	byID map[string]*loan.Loan
	seq  uint64
}

func NewLoanRepository() *LoanRepository {
	return &LoanRepository{byID: make(map[string]*loan.Loan)}
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[l.LoanID]; ok {
		return loan.ErrAlreadyExists
	}
	r.seq++
	l.ID = r.seq
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	r.byID[l.LoanID] = l.Clone()
	return nil
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loan.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byID[loanID]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *LoanRepository) ListByUserID(ctx context.Context, userID string) ([]*loan.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*loan.Loan
	for _, l := range r.byID {
		if l.UserID == userID {
			out = append(out, l.Clone())
		}
	}
	sortLoans(out)
	return out, nil
}

func (r *LoanRepository) ListOpen(ctx context.Context) ([]*loan.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*loan.Loan
	for _, l := range r.byID {
		if !l.Status.Terminal() {
			out = append(out, l.Clone())
		}
	}
	sortLoans(out)
	return out, nil
}

func (r *LoanRepository) Save(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[l.LoanID]; !ok {
		return loan.ErrNotFound
	}
	l.UpdatedAt = time.Now().UTC()
	r.byID[l.LoanID] = l.Clone()
	return nil
}

func (r *LoanRepository) CompareAndSwapStatus(ctx context.Context, loanID string, from, to loan.Status) (*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[loanID]
	if !ok {
		return nil, loan.ErrNotFound
	}
	if l.Status != from {
		return nil, loan.ErrStatusConflict
	}
	if !loan.CanTransition(from, to) {
		return nil, loan.ErrInvalidTransition
	}
	l.Status = to
	l.StatusUpdatedAt = time.Now().UTC()
	l.UpdatedAt = l.StatusUpdatedAt
	return l.Clone(), nil
}

func sortLoans(ls []*loan.Loan) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
}
