package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"collateral-loan-service/internal/domain/collateral"
)

type PositionRepository struct {
	mu       sync.RWMutex
	byPosID  map[string]*collateral.Position
	byLoanID map[string]string
	seq      uint64
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		byPosID:  make(map[string]*collateral.Position),
		byLoanID: make(map[string]string),
	}
}

func (r *PositionRepository) Create(ctx context.Context, p *collateral.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	p.ID = r.seq
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.byPosID[p.PositionID] = p.Clone()
	r.byLoanID[p.LoanID] = p.PositionID
	return nil
}

func (r *PositionRepository) GetByPositionID(ctx context.Context, positionID string) (*collateral.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPosID[positionID]
	if !ok {
		return nil, collateral.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PositionRepository) GetByLoanID(ctx context.Context, loanID string) (*collateral.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	posID, ok := r.byLoanID[loanID]
	if !ok {
		return nil, collateral.ErrNotFound
	}
	return r.byPosID[posID].Clone(), nil
}

func (r *PositionRepository) ListMonitored(ctx context.Context) ([]*collateral.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*collateral.Position
	for _, p := range r.byPosID {
		if p.Monitoring.Enabled && p.Status != collateral.StatusLiquidated {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PositionRepository) Save(ctx context.Context, p *collateral.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPosID[p.PositionID]; !ok {
		return collateral.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	r.byPosID[p.PositionID] = p.Clone()
	return nil
}
