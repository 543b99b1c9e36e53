package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"collateral-loan-service/internal/domain/collateral"
)

type PositionRepository struct{ db *gorm.DB }

func NewPositionRepository(db *gorm.DB) *PositionRepository { return &PositionRepository{db: db} }

func (r *PositionRepository) Create(ctx context.Context, p *collateral.Position) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PositionRepository) Save(ctx context.Context, p *collateral.Position) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *PositionRepository) GetByPositionID(ctx context.Context, positionID string) (*collateral.Position, error) {
	var out collateral.Position
	res := r.db.WithContext(ctx).Where("position_id = ?", positionID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, collateral.ErrNotFound
	}
	return &out, res.Error
}

func (r *PositionRepository) GetByLoanID(ctx context.Context, loanID string) (*collateral.Position, error) {
	var out collateral.Position
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, collateral.ErrNotFound
	}
	return &out, res.Error
}

func (r *PositionRepository) ListMonitored(ctx context.Context) ([]*collateral.Position, error) {
	var all []*collateral.Position
	res := r.db.WithContext(ctx).
		Where("status <> ?", collateral.StatusLiquidated).
		Order("id ASC").
		Find(&all)
	if res.Error != nil {
		return nil, res.Error
	}
	// Monitoring lives in a JSON column; filter here rather than in SQL.
	out := all[:0]
	for _, p := range all {
		if p.Monitoring.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}
