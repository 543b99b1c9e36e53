package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"collateral-loan-service/internal/domain/assessment"
)

type AssessmentRepository struct{ db *gorm.DB }

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

func (r *AssessmentRepository) Create(ctx context.Context, a *assessment.Assessment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AssessmentRepository) GetByAssessmentID(ctx context.Context, assessmentID string) (*assessment.Assessment, error) {
	var out assessment.Assessment
	res := r.db.WithContext(ctx).Where("assessment_id = ?", assessmentID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, assessment.ErrNotFound
	}
	return &out, res.Error
}

func (r *AssessmentRepository) ListByUserID(ctx context.Context, userID string) ([]*assessment.Assessment, error) {
	var out []*assessment.Assessment
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
