package assessment

import "context"

type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByAssessmentID(ctx context.Context, assessmentID string) (*Assessment, error)
	ListByUserID(ctx context.Context, userID string) ([]*Assessment, error)
}
