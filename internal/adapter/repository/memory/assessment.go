package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"collateral-loan-service/internal/domain/assessment"
)

type AssessmentRepository struct {
	mu   sync.RWMutex
	byID map[string]*assessment.Assessment
	seq  uint64
}

func NewAssessmentRepository() *AssessmentRepository {
	return &AssessmentRepository{byID: make(map[string]*assessment.Assessment)}
}

func (r *AssessmentRepository) Create(ctx context.Context, a *assessment.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.AssessmentID]; ok {
		return assessment.ErrAlreadyDecided
	}
	r.seq++
	a.ID = r.seq
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.byID[a.AssessmentID] = a.Clone()
	return nil
}

func (r *AssessmentRepository) GetByAssessmentID(ctx context.Context, assessmentID string) (*assessment.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[assessmentID]
	if !ok {
		return nil, assessment.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *AssessmentRepository) ListByUserID(ctx context.Context, userID string) ([]*assessment.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*assessment.Assessment
	for _, a := range r.byID {
		if a.UserID == userID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
