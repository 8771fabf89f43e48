package memory

import (
	"context"
	"sync"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
)

// RunReporter keeps run summaries in process when no Redis is configured
type RunReporter struct {
	mu   sync.RWMutex
	runs []*model.RunSummary
}

var _ repository.RunReporter = (*RunReporter)(nil)

func NewRunReporter() *RunReporter {
	return &RunReporter{}
}

func (r *RunReporter) Publish(ctx context.Context, summary *model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, summary)
	return nil
}

func (r *RunReporter) Latest(ctx context.Context) (*model.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.runs) == 0 {
		return nil, nil
	}
	return r.runs[len(r.runs)-1], nil
}

// History returns up to limit summaries, newest first
func (r *RunReporter) History(ctx context.Context, limit int64) ([]*model.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.RunSummary
	for i := len(r.runs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}
