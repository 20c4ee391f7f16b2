// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecr-service/internal/model"
)

// memoryJobRepository keeps the journal in process memory.
// Stored jobs are copies so callers can keep mutating their own.
type memoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]model.PrintJob
}

// NewMemoryJobRepository creates a journal used when no database is configured
func NewMemoryJobRepository() JobRepository {
	return &memoryJobRepository{
		jobs: make(map[uuid.UUID]model.PrintJob),
	}
}

func (r *memoryJobRepository) Create(ctx context.Context, job *model.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create job: duplicate id %s", job.ID)
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepository) Update(ctx context.Context, job *model.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return &job, nil
}

func (r *memoryJobRepository) ListByDevice(ctx context.Context, deviceID string, filter *JobFilter) ([]*model.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []*model.PrintJob
	for _, job := range r.jobs {
		if job.DeviceID != deviceID || !filter.matches(&job) {
			continue
		}
		job := job
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit := filter.limit(); len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *memoryJobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, job := range r.jobs {
		if job.CreatedAt.Before(cutoff) && job.IsCompleted() {
			delete(r.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}
