// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ecr-service/internal/model"
)

// ErrJobNotFound is returned when no journal entry matches the id
var ErrJobNotFound = errors.New("job not found")

// JobRepository is the print job journal
type JobRepository interface {
	Create(ctx context.Context, job *model.PrintJob) error
	Update(ctx context.Context, job *model.PrintJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error)

	// ListByDevice returns the newest jobs of a device first
	ListByDevice(ctx context.Context, deviceID string, filter *JobFilter) ([]*model.PrintJob, error)

	// DeleteOlderThan removes completed jobs created before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobFilter narrows a device job listing
type JobFilter struct {
	JobType *model.JobType   `json:"job_type,omitempty"`
	Status  *model.JobStatus `json:"status,omitempty"`
	Limit   int              `json:"limit"`
}

// DefaultJobLimit caps listings without an explicit limit
const DefaultJobLimit = 50

func (f *JobFilter) limit() int {
	if f == nil || f.Limit <= 0 {
		return DefaultJobLimit
	}
	return f.Limit
}

func (f *JobFilter) matches(job *model.PrintJob) bool {
	if f == nil {
		return true
	}
	if f.JobType != nil && job.JobType != *f.JobType {
		return false
	}
	if f.Status != nil && job.Status != *f.Status {
		return false
	}
	return true
}
