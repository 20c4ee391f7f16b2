// internal/repository/job_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecr-service/internal/database"
	"ecr-service/internal/model"
)

// jobRepository stores the journal in Postgres
type jobRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewJobRepository creates a Postgres backed journal
func NewJobRepository(db *database.DB, logger *zap.Logger) JobRepository {
	return &jobRepository{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, device_id, job_type, request, status, packets_sent, result,
	error_message, correlation_id, started_at, completed_at, duration_ms, created_at`

// Create inserts a new job
func (r *jobRepository) Create(ctx context.Context, job *model.PrintJob) error {
	request := job.Request
	if request == nil {
		request = model.JSONObject{}
	}

	query := `
		INSERT INTO print_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.DeviceID, job.JobType, request, job.Status, job.PacketsSent,
		job.Result, job.ErrorMessage, job.CorrelationID, job.StartedAt,
		job.CompletedAt, job.DurationMs, job.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create job", zap.String("job_id", job.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Update stores the progress and outcome of a job
func (r *jobRepository) Update(ctx context.Context, job *model.PrintJob) error {
	query := `
		UPDATE print_jobs SET
			status = $2, packets_sent = $3, result = $4, error_message = $5,
			completed_at = $6, duration_ms = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.PacketsSent, job.Result, job.ErrorMessage,
		job.CompletedAt, job.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	return nil
}

// GetByID retrieves a job
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	query := `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListByDevice lists the jobs of a device, newest first
func (r *jobRepository) ListByDevice(ctx context.Context, deviceID string, filter *JobFilter) ([]*model.PrintJob, error) {
	conditions := []string{"device_id = $1"}
	args := []interface{}{deviceID}

	if filter != nil && filter.JobType != nil {
		args = append(args, *filter.JobType)
		conditions = append(conditions, fmt.Sprintf("job_type = $%d", len(args)))
	}
	if filter != nil && filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.limit())

	query := fmt.Sprintf(`SELECT %s FROM print_jobs WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		jobColumns, strings.Join(conditions, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// DeleteOlderThan removes completed jobs created before the cutoff
func (r *jobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM print_jobs WHERE created_at < $1 AND status NOT IN ($2, $3)`

	result, err := r.db.ExecContext(ctx, query, cutoff, model.JobStatusPending, model.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.PrintJob, error) {
	job := &model.PrintJob{}
	err := row.Scan(
		&job.ID, &job.DeviceID, &job.JobType, &job.Request, &job.Status,
		&job.PacketsSent, &job.Result, &job.ErrorMessage, &job.CorrelationID,
		&job.StartedAt, &job.CompletedAt, &job.DurationMs, &job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
