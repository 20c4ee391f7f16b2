// internal/model/job.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents what a print job does on the register
type JobType string

const (
	JobTypeReceipt        JobType = "RECEIPT"
	JobTypeReport         JobType = "REPORT"
	JobTypeCancelReceipt  JobType = "CANCEL_RECEIPT"
	JobTypeDuplicate      JobType = "DUPLICATE"
	JobTypeDeleteArticles JobType = "DELETE_ARTICLES"
	JobTypeCommand        JobType = "COMMAND"
	JobTypeStatus         JobType = "STATUS"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSuccess    JobStatus = "SUCCESS"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusTimeout    JobStatus = "TIMEOUT"
)

// PrintJob is the journal record of one request executed on a register
type PrintJob struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	DeviceID      string     `json:"device_id" db:"device_id"`
	JobType       JobType    `json:"job_type" db:"job_type"`
	Request       JSONObject `json:"request" db:"request"`
	Status        JobStatus  `json:"status" db:"status"`
	PacketsSent   int        `json:"packets_sent" db:"packets_sent"`
	Result        JSONObject `json:"result,omitempty" db:"result"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	CorrelationID *string    `json:"correlation_id,omitempty" db:"correlation_id"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs    *int       `json:"duration_ms,omitempty" db:"duration_ms"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// NewPrintJob creates a pending job for a device
func NewPrintJob(deviceID string, jobType JobType, request JSONObject) *PrintJob {
	now := time.Now()
	return &PrintJob{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		JobType:   jobType,
		Request:   request,
		Status:    JobStatusPending,
		StartedAt: now,
		CreatedAt: now,
	}
}

// IsCompleted checks if the job reached a final state
func (j *PrintJob) IsCompleted() bool {
	return j.Status == JobStatusSuccess ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusTimeout
}

// Complete moves the job to its final state
func (j *PrintJob) Complete(status JobStatus, result JSONObject, err error) {
	now := time.Now()
	duration := int(now.Sub(j.StartedAt).Milliseconds())

	j.Status = status
	j.Result = result
	j.CompletedAt = &now
	j.DurationMs = &duration

	if err != nil {
		msg := err.Error()
		j.ErrorMessage = &msg
	}
}
