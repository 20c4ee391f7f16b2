// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventStatusChange       EventType = "STATUS_CHANGE"
	EventPaperOut           EventType = "PAPER_OUT"
	EventJobStarted         EventType = "JOB_STARTED"
	EventJobCompleted       EventType = "JOB_COMPLETED"
	EventJobFailed          EventType = "JOB_FAILED"
)

// Event severities
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	DeviceID  string     `json:"device_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"`
}

// NewDeviceEvent creates an event stamped with a fresh ID and the current time
func NewDeviceEvent(eventType EventType, deviceID, source, severity string, data JSONObject) *DeviceEvent {
	return &DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}

// JobEventData is attached to job events
type JobEventData struct {
	JobID        uuid.UUID `json:"job_id"`
	JobType      JobType   `json:"job_type"`
	Status       JobStatus `json:"status"`
	PacketsSent  int       `json:"packets_sent"`
	Duration     *int      `json:"duration_ms,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// ToJSONObject flattens the event data for DeviceEvent.Data
func (d JobEventData) ToJSONObject() JSONObject {
	obj := JSONObject{
		"job_id":       d.JobID.String(),
		"job_type":     string(d.JobType),
		"status":       string(d.Status),
		"packets_sent": d.PacketsSent,
	}
	if d.Duration != nil {
		obj["duration_ms"] = *d.Duration
	}
	if d.ErrorMessage != nil {
		obj["error_message"] = *d.ErrorMessage
	}
	return obj
}
