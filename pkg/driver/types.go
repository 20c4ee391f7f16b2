// pkg/driver/types.go
package driver

import (
	"time"

	"ecr-service/internal/model"
)

// DeviceInfo contains basic device information
type DeviceInfo struct {
	DeviceID       string               `json:"device_id"`
	Brand          model.DeviceBrand    `json:"brand"`
	Model          string               `json:"model"`
	Capabilities   []model.Capability   `json:"capabilities"`
	ConnectionType model.ConnectionType `json:"connection_type"`
}

// DeviceStatus represents current device status
type DeviceStatus struct {
	Status       model.DeviceStatus `json:"status"`
	IsReady      bool               `json:"is_ready"`
	HasError     bool               `json:"has_error"`
	ErrorMessage string             `json:"error_message,omitempty"`
	PaperStatus  PaperStatus        `json:"paper_status"`
	LastResponse time.Time          `json:"last_response"`
}

// HealthMetrics contains device health information
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}

// EventHandler handles device events
type EventHandler interface {
	OnDeviceConnected(deviceID string)
	OnDeviceDisconnected(deviceID string, reason string)
	OnDeviceError(deviceID string, err error)
	OnStatusChanged(deviceID string, oldStatus, newStatus model.DeviceStatus)
}

// PaperStatus represents paper status
type PaperStatus string

const (
	PaperStatusOK      PaperStatus = "OK"
	PaperStatusOut     PaperStatus = "OUT"
	PaperStatusUnknown PaperStatus = "UNKNOWN"
)
