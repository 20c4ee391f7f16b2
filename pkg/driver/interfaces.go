// pkg/driver/interfaces.go
package driver

import (
	"context"

	"ecr-service/internal/model"
)

// DeviceDriver is the main interface that all hardware drivers must implement
type DeviceDriver interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Device information
	GetDeviceInfo() (*DeviceInfo, error)
	GetCapabilities() []model.Capability
	GetStatus() (*DeviceStatus, error)

	// Health and monitoring
	Ping(ctx context.Context) error
	GetHealthMetrics() (*HealthMetrics, error)

	// Event handling
	SetEventHandler(handler EventHandler)

	// Cleanup
	Close() error
}
