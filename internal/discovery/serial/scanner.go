// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"ecr-service/internal/discovery"
	"ecr-service/internal/model"
)

// listPorts is swapped in tests
var listPorts = enumerator.GetDetailedPortsList

// Scanner lists the serial ports of the host. RFCOMM nodes are reported as
// Bluetooth connections.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan enumerates serial ports without opening them
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	discovered := make([]*discovery.DiscoveredPort, 0, len(ports))
	for _, port := range ports {
		connectionType := model.ConnectionTypeSerial
		if isBluetooth(port.Name) {
			connectionType = model.ConnectionTypeBluetooth
		}

		discovered = append(discovered, &discovery.DiscoveredPort{
			ConnectionType: connectionType,
			Name:           port.Name,
			ConnectionInfo: map[string]interface{}{"port": port.Name},
			IsUSB:          port.IsUSB,
			VendorID:       port.VID,
			ProductID:      port.PID,
			SerialNumber:   port.SerialNumber,
			Reachable:      true,
		})
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(discovered)))
	return discovered, nil
}

func isBluetooth(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	return strings.HasPrefix(base, "rfcomm") || strings.Contains(base, "bluetooth")
}
