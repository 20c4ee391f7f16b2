// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ecr-service/internal/config"
	"ecr-service/internal/discovery"
	"ecr-service/internal/model"
	"ecr-service/internal/protocol"
)

// Target is a serial-to-LAN adapter address to probe
type Target struct {
	Name string
	Host string
	Port int
}

// TargetsFromConfig returns the network adapters of the configured registers
func TargetsFromConfig(devices []config.RegisterConfig) []Target {
	var targets []Target
	for _, dev := range devices {
		if !strings.EqualFold(dev.ConnectionType, string(model.ConnectionTypeTCP)) {
			continue
		}
		tcpConfig := protocol.TCPConfigFrom(dev.ConnectionConfig)
		if tcpConfig.Host == "" {
			continue
		}
		targets = append(targets, Target{Name: dev.ID, Host: tcpConfig.Host, Port: tcpConfig.Port})
	}
	return targets
}

// Scanner checks whether the configured network adapters accept connections.
// The probe connection is closed right away without sending anything.
type Scanner struct {
	logger      *zap.Logger
	targets     []Target
	connTimeout time.Duration
}

// NewScanner creates a new TCP scanner
func NewScanner(logger *zap.Logger, targets []Target, connTimeout time.Duration) *Scanner {
	if connTimeout <= 0 {
		connTimeout = 3 * time.Second
	}

	return &Scanner{
		logger:      logger.With(zap.String("scanner", "tcp")),
		targets:     targets,
		connTimeout: connTimeout,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether there is anything to probe
func (s *Scanner) IsAvailable() bool {
	return len(s.targets) > 0
}

// Scan probes all targets concurrently. Results keep the target order.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	discovered := make([]*discovery.DiscoveredPort, len(s.targets))

	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			discovered[i] = s.probe(ctx, target)
		}(i, target)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return discovered, err
	}

	s.logger.Debug("TCP scan completed", zap.Int("targets", len(discovered)))
	return discovered, nil
}

func (s *Scanner) probe(ctx context.Context, target Target) *discovery.DiscoveredPort {
	address := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	port := &discovery.DiscoveredPort{
		ConnectionType: model.ConnectionTypeTCP,
		Name:           target.Name,
		ConnectionInfo: map[string]interface{}{
			"host": target.Host,
			"port": target.Port,
		},
	}

	dialer := net.Dialer{Timeout: s.connTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		s.logger.Debug("Adapter unreachable", zap.String("address", address), zap.Error(err))
		return port
	}
	conn.Close()

	port.Reachable = true
	return port
}
