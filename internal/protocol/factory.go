// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ecr-service/internal/model"
)

// Connection defaults
const (
	DefaultBaudRate   = 9600
	DefaultTCPPort    = 4001
	DefaultTimeout    = 5 * time.Second
	defaultTCPTimeout = 10 * time.Second
)

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// CreateProtocol creates a protocol based on connection type and configuration
func CreateProtocol(connectionType model.ConnectionType, config map[string]interface{}, logger *zap.Logger) (DeviceProtocol, error) {
	if err := ValidateConfig(connectionType, config); err != nil {
		return nil, err
	}

	switch connectionType {
	case model.ConnectionTypeSerial:
		serialConfig := parseSerialConfig(config)
		logger.Info("Creating serial protocol",
			zap.String("port", serialConfig.Port),
			zap.Int("baud_rate", serialConfig.BaudRate),
		)
		return NewSerialConnection(serialConfig, logger), nil

	case model.ConnectionTypeBluetooth:
		serialConfig := parseSerialConfig(config)
		logger.Info("Creating Bluetooth protocol",
			zap.String("port", serialConfig.Port),
			zap.Int("baud_rate", serialConfig.BaudRate),
		)
		return NewBluetoothConnection(serialConfig, logger), nil

	case model.ConnectionTypeTCP:
		tcpConfig := parseTCPConfig(config)
		logger.Info("Creating TCP protocol",
			zap.String("host", tcpConfig.Host),
			zap.Int("port", tcpConfig.Port),
			zap.Bool("ssl", tcpConfig.SSL),
		)
		return NewTCPConnection(tcpConfig, logger), nil

	default:
		return nil, fmt.Errorf("unsupported protocol type: %s", connectionType)
	}
}

// intValue reads an integer that may arrive as a JSON number, a YAML int or a string
func intValue(config map[string]interface{}, key string, def int) (int, bool) {
	raw, ok := config[key]
	if !ok {
		return def, true
	}

	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, false
		}
		return n, true
	default:
		return def, false
	}
}

func durationValue(config map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	}
	return def
}

func boolValue(config map[string]interface{}, key string, def bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return def
}

// parseSerialConfig applies 9600 8N1 defaults. Both "port" and "device"
// name the device node; Bluetooth configs usually use the latter.
func parseSerialConfig(config map[string]interface{}) *SerialConfig {
	serialConfig := &SerialConfig{
		Parity:  "none",
		Timeout: durationValue(config, "timeout", DefaultTimeout),
	}

	if port, ok := config["port"].(string); ok {
		serialConfig.Port = port
	} else if device, ok := config["device"].(string); ok {
		serialConfig.Port = device
	}

	serialConfig.BaudRate, _ = intValue(config, "baud_rate", DefaultBaudRate)
	serialConfig.DataBits, _ = intValue(config, "data_bits", 8)
	serialConfig.StopBits, _ = intValue(config, "stop_bits", 1)

	if parity, ok := config["parity"].(string); ok {
		serialConfig.Parity = parity
	}

	return serialConfig
}

func parseTCPConfig(config map[string]interface{}) *TCPConfig {
	tcpConfig := &TCPConfig{
		KeepAlive:    boolValue(config, "keep_alive", true),
		SSL:          boolValue(config, "ssl", false),
		Timeout:      durationValue(config, "timeout", defaultTCPTimeout),
		ReadTimeout:  durationValue(config, "read_timeout", DefaultTimeout),
		WriteTimeout: durationValue(config, "write_timeout", DefaultTimeout),
	}

	tcpConfig.Host, _ = config["host"].(string)
	tcpConfig.Port, _ = intValue(config, "port", DefaultTCPPort)

	return tcpConfig
}

// ValidateConfig validates configuration for a specific protocol type
func ValidateConfig(connectionType model.ConnectionType, config map[string]interface{}) error {
	switch connectionType {
	case model.ConnectionTypeSerial:
		return validateSerialConfig(config, "port")
	case model.ConnectionTypeBluetooth:
		return validateSerialConfig(config, "device")
	case model.ConnectionTypeTCP:
		return validateTCPConfig(config)
	default:
		return fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(config map[string]interface{}, portKey string) error {
	port, _ := config["port"].(string)
	device, _ := config["device"].(string)
	if port == "" && device == "" {
		return fmt.Errorf("serial %s is required", portKey)
	}

	rate, ok := intValue(config, "baud_rate", DefaultBaudRate)
	if !ok {
		return fmt.Errorf("invalid baud_rate type")
	}

	for _, validRate := range validBaudRates {
		if rate == validRate {
			return nil
		}
	}
	return fmt.Errorf("invalid baud rate: %d", rate)
}

// validateTCPConfig validates TCP configuration
func validateTCPConfig(config map[string]interface{}) error {
	if host, _ := config["host"].(string); host == "" {
		return fmt.Errorf("TCP host is required")
	}

	port, ok := intValue(config, "port", DefaultTCPPort)
	if !ok {
		return fmt.Errorf("invalid port type")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}

	return nil
}

// TCPConfigFrom reads a TCP connection config with the defaults applied
func TCPConfigFrom(config map[string]interface{}) *TCPConfig {
	return parseTCPConfig(config)
}
