// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"ecr-service/internal/model"
)

// openSerialPort is replaced in tests
var openSerialPort = serial.Open

// SerialConnection implements DeviceProtocol for serial and Bluetooth RFCOMM ports
type SerialConnection struct {
	config         *SerialConfig
	connectionType model.ConnectionType
	port           serial.Port
	logger         *zap.Logger
	mutex          sync.RWMutex
	isOpen         bool
	stats          statsRecorder
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) DeviceProtocol {
	return newSerialConnection(config, model.ConnectionTypeSerial, logger)
}

// NewBluetoothConnection creates a connection over a paired RFCOMM serial device
func NewBluetoothConnection(config *SerialConfig, logger *zap.Logger) DeviceProtocol {
	return newSerialConnection(config, model.ConnectionTypeBluetooth, logger)
}

func newSerialConnection(config *SerialConfig, connectionType model.ConnectionType, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config:         config,
		connectionType: connectionType,
		logger: logger.With(
			zap.String("protocol", string(connectionType)),
			zap.String("port", config.Port),
		),
	}
}

// serialMode maps the configuration onto the port mode
func serialMode(config *SerialConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: serial.OneStopBit,
	}

	if config.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	port, err := openSerialPort(sc.config.Port, serialMode(sc.config))
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err)
	}

	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// drop whatever the register sent before we attached
	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Warn("Failed to reset input buffer", zap.Error(err))
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.connected(true)

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.stats.connected(false)

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("serial port: %w", ErrNotOpen)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.stats.failed()
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.stats.failed()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.stats.wrote(n, time.Since(startTime))

	sc.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

type readResult struct {
	data []byte
	err  error
}

// Read reads whatever is available, up to maxBytes. A read that hits the
// port timeout returns an empty slice and no error.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, fmt.Errorf("serial port: %w", ErrNotOpen)
	}

	port := sc.port
	done := make(chan readResult, 1)

	go func() {
		buffer := make([]byte, maxBytes)
		n, err := port.Read(buffer)
		if err != nil && !errors.Is(err, io.EOF) {
			done <- readResult{err: fmt.Errorf("failed to read from serial port: %w", err)}
			return
		}
		done <- readResult{data: buffer[:n]}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			sc.stats.failed()
			return nil, result.err
		}
		sc.stats.read(len(result.data))
		return result.data, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return sc.connectionType
}

// Stats returns a snapshot of the connection statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	return sc.stats.snapshot()
}

// Ping checks that the port is still usable. The register protocol has no
// side-effect free probe at this layer; the driver sends a status request instead.
func (sc *SerialConnection) Ping(ctx context.Context) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("serial port: %w", ErrNotOpen)
	}

	if _, err := sc.port.GetModemStatusBits(); err != nil {
		sc.stats.failed()
		return fmt.Errorf("serial port unavailable: %w", err)
	}
	return nil
}
