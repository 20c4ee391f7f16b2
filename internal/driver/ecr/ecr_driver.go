// internal/driver/ecr/ecr_driver.go
package ecr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ecr-service/internal/model"
	"ecr-service/internal/protocol"
	"ecr-service/internal/utils"
	"ecr-service/pkg/driver"
)

const (
	// DefaultResponseTimeout bounds the wait for one response frame
	DefaultResponseTimeout = 5 * time.Second

	readChunkSize = 256
)

// FiscalDriver is implemented by drivers that print fiscal receipts and reports
type FiscalDriver interface {
	driver.DeviceDriver

	PrintReceipt(ctx context.Context, params SaleParameters) (*Result, error)
	PrintReport(ctx context.Context, reportType ReportType) (*Result, error)
	CancelReceipt(ctx context.Context) (*Result, error)
	PrintDuplicate(ctx context.Context) (*Result, error)
	DeleteArticles(ctx context.Context) (*Result, error)
	SendCommand(ctx context.Context, command int, data string) (*Result, error)
	GetPaperStatus(ctx context.Context) (driver.PaperStatus, error)
}

// DriverSettings carries the service-wide register settings into each driver
type DriverSettings struct {
	Options          Options
	LegacyPaperCheck bool
	ResponseTimeout  time.Duration
}

// Factory returns a constructor usable as a registry driver factory
func (s DriverSettings) Factory() func(*model.Device, interface{}, *zap.Logger) (driver.DeviceDriver, error) {
	return func(device *model.Device, connectionConfig interface{}, logger *zap.Logger) (driver.DeviceDriver, error) {
		d, err := NewECRDriver(device, connectionConfig, s, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Exchange is one packet sent to the register and its answer
type Exchange struct {
	ID       int    `json:"id"`
	Command  int    `json:"command"`
	Request  string `json:"request"`
	Response string `json:"response,omitempty"`
	Status   string `json:"status,omitempty"`
	Duration string `json:"duration"`

	status []byte
}

// Result is the outcome of a packet sequence. On failure it holds the
// exchanges completed before the failing packet, the failing one included.
type Result struct {
	Exchanges    []Exchange `json:"exchanges"`
	PaperPresent bool       `json:"paper_present"`
}

// PacketsSent returns how many packets reached the transport
func (r *Result) PacketsSent() int {
	if r == nil {
		return 0
	}
	return len(r.Exchanges)
}

// ECRDriver drives one electronic cash register over a DeviceProtocol
type ECRDriver struct {
	device           *model.Device
	connectionConfig map[string]interface{}
	settings         DriverSettings
	protocol         protocol.DeviceProtocol
	encoder          *Encoder
	decoder          *Decoder
	logger           *utils.DeviceLogger
	eventHandler     driver.EventHandler
	isConnected      bool
	lastPing         time.Time
	paperStatus      driver.PaperStatus
	lastError        error
	healthMetrics    *driver.HealthMetrics
	mutex            sync.Mutex
}

// NewECRDriver creates a driver for the device. The transport is opened
// lazily on the first job or an explicit Connect.
func NewECRDriver(device *model.Device, connectionConfig interface{}, settings DriverSettings, logger *zap.Logger) (*ECRDriver, error) {
	connConfig, err := parseConnectionConfig(connectionConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}
	if err := protocol.ValidateConfig(device.ConnectionType, connConfig); err != nil {
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}

	return newECRDriver(device, connConfig, settings, logger), nil
}

// NewECRDriverWithProtocol creates a driver on an existing transport
func NewECRDriverWithProtocol(device *model.Device, p protocol.DeviceProtocol, settings DriverSettings, logger *zap.Logger) *ECRDriver {
	d := newECRDriver(device, nil, settings, logger)
	d.protocol = p
	return d
}

func newECRDriver(device *model.Device, connConfig map[string]interface{}, settings DriverSettings, logger *zap.Logger) *ECRDriver {
	if settings.ResponseTimeout <= 0 {
		settings.ResponseTimeout = DefaultResponseTimeout
	}

	return &ECRDriver{
		device:           device,
		connectionConfig: connConfig,
		settings:         settings,
		encoder:          NewEncoder(settings.Options),
		decoder:          NewDecoder(settings.LegacyPaperCheck),
		logger:           utils.NewDeviceLogger(logger, device.DeviceID, string(device.DeviceType), string(device.Brand)),
		paperStatus:      driver.PaperStatusUnknown,
		healthMetrics:    &driver.HealthMetrics{},
	}
}

// Connect opens the transport to the register
func (d *ECRDriver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connectLocked(ctx)
}

func (d *ECRDriver) connectLocked(ctx context.Context) error {
	if d.isConnected && d.protocol != nil && d.protocol.IsOpen() {
		return nil
	}

	startTime := time.Now()

	if d.protocol == nil {
		p, err := protocol.CreateProtocol(d.device.ConnectionType, d.connectionConfig, d.logger.Logger)
		if err != nil {
			d.updateHealthMetrics(false, time.Since(startTime))
			return fmt.Errorf("failed to create %s protocol: %w", d.device.ConnectionType, err)
		}
		d.protocol = p
	}

	if err := d.protocol.Open(ctx); err != nil {
		d.updateHealthMetrics(false, time.Since(startTime))
		d.logger.LogConnection("connect", false, err)
		return fmt.Errorf("failed to open %s connection: %w", d.device.ConnectionType, err)
	}

	d.isConnected = true
	d.lastPing = time.Now()
	d.logger.LogConnection("connect", true, nil)

	if d.eventHandler != nil {
		d.eventHandler.OnDeviceConnected(d.device.DeviceID)
	}
	return nil
}

// Disconnect closes the transport
func (d *ECRDriver) Disconnect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.disconnectLocked("manual disconnect")
}

func (d *ECRDriver) disconnectLocked(reason string) error {
	if !d.isConnected {
		return nil
	}

	var err error
	if d.protocol != nil {
		if err = d.protocol.Close(); err != nil {
			d.logger.Error("Failed to close protocol", zap.Error(err))
		}
	}

	d.isConnected = false
	d.logger.LogConnection("disconnect", err == nil, err)

	if d.eventHandler != nil {
		d.eventHandler.OnDeviceDisconnected(d.device.DeviceID, reason)
	}
	return err
}

// IsConnected returns connection status
func (d *ECRDriver) IsConnected() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.isConnected && d.protocol != nil && d.protocol.IsOpen()
}

// GetDeviceInfo returns device information
func (d *ECRDriver) GetDeviceInfo() (*driver.DeviceInfo, error) {
	return &driver.DeviceInfo{
		DeviceID:       d.device.DeviceID,
		Brand:          d.device.Brand,
		Model:          d.device.Model,
		Capabilities:   d.GetCapabilities(),
		ConnectionType: d.device.ConnectionType,
	}, nil
}

// GetCapabilities returns device capabilities
func (d *ECRDriver) GetCapabilities() []model.Capability {
	return []model.Capability{
		model.CapabilityReceipt,
		model.CapabilityReport,
		model.CapabilityDuplicate,
		model.CapabilityArticles,
		model.CapabilityStatus,
		model.CapabilityCommand,
	}
}

// GetStatus returns the last known device status without talking to the register
func (d *ECRDriver) GetStatus() (*driver.DeviceStatus, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	status := &driver.DeviceStatus{
		Status:       model.DeviceStatusOffline,
		PaperStatus:  d.paperStatus,
		LastResponse: d.lastPing,
	}

	if d.isConnected {
		status.Status = model.DeviceStatusOnline
		status.IsReady = d.paperStatus != driver.PaperStatusOut
	}
	if d.lastError != nil {
		status.HasError = true
		status.ErrorMessage = d.lastError.Error()
		if d.isConnected {
			status.Status = model.DeviceStatusError
		}
	}

	return status, nil
}

// Ping sends a status request and waits for the answer
func (d *ECRDriver) Ping(ctx context.Context) error {
	if _, err := d.GetPaperStatus(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// GetHealthMetrics returns health metrics
func (d *ECRDriver) GetHealthMetrics() (*driver.HealthMetrics, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	metrics := *d.healthMetrics
	return &metrics, nil
}

// SetEventHandler sets event handler
func (d *ECRDriver) SetEventHandler(handler driver.EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.eventHandler = handler
}

// Close cleans up resources
func (d *ECRDriver) Close() error {
	return d.Disconnect(context.Background())
}

// PrintReceipt prints a complete fiscal receipt
func (d *ECRDriver) PrintReceipt(ctx context.Context, params SaleParameters) (*Result, error) {
	return d.execute(ctx, func(e *Encoder) ([]ReturnValue, error) {
		return e.PrintReceipt(params)
	})
}

// PrintReport prints an X or Z report
func (d *ECRDriver) PrintReport(ctx context.Context, reportType ReportType) (*Result, error) {
	return d.execute(ctx, single(func(e *Encoder) (Packet, error) {
		return e.Report(reportType)
	}))
}

// CancelReceipt voids the receipt currently open on the register
func (d *ECRDriver) CancelReceipt(ctx context.Context) (*Result, error) {
	return d.execute(ctx, single((*Encoder).CancelReceipt))
}

// PrintDuplicate prints a copy of the last receipt
func (d *ECRDriver) PrintDuplicate(ctx context.Context) (*Result, error) {
	return d.execute(ctx, single((*Encoder).PrintDuplicate))
}

// DeleteArticles clears the article table of the register
func (d *ECRDriver) DeleteArticles(ctx context.Context) (*Result, error) {
	return d.execute(ctx, single((*Encoder).DeleteArticles))
}

// SendCommand sends an ad-hoc command
func (d *ECRDriver) SendCommand(ctx context.Context, command int, data string) (*Result, error) {
	return d.execute(ctx, single(func(e *Encoder) (Packet, error) {
		return e.Command(command, data)
	}))
}

// GetPaperStatus asks the register for its status bytes
func (d *ECRDriver) GetPaperStatus(ctx context.Context) (driver.PaperStatus, error) {
	result, err := d.execute(ctx, single((*Encoder).Status))
	if err != nil {
		return driver.PaperStatusUnknown, err
	}
	if result.PaperPresent {
		return driver.PaperStatusOK, nil
	}
	return driver.PaperStatusOut, nil
}

// single adapts a one-packet encoder call to a sequence
func single(build func(*Encoder) (Packet, error)) func(*Encoder) ([]ReturnValue, error) {
	return func(e *Encoder) ([]ReturnValue, error) {
		packet, err := build(e)
		if err != nil {
			return nil, err
		}
		return []ReturnValue{{ID: 1, Packet: packet}}, nil
	}
}

// execute encodes and sends a packet sequence while holding the driver lock.
// The first failing packet aborts the rest; nothing is retried.
func (d *ECRDriver) execute(ctx context.Context, encode func(*Encoder) ([]ReturnValue, error)) (*Result, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	result := &Result{PaperPresent: true}

	values, err := encode(d.encoder)
	if err != nil {
		return result, err
	}

	if err := d.connectLocked(ctx); err != nil {
		d.lastError = err
		return result, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	startTime := time.Now()
	for _, value := range values {
		exchange, err := d.exchange(ctx, value)
		result.Exchanges = append(result.Exchanges, exchange)

		if err != nil {
			d.updateHealthMetrics(false, time.Since(startTime))
			d.lastError = err
			d.notifyError(err)

			if !isRegisterError(err) {
				// the transport is in an unknown state; reopen on the next job
				_ = d.disconnectLocked(err.Error())
			}
			return result, fmt.Errorf("packet %d (command %d): %w", value.ID, exchange.Command, err)
		}

		if !d.decoder.HasPaper(exchange.status) {
			result.PaperPresent = false
		}
	}

	d.updateHealthMetrics(true, time.Since(startTime))
	d.lastPing = time.Now()
	d.lastError = nil
	d.setPaperStatus(result.PaperPresent)

	return result, nil
}

// exchange writes one packet and waits for its response frame
func (d *ECRDriver) exchange(ctx context.Context, value ReturnValue) (exchange Exchange, err error) {
	exchange = Exchange{
		ID:      value.ID,
		Command: int(value.Packet.Command()),
		Request: value.Packet.Hex(),
	}

	startTime := time.Now()
	defer func() {
		exchange.Duration = time.Since(startTime).String()
	}()

	if err := d.protocol.Write(ctx, value.Packet); err != nil {
		return exchange, err
	}

	raw, err := d.readFrame(ctx)
	d.logger.LogPacket(exchange.Command, value.Packet, raw, time.Since(startTime))
	if err != nil {
		return exchange, err
	}

	response, err := ParseResponse(raw)
	if err != nil {
		return exchange, err
	}

	exchange.Response = d.decoder.DecodeResponse(response.Data, response.Status)
	exchange.Status = d.decoder.DecodeResultStatus(response.Status)
	exchange.status = response.Status

	return exchange, nil
}

// readFrame collects bytes until a complete response frame or a NAK arrives.
// SYN bytes mean the register is still busy and only extend the wait.
func (d *ECRDriver) readFrame(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.settings.ResponseTimeout)
	defer cancel()

	var buffer []byte
	for {
		chunk, err := d.protocol.Read(ctx, readChunkSize)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return buffer, fmt.Errorf("%w after %s", ErrResponseTimeout, d.settings.ResponseTimeout)
			}
			return buffer, err
		}
		buffer = append(buffer, chunk...)

		pending := bytes.TrimLeft(buffer, string([]byte{SYN}))
		if len(pending) > 0 && pending[0] == NAK {
			return pending[:1], nil
		}
		if frameComplete(pending) {
			return pending, nil
		}

		if ctx.Err() != nil {
			return buffer, fmt.Errorf("%w after %s", ErrResponseTimeout, d.settings.ResponseTimeout)
		}
	}
}

// frameComplete reports whether data holds STX ... 0x05 CS CS CS CS ETX
func frameComplete(data []byte) bool {
	start := bytes.IndexByte(data, STX)
	if start < 0 {
		return false
	}
	for i := start + FrameOverhead - 1; i < len(data); i++ {
		if data[i] == ETX && data[i-5] == Terminator {
			return true
		}
	}
	return false
}

// isRegisterError reports errors that come from a well-formed conversation
// with the register, as opposed to transport failures
func isRegisterError(err error) bool {
	return errors.Is(err, ErrNegativeAck) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrChecksumMismatch)
}

func (d *ECRDriver) setPaperStatus(present bool) {
	previous := d.paperStatus
	d.paperStatus = driver.PaperStatusOK
	if !present {
		d.paperStatus = driver.PaperStatusOut
	}

	if d.paperStatus == driver.PaperStatusOut && previous != driver.PaperStatusOut {
		d.logger.Warn("Register reports no paper")
		d.notifyError(ErrPaperOut)
	}
}

func (d *ECRDriver) notifyError(err error) {
	if d.eventHandler != nil {
		d.eventHandler.OnDeviceError(d.device.DeviceID, err)
	}
}

// updateHealthMetrics updates device health metrics
func (d *ECRDriver) updateHealthMetrics(success bool, responseTime time.Duration) {
	now := time.Now()
	d.healthMetrics.TotalOperations++
	d.healthMetrics.ResponseTime = responseTime

	if success {
		d.healthMetrics.LastSuccessTime = &now
	} else {
		d.healthMetrics.ErrorCount++
		d.healthMetrics.LastErrorTime = &now
	}

	d.healthMetrics.SuccessRate = float64(d.healthMetrics.TotalOperations-d.healthMetrics.ErrorCount) / float64(d.healthMetrics.TotalOperations)
	d.healthMetrics.HealthScore = int(d.healthMetrics.SuccessRate * 100)
	if responseTime > 5*time.Second {
		d.healthMetrics.HealthScore -= 10
	}
	if d.healthMetrics.HealthScore < 0 {
		d.healthMetrics.HealthScore = 0
	}

	if !success {
		d.logger.LogHealth(d.healthMetrics.HealthScore, responseTime, 1-d.healthMetrics.SuccessRate)
	}
}

// parseConnectionConfig accepts a map, a JSONObject or raw JSON
func parseConnectionConfig(config interface{}) (map[string]interface{}, error) {
	switch v := config.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case model.JSONObject:
		return map[string]interface{}(v), nil
	case []byte:
		var m map[string]interface{}
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, err
		}
		return m, nil
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported connection config type %T", config)
	}
}
