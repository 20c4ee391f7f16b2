// internal/service/ecr_service.go
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecr-service/internal/config"
	"ecr-service/internal/driver"
	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
	"ecr-service/internal/repository"
	"ecr-service/internal/utils"
	pkgdriver "ecr-service/pkg/driver"
)

var (
	// ErrDeviceNotFound is returned for device ids missing from the configuration
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidHex is returned when a decode request carries malformed hex
	ErrInvalidHex = errors.New("invalid hex string")
)

// EventPublisher receives device and job events
type EventPublisher interface {
	Publish(event *model.DeviceEvent)
}

// ECRService executes print jobs on the configured registers
type ECRService struct {
	config      *config.Config
	registry    *driver.Registry
	jobs        repository.JobRepository
	events      EventPublisher
	options     ecr.Options
	decoder     *ecr.Decoder
	devices     map[string]*model.Device
	drivers     map[string]ecr.FiscalDriver
	mu          sync.Mutex
	baseLogger  *zap.Logger
	logger      *utils.ServiceLogger
	auditLogger *utils.AuditLogger
}

// NewDriverSettings maps the service configuration onto driver settings
func NewDriverSettings(cfg *config.Config) ecr.DriverSettings {
	return ecr.DriverSettings{
		Options: ecr.Options{
			StampSequence: cfg.ECR.StampSequence,
			Messages: ecr.Messages{
				TotalLine:    cfg.ECR.Messages.TotalLine,
				ThankYouLine: cfg.ECR.Messages.ThankYouLine,
				PointsLine:   cfg.ECR.Messages.PointsLine,
			},
		},
		LegacyPaperCheck: cfg.ECR.LegacyPaperCheck,
		ResponseTimeout:  cfg.Device.ResponseTimeout,
	}
}

// NewECRService creates the service for every register in the configuration.
// Drivers are created on first use.
func NewECRService(
	cfg *config.Config,
	registry *driver.Registry,
	jobs repository.JobRepository,
	events EventPublisher,
	logger *zap.Logger,
) (*ECRService, error) {
	settings := NewDriverSettings(cfg)

	s := &ECRService{
		config:      cfg,
		registry:    registry,
		jobs:        jobs,
		events:      events,
		options:     settings.Options,
		decoder:     ecr.NewDecoder(settings.LegacyPaperCheck),
		devices:     make(map[string]*model.Device, len(cfg.Devices)),
		drivers:     make(map[string]ecr.FiscalDriver),
		baseLogger:  logger,
		logger:      utils.NewServiceLogger(logger, "ecr-service"),
		auditLogger: utils.NewAuditLogger(logger),
	}

	for _, rc := range cfg.Devices {
		device := newDevice(rc, cfg.Device.DefaultPort)
		if !registry.IsSupported(device.Brand, device.DeviceType, device.Model) {
			return nil, fmt.Errorf("device %s: no driver for brand %s", device.DeviceID, device.Brand)
		}
		s.devices[device.DeviceID] = device
	}

	s.logger.Info("Registers configured", zap.Int("count", len(s.devices)))
	return s, nil
}

func newDevice(rc config.RegisterConfig, defaults config.DevicePortConfig) *model.Device {
	brand := model.DeviceBrand(strings.ToUpper(rc.Brand))
	if brand == "" {
		brand = model.BrandGeneric
	}

	device := &model.Device{
		DeviceID:         rc.ID,
		DeviceType:       model.DeviceTypeCashRegister,
		Brand:            brand,
		Model:            rc.Model,
		ConnectionType:   model.ConnectionType(strings.ToUpper(rc.ConnectionType)),
		Status:           model.DeviceStatusOffline,
	}
	device.ConnectionConfig = withPortDefaults(device.ConnectionType, rc.ConnectionConfig, defaults)
	if rc.Location != "" {
		location := rc.Location
		device.Location = &location
	}
	return device
}

// withPortDefaults copies the connection config and fills the keys the
// register entry leaves out from device.default_ports
func withPortDefaults(connectionType model.ConnectionType, cfg map[string]interface{}, defaults config.DevicePortConfig) model.JSONObject {
	out := make(model.JSONObject, len(cfg)+5)
	for k, v := range cfg {
		out[k] = v
	}

	setDefault := func(key string, value interface{}, zero bool) {
		if _, ok := out[key]; !ok && !zero {
			out[key] = value
		}
	}

	switch connectionType {
	case model.ConnectionTypeSerial, model.ConnectionTypeBluetooth:
		d := defaults.Serial
		setDefault("baud_rate", d.BaudRate, d.BaudRate == 0)
		setDefault("data_bits", d.DataBits, d.DataBits == 0)
		setDefault("stop_bits", d.StopBits, d.StopBits == 0)
		setDefault("parity", d.Parity, d.Parity == "")
		setDefault("timeout", d.Timeout.String(), d.Timeout == 0)
	case model.ConnectionTypeTCP:
		d := defaults.TCP
		setDefault("timeout", d.ConnectTimeout.String(), d.ConnectTimeout == 0)
		setDefault("read_timeout", d.ReadTimeout.String(), d.ReadTimeout == 0)
		setDefault("write_timeout", d.WriteTimeout.String(), d.WriteTimeout == 0)
		setDefault("keep_alive", d.KeepAlive, false)
	}
	return out
}

// DeviceView is a configured register with its last known status
type DeviceView struct {
	*model.Device
	State   *pkgdriver.DeviceStatus  `json:"state"`
	Health  *pkgdriver.HealthMetrics `json:"health,omitempty"`
	Enabled bool                     `json:"driver_loaded"`
}

// ListDevices returns all configured registers ordered by id
func (s *ECRService) ListDevices() []*DeviceView {
	s.mu.Lock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)

	views := make([]*DeviceView, 0, len(ids))
	for _, id := range ids {
		view, err := s.GetDeviceStatus(context.Background(), id, false)
		if err != nil {
			continue
		}
		views = append(views, view)
	}
	return views
}

// GetDeviceStatus returns the cached register status. With probe set the
// register is asked for its status bytes first, recorded as a STATUS job.
func (s *ECRService) GetDeviceStatus(ctx context.Context, deviceID string, probe bool) (*DeviceView, error) {
	if probe {
		if _, err := s.CheckPaper(ctx, deviceID); err != nil {
			s.logger.Warn("Status probe failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	s.mu.Lock()
	device, ok := s.devices[deviceID]
	drv := s.drivers[deviceID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	view := &DeviceView{Device: device}
	if drv == nil {
		view.State = &pkgdriver.DeviceStatus{
			Status:      model.DeviceStatusOffline,
			PaperStatus: pkgdriver.PaperStatusUnknown,
		}
		return view, nil
	}

	state, err := drv.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	health, err := drv.GetHealthMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get health metrics: %w", err)
	}

	view.State = state
	view.Health = health
	view.Enabled = true
	return view, nil
}

// driverFor returns the register driver, creating it on first use
func (s *ECRService) driverFor(deviceID string) (*model.Device, ecr.FiscalDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if drv, ok := s.drivers[deviceID]; ok {
		return device, drv, nil
	}

	instance, err := s.registry.CreateDriver(device, device.ConnectionConfig)
	if err != nil {
		return device, nil, fmt.Errorf("failed to create driver: %w", err)
	}
	drv, ok := instance.(ecr.FiscalDriver)
	if !ok {
		return device, nil, fmt.Errorf("driver for %s cannot print fiscal documents", deviceID)
	}

	drv.SetEventHandler(&driverEvents{publisher: s.events, logger: s.baseLogger})
	s.drivers[deviceID] = drv
	return device, drv, nil
}

// JobRequest identifies the caller of a job
type JobRequest struct {
	DeviceID      string
	CorrelationID string
}

// JobResponse is the journal entry of a finished job and the register exchanges
type JobResponse struct {
	Job    *model.PrintJob `json:"job"`
	Result *ecr.Result     `json:"result,omitempty"`
}

// JobError reports a job that ran and failed on the register
type JobError struct {
	Response *JobResponse
	Err      error
}

func (e *JobError) Error() string {
	if e.Response == nil || e.Response.Job == nil {
		return fmt.Sprintf("job failed: %v", e.Err)
	}
	return fmt.Sprintf("job %s failed: %v", e.Response.Job.ID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// PrintReceipt prints a fiscal receipt and writes the audit trail
func (s *ECRService) PrintReceipt(ctx context.Context, req JobRequest, params ecr.SaleParameters) (*JobResponse, error) {
	resp, err := s.runJob(ctx, req, model.JobTypeReceipt, params, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.PrintReceipt(ctx, params)
	})

	if resp != nil {
		total := decimalSum(params.Payments)
		s.auditLogger.LogReceipt(req.DeviceID, resp.Job.ID.String(), params.ProgramLine.ReceiptNumber,
			params.OperatorName, len(params.Items), total, string(resp.Job.Status))
	}
	return resp, err
}

// PrintReport prints an X or Z report. Z reports are audited.
func (s *ECRService) PrintReport(ctx context.Context, req JobRequest, reportType ecr.ReportType) (*JobResponse, error) {
	request := map[string]interface{}{"report_type": string(reportType)}
	resp, err := s.runJob(ctx, req, model.JobTypeReport, request, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.PrintReport(ctx, reportType)
	})

	if resp != nil && reportType == ecr.ReportTypeZ {
		s.auditLogger.LogReport(req.DeviceID, resp.Job.ID.String(), string(reportType), string(resp.Job.Status))
	}
	return resp, err
}

// CancelReceipt voids the open receipt
func (s *ECRService) CancelReceipt(ctx context.Context, req JobRequest) (*JobResponse, error) {
	resp, err := s.runJob(ctx, req, model.JobTypeCancelReceipt, nil, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.CancelReceipt(ctx)
	})

	if resp != nil {
		s.auditLogger.LogReceiptCancel(req.DeviceID, resp.Job.ID.String(), string(resp.Job.Status))
	}
	return resp, err
}

// PrintDuplicate prints a copy of the last receipt
func (s *ECRService) PrintDuplicate(ctx context.Context, req JobRequest) (*JobResponse, error) {
	return s.runJob(ctx, req, model.JobTypeDuplicate, nil, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.PrintDuplicate(ctx)
	})
}

// DeleteArticles clears the article table of the register
func (s *ECRService) DeleteArticles(ctx context.Context, req JobRequest) (*JobResponse, error) {
	return s.runJob(ctx, req, model.JobTypeDeleteArticles, nil, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.DeleteArticles(ctx)
	})
}

// SendCommand sends an ad-hoc command
func (s *ECRService) SendCommand(ctx context.Context, req JobRequest, command int, data string) (*JobResponse, error) {
	request := map[string]interface{}{"command": command, "data": data}
	return s.runJob(ctx, req, model.JobTypeCommand, request, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		return drv.SendCommand(ctx, command, data)
	})
}

// CheckPaper asks the register for its status bytes
func (s *ECRService) CheckPaper(ctx context.Context, deviceID string) (*JobResponse, error) {
	return s.runJob(ctx, JobRequest{DeviceID: deviceID}, model.JobTypeStatus, nil, func(ctx context.Context, drv ecr.FiscalDriver) (*ecr.Result, error) {
		// GetPaperStatus drops the exchanges, so send the status packet directly
		return drv.SendCommand(ctx, ecr.CmdStatus, "")
	})
}

// runJob journals one job around a driver call. Encode and register failures
// come back as *JobError together with the journal entry.
func (s *ECRService) runJob(
	ctx context.Context,
	req JobRequest,
	jobType model.JobType,
	request interface{},
	run func(context.Context, ecr.FiscalDriver) (*ecr.Result, error),
) (*JobResponse, error) {
	device, drv, err := s.driverFor(req.DeviceID)
	if err != nil {
		return nil, err
	}

	var requestObj model.JSONObject
	if request != nil {
		if requestObj, err = model.ToJSONObject(request); err != nil {
			return nil, fmt.Errorf("failed to encode job request: %w", err)
		}
	}

	job := model.NewPrintJob(device.DeviceID, jobType, requestObj)
	if req.CorrelationID != "" {
		correlationID := req.CorrelationID
		job.CorrelationID = &correlationID
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobLogger := utils.NewJobLogger(s.baseLogger, string(jobType), job.ID.String())
	jobLogger.Start(zap.String("device_id", device.DeviceID))

	job.Status = model.JobStatusProcessing
	s.updateJob(ctx, job)
	s.publishJob(model.EventJobStarted, model.SeverityInfo, job)

	execCtx, cancel := context.WithTimeout(ctx, s.config.Device.OperationTimeout)
	result, runErr := run(execCtx, drv)
	cancel()

	job.PacketsSent = result.PacketsSent()

	var resultObj model.JSONObject
	if result != nil {
		if resultObj, err = model.ToJSONObject(result); err != nil {
			s.logger.Error("Failed to encode job result", zap.Error(err))
		}
	}

	status := model.JobStatusSuccess
	switch {
	case runErr == nil:
	case errors.Is(runErr, ecr.ErrResponseTimeout), errors.Is(runErr, context.DeadlineExceeded):
		status = model.JobStatusTimeout
	default:
		status = model.JobStatusFailed
	}
	job.Complete(status, resultObj, runErr)

	// the journal must record the outcome even when the caller went away
	s.updateJob(context.WithoutCancel(ctx), job)

	resp := &JobResponse{Job: job, Result: result}
	if runErr != nil {
		jobLogger.Error(runErr, zap.Int("packets_sent", job.PacketsSent))
		s.publishJob(model.EventJobFailed, model.SeverityError, job)
		return resp, &JobError{Response: resp, Err: runErr}
	}

	jobLogger.Success(zap.Int("packets_sent", job.PacketsSent))
	s.publishJob(model.EventJobCompleted, model.SeverityInfo, job)
	return resp, nil
}

func (s *ECRService) updateJob(ctx context.Context, job *model.PrintJob) {
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("Failed to update job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *ECRService) publishJob(eventType model.EventType, severity string, job *model.PrintJob) {
	if s.events == nil {
		return
	}

	data := model.JobEventData{
		JobID:        job.ID,
		JobType:      job.JobType,
		Status:       job.Status,
		PacketsSent:  job.PacketsSent,
		Duration:     job.DurationMs,
		ErrorMessage: job.ErrorMessage,
	}
	s.events.Publish(model.NewDeviceEvent(eventType, job.DeviceID, "ecr-service", severity, data.ToJSONObject()))
}

// GetJob returns a journal entry
func (s *ECRService) GetJob(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns the newest jobs of a register
func (s *ECRService) ListJobs(ctx context.Context, deviceID string, filter *repository.JobFilter) ([]*model.PrintJob, error) {
	s.mu.Lock()
	_, ok := s.devices[deviceID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	return s.jobs.ListByDevice(ctx, deviceID, filter)
}

// CleanupJobs drops journal entries older than the configured retention
func (s *ECRService) CleanupJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.Database.JobRetention)
	deleted, err := s.jobs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal cleanup failed: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Journal cleaned up", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// EncodeReceipt returns the packets of a receipt without touching a register.
// Each call starts from a fresh sequence counter.
func (s *ECRService) EncodeReceipt(params ecr.SaleParameters) ([]ecr.ReturnValue, error) {
	return ecr.NewEncoder(s.options).PrintReceipt(params)
}

// EncodeCommand frames one ad-hoc command without sending it
func (s *ECRService) EncodeCommand(command int, data string) ([]ecr.ReturnValue, error) {
	packet, err := ecr.NewEncoder(s.options).Command(command, data)
	if err != nil {
		return nil, err
	}
	return []ecr.ReturnValue{{ID: 1, Packet: packet}}, nil
}

// DecodedResponse is the rendering of response data and status bytes
type DecodedResponse struct {
	Text         string `json:"text"`
	Data         string `json:"data"`
	Status       string `json:"status"`
	PaperPresent bool   `json:"paper_present"`
}

// DecodeResponse renders hex encoded response data and status bytes
func (s *ECRService) DecodeResponse(dataHex, statusHex string) (*DecodedResponse, error) {
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidHex, err)
	}
	status, err := hex.DecodeString(statusHex)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrInvalidHex, err)
	}

	return &DecodedResponse{
		Text:         s.decoder.DecodeResponse(data, status),
		Data:         s.decoder.DecodeResultData(data),
		Status:       s.decoder.DecodeResultStatus(status),
		PaperPresent: s.decoder.HasPaper(status),
	}, nil
}

// Close disconnects all registers
func (s *ECRService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, drv := range s.drivers {
		if err := drv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func decimalSum(payments []ecr.Payment) string {
	if len(payments) == 0 {
		return "0"
	}
	total := payments[0].Value
	for _, p := range payments[1:] {
		total = total.Add(p.Value)
	}
	return total.StringFixed(2)
}
