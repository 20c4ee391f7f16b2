package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecr-service/internal/config"
	"ecr-service/internal/driver"
	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
	"ecr-service/internal/protocol"
	"ecr-service/internal/repository"
	pkgdriver "ecr-service/pkg/driver"
)

// register answers every packet with a frame carrying the given status,
// or with a NAK for the packet numbers in reject
type register struct {
	mu      sync.Mutex
	open    bool
	written int
	pending [][]byte
	status  []byte
	reject  map[int]bool
	silent  bool
}

func (r *register) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	return nil
}

func (r *register) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

func (r *register) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *register) Write(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.written++
	switch {
	case r.silent:
	case r.reject[r.written]:
		r.pending = append(r.pending, []byte{ecr.NAK})
	default:
		r.pending = append(r.pending, frame(data[2], ecr.Packet(data).Command(), r.status))
	}
	return nil
}

func (r *register) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		chunk := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return chunk, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *register) GetProtocolType() model.ConnectionType { return model.ConnectionTypeSerial }
func (r *register) Stats() protocol.ProtocolStats       { return protocol.ProtocolStats{} }
func (r *register) Ping(ctx context.Context) error      { return nil }

func frame(seq, command byte, status []byte) []byte {
	out := []byte{ecr.STX, ecr.LengthOffset + byte(len(status)+1), seq, command, ecr.StatusSeparator}
	out = append(out, status...)
	out = append(out, ecr.Terminator)
	cs := ecr.Checksum(out[1:])
	out = append(out, cs[:]...)
	return append(out, ecr.ETX)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.DeviceEvent
}

func (p *recordingPublisher) Publish(event *model.DeviceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType)
	}
	return types
}

type fixture struct {
	service   *ECRService
	register  *register
	jobs      repository.JobRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T, reg *register) *fixture {
	t.Helper()

	cfg := &config.Config{
		Device: config.DeviceConfig{
			OperationTimeout: 2 * time.Second,
			ResponseTimeout:  50 * time.Millisecond,
		},
		Database: config.DatabaseConfig{JobRetention: time.Hour},
		Devices: []config.RegisterConfig{{
			ID:               "ecr-1",
			Brand:            "datecs",
			Model:            "DP-25",
			ConnectionType:   "serial",
			ConnectionConfig: map[string]interface{}{"port": "/dev/ttyUSB0"},
		}},
	}

	settings := NewDriverSettings(cfg)
	registry := driver.NewRegistry(zap.NewNop())
	registry.Register(model.BrandDatecs, model.DeviceTypeCashRegister, driver.AnyModel,
		func(device *model.Device, connectionConfig interface{}, logger *zap.Logger) (pkgdriver.DeviceDriver, error) {
			return ecr.NewECRDriverWithProtocol(device, reg, settings, logger), nil
		})

	jobs := repository.NewMemoryJobRepository()
	publisher := &recordingPublisher{}

	service, err := NewECRService(cfg, registry, jobs, publisher, zap.NewNop())
	require.NoError(t, err)

	return &fixture{service: service, register: reg, jobs: jobs, publisher: publisher}
}

var paperOK = []byte{0x80, 0x80, 0x80}

func sale() ecr.SaleParameters {
	return ecr.SaleParameters{
		OperatorName: "Arta",
		Items: []ecr.Item{
			{ItemID: "1001", Price: decimal.RequireFromString("2.5"), Amount: decimal.NewFromInt(2), TaxCategory: "A", Description: "Bread"},
		},
		Payments: []ecr.Payment{
			{Value: decimal.RequireFromString("5"), Method: "CASH"},
		},
		ProgramLine: ecr.ProgramLine{ReceiptNumber: "12"},
	}
}

func TestECRService_PrintReport(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})
	ctx := context.Background()

	resp, err := f.service.PrintReport(ctx, JobRequest{DeviceID: "ecr-1", CorrelationID: "pos-7"}, ecr.ReportTypeZ)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusSuccess, resp.Job.Status)
	assert.Equal(t, 1, resp.Job.PacketsSent)
	assert.Equal(t, "Z", resp.Job.Request["report_type"])
	require.NotNil(t, resp.Job.CorrelationID)
	assert.Equal(t, "pos-7", *resp.Job.CorrelationID)
	assert.Equal(t, ecr.CmdReport, resp.Result.Exchanges[0].Command)

	stored, err := f.service.GetJob(ctx, resp.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, stored.Status)
	assert.NotNil(t, stored.Result)

	assert.Equal(t, []model.EventType{
		model.EventJobStarted, model.EventDeviceConnected, model.EventJobCompleted,
	}, f.publisher.types())
}

func TestECRService_PrintReceipt(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	resp, err := f.service.PrintReceipt(context.Background(), JobRequest{DeviceID: "ecr-1"}, sale())
	require.NoError(t, err)
	assert.Equal(t, 9, resp.Job.PacketsSent)
	assert.True(t, resp.Result.PaperPresent)
}

func TestECRService_RejectedPacket(t *testing.T) {
	f := newFixture(t, &register{status: paperOK, reject: map[int]bool{3: true}})

	resp, err := f.service.PrintReceipt(context.Background(), JobRequest{DeviceID: "ecr-1"}, sale())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ecr.ErrNegativeAck))

	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Same(t, resp, jobErr.Response)

	assert.Equal(t, model.JobStatusFailed, resp.Job.Status)
	assert.Equal(t, 3, resp.Job.PacketsSent)
	require.NotNil(t, resp.Job.ErrorMessage)

	types := f.publisher.types()
	assert.Contains(t, types, model.EventDeviceError)
	assert.Equal(t, model.EventJobFailed, types[len(types)-1])
}

func TestECRService_Timeout(t *testing.T) {
	f := newFixture(t, &register{silent: true})

	resp, err := f.service.PrintDuplicate(context.Background(), JobRequest{DeviceID: "ecr-1"})
	require.Error(t, err)
	assert.Equal(t, model.JobStatusTimeout, resp.Job.Status)
	assert.Equal(t, 1, resp.Job.PacketsSent)
}

func TestECRService_EncodeFailure(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	params := sale()
	params.Items[0].TaxCategory = "Z"

	resp, err := f.service.PrintReceipt(context.Background(), JobRequest{DeviceID: "ecr-1"}, params)
	assert.True(t, errors.Is(err, ecr.ErrUnknownTaxCategory))
	assert.Equal(t, model.JobStatusFailed, resp.Job.Status)
	assert.Zero(t, resp.Job.PacketsSent)
	assert.Zero(t, f.register.written)
}

func TestECRService_PaperOut(t *testing.T) {
	f := newFixture(t, &register{status: []byte{0x80, 0x01}})

	view, err := f.service.GetDeviceStatus(context.Background(), "ecr-1", true)
	require.NoError(t, err)
	assert.True(t, view.Enabled)
	assert.Equal(t, pkgdriver.PaperStatusOut, view.State.PaperStatus)
	assert.False(t, view.State.IsReady)
	assert.Contains(t, f.publisher.types(), model.EventPaperOut)

	status := model.JobStatusSuccess
	jobs, err := f.service.ListJobs(context.Background(), "ecr-1", &repository.JobFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobTypeStatus, jobs[0].JobType)
}

func TestECRService_UnknownDevice(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})
	ctx := context.Background()

	_, err := f.service.CancelReceipt(ctx, JobRequest{DeviceID: "ecr-9"})
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	_, err = f.service.GetDeviceStatus(ctx, "ecr-9", false)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	_, err = f.service.ListJobs(ctx, "ecr-9", nil)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestECRService_ListDevices(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	views := f.service.ListDevices()
	require.Len(t, views, 1)
	assert.Equal(t, "ecr-1", views[0].DeviceID)
	assert.Equal(t, model.BrandDatecs, views[0].Brand)
	assert.Equal(t, model.ConnectionTypeSerial, views[0].ConnectionType)
	assert.False(t, views[0].Enabled, "drivers load on first job")
	assert.Equal(t, model.DeviceStatusOffline, views[0].State.Status)
}

func TestECRService_UnsupportedBrand(t *testing.T) {
	cfg := &config.Config{Devices: []config.RegisterConfig{{ID: "ecr-1", Brand: "ACME", ConnectionType: "TCP"}}}

	_, err := NewECRService(cfg, driver.NewRegistry(zap.NewNop()), repository.NewMemoryJobRepository(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestECRService_Encode(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	values, err := f.service.EncodeReceipt(sale())
	require.NoError(t, err)
	assert.Len(t, values, 9)
	assert.Equal(t, 1, values[0].ID)

	// every dry run starts from the same counter
	again, err := f.service.EncodeReceipt(sale())
	require.NoError(t, err)
	assert.Equal(t, values, again)

	values, err = f.service.EncodeCommand(ecr.CmdReport, "2")
	require.NoError(t, err)
	assert.Equal(t, "01252045320530303c3103", values[0].Packet.Hex())

	_, err = f.service.EncodeCommand(-1, "")
	assert.True(t, errors.Is(err, ecr.ErrInvalidCommand))
	assert.Zero(t, f.register.written)
}

func TestECRService_DecodeResponse(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	decoded, err := f.service.DecodeResponse("50", "8001")
	require.NoError(t, err)
	assert.Equal(t, "P / 8001", decoded.Text)
	assert.Equal(t, "P", decoded.Data)
	assert.Equal(t, "8001", decoded.Status)
	assert.False(t, decoded.PaperPresent)

	_, err = f.service.DecodeResponse("5", "")
	assert.True(t, errors.Is(err, ErrInvalidHex))
}

func TestECRService_CleanupJobs(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})
	ctx := context.Background()

	old := model.NewPrintJob("ecr-1", model.JobTypeReport, nil)
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	old.Complete(model.JobStatusSuccess, nil, nil)
	require.NoError(t, f.jobs.Create(ctx, old))

	deleted, err := f.service.CleanupJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestECRService_Close(t *testing.T) {
	f := newFixture(t, &register{status: paperOK})

	_, err := f.service.PrintDuplicate(context.Background(), JobRequest{DeviceID: "ecr-1"})
	require.NoError(t, err)
	assert.True(t, f.register.IsOpen())

	require.NoError(t, f.service.Close())
	assert.False(t, f.register.IsOpen())
}

func TestWithPortDefaults(t *testing.T) {
	defaults := config.DevicePortConfig{
		Serial: config.SerialPortConfig{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "none", Timeout: 5 * time.Second},
		TCP:    config.TCPPortConfig{ConnectTimeout: 10 * time.Second, ReadTimeout: 30 * time.Second, KeepAlive: true},
	}

	serial := withPortDefaults(model.ConnectionTypeSerial, map[string]interface{}{"port": "/dev/ttyS0", "baud_rate": 115200}, defaults)
	assert.Equal(t, 115200, serial["baud_rate"], "register entry wins")
	assert.Equal(t, 8, serial["data_bits"])
	assert.Equal(t, "none", serial["parity"])
	assert.Equal(t, "5s", serial["timeout"])

	tcp := withPortDefaults(model.ConnectionTypeTCP, map[string]interface{}{"host": "10.0.0.5"}, defaults)
	assert.Equal(t, "10s", tcp["timeout"])
	assert.Equal(t, "30s", tcp["read_timeout"])
	assert.NotContains(t, tcp, "write_timeout")
	assert.Equal(t, true, tcp["keep_alive"])
	assert.NotContains(t, tcp, "baud_rate")
}
