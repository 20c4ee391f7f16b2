package ecr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecr-service/internal/model"
	"ecr-service/internal/protocol"
	"ecr-service/pkg/driver"
)

// fakeProtocol answers every written packet with the chunks returned by respond
type fakeProtocol struct {
	mu      sync.Mutex
	open    bool
	openErr error
	writes  [][]byte
	pending [][]byte
	respond func(packet []byte, n int) [][]byte
}

func (f *fakeProtocol) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeProtocol) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeProtocol) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeProtocol) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	if f.respond != nil {
		f.pending = append(f.pending, f.respond(data, len(f.writes))...)
	}
	return nil
}

func (f *fakeProtocol) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		chunk := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return chunk, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeProtocol) GetProtocolType() model.ConnectionType { return model.ConnectionTypeSerial }
func (f *fakeProtocol) Stats() protocol.ProtocolStats       { return protocol.ProtocolStats{} }
func (f *fakeProtocol) Ping(ctx context.Context) error      { return nil }

func (f *fakeProtocol) commands() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, 0, len(f.writes))
	for _, w := range f.writes {
		out = append(out, Packet(w).Command())
	}
	return out
}

// okResponder acknowledges every packet with the given status bytes
func okResponder(status []byte) func([]byte, int) [][]byte {
	return func(packet []byte, n int) [][]byte {
		frame := responseFrame(packet[2], Packet(packet).Command(), nil, status)
		// busy marker, then the frame split across two reads
		return [][]byte{{SYN}, frame[:3], frame[3:]}
	}
}

type recordingHandler struct {
	mu           sync.Mutex
	connected    int
	disconnected []string
	errors       []error
}

func (h *recordingHandler) OnDeviceConnected(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected++
}

func (h *recordingHandler) OnDeviceDisconnected(deviceID string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, reason)
}

func (h *recordingHandler) OnDeviceError(deviceID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *recordingHandler) OnStatusChanged(deviceID string, oldStatus, newStatus model.DeviceStatus) {}

var paperOK = []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80}

func testDevice() *model.Device {
	return &model.Device{
		DeviceID:       "ecr-1",
		DeviceType:     model.DeviceTypeCashRegister,
		Brand:          model.BrandGeneric,
		Model:          "ECR",
		ConnectionType: model.ConnectionTypeSerial,
	}
}

func newTestDriver(p *fakeProtocol, timeout time.Duration) *ECRDriver {
	return NewECRDriverWithProtocol(testDevice(), p, DriverSettings{ResponseTimeout: timeout}, zap.NewNop())
}

func TestECRDriver_PrintReport(t *testing.T) {
	p := &fakeProtocol{respond: okResponder(paperOK)}
	d := newTestDriver(p, time.Second)

	result, err := d.PrintReport(context.Background(), ReportTypeX)
	require.NoError(t, err)

	require.Len(t, result.Exchanges, 1)
	exchange := result.Exchanges[0]
	assert.Equal(t, 1, exchange.ID)
	assert.Equal(t, CmdReport, exchange.Command)
	assert.Equal(t, "01252045320530303c3103", exchange.Request)
	assert.Equal(t, " / 808080808080", exchange.Response)
	assert.Equal(t, "808080808080", exchange.Status)
	assert.True(t, result.PaperPresent)
	assert.True(t, d.IsConnected())

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatusOnline, status.Status)
	assert.Equal(t, driver.PaperStatusOK, status.PaperStatus)
	assert.True(t, status.IsReady)
}

func TestECRDriver_PrintReceipt(t *testing.T) {
	p := &fakeProtocol{respond: okResponder(paperOK)}
	d := newTestDriver(p, time.Second)

	result, err := d.PrintReceipt(context.Background(), sampleSale())
	require.NoError(t, err)
	assert.Equal(t, 11, result.PacketsSent())

	assert.Equal(t, []byte{
		CmdSetOperatorName, CmdInitializeReceipt, CmdProgramLine, CmdProgramLine,
		CmdArticles, CmdArticles, CmdSellItem, CmdSellItem,
		CmdPayment, CmdPaymentEnd, CmdCloseReceipt,
	}, p.commands())

	metrics, err := d.GetHealthMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.TotalOperations)
	assert.Equal(t, 100, metrics.HealthScore)
}

func TestECRDriver_NegativeAckAborts(t *testing.T) {
	p := &fakeProtocol{}
	p.respond = func(packet []byte, n int) [][]byte {
		if n == 3 {
			return [][]byte{{SYN, NAK}}
		}
		return okResponder(paperOK)(packet, n)
	}
	d := newTestDriver(p, time.Second)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	result, err := d.PrintReceipt(context.Background(), sampleSale())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeAck))
	assert.Contains(t, err.Error(), "packet 3")

	assert.Len(t, p.commands(), 3, "nothing sent after the rejected packet")
	assert.Equal(t, 3, result.PacketsSent())
	assert.True(t, d.IsConnected(), "a rejected packet keeps the link")
	require.Len(t, handler.errors, 1)

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.HasError)
	assert.Equal(t, model.DeviceStatusError, status.Status)
}

func TestECRDriver_ResponseTimeout(t *testing.T) {
	p := &fakeProtocol{}
	d := newTestDriver(p, 20*time.Millisecond)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	result, err := d.CancelReceipt(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResponseTimeout))
	assert.Equal(t, 1, result.PacketsSent())

	// the link is reopened by the next job
	assert.False(t, d.IsConnected())
	assert.Equal(t, 1, handler.connected)
	assert.Len(t, handler.disconnected, 1)
}

func TestECRDriver_ChecksumMismatch(t *testing.T) {
	p := &fakeProtocol{respond: func(packet []byte, n int) [][]byte {
		frame := responseFrame(0x20, CmdPrintDuplicate, []byte("OK"), paperOK)
		frame[4] = 'X'
		return [][]byte{frame}
	}}
	d := newTestDriver(p, time.Second)

	_, err := d.PrintDuplicate(context.Background())
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestECRDriver_PaperOut(t *testing.T) {
	p := &fakeProtocol{respond: okResponder([]byte{0x80, 0x01, 0x80})}
	d := newTestDriver(p, time.Second)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	paper, err := d.GetPaperStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, driver.PaperStatusOut, paper)
	assert.Equal(t, []byte{CmdStatus}, p.commands())

	require.Len(t, handler.errors, 1)
	assert.True(t, errors.Is(handler.errors[0], ErrPaperOut))

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.IsReady)
	assert.Equal(t, driver.PaperStatusOut, status.PaperStatus)
}

func TestECRDriver_LegacyPaperCheck(t *testing.T) {
	p := &fakeProtocol{respond: okResponder([]byte{0x80, 0x01, 0x80})}
	d := NewECRDriverWithProtocol(testDevice(), p, DriverSettings{LegacyPaperCheck: true}, zap.NewNop())

	paper, err := d.GetPaperStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, driver.PaperStatusOK, paper)
}

func TestECRDriver_EncodeErrorSendsNothing(t *testing.T) {
	p := &fakeProtocol{respond: okResponder(paperOK)}
	d := newTestDriver(p, time.Second)

	sale := sampleSale()
	sale.Payments[0].Method = "GOLD"

	result, err := d.PrintReceipt(context.Background(), sale)
	assert.True(t, errors.Is(err, ErrUnknownPaymentMethod))
	assert.Zero(t, result.PacketsSent())
	assert.Empty(t, p.commands())
}

func TestECRDriver_SendCommand(t *testing.T) {
	p := &fakeProtocol{respond: okResponder(paperOK)}
	d := newTestDriver(p, time.Second)

	result, err := d.SendCommand(context.Background(), 0x4A, "")
	require.NoError(t, err)
	assert.Equal(t, CmdStatus, result.Exchanges[0].Command)

	_, err = d.SendCommand(context.Background(), 300, "")
	assert.True(t, errors.Is(err, ErrInvalidCommand))
}

func TestECRDriver_OpenFailure(t *testing.T) {
	p := &fakeProtocol{openErr: errors.New("port busy")}
	d := newTestDriver(p, time.Second)

	_, err := d.DeleteArticles(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Contains(t, err.Error(), "port busy")
	assert.Empty(t, p.commands())

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatusOffline, status.Status)
	assert.True(t, status.HasError)
}

func TestECRDriver_ConnectDisconnect(t *testing.T) {
	p := &fakeProtocol{}
	d := newTestDriver(p, time.Second)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	require.NoError(t, d.Connect(context.Background()))
	require.NoError(t, d.Connect(context.Background()))
	assert.True(t, d.IsConnected())
	assert.Equal(t, 1, handler.connected)

	require.NoError(t, d.Close())
	assert.False(t, d.IsConnected())
	assert.Equal(t, []string{"manual disconnect"}, handler.disconnected)
}

func TestECRDriver_Info(t *testing.T) {
	d := newTestDriver(&fakeProtocol{}, time.Second)

	info, err := d.GetDeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, "ecr-1", info.DeviceID)
	assert.Equal(t, model.ConnectionTypeSerial, info.ConnectionType)
	assert.Contains(t, info.Capabilities, model.CapabilityReceipt)

	var _ FiscalDriver = d
}

func TestNewECRDriver_ValidatesConnection(t *testing.T) {
	device := testDevice()

	_, err := NewECRDriver(device, map[string]interface{}{}, DriverSettings{}, zap.NewNop())
	assert.Error(t, err)

	d, err := NewECRDriver(device, model.JSONObject{"port": "/dev/ttyUSB0"}, DriverSettings{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, d.IsConnected())

	_, err = NewECRDriver(device, `{"port": "COM3", "baud_rate": 115200}`, DriverSettings{}, zap.NewNop())
	assert.NoError(t, err)

	factory := DriverSettings{}.Factory()
	drv, err := factory(device, 42, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, drv)
}

func TestFrameComplete(t *testing.T) {
	frame := responseFrame(0x20, CmdStatus, []byte("P"), paperOK)

	assert.True(t, frameComplete(frame))
	assert.True(t, frameComplete(append([]byte{SYN}, frame...)))
	assert.False(t, frameComplete(frame[:len(frame)-1]))
	assert.False(t, frameComplete(nil))
	// an ETX inside the data does not end the frame
	assert.False(t, frameComplete([]byte{STX, 0x30, 0x20, 0x4A, ETX}))
}
