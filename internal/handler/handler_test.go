package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecr-service/internal/config"
	"ecr-service/internal/driver"
	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
	"ecr-service/internal/protocol"
	"ecr-service/internal/repository"
	"ecr-service/internal/service"
	pkgdriver "ecr-service/pkg/driver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// register answers each packet with a status frame, a NAK for the packet
// numbers in reject, or nothing at all when silent
type register struct {
	mu      sync.Mutex
	open    bool
	written int
	pending [][]byte
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
		r.pending = append(r.pending, statusFrame(data[2], ecr.Packet(data).Command()))
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

func (r *register) GetProtocolType() model.ConnectionType { return model.ConnectionTypeTCP }
func (r *register) Stats() protocol.ProtocolStats       { return protocol.ProtocolStats{} }
func (r *register) Ping(ctx context.Context) error      { return nil }

func statusFrame(seq, command byte) []byte {
	status := []byte{0x80, 0x80, 0x80}
	out := []byte{ecr.STX, ecr.LengthOffset + byte(len(status)+1), seq, command, ecr.StatusSeparator}
	out = append(out, status...)
	out = append(out, ecr.Terminator)
	cs := ecr.Checksum(out[1:])
	out = append(out, cs[:]...)
	return append(out, ecr.ETX)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "ecr-service", Version: "test"},
		Device: config.DeviceConfig{
			OperationTimeout: 2 * time.Second,
			ResponseTimeout:  30 * time.Millisecond,
		},
		Database: config.DatabaseConfig{JobRetention: time.Hour},
		Devices: []config.RegisterConfig{{
			ID:               "till-1",
			Brand:            "daisy",
			ConnectionType:   "tcp",
			ConnectionConfig: map[string]interface{}{"host": "10.0.0.5", "port": 4001},
		}},
	}
}

func newTestService(t *testing.T, reg *register, events service.EventPublisher) *service.ECRService {
	t.Helper()

	cfg := testConfig()
	settings := service.NewDriverSettings(cfg)
	registry := driver.NewRegistry(zap.NewNop())
	registry.Register(model.BrandDaisy, model.DeviceTypeCashRegister, driver.AnyModel,
		func(device *model.Device, connectionConfig interface{}, logger *zap.Logger) (pkgdriver.DeviceDriver, error) {
			return ecr.NewECRDriverWithProtocol(device, reg, settings, logger), nil
		})

	svc, err := service.NewECRService(cfg, registry, repository.NewMemoryJobRepository(), events, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func newTestRouter(t *testing.T, reg *register) *gin.Engine {
	t.Helper()

	router := gin.New()
	NewECRHandler(newTestService(t, reg, nil), zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func perform(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}
