package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/repository"
	"ecr-service/internal/service"
)

type jobBody struct {
	Job struct {
		ID          uuid.UUID `json:"id"`
		Status      string    `json:"status"`
		PacketsSent int       `json:"packets_sent"`
	} `json:"job"`
}

func saleBody() map[string]interface{} {
	return map[string]interface{}{
		"operator_name": "Ana",
		"items": []map[string]interface{}{
			{"item_id": "7", "price": "1.20", "amount": "3", "tax_category": "B", "description": "Milk"},
		},
		"payments": []map[string]interface{}{
			{"value": "3.60", "method": "CARD"},
		},
		"program_line": map[string]interface{}{"receipt_number": "88"},
	}
}

func TestECRHandler_ListDevices(t *testing.T) {
	router := newTestRouter(t, &register{})

	w, resp := perform(t, router, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	var devices []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "till-1", devices[0]["device_id"])
	assert.Equal(t, false, devices[0]["driver_loaded"])
}

func TestECRHandler_PrintReport(t *testing.T) {
	router := newTestRouter(t, &register{})

	w, resp := perform(t, router, http.MethodPost, "/api/v1/devices/till-1/reports/z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body jobBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, "SUCCESS", body.Job.Status)
	assert.Equal(t, 1, body.Job.PacketsSent)

	// the journal entry is retrievable afterwards
	w, resp = perform(t, router, http.MethodGet, "/api/v1/jobs/"+body.Job.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), body.Job.ID.String())

	w, _ = perform(t, router, http.MethodPost, "/api/v1/devices/till-1/reports/q", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestECRHandler_PrintReceipt(t *testing.T) {
	reg := &register{}
	router := newTestRouter(t, reg)

	w, resp := perform(t, router, http.MethodPost, "/api/v1/devices/till-1/receipts", saleBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body jobBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, 9, body.Job.PacketsSent)
	assert.Equal(t, 9, reg.written)
}

func TestECRHandler_RejectedPacket(t *testing.T) {
	router := newTestRouter(t, &register{reject: map[int]bool{2: true}})

	w, resp := perform(t, router, http.MethodPost, "/api/v1/devices/till-1/receipts", saleBody())
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "DEVICE_ERROR", resp.Error.Code)

	// the failed job travels with the error
	var body jobBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, "FAILED", body.Job.Status)
	assert.Equal(t, 2, body.Job.PacketsSent)
}

func TestECRHandler_Timeout(t *testing.T) {
	router := newTestRouter(t, &register{silent: true})

	w, resp := perform(t, router, http.MethodPost, "/api/v1/devices/till-1/receipt/cancel", nil)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "DEVICE_TIMEOUT", resp.Error.Code)
}

func TestECRHandler_UnknownDevice(t *testing.T) {
	router := newTestRouter(t, &register{})

	w, _ := perform(t, router, http.MethodPost, "/api/v1/devices/till-9/receipt/duplicate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, router, http.MethodGet, "/api/v1/devices/till-9/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, router, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, router, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestECRHandler_SendCommand(t *testing.T) {
	reg := &register{}
	router := newTestRouter(t, reg)

	w, resp := perform(t, router, http.MethodPost, "/api/v1/devices/till-1/commands", map[string]interface{}{"data": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "command is required")
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, string(resp.Data), `"CommandRequest.Command":"required"`)

	w, resp = perform(t, router, http.MethodPost, "/api/v1/devices/till-1/commands", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	w, _ = perform(t, router, http.MethodPost, "/api/v1/devices/till-1/commands", map[string]interface{}{"command": 300})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Zero(t, reg.written)

	w, _ = perform(t, router, http.MethodPost, "/api/v1/devices/till-1/commands", map[string]interface{}{"command": 74})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, reg.written)
}

func TestECRHandler_ListJobs(t *testing.T) {
	router := newTestRouter(t, &register{})

	perform(t, router, http.MethodPost, "/api/v1/devices/till-1/reports/x", nil)
	perform(t, router, http.MethodPost, "/api/v1/devices/till-1/articles/delete", nil)

	w, resp := perform(t, router, http.MethodGet, "/api/v1/devices/till-1/jobs?job_type=report", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var jobs []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "REPORT", jobs[0]["job_type"])

	w, _ = perform(t, router, http.MethodGet, "/api/v1/devices/till-1/jobs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestECRHandler_Encode(t *testing.T) {
	reg := &register{}
	router := newTestRouter(t, reg)

	w, resp := perform(t, router, http.MethodPost, "/api/v1/encode/command", map[string]interface{}{"command": 69, "data": "2"})
	require.Equal(t, http.StatusOK, w.Code)
	var packets []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &packets))
	require.Len(t, packets, 1)
	assert.Equal(t, "01252045320530303c3103", packets[0]["hex"])

	w, resp = perform(t, router, http.MethodPost, "/api/v1/encode/receipt", saleBody())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &packets))
	assert.Len(t, packets, 9)

	bad := saleBody()
	bad["payments"] = []map[string]interface{}{{"value": "1", "method": "BARTER"}}
	w, _ = perform(t, router, http.MethodPost, "/api/v1/encode/receipt", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Zero(t, reg.written, "dry runs never reach the register")
}

func TestECRHandler_DecodeResponse(t *testing.T) {
	router := newTestRouter(t, &register{})

	w, resp := perform(t, router, http.MethodPost, "/api/v1/decode/response", map[string]string{"data": "50", "status": "8001"})
	require.Equal(t, http.StatusOK, w.Code)

	var decoded service.DecodedResponse
	require.NoError(t, json.Unmarshal(resp.Data, &decoded))
	assert.Equal(t, "P / 8001", decoded.Text)
	assert.False(t, decoded.PaperPresent)

	w, _ = perform(t, router, http.MethodPost, "/api/v1/decode/response", map[string]string{"data": "zz"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("lookup: %w", service.ErrDeviceNotFound), http.StatusNotFound},
		{repository.ErrJobNotFound, http.StatusNotFound},
		{ecr.ErrUnknownTaxCategory, http.StatusUnprocessableEntity},
		{ecr.ErrPayloadTooLarge, http.StatusUnprocessableEntity},
		{ecr.ErrResponseTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{ecr.ErrNegativeAck, http.StatusBadGateway},
		{ecr.ErrChecksumMismatch, http.StatusBadGateway},
		{&service.JobError{Err: errors.New("port gone")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}
