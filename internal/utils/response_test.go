package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	SuccessResponse(c, http.StatusCreated, "created", gin.H{"id": 7})

	assert.Equal(t, http.StatusCreated, w.Code)

	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "created", body.Message)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Nil(t, body.Error)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "BAD_REQUEST"},
		{http.StatusNotFound, "NOT_FOUND"},
		{http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY"},
		{http.StatusBadGateway, "DEVICE_ERROR"},
		{http.StatusGatewayTimeout, "DEVICE_TIMEOUT"},
		{http.StatusTeapot, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			ErrorResponse(c, tt.status, "failed", errors.New("boom"))

			var body APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "boom", body.Error.Details)
			assert.Empty(t, body.RequestID)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	type receiptBody struct {
		Items []string `json:"items" binding:"required"`
		Total string   `json:"total" validate:"required"`
	}

	err := validator.New().Struct(receiptBody{})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"receiptBody.Total": "required"}, ValidationErrors(err))

	assert.Nil(t, ValidationErrors(errors.New("unexpected EOF")))
	assert.Nil(t, ValidationErrors(nil))
}

func TestValidationErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ValidationErrorResponse(c, map[string]string{"CommandRequest.Command": "required"})

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
		Data struct {
			ValidationErrors map[string]string `json:"validation_errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "required", body.Data.ValidationErrors["CommandRequest.Command"])
}
