// internal/handler/ecr_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
	"ecr-service/internal/repository"
	"ecr-service/internal/service"
	"ecr-service/internal/utils"
)

// CorrelationHeader lets callers tie jobs to their own transaction ids
const CorrelationHeader = "X-Correlation-ID"

// ECRHandler exposes the cash registers over HTTP
type ECRHandler struct {
	ecrService *service.ECRService
	logger     *utils.ServiceLogger
}

// NewECRHandler creates a new register handler
func NewECRHandler(ecrService *service.ECRService, logger *zap.Logger) *ECRHandler {
	return &ECRHandler{
		ecrService: ecrService,
		logger:     utils.NewServiceLogger(logger, "ecr-handler"),
	}
}

// RegisterRoutes registers register routes
func (h *ECRHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)

		device := devices.Group("/:device_id")
		{
			device.GET("/status", h.GetDeviceStatus)
			device.POST("/receipts", h.PrintReceipt)
			device.POST("/reports/:type", h.PrintReport)
			device.POST("/receipt/cancel", h.CancelReceipt)
			device.POST("/receipt/duplicate", h.PrintDuplicate)
			device.POST("/articles/delete", h.DeleteArticles)
			device.POST("/commands", h.SendCommand)
			device.GET("/jobs", h.ListJobs)
		}
	}

	router.GET("/jobs/:job_id", h.GetJob)

	router.POST("/encode/receipt", h.EncodeReceipt)
	router.POST("/encode/command", h.EncodeCommand)
	router.POST("/decode/response", h.DecodeResponse)
}

// ListDevices lists the configured registers
// @Summary List registers
// @Description Get the configured cash registers with their last known status
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.DeviceView} "Registers retrieved"
// @Router /devices [get]
func (h *ECRHandler) ListDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Registers retrieved", h.ecrService.ListDevices())
}

// GetDeviceStatus returns the status of one register
// @Summary Register status
// @Description Get the cached status; probe=true asks the register for fresh status bytes
// @Tags Devices
// @Produce json
// @Param device_id path string true "Register ID"
// @Param probe query bool false "Query the register first"
// @Success 200 {object} utils.APIResponse{data=service.DeviceView} "Status retrieved"
// @Failure 404 {object} utils.APIResponse "Register not found"
// @Router /devices/{device_id}/status [get]
func (h *ECRHandler) GetDeviceStatus(c *gin.Context) {
	probe, _ := strconv.ParseBool(c.DefaultQuery("probe", "false"))

	view, err := h.ecrService.GetDeviceStatus(c.Request.Context(), c.Param("device_id"), probe)
	if err != nil {
		h.respondError(c, "Failed to get register status", nil, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", view)
}

// PrintReceipt prints a fiscal receipt
// @Summary Print receipt
// @Description Encode the sale and send the full packet sequence to the register
// @Tags Jobs
// @Accept json
// @Produce json
// @Param device_id path string true "Register ID"
// @Param X-Correlation-ID header string false "Caller transaction id"
// @Param request body ecr.SaleParameters true "Sale"
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Receipt printed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Register not found"
// @Failure 422 {object} utils.APIResponse "Sale cannot be encoded"
// @Failure 502 {object} utils.APIResponse "Register rejected a packet"
// @Failure 504 {object} utils.APIResponse "Register did not answer"
// @Router /devices/{device_id}/receipts [post]
func (h *ECRHandler) PrintReceipt(c *gin.Context) {
	var params ecr.SaleParameters
	if !bindJSON(c, &params) {
		return
	}

	h.runJob(c, "Receipt printed", func(ctx context.Context, req service.JobRequest) (*service.JobResponse, error) {
		return h.ecrService.PrintReceipt(ctx, req, params)
	})
}

// PrintReport prints an X or Z report
// @Summary Print report
// @Tags Jobs
// @Produce json
// @Param device_id path string true "Register ID"
// @Param type path string true "Report type" Enums(x, z)
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Report printed"
// @Failure 400 {object} utils.APIResponse "Unknown report type"
// @Router /devices/{device_id}/reports/{type} [post]
func (h *ECRHandler) PrintReport(c *gin.Context) {
	reportType := ecr.ReportType(strings.ToUpper(c.Param("type")))
	if reportType != ecr.ReportTypeX && reportType != ecr.ReportTypeZ {
		utils.ErrorResponse(c, http.StatusBadRequest, "Report type must be x or z", ecr.ErrUnknownReportType)
		return
	}

	h.runJob(c, "Report printed", func(ctx context.Context, req service.JobRequest) (*service.JobResponse, error) {
		return h.ecrService.PrintReport(ctx, req, reportType)
	})
}

// CancelReceipt voids the open receipt
// @Summary Cancel receipt
// @Tags Jobs
// @Produce json
// @Param device_id path string true "Register ID"
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Receipt cancelled"
// @Router /devices/{device_id}/receipt/cancel [post]
func (h *ECRHandler) CancelReceipt(c *gin.Context) {
	h.runJob(c, "Receipt cancelled", h.ecrService.CancelReceipt)
}

// PrintDuplicate prints a copy of the last receipt
// @Summary Print duplicate
// @Tags Jobs
// @Produce json
// @Param device_id path string true "Register ID"
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Duplicate printed"
// @Router /devices/{device_id}/receipt/duplicate [post]
func (h *ECRHandler) PrintDuplicate(c *gin.Context) {
	h.runJob(c, "Duplicate printed", h.ecrService.PrintDuplicate)
}

// DeleteArticles clears the article table
// @Summary Delete articles
// @Tags Jobs
// @Produce json
// @Param device_id path string true "Register ID"
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Articles deleted"
// @Router /devices/{device_id}/articles/delete [post]
func (h *ECRHandler) DeleteArticles(c *gin.Context) {
	h.runJob(c, "Articles deleted", h.ecrService.DeleteArticles)
}

// CommandRequest is an ad-hoc register command
type CommandRequest struct {
	Command *int   `json:"command" binding:"required"`
	Data    string `json:"data"`
}

// SendCommand sends an ad-hoc command
// @Summary Send command
// @Tags Jobs
// @Accept json
// @Produce json
// @Param device_id path string true "Register ID"
// @Param request body CommandRequest true "Command code and data"
// @Success 200 {object} utils.APIResponse{data=service.JobResponse} "Command sent"
// @Router /devices/{device_id}/commands [post]
func (h *ECRHandler) SendCommand(c *gin.Context) {
	var body CommandRequest
	if !bindJSON(c, &body) {
		return
	}

	h.runJob(c, "Command sent", func(ctx context.Context, req service.JobRequest) (*service.JobResponse, error) {
		return h.ecrService.SendCommand(ctx, req, *body.Command, body.Data)
	})
}

// ListJobs lists the journal of a register
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param device_id path string true "Register ID"
// @Param status query string false "Job status" Enums(PENDING, PROCESSING, SUCCESS, FAILED, TIMEOUT)
// @Param job_type query string false "Job type"
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} utils.APIResponse{data=[]model.PrintJob} "Jobs retrieved"
// @Router /devices/{device_id}/jobs [get]
func (h *ECRHandler) ListJobs(c *gin.Context) {
	filter := &repository.JobFilter{}
	if status := c.Query("status"); status != "" {
		s := model.JobStatus(strings.ToUpper(status))
		filter.Status = &s
	}
	if jobType := c.Query("job_type"); jobType != "" {
		t := model.JobType(strings.ToUpper(jobType))
		filter.JobType = &t
	}
	if limit := c.Query("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil || l < 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = l
	}

	jobs, err := h.ecrService.ListJobs(c.Request.Context(), c.Param("device_id"), filter)
	if err != nil {
		h.respondError(c, "Failed to list jobs", nil, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Jobs retrieved", jobs)
}

// GetJob returns one journal entry
// @Summary Get job
// @Tags Jobs
// @Produce json
// @Param job_id path string true "Job ID"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Job retrieved"
// @Failure 404 {object} utils.APIResponse "Job not found"
// @Router /jobs/{job_id} [get]
func (h *ECRHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid job ID", err)
		return
	}

	job, err := h.ecrService.GetJob(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get job", nil, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Job retrieved", job)
}

// EncodeReceipt returns the packet sequence of a sale without printing it
// @Summary Encode receipt
// @Tags Encoding
// @Accept json
// @Produce json
// @Param request body ecr.SaleParameters true "Sale"
// @Success 200 {object} utils.APIResponse "Packets encoded"
// @Failure 422 {object} utils.APIResponse "Sale cannot be encoded"
// @Router /encode/receipt [post]
func (h *ECRHandler) EncodeReceipt(c *gin.Context) {
	var params ecr.SaleParameters
	if !bindJSON(c, &params) {
		return
	}

	values, err := h.ecrService.EncodeReceipt(params)
	if err != nil {
		h.respondError(c, "Failed to encode receipt", nil, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Packets encoded", values)
}

// EncodeCommand frames one command without sending it
// @Summary Encode command
// @Tags Encoding
// @Accept json
// @Produce json
// @Param request body CommandRequest true "Command code and data"
// @Success 200 {object} utils.APIResponse "Packet encoded"
// @Router /encode/command [post]
func (h *ECRHandler) EncodeCommand(c *gin.Context) {
	var body CommandRequest
	if !bindJSON(c, &body) {
		return
	}

	values, err := h.ecrService.EncodeCommand(*body.Command, body.Data)
	if err != nil {
		h.respondError(c, "Failed to encode command", nil, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Packet encoded", values)
}

// DecodeRequest carries hex encoded response data and status bytes
type DecodeRequest struct {
	Data   string `json:"data"`
	Status string `json:"status"`
}

// DecodeResponse renders response bytes the way the register journal shows them
// @Summary Decode response
// @Tags Encoding
// @Accept json
// @Produce json
// @Param request body DecodeRequest true "Hex data and status"
// @Success 200 {object} utils.APIResponse{data=service.DecodedResponse} "Response decoded"
// @Failure 400 {object} utils.APIResponse "Invalid hex"
// @Router /decode/response [post]
func (h *ECRHandler) DecodeResponse(c *gin.Context) {
	var body DecodeRequest
	if !bindJSON(c, &body) {
		return
	}

	decoded, err := h.ecrService.DecodeResponse(body.Data, body.Status)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid hex", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Response decoded", decoded)
}

// bindJSON binds the request body and answers 400 on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	if fields := utils.ValidationErrors(err); fields != nil {
		utils.ValidationErrorResponse(c, fields)
	} else {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
	}
	return false
}

// runJob executes a job for the register in the path
func (h *ECRHandler) runJob(c *gin.Context, message string, run func(context.Context, service.JobRequest) (*service.JobResponse, error)) {
	req := service.JobRequest{
		DeviceID:      c.Param("device_id"),
		CorrelationID: c.GetHeader(CorrelationHeader),
	}

	resp, err := run(c.Request.Context(), req)
	if err != nil {
		if resp == nil {
			h.respondError(c, "Job failed", nil, err)
			return
		}
		h.respondError(c, "Job failed", resp, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, message, resp)
}

// respondError maps service and register errors to HTTP statuses
func (h *ECRHandler) respondError(c *gin.Context, message string, data interface{}, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	if data != nil {
		utils.ErrorResponseWithData(c, status, message, err, data)
		return
	}
	utils.ErrorResponse(c, status, message, err)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound), errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound
	case ecr.IsCommandError(err),
		errors.Is(err, ecr.ErrUnknownTaxCategory),
		errors.Is(err, ecr.ErrUnknownPaymentMethod),
		errors.Is(err, ecr.ErrUnknownReportType),
		errors.Is(err, ecr.ErrEmptyPayload),
		errors.Is(err, ecr.ErrPayloadTooLarge),
		errors.Is(err, ecr.ErrInvalidCommand):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ecr.ErrResponseTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ecr.ErrNotConnected),
		errors.Is(err, ecr.ErrNegativeAck),
		errors.Is(err, ecr.ErrMalformedResponse),
		errors.Is(err, ecr.ErrChecksumMismatch):
		return http.StatusBadGateway
	default:
		var jobErr *service.JobError
		if errors.As(err, &jobErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
