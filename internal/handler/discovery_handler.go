// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecr-service/internal/discovery"
	"ecr-service/internal/discovery/serial"
	"ecr-service/internal/utils"
)

// DiscoveryHandler lists the ports a register can be attached to
type DiscoveryHandler struct {
	scanners *discovery.ScannerManager
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanners *discovery.ScannerManager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanners: scanners,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// NewDefaultScannerManager registers the serial scanner
func NewDefaultScannerManager(logger *zap.Logger, extra ...discovery.PortScanner) *discovery.ScannerManager {
	manager := discovery.NewScannerManager(logger)
	manager.RegisterScanner(serial.NewScanner(logger))
	for _, scanner := range extra {
		manager.RegisterScanner(scanner)
	}
	return manager
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/discovery/ports", h.ScanPorts)
}

// ScanPorts scans for register ports
// @Summary Scan ports
// @Description List serial and Bluetooth ports and probe the configured network adapters
// @Tags Discovery
// @Produce json
// @Param type query string false "Scanner" Enums(all, serial, tcp) default(all)
// @Param timeout query string false "Scan timeout" default(10s)
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]discovery.DiscoveredPort}} "Scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid parameters"
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")

	timeout, err := time.ParseDuration(c.DefaultQuery("timeout", "10s"))
	if err != nil || timeout <= 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid timeout", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var ports []*discovery.DiscoveredPort
	if scanType == "all" {
		ports, err = h.scanners.ScanAll(ctx)
	} else {
		ports, err = h.scanners.ScanByType(ctx, scanType)
	}
	if err != nil {
		h.logger.Error("Port scan failed", zap.String("type", scanType), zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadRequest, "Port scan failed", err)
		return
	}
	if ports == nil {
		ports = []*discovery.DiscoveredPort{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
		"scanners":    h.scanners.GetAvailableScanners(),
	})
}
