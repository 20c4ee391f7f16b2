// internal/service/events.go
package service

import (
	"errors"

	"go.uber.org/zap"

	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
)

const eventSource = "ecr-driver"

// driverEvents turns driver callbacks into published device events
type driverEvents struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func (e *driverEvents) publish(eventType model.EventType, deviceID, severity string, data model.JSONObject) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(model.NewDeviceEvent(eventType, deviceID, eventSource, severity, data))
}

// OnDeviceConnected handles device connected events
func (e *driverEvents) OnDeviceConnected(deviceID string) {
	e.publish(model.EventDeviceConnected, deviceID, model.SeverityInfo, model.JSONObject{
		"status": string(model.DeviceStatusOnline),
	})
	e.logger.Info("Register connected", zap.String("device_id", deviceID))
}

// OnDeviceDisconnected handles device disconnected events
func (e *driverEvents) OnDeviceDisconnected(deviceID string, reason string) {
	e.publish(model.EventDeviceDisconnected, deviceID, model.SeverityWarning, model.JSONObject{
		"status": string(model.DeviceStatusOffline),
		"reason": reason,
	})
	e.logger.Info("Register disconnected",
		zap.String("device_id", deviceID),
		zap.String("reason", reason),
	)
}

// OnDeviceError handles device errors. Paper out gets its own event type.
func (e *driverEvents) OnDeviceError(deviceID string, err error) {
	if errors.Is(err, ecr.ErrPaperOut) {
		e.publish(model.EventPaperOut, deviceID, model.SeverityWarning, model.JSONObject{
			"paper_status": "OUT",
		})
		return
	}

	e.publish(model.EventDeviceError, deviceID, model.SeverityError, model.JSONObject{
		"error": err.Error(),
	})
}

// OnStatusChanged handles device status change events
func (e *driverEvents) OnStatusChanged(deviceID string, oldStatus, newStatus model.DeviceStatus) {
	e.publish(model.EventStatusChange, deviceID, model.SeverityInfo, model.JSONObject{
		"old_status": string(oldStatus),
		"new_status": string(newStatus),
	})
}
