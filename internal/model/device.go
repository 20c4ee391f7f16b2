// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeviceType represents the type of device
type DeviceType string

const (
	DeviceTypeCashRegister DeviceType = "CASH_REGISTER"
)

// DeviceStatus represents the current status of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
)

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial    ConnectionType = "SERIAL"
	ConnectionTypeTCP       ConnectionType = "TCP"
	ConnectionTypeBluetooth ConnectionType = "BLUETOOTH"
)

// DeviceBrand represents supported register families
type DeviceBrand string

const (
	BrandDatecs  DeviceBrand = "DATECS"
	BrandDaisy   DeviceBrand = "DAISY"
	BrandGeneric DeviceBrand = "GENERIC"
)

// Capability represents what a device can do
type Capability string

const (
	CapabilityReceipt   Capability = "RECEIPT"
	CapabilityReport    Capability = "REPORT"
	CapabilityDuplicate Capability = "DUPLICATE"
	CapabilityArticles  Capability = "ARTICLES"
	CapabilityStatus    Capability = "STATUS"
	CapabilityCommand   Capability = "COMMAND"
)

// JSONArray type for PostgreSQL JSONB arrays
type JSONArray []interface{}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONArray", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// ToJSONObject converts any JSON-serialisable value into a JSONObject
func ToJSONObject(v interface{}) (JSONObject, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj JSONObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Device represents a configured cash register
type Device struct {
	DeviceID         string         `json:"device_id"`
	DeviceType       DeviceType     `json:"device_type"`
	Brand            DeviceBrand    `json:"brand"`
	Model            string         `json:"model"`
	ConnectionType   ConnectionType `json:"connection_type"`
	ConnectionConfig JSONObject     `json:"connection_config"`
	Capabilities     JSONArray      `json:"capabilities"`
	Location         *string        `json:"location,omitempty"`
	Status           DeviceStatus   `json:"status"`
	LastPing         *time.Time     `json:"last_ping,omitempty"`
}

// HasCapability checks if device has a specific capability
func (d *Device) HasCapability(capability Capability) bool {
	for _, c := range d.Capabilities {
		if c == string(capability) {
			return true
		}
	}
	return false
}

// IsOnline checks if device is currently online
func (d *Device) IsOnline() bool {
	return d.Status == DeviceStatusOnline
}
