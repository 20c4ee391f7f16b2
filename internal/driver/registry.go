// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ecr-service/internal/model"
	"ecr-service/pkg/driver"
)

// AnyModel registers a factory for every model of a brand
const AnyModel = "*"

// DriverFactory creates device drivers
type DriverFactory func(device *model.Device, connectionConfig interface{}, logger *zap.Logger) (driver.DeviceDriver, error)

// Registry maps register brands and models to driver factories
type Registry struct {
	drivers map[DriverKey]DriverFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// DriverKey uniquely identifies a driver
type DriverKey struct {
	Brand      model.DeviceBrand
	DeviceType model.DeviceType
	Model      string
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[DriverKey]DriverFactory),
		logger:  logger,
	}
}

// Register registers a driver factory
func (r *Registry) Register(brand model.DeviceBrand, deviceType model.DeviceType, deviceModel string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[DriverKey{Brand: brand, DeviceType: deviceType, Model: deviceModel}] = factory
	r.logger.Debug("Driver registered",
		zap.String("brand", string(brand)),
		zap.String("device_type", string(deviceType)),
		zap.String("model", deviceModel),
	)
}

// lookup tries the exact model, then any model of the brand, then the generic brand
func (r *Registry) lookup(brand model.DeviceBrand, deviceType model.DeviceType, deviceModel string) (DriverFactory, bool) {
	candidates := []DriverKey{
		{Brand: brand, DeviceType: deviceType, Model: deviceModel},
		{Brand: brand, DeviceType: deviceType, Model: AnyModel},
		{Brand: model.BrandGeneric, DeviceType: deviceType, Model: AnyModel},
	}
	for _, key := range candidates {
		if factory, ok := r.drivers[key]; ok {
			return factory, true
		}
	}
	return nil, false
}

// CreateDriver creates a driver instance
func (r *Registry) CreateDriver(device *model.Device, connectionConfig interface{}) (driver.DeviceDriver, error) {
	r.mu.RLock()
	factory, ok := r.lookup(device.Brand, device.DeviceType, device.Model)
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no driver found for brand=%s, type=%s, model=%s",
			device.Brand, device.DeviceType, device.Model)
	}
	return factory(device, connectionConfig, r.logger)
}

// ListDrivers returns all registered drivers ordered by brand and model
func (r *Registry) ListDrivers() []DriverKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]DriverKey, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Brand != keys[j].Brand {
			return keys[i].Brand < keys[j].Brand
		}
		return keys[i].Model < keys[j].Model
	})
	return keys
}

// IsSupported checks if a device is supported
func (r *Registry) IsSupported(brand model.DeviceBrand, deviceType model.DeviceType, deviceModel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.lookup(brand, deviceType, deviceModel)
	return ok
}

// GetSupportedBrands returns all supported brands for a device type
func (r *Registry) GetSupportedBrands(deviceType model.DeviceType) []model.DeviceBrand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	brandSet := make(map[model.DeviceBrand]bool)
	for key := range r.drivers {
		if key.DeviceType == deviceType {
			brandSet[key.Brand] = true
		}
	}

	brands := make([]model.DeviceBrand, 0, len(brandSet))
	for brand := range brandSet {
		brands = append(brands, brand)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i] < brands[j] })
	return brands
}
