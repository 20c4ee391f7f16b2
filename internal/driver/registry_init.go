// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"ecr-service/internal/driver/ecr"
	"ecr-service/internal/model"
)

// RegisterDefaultDrivers registers the cash register drivers. All supported
// brands speak the same framed protocol and share one factory.
func RegisterDefaultDrivers(registry *Registry, settings ecr.DriverSettings, logger *zap.Logger) {
	factory := DriverFactory(settings.Factory())

	brands := []model.DeviceBrand{model.BrandDatecs, model.BrandDaisy, model.BrandGeneric}
	for _, brand := range brands {
		registry.Register(brand, model.DeviceTypeCashRegister, AnyModel, factory)
	}

	logger.Info("Cash register drivers registered",
		zap.Int("brands", len(brands)),
	)
}
