// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "ecr-service/docs"
	"ecr-service/internal/config"
	"ecr-service/internal/database"
	"ecr-service/internal/discovery"
	"ecr-service/internal/discovery/tcp"
	"ecr-service/internal/driver"
	"ecr-service/internal/handler"
	"ecr-service/internal/repository"
	"ecr-service/internal/routes"
	"ecr-service/internal/service"
	"ecr-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	jobRepo        repository.JobRepository
	driverRegistry *driver.Registry
	eventBus       *handler.EventBus
	ecrService     *service.ECRService
	scanners       *discovery.ScannerManager
	wsHandler      *handler.WebSocketHandler

	stop chan struct{}
}

// @title ECR Service API
// @version 1.0.0
// @description Fiscal cash register service: receipts, reports and raw commands over serial, Bluetooth and TCP

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "ecr-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}

	if err := app.initializeJournal(); err != nil {
		return nil, fmt.Errorf("failed to initialize job journal: %w", err)
	}

	app.initializeDriverRegistry()

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeJournal connects to PostgreSQL and runs migrations, or falls
// back to an in-memory journal when the database is disabled
func (app *Application) initializeJournal() error {
	if !app.config.Database.Enabled {
		app.jobRepo = repository.NewMemoryJobRepository()
		app.logger.Info("Database disabled, keeping job journal in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if err := database.NewMigrator(db, app.logger).Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.jobRepo = repository.NewJobRepository(db, app.logger)
	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeDriverRegistry sets up device driver registry
func (app *Application) initializeDriverRegistry() {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, service.NewDriverSettings(app.config), app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.eventBus = handler.NewEventBus(app.logger)

	ecrService, err := service.NewECRService(app.config, app.driverRegistry, app.jobRepo, app.eventBus, app.logger)
	if err != nil {
		return err
	}
	app.ecrService = ecrService

	app.scanners = handler.NewDefaultScannerManager(app.logger,
		tcp.NewScanner(app.logger, tcp.TargetsFromConfig(app.config.Devices), app.config.Device.ConnectTimeout),
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.ecrService,
		app.eventBus,
		app.scanners,
	)

	router := routerManager.SetupRouter()
	app.wsHandler = routerManager.WebSocketHandler()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	go app.eventBus.Start()
	go app.wsHandler.Run()
	go app.startCleanupService()

	app.logger.Info("Background services started")
}

// startCleanupService drops old journal entries periodically
func (app *Application) startCleanupService() {
	period := app.config.Database.CleanupPeriod
	if period <= 0 {
		period = time.Hour
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("interval", period),
		zap.Duration("retention", app.config.Database.JobRetention),
	)

	for {
		select {
		case <-app.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := app.ecrService.CleanupJobs(ctx); err != nil {
				app.logger.Error("Failed to cleanup old jobs", zap.Error(err))
			}
			cancel()
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "ecr-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	close(app.stop)

	if err := app.ecrService.Close(); err != nil {
		app.logger.Error("Register disconnect error", zap.Error(err))
	}

	app.eventBus.Stop()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and blocks until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()

	return nil
}
