// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitebeacon/sitebeacon-go/internal/application/container"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/security"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
	"github.com/sitebeacon/sitebeacon-go/internal/presentation/http/server"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// Initialize performs the complete multi-tenant startup sequence.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("SiteBeacon starting...")

	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	// Step 1: Load tenant registry to discover all tenants.
	logger.Startup().Info("Loading tenant registry...")
	registry, err := tenant.LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to load tenant registry: %w", err)
	}

	if len(registry.Tenants) == 0 {
		logger.Startup().Info("No tenants found in registry, creating default tenant")
		if err := registerDefaultTenant(); err != nil {
			return fmt.Errorf("failed to register default tenant: %w", err)
		}
		registry, err = tenant.LoadTenantRegistry()
		if err != nil {
			return fmt.Errorf("failed to reload registry: %w", err)
		}
	}
	logger.Startup().Info("Tenant registry loaded", "tenants", len(registry.Tenants))

	// Step 2: Initialize tenant system and pre-activate connections.
	tenantManager, err := tenant.NewManager(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tenant manager: %w", err)
	}
	if err := tenantManager.PreActivateAllTenants(); err != nil {
		return fmt.Errorf("tenant pre-activation failed: %w", err)
	}
	logger.Startup().Info("Tenant pre-activation complete",
		"activeTenants", tenantManager.GetActiveTenantCount())

	// Step 3: Create dependency injection container.
	appContainer, err := container.NewContainer(tenantManager, logger)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	logger.Startup().Info("Dependency injection container created",
		"deliveryMode", config.EventDeliveryMode)

	// Step 4: Start the dispatch consumer in queued mode.
	if appContainer.DeliveryChannel != nil {
		go func() {
			if err := appContainer.Dispatcher.Run(ctx, appContainer.DeliveryChannel); err != nil && ctx.Err() == nil {
				logger.Dispatch().Error("Dispatch consumer exited", "error", err.Error())
			}
		}()
		logger.Startup().Info("Dispatch consumer started")
	}

	// Step 5: Start HTTP server.
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	shutdownStart := time.Now()

	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	appContainer.Shutdown()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return logger.Close()
}

// registerDefaultTenant seeds the registry with a single local tenant so a
// fresh install can accept traffic immediately.
func registerDefaultTenant() error {
	siteUUID := security.GenerateSiteUUID()
	info := tenant.TenantInfo{
		TenantID:     "default",
		TagID:        security.GenerateULID(),
		SiteUUID:     siteUUID,
		Status:       "active",
		DatabaseType: "sqlite3",
	}
	if err := tenant.RegisterTenant(info); err != nil {
		return err
	}
	return tenant.SaveTenantConfig(&tenant.Config{
		TenantID:     info.TenantID,
		TagID:        info.TagID,
		SiteUUID:     siteUUID,
		Status:       "active",
		DatabaseType: "sqlite3",
	})
}

// setupLogging configures application logging.
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags)
}
