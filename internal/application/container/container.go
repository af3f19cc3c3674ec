// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/sitebeacon/sitebeacon-go/internal/application/services"
	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/actors"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/messaging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
type Container struct {
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker

	TenantManager *tenant.Manager
	ActorRegistry *actors.Registry

	DeliveryChannel messaging.DeliveryChannel
	Dispatcher      *messaging.Dispatcher

	IngestionService *services.IngestionService
	QueryService     *services.QueryService
}

// NewContainer creates and wires all singleton services. The delivery channel
// is only opened in queued mode; direct mode hands events straight to the
// tenant actors.
func NewContainer(tenantManager *tenant.Manager, logger *logging.ChanneledLogger) (*Container, error) {
	perfTracker := performance.NewTracker()
	actorRegistry := actors.NewRegistry(tenantManager, logger)
	detector := tenantManager.GetDetector()

	var channel messaging.DeliveryChannel
	if config.EventDeliveryMode == "queued" {
		kafka, err := messaging.NewKafkaQueue(logger)
		if err != nil {
			logger.Queue().Warn("Kafka unavailable, using in-process queue",
				"error", err.Error())
			channel = messaging.NewMemoryQueue(logger)
		} else {
			channel = kafka
		}
	}

	resolve := func(siteID string) (analytics.EventWriter, error) {
		tenantID, ok := detector.ResolveSiteUUID(siteID)
		if !ok {
			if detector.Exists(siteID) {
				tenantID = siteID
			} else {
				return nil, fmt.Errorf("no tenant registered for site %s", siteID)
			}
		}
		return actorRegistry.Get(tenantID)
	}
	dispatcher := messaging.NewDispatcher(resolve, logger, perfTracker)

	return &Container{
		Logger:           logger,
		PerfTracker:      perfTracker,
		TenantManager:    tenantManager,
		ActorRegistry:    actorRegistry,
		DeliveryChannel:  channel,
		Dispatcher:       dispatcher,
		IngestionService: services.NewIngestionService(tenantManager, actorRegistry, channel, logger, perfTracker),
		QueryService:     services.NewQueryService(actorRegistry, detector, logger),
	}, nil
}

// Shutdown releases the container's infrastructure in dependency order.
func (c *Container) Shutdown() {
	if c.DeliveryChannel != nil {
		if err := c.DeliveryChannel.Close(); err != nil {
			c.Logger.Shutdown().Error("Error closing delivery channel", "error", err.Error())
		}
	}
	c.ActorRegistry.Shutdown()
	if err := c.TenantManager.Close(); err != nil {
		c.Logger.Shutdown().Error("Error closing tenant manager", "error", err.Error())
	}
}
