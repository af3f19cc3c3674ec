package services

import (
	"context"
	"errors"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/actors"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// ErrUnknownTenant is returned when the tenant id is not in the registry.
var ErrUnknownTenant = errors.New("unknown tenant")

// QueryService is the dashboard's read surface over the tenant actors.
type QueryService struct {
	actorRegistry *actors.Registry
	detector      *tenant.Detector
	logger        *logging.ChanneledLogger
}

// NewQueryService builds the read facade.
func NewQueryService(actorRegistry *actors.Registry, detector *tenant.Detector, logger *logging.ChanneledLogger) *QueryService {
	return &QueryService{
		actorRegistry: actorRegistry,
		detector:      detector,
		logger:        logger,
	}
}

func (s *QueryService) actor(tenantID string) (*actors.Actor, error) {
	if !s.detector.Exists(tenantID) {
		return nil, ErrUnknownTenant
	}
	return s.actorRegistry.Get(tenantID)
}

// AggregateAll returns the full dashboard aggregate for one tenant.
func (s *QueryService) AggregateAll(ctx context.Context, tenantID string, filters *analytics.AggregateFilters) (*analytics.AggregateResult, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.AggregateAll(ctx, filters)
}

// EventSummary returns the paginated event-type summary for one tenant.
func (s *QueryService) EventSummary(ctx context.Context, tenantID string, filters *analytics.SummaryFilters) (*analytics.EventSummary, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.EventSummary(ctx, filters)
}

// CurrentVisitors counts visitors in the configured trailing window.
func (s *QueryService) CurrentVisitors(ctx context.Context, tenantID string) (*analytics.CurrentVisitors, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.CurrentVisitors(ctx, config.CurrentVisitorWindow)
}

// RunSQLQuery executes one guarded read-only query against the tenant log.
func (s *QueryService) RunSQLQuery(ctx context.Context, tenantID, query string, limit int) (*analytics.SQLQueryResult, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.RunSQLQuery(ctx, query, limit)
}

// GetSchema reflects the tenant log's schema for the query UI.
func (s *QueryService) GetSchema(ctx context.Context, tenantID string) (*analytics.SchemaResult, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.GetSchema(ctx)
}

// HealthCheck probes the tenant log.
func (s *QueryService) HealthCheck(ctx context.Context, tenantID string) (*analytics.HealthStatus, error) {
	actor, err := s.actor(tenantID)
	if err != nil {
		return nil, err
	}
	return actor.HealthCheck(ctx)
}
