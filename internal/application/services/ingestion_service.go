// Package services wires the domain and infrastructure layers into the
// operations the HTTP surface exposes.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/actors"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/messaging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/security"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// ErrUnknownTag is returned when no registered tenant owns the tag id.
var ErrUnknownTag = errors.New("unknown tag id")

// ErrTrackingDisabled is returned when the tenant does not accept events for
// the requested platform.
var ErrTrackingDisabled = errors.New("tracking disabled")

// TrackResult is the gateway's acknowledgement of one tracking request.
// Stored is false for requests that were accepted but intentionally not
// persisted (disabled platforms, rule definitions).
type TrackResult struct {
	RID    string `json:"rid,omitempty"`
	Queued bool   `json:"queued"`
	Stored bool   `json:"stored"`
}

// IngestionService is the tracking gateway: it resolves the tenant, gates the
// platform, normalizes the payload, assigns the visitor id and hands the
// event to the configured delivery path. The raw client IP exists only on
// the stack inside Track; it is hashed or discarded, never stored or logged.
type IngestionService struct {
	tenantManager *tenant.Manager
	actorRegistry *actors.Registry
	channel       messaging.DeliveryChannel
	normalizer    *analytics.Normalizer
	logger        *logging.ChanneledLogger
	perf          *performance.Tracker
}

// NewIngestionService builds the gateway. The delivery channel may be nil
// when the process runs in direct mode.
func NewIngestionService(
	tenantManager *tenant.Manager,
	actorRegistry *actors.Registry,
	channel messaging.DeliveryChannel,
	logger *logging.ChanneledLogger,
	perf *performance.Tracker,
) *IngestionService {
	return &IngestionService{
		tenantManager: tenantManager,
		actorRegistry: actorRegistry,
		channel:       channel,
		normalizer:    analytics.NewNormalizer(config.BlockedQueryParams),
		logger:        logger,
		perf:          perf,
	}
}

// Track processes one tracking request end to end.
func (s *IngestionService) Track(ctx context.Context, tagID, platform, userAgent, clientIP string, payload *analytics.TrackPayload) (*TrackResult, error) {
	marker := s.perf.StartOperation("track_event", tagID)
	defer marker.Complete()

	tenantCtx, err := s.tenantManager.GetContextByTag(tagID)
	if err != nil {
		marker.SetError(ErrUnknownTag)
		return nil, ErrUnknownTag
	}

	if !tenantCtx.Config.TrackingEnabled(platform) {
		s.logger.Ingest().Debug("Tracking disabled for platform",
			"tenantId", tenantCtx.TenantID, "platform", platform)
		marker.SetError(ErrTrackingDisabled)
		return nil, ErrTrackingDisabled
	}

	event, err := s.normalizer.Normalize(payload, userAgent, platform, time.Now())
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	event.TagID = tagID
	event.SiteID = tenantCtx.Config.SiteUUID
	if event.SiteID == "" {
		event.SiteID = tenantCtx.TenantID
	}

	rid, err := s.resolveRID(tenantCtx, payload.RID, clientIP)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if rid != "" {
		event.RID = &rid
	}

	// Capture-rule definitions configure the client, they are never stored.
	if event.IsRuleDefinition() {
		s.logger.Ingest().Debug("Acknowledged capture rule definition",
			"tenantId", tenantCtx.TenantID)
		marker.SetSuccess(true)
		return &TrackResult{RID: rid}, nil
	}

	if config.EventDeliveryMode == "queued" && s.channel != nil {
		msg := messaging.NewSiteEventMessage(event.SiteID, tenantCtx.Database.AdapterName(), []*analytics.Event{event})
		msg.SiteUUID = tenantCtx.Config.SiteUUID
		if err := s.channel.Publish(ctx, msg); err != nil {
			marker.SetError(err)
			return nil, fmt.Errorf("failed to enqueue event: %w", err)
		}
		marker.SetSuccess(true)
		s.logger.Ingest().Debug("Event queued",
			"tenantId", tenantCtx.TenantID, "event", event.Event)
		return &TrackResult{RID: rid, Queued: true, Stored: true}, nil
	}

	actor, err := s.actorRegistry.Get(tenantCtx.TenantID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to reach tenant actor: %w", err)
	}
	result := actor.Insert(event.SiteID, []*analytics.Event{event})
	if !result.Success {
		err := errors.New(result.Error)
		marker.SetError(err)
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	marker.SetSuccess(true)
	s.logger.Ingest().Debug("Event stored",
		"tenantId", tenantCtx.TenantID, "event", event.Event)
	return &TrackResult{RID: rid, Stored: true}, nil
}

// resolveRID picks the visitor id. Pass-through tenants use the
// client-supplied value verbatim; when the payload carries none the event
// stays anonymous, the client IP is never hashed for these tenants. All
// other tenants get a keyed hash of the client IP under the current salt,
// so visitors become unlinkable across salt windows.
func (s *IngestionService) resolveRID(tenantCtx *tenant.Context, payloadRID, clientIP string) (string, error) {
	if tenantCtx.Config.PassthroughRID {
		return payloadRID, nil
	}

	salt, err := tenantCtx.ActiveSalt(time.Now(), config.RIDSaltTTL)
	if err != nil {
		return "", fmt.Errorf("failed to resolve visitor salt: %w", err)
	}
	return security.VisitorID(clientIP, salt), nil
}
