// Package analytics provides the concrete SQL-based implementation of one
// tenant's durable event log.
//
// PURPOSE: store tracking events as they arrive and answer the aggregate,
// summary, visitor and ad-hoc queries the dashboard needs. One store instance
// owns exactly one tenant's log; the owning actor serializes all access, so
// no statement here needs row-level locking.
//
// Inserts are append-only with fresh ULIDs and no content-hash dedup key:
// a chunk replayed after a partial batch failure will over-count. That is the
// accepted at-least-once trade-off of the delivery channel.
package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/security"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// EventStore handles event persistence and querying for a single tenant.
type EventStore struct {
	db      *database.DB
	siteID  string
	adapter string
	logger  *logging.ChanneledLogger
}

// NewEventStore creates a store over the tenant's connection and bootstraps
// the schema.
func NewEventStore(db *database.DB, siteID, adapter string, logger *logging.ChanneledLogger) (*EventStore, error) {
	if err := database.NewTableCreator().CreateSchema(db.DB); err != nil {
		return nil, fmt.Errorf("failed to create event log schema: %w", err)
	}
	return &EventStore{db: db, siteID: siteID, adapter: adapter, logger: logger}, nil
}

// SiteID returns the tenant this store belongs to.
func (s *EventStore) SiteID() string { return s.siteID }

// InsertEvents appends a batch of events in one transaction. Either every
// event in the batch persists or none do.
func (s *EventStore) InsertEvents(events []*analytics.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO events (
			id, site_id, tag_id, event, created_at,
			page_url, client_page_url, referer, rid,
			browser, operating_system, device_type,
			screen_width, screen_height,
			country, region, city, postal,
			bot_data, query_params, custom_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		queryParams, err := marshalJSONField(ev.QueryParams)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to encode query params: %w", err)
		}
		customData, err := marshalJSONField(ev.CustomData)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to encode custom data: %w", err)
		}

		var rid sql.NullString
		if ev.RID != nil && *ev.RID != "" {
			rid = sql.NullString{String: *ev.RID, Valid: true}
		}

		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := stmt.Exec(
			security.GenerateULID(),
			s.siteID,
			ev.TagID,
			ev.Event,
			createdAt.UTC().Format(sqliteTimeFormat),
			ev.PageURL,
			ev.ClientPageURL,
			ev.Referer,
			rid,
			ev.Browser,
			ev.OperatingSystem,
			ev.DeviceType,
			ev.ScreenWidth,
			ev.ScreenHeight,
			ev.Country,
			ev.Region,
			ev.City,
			ev.Postal,
			ev.BotData,
			queryParams,
			customData,
		); err != nil {
			tx.Rollback()
			s.logger.Database().Error("Event insert failed",
				"error", err.Error(), "siteId", s.siteID, "event", ev.Event)
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert transaction: %w", err)
	}

	duration := time.Since(start)
	s.logger.Database().Debug("Event batch insert completed",
		"siteId", s.siteID, "count", len(events), "duration", duration)
	database.CheckAndLogSlowQuery(s.logger, query, duration, s.siteID)

	return len(events), nil
}

// TotalEvents counts the entire log, unfiltered.
func (s *EventStore) TotalEvents() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CurrentVisitors counts distinct visitors seen within the trailing window.
func (s *EventStore) CurrentVisitors(window time.Duration, now time.Time) (*analytics.CurrentVisitors, error) {
	cutoff := now.UTC().Add(-window).Format(sqliteTimeFormat)

	const query = `
		SELECT COUNT(DISTINCT rid) FROM events
		WHERE rid IS NOT NULL AND rid != '' AND created_at >= ?`

	start := time.Now()
	var count int
	if err := s.db.QueryRow(query, cutoff).Scan(&count); err != nil {
		s.logger.Database().Error("Current visitor query failed",
			"error", err.Error(), "siteId", s.siteID)
		return nil, fmt.Errorf("failed to count current visitors: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(start), s.siteID)

	return &analytics.CurrentVisitors{
		Count:         count,
		WindowSeconds: int(window.Seconds()),
	}, nil
}

// HealthCheck is the cheap liveness probe over the store.
func (s *EventStore) HealthCheck() (*analytics.HealthStatus, error) {
	total, err := s.TotalEvents()
	if err != nil {
		return nil, err
	}
	return &analytics.HealthStatus{
		TotalEvents: total,
		Adapter:     s.adapter,
		SiteID:      s.siteID,
	}, nil
}

func marshalJSONField(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
