package analytics

import (
	"fmt"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// summaryNameExpr is the grouping key of the summary: captured autocapture
// rows surface their element label, everything else groups by event name.
const summaryNameExpr = `CASE WHEN event = 'auto_capture'
	THEN COALESCE(NULLIF(json_extract(custom_data, '$.label'), ''), 'auto_capture')
	ELSE event END`

// EventSummary returns the paginated per-event-type rollup. Rows are grouped
// by event name, optionally partitioned by event class and autocapture
// action, searched, sorted and paged. Identical filters and sort yield a
// stable row order across pages.
func (s *EventStore) EventSummary(filters *analytics.SummaryFilters, now time.Time) (*analytics.EventSummary, error) {
	if filters == nil {
		filters = &analytics.SummaryFilters{}
	}

	where, args := filterClause(&filters.AggregateFilters, now)

	switch filters.Type {
	case analytics.SummaryTypePageView:
		where += " AND event IN " + pageViewEvents
	case analytics.SummaryTypeAutoCapture:
		where += " AND event = 'auto_capture'"
	case analytics.SummaryTypeEvent:
		where += " AND event NOT IN ('page_view', 'screen_view', 'auto_capture')"
	}
	if filters.Action != "" {
		where += " AND json_extract(custom_data, '$.action') = ?"
		args = append(args, filters.Action)
	}
	if filters.Search != "" {
		where += " AND " + summaryNameExpr + " LIKE ?"
		args = append(args, "%"+filters.Search+"%")
	}

	// Totals over the full partition, independent of paging.
	totals := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT %s) FROM events WHERE %s`,
		summaryNameExpr, where)

	start := time.Now()
	var totalEvents, totalTypes int
	if err := s.db.QueryRow(totals, args...).Scan(&totalEvents, &totalTypes); err != nil {
		s.logger.Database().Error("Summary totals query failed",
			"error", err.Error(), "siteId", s.siteID)
		return nil, fmt.Errorf("failed to compute summary totals: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = config.SQLQueryDefaultRows
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s AS name, COUNT(*) AS cnt, MIN(created_at), MAX(created_at)
		FROM events
		WHERE %s
		GROUP BY name
		ORDER BY %s, name ASC
		LIMIT ? OFFSET ?`, summaryNameExpr, where, summaryOrder(filters))

	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		s.logger.Database().Error("Summary query failed",
			"error", err.Error(), "siteId", s.siteID)
		return nil, fmt.Errorf("failed to run summary query: %w", err)
	}
	defer rows.Close()

	result := []analytics.SummaryRow{}
	for rows.Next() {
		var row analytics.SummaryRow
		if err := rows.Scan(&row.Event, &row.Count, &row.FirstSeen, &row.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		row.FirstSeen = normalizeTimestamp(row.FirstSeen)
		row.LastSeen = normalizeTimestamp(row.LastSeen)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary row iteration failed: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(start), s.siteID)

	return &analytics.EventSummary{
		Rows:            result,
		TotalEvents:     totalEvents,
		TotalEventTypes: totalTypes,
		Pagination: analytics.Pagination{
			Limit:   limit,
			Offset:  offset,
			Total:   totalTypes,
			HasMore: offset+len(result) < totalTypes,
		},
	}, nil
}

// summaryOrder maps the sort request onto a whitelisted ORDER BY fragment.
// Anything unrecognized falls back to count descending.
func summaryOrder(filters *analytics.SummaryFilters) string {
	direction := "DESC"
	switch filters.SortDirection {
	case "asc", "ASC":
		direction = "ASC"
	case "desc", "DESC", "":
	}

	switch filters.SortBy {
	case "first_seen":
		return "MIN(created_at) " + direction
	case "last_seen":
		return "MAX(created_at) " + direction
	case "count", "":
		return "cnt " + direction
	default:
		return "cnt DESC"
	}
}

// normalizeTimestamp rewrites a stored event timestamp as RFC3339 UTC so the
// API surface is uniform across adapters. Unparseable values pass through.
func normalizeTimestamp(value string) string {
	t, err := database.ParseTimestamp(value)
	if err != nil {
		return value
	}
	return t.UTC().Format(time.RFC3339)
}
