package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
)

const (
	pageViewEvents = `('page_view', 'screen_view')`
	breakdownLimit = 10
	// Ranges at or under this many hours bucket the time series hourly.
	hourlyBucketMaxHours = 48
)

// sourceExpr resolves an event's traffic source: the utm_source query param
// when present, otherwise the referer, otherwise "direct".
const sourceExpr = `COALESCE(NULLIF(json_extract(query_params, '$.utm_source'), ''),
	CASE WHEN COALESCE(referer, '') = '' THEN 'direct' ELSE referer END)`

// pageExpr prefers the server-observed page URL over the client-reported one.
const pageExpr = `COALESCE(NULLIF(page_url, ''), client_page_url)`

// filterClause builds the shared WHERE fragment for aggregate queries.
// Conditions are ANDed; an empty filter yields "1=1" so callers can always
// append further conditions.
func filterClause(f *analytics.AggregateFilters, now time.Time) (string, []any) {
	conditions := []string{"1=1"}
	args := []any{}

	start, end := f.Range(now)
	if start != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, start.UTC().Format(sqliteTimeFormat))
	}
	if end != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, end.UTC().Format(sqliteTimeFormat))
	}
	if f.DeviceType != "" {
		conditions = append(conditions, "device_type = ?")
		args = append(args, f.DeviceType)
	}
	if f.Country != "" {
		conditions = append(conditions, "country = ?")
		args = append(args, f.Country)
	}
	if f.Region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, f.Region)
	}
	if f.City != "" {
		conditions = append(conditions, "city = ?")
		args = append(args, f.City)
	}
	if f.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, f.Event)
	}
	if f.PageURL != "" {
		conditions = append(conditions, "("+pageExpr+" = ? OR client_page_url = ?)")
		args = append(args, f.PageURL, f.PageURL)
	}
	if f.Source != "" {
		if f.Source == "direct" {
			conditions = append(conditions,
				"COALESCE(json_extract(query_params, '$.utm_source'), '') = '' AND COALESCE(referer, '') = ''")
		} else {
			conditions = append(conditions,
				"(json_extract(query_params, '$.utm_source') = ? OR referer LIKE ?)")
			args = append(args, f.Source, "%"+f.Source+"%")
		}
	}

	return strings.Join(conditions, " AND "), args
}

// AggregateAll computes score cards, every dimensional breakdown and the
// time series over the filtered window in one pass.
func (s *EventStore) AggregateAll(filters *analytics.AggregateFilters, now time.Time) (*analytics.AggregateResult, error) {
	if filters == nil {
		filters = &analytics.AggregateFilters{}
	}
	overall := time.Now()

	where, args := filterClause(filters, now)
	result := &analytics.AggregateResult{}

	cards, err := s.scoreCards(where, args)
	if err != nil {
		return nil, err
	}
	result.ScoreCards = *cards

	breakdowns := []struct {
		expr string
		dest *[]analytics.BreakdownRow
	}{
		{"NULLIF(referer, '')", &result.Referrers},
		{sourceExpr, &result.Sources},
		{"browser", &result.Browsers},
		{"operating_system", &result.Systems},
		{"device_type", &result.Devices},
		{"NULLIF(country, '')", &result.Countries},
		{"NULLIF(region, '')", &result.Regions},
		{"NULLIF(city, '')", &result.Cities},
		{pageExpr, &result.TopPages},
		{"event", &result.EventTypes},
	}
	for _, b := range breakdowns {
		rows, err := s.breakdown(b.expr, where, args)
		if err != nil {
			return nil, err
		}
		*b.dest = rows
	}

	series, err := s.timeSeries(filters, where, args, now)
	if err != nil {
		return nil, err
	}
	result.TimeSeries = series

	total, err := s.TotalEvents()
	if err != nil {
		return nil, err
	}
	result.TotalAllTime = total

	duration := time.Since(overall)
	s.logger.Database().Info("Aggregate query completed",
		"siteId", s.siteID, "duration", duration)
	database.CheckAndLogSlowQuery(s.logger, "aggregate-all", duration, s.siteID)

	return result, nil
}

func (s *EventStore) scoreCards(where string, args []any) (*analytics.ScoreCards, error) {
	cards := &analytics.ScoreCards{}

	headline := fmt.Sprintf(`
		SELECT
			COUNT(DISTINCT CASE WHEN rid IS NOT NULL AND rid != '' THEN rid END),
			COUNT(CASE WHEN event IN %s THEN 1 END),
			COUNT(CASE WHEN event NOT IN %s THEN 1 END)
		FROM events WHERE %s`, pageViewEvents, pageViewEvents, where)

	start := time.Now()
	if err := s.db.QueryRow(headline, args...).Scan(
		&cards.UniqueVisitors, &cards.TotalPageViews, &cards.CustomEventCount); err != nil {
		s.logger.Database().Error("Score card query failed",
			"error", err.Error(), "siteId", s.siteID)
		return nil, fmt.Errorf("failed to compute score cards: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, headline, time.Since(start), s.siteID)

	// Bounce rate: share of visitors whose window contains exactly one page
	// view, over visitors with at least one page view.
	bounce := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN views = 1 THEN 1 END)
		FROM (
			SELECT rid, COUNT(*) AS views FROM events
			WHERE %s AND rid IS NOT NULL AND rid != '' AND event IN %s
			GROUP BY rid
		)`, where, pageViewEvents)

	var pvVisitors, bounced int
	if err := s.db.QueryRow(bounce, args...).Scan(&pvVisitors, &bounced); err != nil {
		return nil, fmt.Errorf("failed to compute bounce rate: %w", err)
	}
	if pvVisitors > 0 {
		cards.BounceRate = float64(bounced) / float64(pvVisitors) * 100
	}

	// Conversion rate: share of visitors that fired at least one custom event.
	conversion := fmt.Sprintf(`
		SELECT COUNT(DISTINCT rid) FROM events
		WHERE %s AND rid IS NOT NULL AND rid != '' AND event NOT IN %s`,
		where, pageViewEvents)

	var converted int
	if err := s.db.QueryRow(conversion, args...).Scan(&converted); err != nil {
		return nil, fmt.Errorf("failed to compute conversion rate: %w", err)
	}
	if cards.UniqueVisitors > 0 {
		cards.ConversionRate = float64(converted) / float64(cards.UniqueVisitors) * 100
	}

	// Average session duration over multi-event visitors, in seconds.
	session := fmt.Sprintf(`
		SELECT COALESCE(AVG(span), 0) FROM (
			SELECT strftime('%%s', MAX(created_at)) - strftime('%%s', MIN(created_at)) AS span
			FROM events
			WHERE %s AND rid IS NOT NULL AND rid != ''
			GROUP BY rid
			HAVING COUNT(*) > 1
		)`, where)

	if err := s.db.QueryRow(session, args...).Scan(&cards.AvgSessionDuration); err != nil {
		return nil, fmt.Errorf("failed to compute session duration: %w", err)
	}

	return cards, nil
}

func (s *EventStore) breakdown(expr, where string, args []any) ([]analytics.BreakdownRow, error) {
	query := fmt.Sprintf(`
		SELECT %s AS label, COUNT(*) AS cnt FROM events
		WHERE %s AND %s IS NOT NULL
		GROUP BY label
		ORDER BY cnt DESC, label ASC
		LIMIT %d`, expr, where, expr, breakdownLimit)

	start := time.Now()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logger.Database().Error("Breakdown query failed",
			"error", err.Error(), "siteId", s.siteID, "expr", expr)
		return nil, fmt.Errorf("failed to run breakdown query: %w", err)
	}
	defer rows.Close()

	result := []analytics.BreakdownRow{}
	for rows.Next() {
		var row analytics.BreakdownRow
		if err := rows.Scan(&row.Label, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("breakdown row iteration failed: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(start), s.siteID)

	return result, nil
}

func (s *EventStore) timeSeries(filters *analytics.AggregateFilters, where string, args []any, now time.Time) ([]analytics.TimeSeriesPoint, error) {
	bucket := `strftime('%Y-%m-%d', created_at)`
	start, end := filters.Range(now)
	if start != nil {
		e := now
		if end != nil {
			e = *end
		}
		if e.Sub(*start) <= hourlyBucketMaxHours*time.Hour {
			bucket = `strftime('%Y-%m-%d %H:00', created_at)`
		}
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket,
			COUNT(CASE WHEN event IN %s THEN 1 END),
			COUNT(DISTINCT CASE WHEN rid IS NOT NULL AND rid != '' THEN rid END)
		FROM events
		WHERE %s
		GROUP BY bucket
		ORDER BY bucket ASC`, bucket, pageViewEvents, where)

	began := time.Now()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run time series query: %w", err)
	}
	defer rows.Close()

	series := []analytics.TimeSeriesPoint{}
	for rows.Next() {
		var p analytics.TimeSeriesPoint
		if err := rows.Scan(&p.Bucket, &p.PageViews, &p.Visitors); err != nil {
			return nil, fmt.Errorf("failed to scan time series row: %w", err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("time series iteration failed: %w", err)
	}
	database.CheckAndLogSlowQuery(s.logger, query, time.Since(began), s.siteID)

	return series, nil
}
