package analytics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
)

func newTestStore(t *testing.T, siteID string) *EventStore {
	t.Helper()

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	db, err := database.NewConnection("sqlite3", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewEventStore(db, siteID, "sqlite3", logger)
	require.NoError(t, err)
	return store
}

func rid(s string) *string { return &s }

func pageView(ridVal, page string, at time.Time) *domain.Event {
	ev := &domain.Event{
		Event:         "page_view",
		CreatedAt:     at,
		ClientPageURL: page,
		Browser:       "chrome",
		DeviceType:    "desktop",
		Country:       "DE",
	}
	if ridVal != "" {
		ev.RID = rid(ridVal)
	}
	return ev
}

func TestInsertEventsIncrementsTotal(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	total, err := store.TotalEvents()
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	inserted, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", now),
		pageView("v2", "/pricing", now),
		{Event: "signup", CreatedAt: now, RID: rid("v1"), CustomData: map[string]any{"plan": "pro"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	total, err = store.TotalEvents()
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	health, err := store.HealthCheck()
	require.NoError(t, err)
	assert.Equal(t, 3, health.TotalEvents)
	assert.Equal(t, "sqlite3", health.Adapter)
	assert.Equal(t, "site-a", health.SiteID)
}

func TestInsertEventsEmptyBatch(t *testing.T) {
	store := newTestStore(t, "site-a")

	inserted, err := store.InsertEvents(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestTenantIsolation(t *testing.T) {
	storeA := newTestStore(t, "site-a")
	storeB := newTestStore(t, "site-b")

	_, err := storeA.InsertEvents([]*domain.Event{pageView("v1", "/", time.Now().UTC())})
	require.NoError(t, err)

	totalB, err := storeB.TotalEvents()
	require.NoError(t, err)
	assert.Equal(t, 0, totalB, "one tenant's writes must not appear in another's log")
}

func TestAggregateAllScoreCards(t *testing.T) {
	store := newTestStore(t, "site-a")
	base := time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)

	// v1: two page views plus a custom event. v2: single page view (bounce).
	_, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", base),
		pageView("v1", "/pricing", base.Add(2*time.Minute)),
		{Event: "signup", CreatedAt: base.Add(3 * time.Minute), RID: rid("v1")},
		pageView("v2", "/", base.Add(time.Minute)),
	})
	require.NoError(t, err)

	result, err := store.AggregateAll(&domain.AggregateFilters{}, base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, result.ScoreCards.UniqueVisitors)
	assert.Equal(t, 3, result.ScoreCards.TotalPageViews)
	assert.Equal(t, 1, result.ScoreCards.CustomEventCount)
	assert.InDelta(t, 50.0, result.ScoreCards.BounceRate, 0.01, "one of two page-view visitors bounced")
	assert.InDelta(t, 50.0, result.ScoreCards.ConversionRate, 0.01, "one of two visitors converted")
	assert.InDelta(t, 180.0, result.ScoreCards.AvgSessionDuration, 0.01, "v1 spans three minutes")
	assert.Equal(t, 4, result.TotalAllTime)
}

func TestAggregateAllBreakdownsAndSeries(t *testing.T) {
	store := newTestStore(t, "site-a")
	base := time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)

	_, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", base),
		pageView("v2", "/", base.Add(26*time.Hour)),
	})
	require.NoError(t, err)

	start := base.Add(-time.Hour)
	end := base.Add(30 * time.Hour)
	result, err := store.AggregateAll(&domain.AggregateFilters{
		StartDate:  &start,
		EndDate:    &end,
		EndIsExact: true,
	}, end)
	require.NoError(t, err)

	require.NotEmpty(t, result.Devices)
	assert.Equal(t, "desktop", result.Devices[0].Label)
	assert.Equal(t, 2, result.Devices[0].Count)

	require.NotEmpty(t, result.Countries)
	assert.Equal(t, "DE", result.Countries[0].Label)

	require.Len(t, result.TimeSeries, 2, "a 31-hour window buckets hourly")
	assert.Contains(t, result.TimeSeries[0].Bucket, ":00")
}

func TestAggregateAllDailyBuckets(t *testing.T) {
	store := newTestStore(t, "site-a")
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", base),
		pageView("v2", "/", base.AddDate(0, 0, 5)),
	})
	require.NoError(t, err)

	start := base.AddDate(0, 0, -1)
	end := base.AddDate(0, 0, 6)
	result, err := store.AggregateAll(&domain.AggregateFilters{
		StartDate:  &start,
		EndDate:    &end,
		EndIsExact: true,
	}, end)
	require.NoError(t, err)

	require.Len(t, result.TimeSeries, 2)
	assert.Equal(t, "2025-05-01", result.TimeSeries[0].Bucket)
	assert.Equal(t, "2025-05-06", result.TimeSeries[1].Bucket)
}

func TestAggregateAllFilterByDevice(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	mobile := pageView("v3", "/", now)
	mobile.DeviceType = "mobile"

	_, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", now),
		pageView("v2", "/", now),
		mobile,
	})
	require.NoError(t, err)

	result, err := store.AggregateAll(&domain.AggregateFilters{DeviceType: "mobile"}, now)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ScoreCards.UniqueVisitors)
	assert.Equal(t, 1, result.ScoreCards.TotalPageViews)
	assert.Equal(t, 3, result.TotalAllTime, "all-time total ignores filters")
}

func TestEventSummaryPagination(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	events := []*domain.Event{}
	counts := map[string]int{"page_view": 5, "signup": 3, "checkout": 2, "share": 1}
	for name, n := range counts {
		for i := 0; i < n; i++ {
			events = append(events, &domain.Event{Event: name, CreatedAt: now, RID: rid("v1")})
		}
	}
	_, err := store.InsertEvents(events)
	require.NoError(t, err)

	page1, err := store.EventSummary(&domain.SummaryFilters{Limit: 2, Offset: 0}, now)
	require.NoError(t, err)
	page2, err := store.EventSummary(&domain.SummaryFilters{Limit: 2, Offset: 2}, now)
	require.NoError(t, err)

	require.Len(t, page1.Rows, 2)
	require.Len(t, page2.Rows, 2)
	assert.Equal(t, "page_view", page1.Rows[0].Event, "default sort is count descending")
	assert.Equal(t, 5, page1.Rows[0].Count)

	_, err = time.Parse(time.RFC3339, page1.Rows[0].FirstSeen)
	assert.NoError(t, err, "summary timestamps are RFC3339")
	_, err = time.Parse(time.RFC3339, page1.Rows[0].LastSeen)
	assert.NoError(t, err)

	seen := map[string]bool{}
	for _, row := range append(page1.Rows, page2.Rows...) {
		assert.False(t, seen[row.Event], "pages must be disjoint")
		seen[row.Event] = true
	}

	assert.Equal(t, 11, page1.TotalEvents)
	assert.Equal(t, 4, page1.TotalEventTypes)
	assert.True(t, page1.Pagination.HasMore)
	assert.False(t, page2.Pagination.HasMore)
}

func TestEventSummaryTypePartition(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	_, err := store.InsertEvents([]*domain.Event{
		{Event: "page_view", CreatedAt: now},
		{Event: "signup", CreatedAt: now},
		{Event: "auto_capture", CreatedAt: now, CustomData: map[string]any{"action": "click", "label": "buy-button"}},
	})
	require.NoError(t, err)

	pv, err := store.EventSummary(&domain.SummaryFilters{Type: domain.SummaryTypePageView}, now)
	require.NoError(t, err)
	require.Len(t, pv.Rows, 1)
	assert.Equal(t, "page_view", pv.Rows[0].Event)

	custom, err := store.EventSummary(&domain.SummaryFilters{Type: domain.SummaryTypeEvent}, now)
	require.NoError(t, err)
	require.Len(t, custom.Rows, 1)
	assert.Equal(t, "signup", custom.Rows[0].Event)

	auto, err := store.EventSummary(&domain.SummaryFilters{Type: domain.SummaryTypeAutoCapture}, now)
	require.NoError(t, err)
	require.Len(t, auto.Rows, 1)
	assert.Equal(t, "buy-button", auto.Rows[0].Event, "autocapture rows surface the element label")
}

func TestCurrentVisitorsWindow(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	_, err := store.InsertEvents([]*domain.Event{
		pageView("v1", "/", now.Add(-time.Minute)),
		pageView("v2", "/", now.Add(-2*time.Minute)),
		pageView("v3", "/", now.Add(-3*time.Minute)),
		pageView("", "/", now), // no rid, never counted
	})
	require.NoError(t, err)

	visitors, err := store.CurrentVisitors(5*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 3, visitors.Count)
	assert.Equal(t, 300, visitors.WindowSeconds)

	later, err := store.CurrentVisitors(5*time.Minute, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, later.Count, "visitors age out of the trailing window")
}

func TestRunSQLQuerySelectOnly(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()
	_, err := store.InsertEvents([]*domain.Event{pageView("v1", "/", now)})
	require.NoError(t, err)

	for _, query := range []string{
		"DELETE FROM events",
		"DROP TABLE events",
		"UPDATE events SET event = 'x'",
		"SELECT 1; DELETE FROM events",
		"",
	} {
		result := store.RunSQLQuery(query, 10)
		assert.False(t, result.Success, "query %q must be rejected", query)
		assert.NotEmpty(t, result.Error)
	}

	total, err := store.TotalEvents()
	require.NoError(t, err)
	assert.Equal(t, 1, total, "rejected statements must not touch the log")

	ok := store.RunSQLQuery("SELECT event FROM events", 10)
	require.True(t, ok.Success)
	assert.Equal(t, 1, ok.RowCount)
	assert.Equal(t, "page_view", ok.Rows[0]["event"])
}

func TestRunSQLQueryCapsRows(t *testing.T) {
	store := newTestStore(t, "site-a")
	now := time.Now().UTC()

	events := make([]*domain.Event, 600)
	for i := range events {
		events[i] = pageView("v1", "/", now)
	}
	_, err := store.InsertEvents(events)
	require.NoError(t, err)

	result := store.RunSQLQuery("SELECT id FROM events", 10000)
	require.True(t, result.Success)
	assert.Equal(t, 500, result.Limit, "requested limit is capped")
	assert.Equal(t, 500, result.RowCount)
}

func TestRunSQLQueryBadSQLReportedInline(t *testing.T) {
	store := newTestStore(t, "site-a")

	result := store.RunSQLQuery("SELECT nonexistent_column FROM events", 10)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestGetSchema(t *testing.T) {
	store := newTestStore(t, "site-a")

	schema, err := store.GetSchema()
	require.NoError(t, err)
	require.True(t, schema.Success)
	assert.Equal(t, "site-a", schema.SiteID)

	var events *struct{ columns []string }
	for _, table := range schema.Tables {
		if table.Name == "events" {
			names := []string{}
			for _, col := range table.Columns {
				names = append(names, col.Name)
			}
			events = &struct{ columns []string }{names}
		}
	}
	require.NotNil(t, events, "events table must be reflected")
	assert.Contains(t, events.columns, "id")
	assert.Contains(t, events.columns, "rid")
	assert.Contains(t, events.columns, "created_at")
}
