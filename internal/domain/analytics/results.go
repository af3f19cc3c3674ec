package analytics

// ScoreCards are the headline numbers over the filtered event set.
type ScoreCards struct {
	UniqueVisitors     int     `json:"uniqueVisitors"`
	TotalPageViews     int     `json:"totalPageViews"`
	BounceRate         float64 `json:"bounceRate"`
	ConversionRate     float64 `json:"conversionRate"`
	CustomEventCount   int     `json:"customEventCount"`
	AvgSessionDuration float64 `json:"avgSessionDuration"` // seconds
}

// BreakdownRow is one (label, count) pair of a dimensional breakdown.
type BreakdownRow struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TimeSeriesPoint is one bucket of the page-view/visitor time series.
type TimeSeriesPoint struct {
	Bucket    string `json:"bucket"` // "2006-01-02" or "2006-01-02 15:00"
	PageViews int    `json:"pageViews"`
	Visitors  int    `json:"visitors"`
}

// AggregateResult bundles score cards, breakdowns and the time series.
// TotalAllTime is the unfiltered event count so callers can distinguish
// "no data ever" from "no data in this window".
type AggregateResult struct {
	ScoreCards   ScoreCards        `json:"scoreCards"`
	Referrers    []BreakdownRow    `json:"referrers"`
	Sources      []BreakdownRow    `json:"sources"`
	Browsers     []BreakdownRow    `json:"browsers"`
	Systems      []BreakdownRow    `json:"operatingSystems"`
	Devices      []BreakdownRow    `json:"deviceTypes"`
	Countries    []BreakdownRow    `json:"countries"`
	Regions      []BreakdownRow    `json:"regions"`
	Cities       []BreakdownRow    `json:"cities"`
	TopPages     []BreakdownRow    `json:"topPages"`
	EventTypes   []BreakdownRow    `json:"eventTypes"`
	TimeSeries   []TimeSeriesPoint `json:"timeSeries"`
	TotalAllTime int               `json:"totalAllTime"`
}

// SummaryRow is one event-type row of the paginated summary.
type SummaryRow struct {
	Event     string `json:"event"`
	Count     int    `json:"count"`
	FirstSeen string `json:"firstSeen"`
	LastSeen  string `json:"lastSeen"`
}

// Pagination describes the page window of a summary response.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// EventSummary is the paginated event-type summary response.
type EventSummary struct {
	Rows            []SummaryRow `json:"rows"`
	TotalEvents     int          `json:"totalEvents"`
	TotalEventTypes int          `json:"totalEventTypes"`
	Pagination      Pagination   `json:"pagination"`
}

// CurrentVisitors reports distinct visitors in the trailing window.
type CurrentVisitors struct {
	Count         int `json:"count"`
	WindowSeconds int `json:"windowSeconds"`
}

// SQLQueryResult is the inline result of a guarded ad-hoc query; errors are
// reported here, never raised across the actor boundary.
type SQLQueryResult struct {
	Success  bool             `json:"success"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"rowCount"`
	Limit    int              `json:"limit"`
	Error    string           `json:"error,omitempty"`
}

// SchemaColumn and SchemaTable reflect the tenant log's storage layout.
type SchemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaTable struct {
	Name    string         `json:"name"`
	Columns []SchemaColumn `json:"columns"`
}

// SchemaResult is the schema-reflection response for the query UI.
type SchemaResult struct {
	Success bool          `json:"success"`
	Tables  []SchemaTable `json:"tables"`
	SiteID  string        `json:"siteId"`
}

// HealthStatus is the cheap liveness probe response.
type HealthStatus struct {
	TotalEvents int    `json:"totalEvents"`
	Adapter     string `json:"adapter"`
	SiteID      string `json:"siteId"`
}
