package analytics

import "time"

// AggregateFilters narrows the event set that aggregate queries run over.
// EndIsExact distinguishes a caller-supplied precise instant from a bare date
// that should extend to end-of-day in the caller's timezone.
type AggregateFilters struct {
	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	EndIsExact bool       `json:"endIsExact,omitempty"`
	Timezone   string     `json:"timezone,omitempty"`
	DeviceType string     `json:"deviceType,omitempty"`
	Country    string     `json:"country,omitempty"`
	Source     string     `json:"source,omitempty"`
	PageURL    string     `json:"pageUrl,omitempty"`
	City       string     `json:"city,omitempty"`
	Region     string     `json:"region,omitempty"`
	Event      string     `json:"event,omitempty"`
}

// Range resolves the filter window to concrete UTC instants. A bare end date
// is pushed to end-of-day in the filter's timezone; a missing bound is left
// open. Unknown timezones fall back to UTC.
func (f *AggregateFilters) Range(now time.Time) (start, end *time.Time) {
	loc := time.UTC
	if f.Timezone != "" {
		if l, err := time.LoadLocation(f.Timezone); err == nil {
			loc = l
		}
	}

	if f.StartDate != nil {
		s := f.StartDate.In(loc)
		s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc).UTC()
		start = &s
	}
	if f.EndDate != nil {
		e := *f.EndDate
		if !f.EndIsExact {
			d := e.In(loc)
			e = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 999_000_000, loc).UTC()
		}
		end = &e
	}
	return start, end
}

// Event summary partitions. Type buckets rows by event class; action further
// partitions autocapture rows by the captured DOM action.
const (
	SummaryTypeAll         = "all"
	SummaryTypeAutoCapture = "autocapture"
	SummaryTypeEvent       = "event_capture"
	SummaryTypePageView    = "page_view"
)

// SummaryFilters controls the paginated event-type summary.
type SummaryFilters struct {
	AggregateFilters

	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
	Search        string `json:"search,omitempty"`
	Type          string `json:"type,omitempty"`          // autocapture | event_capture | page_view | all
	Action        string `json:"action,omitempty"`        // click | submit | change | rule
	SortBy        string `json:"sortBy,omitempty"`        // count | first_seen | last_seen
	SortDirection string `json:"sortDirection,omitempty"` // asc | desc
}
