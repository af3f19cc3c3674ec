// Package analytics defines the canonical event model and the contracts for
// the per-tenant event log.
package analytics

import "time"

// Reserved event names. Everything else is a custom event.
const (
	EventPageView    = "page_view"
	EventScreenView  = "screen_view"
	EventAutoCapture = "auto_capture"
)

// Event is one captured interaction, normalized and ready for storage.
// RID is either a salted hash of the client IP or a client-supplied
// pass-through value, never both.
type Event struct {
	SiteID          string            `json:"siteId"`
	TagID           string            `json:"tagId"`
	Event           string            `json:"event"`
	CreatedAt       time.Time         `json:"createdAt"`
	PageURL         string            `json:"pageUrl,omitempty"`
	ClientPageURL   string            `json:"clientPageUrl,omitempty"`
	Referer         string            `json:"referer,omitempty"`
	RID             *string           `json:"rid,omitempty"`
	Browser         string            `json:"browser,omitempty"`
	OperatingSystem string            `json:"operatingSystem,omitempty"`
	DeviceType      string            `json:"deviceType,omitempty"`
	ScreenWidth     int               `json:"screenWidth,omitempty"`
	ScreenHeight    int               `json:"screenHeight,omitempty"`
	Country         string            `json:"country,omitempty"`
	Region          string            `json:"region,omitempty"`
	City            string            `json:"city,omitempty"`
	Postal          string            `json:"postal,omitempty"`
	BotData         string            `json:"botData,omitempty"`
	QueryParams     map[string]string `json:"queryParams,omitempty"`
	CustomData      map[string]any    `json:"customData,omitempty"`
}

// IsRuleDefinition reports whether this event is a capture-rule definition:
// metadata that configures autocapture and must never be persisted or
// forwarded, only acknowledged.
func (e *Event) IsRuleDefinition() bool {
	if e.Event != EventAutoCapture || e.CustomData == nil {
		return false
	}
	t, _ := e.CustomData["type"].(string)
	return t == EventAutoCapture
}

// InsertResult reports the outcome of one batch insert into a tenant log.
type InsertResult struct {
	Success  bool   `json:"success"`
	Inserted int    `json:"inserted,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EventWriter is the write half of the tenant event actor surface. The
// dispatcher depends on this rather than on a concrete actor so chunk writes
// can be exercised against fakes.
type EventWriter interface {
	Insert(siteID string, events []*Event) *InsertResult
}
