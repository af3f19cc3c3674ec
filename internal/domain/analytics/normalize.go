package analytics

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Platforms accepted by the track endpoint.
const (
	PlatformWeb = "web"
	PlatformTV  = "tv"
)

// TrackPayload is the raw tracking request body. Event is either a plain
// string or an object carrying the real name under a "custom" key.
type TrackPayload struct {
	Event           any            `json:"event"`
	ClientPageURL   string         `json:"client_page_url"`
	PageURL         string         `json:"page_url"`
	Referer         string         `json:"referer"`
	ScreenWidth     int            `json:"screen_width"`
	ScreenHeight    int            `json:"screen_height"`
	Browser         string         `json:"browser"`
	OperatingSystem string         `json:"operating_system"`
	DeviceType      string         `json:"device_type"`
	RID             string         `json:"rid"`
	BotData         string         `json:"bot_data"`
	CustomData      map[string]any `json:"custom_data"`
}

// ErrMissingEvent is returned when no event name can be resolved from the payload.
var ErrMissingEvent = errors.New("missing event name")

// Normalizer turns raw tracking payloads into canonical Events.
type Normalizer struct {
	blockedParams []string
}

// NewNormalizer creates a normalizer with the given query-parameter blocklist.
// Matching is a case-insensitive substring check on the parameter key.
func NewNormalizer(blockedParams []string) *Normalizer {
	lowered := make([]string, len(blockedParams))
	for i, p := range blockedParams {
		lowered[i] = strings.ToLower(p)
	}
	return &Normalizer{blockedParams: lowered}
}

// Normalize builds a canonical Event from a raw payload, user agent and
// platform. Unparseable client hints yield "unknown" rather than an error;
// only a missing event name fails.
func (n *Normalizer) Normalize(payload *TrackPayload, userAgent, platform string, now time.Time) (*Event, error) {
	name, err := resolveEventName(payload.Event)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Event:         name,
		CreatedAt:     now.UTC(),
		PageURL:       payload.PageURL,
		ClientPageURL: payload.ClientPageURL,
		Referer:       payload.Referer,
		ScreenWidth:   payload.ScreenWidth,
		ScreenHeight:  payload.ScreenHeight,
		BotData:       payload.BotData,
		CustomData:    payload.CustomData,
		QueryParams:   n.filterQueryParams(payload.ClientPageURL),
	}

	// TV clients report their own hints; web clients are classified from the
	// user agent with payload hints as overrides.
	browser, os, device := ClassifyUserAgent(userAgent)
	if platform == PlatformTV {
		ev.Browser = firstNonEmpty(payload.Browser, browser)
		ev.OperatingSystem = firstNonEmpty(payload.OperatingSystem, os)
		ev.DeviceType = firstNonEmpty(payload.DeviceType, "tv")
	} else {
		ev.Browser = firstNonEmpty(payload.Browser, browser)
		ev.OperatingSystem = firstNonEmpty(payload.OperatingSystem, os)
		ev.DeviceType = firstNonEmpty(payload.DeviceType, device)
	}

	return ev, nil
}

// resolveEventName unwraps the raw event field: a plain string is the name; an
// object with a "custom" key carries the real name.
func resolveEventName(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", ErrMissingEvent
		}
		return v, nil
	case map[string]any:
		if custom, ok := v["custom"].(string); ok && custom != "" {
			return custom, nil
		}
		return "", ErrMissingEvent
	default:
		return "", ErrMissingEvent
	}
}

// filterQueryParams parses the client page URL and drops parameters whose key
// matches the blocklist before they can be stored.
func (n *Normalizer) filterQueryParams(clientPageURL string) map[string]string {
	if clientPageURL == "" {
		return nil
	}
	u, err := url.Parse(clientPageURL)
	if err != nil {
		return nil
	}

	values := u.Query()
	if len(values) == 0 {
		return nil
	}

	params := make(map[string]string, len(values))
	for key, vals := range values {
		if n.isBlocked(key) || len(vals) == 0 {
			continue
		}
		params[key] = vals[0]
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func (n *Normalizer) isBlocked(key string) bool {
	lowered := strings.ToLower(key)
	for _, blocked := range n.blockedParams {
		if strings.Contains(lowered, blocked) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
