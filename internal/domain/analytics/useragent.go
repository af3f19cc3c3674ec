package analytics

import "strings"

// ClassifyUserAgent derives (browser, operatingSystem, deviceType) from a raw
// user-agent string. Anything unrecognized comes back as "unknown"; ordering
// matters because many agents embed other engines' tokens.
func ClassifyUserAgent(userAgent string) (browser, os, device string) {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return "unknown", "unknown", "unknown"
	}

	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		browser = "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "opera"
	case strings.Contains(ua, "samsungbrowser"):
		browser = "samsung internet"
	case strings.Contains(ua, "firefox/"):
		browser = "firefox"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		browser = "chrome"
	case strings.Contains(ua, "safari/"):
		browser = "safari"
	default:
		browser = "unknown"
	}

	switch {
	case strings.Contains(ua, "android"):
		os = "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		os = "ios"
	case strings.Contains(ua, "windows"):
		os = "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		os = "macos"
	case strings.Contains(ua, "cros"):
		os = "chromeos"
	case strings.Contains(ua, "linux"):
		os = "linux"
	default:
		os = "unknown"
	}

	switch {
	case strings.Contains(ua, "smart-tv") || strings.Contains(ua, "smarttv") ||
		strings.Contains(ua, "appletv") || strings.Contains(ua, "googletv"):
		device = "tv"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") ||
		(strings.Contains(ua, "android") && strings.Contains(ua, "mobile")):
		device = "mobile"
	case browser == "unknown" && os == "unknown":
		device = "unknown"
	default:
		device = "desktop"
	}

	return browser, os, device
}
