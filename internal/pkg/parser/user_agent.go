package parser

import "strings"

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"

	Unknown = "Unknown"
)

var (
	tabletPatterns = []string{"tablet", "ipad", "playbook", "silk"}
	mobilePatterns = []string{
		"mobile", "iphone", "ipod", "android", "blackberry",
		"opera mini", "windows ce", "palm", "smartphone", "iemobile",
	}
)

// ParseDeviceType classifies a user agent. Tablet patterns win over mobile
// ones because most tablet agents also carry "mobile" or "android".
func ParseDeviceType(ua string) string {
	uaLower := strings.ToLower(ua)
	if containsAny(uaLower, tabletPatterns) {
		return DeviceTablet
	}
	if containsAny(uaLower, mobilePatterns) {
		return DeviceMobile
	}
	return DeviceDesktop
}

func ParseUserAgent(ua string) (os, browser string) {
	uaLower := strings.ToLower(ua)

	// Android agents contain "linux" and iOS agents contain "mac os x",
	// so the mobile platforms are checked first.
	switch {
	case strings.Contains(uaLower, "windows"):
		os = "Windows"
	case strings.Contains(uaLower, "android"):
		os = "Android"
	case containsAny(uaLower, []string{"iphone", "ipad", "ipod"}):
		os = "iOS"
	case strings.Contains(uaLower, "mac os"), strings.Contains(uaLower, "macintosh"):
		os = "macOS"
	case strings.Contains(uaLower, "linux"):
		os = "Linux"
	default:
		os = Unknown
	}

	// Edge and Opera agents also contain "chrome" and "safari".
	switch {
	case strings.Contains(uaLower, "edg"):
		browser = "Edge"
	case strings.Contains(uaLower, "opr/"), strings.Contains(uaLower, "opera"):
		browser = "Opera"
	case strings.Contains(uaLower, "firefox"):
		browser = "Firefox"
	case strings.Contains(uaLower, "chrome"):
		browser = "Chrome"
	case strings.Contains(uaLower, "safari"):
		browser = "Safari"
	default:
		browser = Unknown
	}

	return os, browser
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
