// Package useragent classifies raw User-Agent strings into the coarse
// device, browser and operating system buckets used by visit analytics.
// Classification is substring based on purpose: the buckets are broad
// and a full parser would add weight without changing the breakdowns.
package useragent

import "strings"

// Unknown is returned for every dimension when the user agent is empty.
const Unknown = "unknown"

// Device buckets
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Classification holds the derived dimensions for a single user agent.
type Classification struct {
	Device          string
	Browser         string
	OperatingSystem string
}

// Classify derives device, browser and OS buckets from a raw user agent.
// An empty user agent yields "unknown" across all dimensions.
func Classify(userAgent string) Classification {
	if userAgent == "" {
		return Classification{
			Device:          Unknown,
			Browser:         Unknown,
			OperatingSystem: Unknown,
		}
	}

	ua := strings.ToLower(userAgent)
	return Classification{
		Device:          deviceOf(ua),
		Browser:         browserOf(ua),
		OperatingSystem: osOf(ua),
	}
}

// DeviceOf returns only the device bucket for a raw user agent.
func DeviceOf(userAgent string) string {
	if userAgent == "" {
		return Unknown
	}
	return deviceOf(strings.ToLower(userAgent))
}

// "mobile" is checked before "tablet" so UAs carrying both (some Android
// tablets advertise Mobile Safari) land in the mobile bucket.
func deviceOf(ua string) string {
	switch {
	case strings.Contains(ua, "mobile"):
		return DeviceMobile
	case strings.Contains(ua, "tablet"):
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

func browserOf(ua string) string {
	switch {
	// Edge and Opera embed "chrome" and "safari", so they go first.
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return "Chrome"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return Unknown
	}
}

func osOf(ua string) string {
	switch {
	// iOS and Android before the desktop systems: iOS UAs contain
	// "like Mac OS X" and Android UAs contain "linux".
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") ||
		strings.Contains(ua, "ipod"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return Unknown
	}
}
