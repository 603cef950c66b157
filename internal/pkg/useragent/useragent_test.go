package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmptyUserAgent(t *testing.T) {
	c := Classify("")
	assert.Equal(t, Unknown, c.Device)
	assert.Equal(t, Unknown, c.Browser)
	assert.Equal(t, Unknown, c.OperatingSystem)
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{
			name:      "iphone mobile",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			expected:  DeviceMobile,
		},
		{
			name:      "android tablet",
			userAgent: "Mozilla/5.0 (Linux; Android 13; SM-X200 Tablet) AppleWebKit/537.36",
			expected:  DeviceTablet,
		},
		{
			name:      "desktop chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expected:  DeviceDesktop,
		},
		{
			name:      "mobile takes precedence over tablet",
			userAgent: "SomeBrowser/1.0 (Tablet; Mobile)",
			expected:  DeviceMobile,
		},
		{
			name:      "case insensitive",
			userAgent: "MOBILE AGENT",
			expected:  DeviceMobile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.userAgent).Device)
			assert.Equal(t, tt.expected, DeviceOf(tt.userAgent))
		})
	}
}

func TestClassifyBrowser(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{
			name:      "chrome on windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expected:  "Chrome",
		},
		{
			name:      "firefox",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expected:  "Firefox",
		},
		{
			name:      "safari on mac",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			expected:  "Safari",
		},
		{
			name:      "edge before chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			expected:  "Edge",
		},
		{
			name:      "opera before chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0",
			expected:  "Opera",
		},
		{
			name:      "unrecognized",
			userAgent: "curl/8.4.0",
			expected:  Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.userAgent).Browser)
		})
	}
}

func TestClassifyOperatingSystem(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{
			name:      "ios before mac",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15",
			expected:  "iOS",
		},
		{
			name:      "android before linux",
			userAgent: "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36",
			expected:  "Android",
		},
		{
			name:      "windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			expected:  "Windows",
		},
		{
			name:      "macos",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15",
			expected:  "macOS",
		},
		{
			name:      "linux desktop",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expected:  "Linux",
		},
		{
			name:      "unrecognized",
			userAgent: "curl/8.4.0",
			expected:  Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.userAgent).OperatingSystem)
		})
	}
}
