package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is what the audit trail keeps from a User-Agent header
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // kiosk, tablet, mobile, desktop, bot
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	BrowserVer string `json:"browser_ver,omitempty"`
	IsBot      bool   `json:"is_bot"`
}

// kioskMarker is appended to the User-Agent by the front-desk kiosk app
const kioskMarker = "walkinkiosk"

// ParseUserAgent extracts device information from a User-Agent string
func ParseUserAgent(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()

	info := DeviceInfo{
		OS:         osName(parser),
		Browser:    orUnknown(name),
		BrowserVer: version,
		IsBot:      parser.Bot(),
	}

	lower := strings.ToLower(userAgent)
	switch {
	case info.IsBot:
		info.DeviceType = "bot"
	case strings.Contains(lower, kioskMarker):
		info.DeviceType = "kiosk"
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") || strings.Contains(lower, "sm-t"):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}
	return info
}

// IsKiosk reports whether the request came from the front-desk kiosk app
func IsKiosk(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), kioskMarker)
}

func osName(parser *ua.UserAgent) string {
	os := parser.OSInfo()
	if os.Name == "" {
		return "Unknown"
	}
	if os.Version != "" {
		return os.Name + " " + os.Version
	}
	return os.Name
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
