package session

import "strings"

// ParseDevice derives a coarse device type and browser family from a
// User-Agent header. It is display metadata only.
func ParseDevice(userAgent string) Device {
	ua := strings.TrimSpace(userAgent)
	d := Device{UserAgent: ua, Type: "unknown", Browser: "Other"}
	if ua == "" {
		return d
	}
	l := strings.ToLower(ua)

	switch {
	case containsAny(l, "bot", "crawler", "spider", "curl/", "wget/", "httpie/", "go-http-client"):
		d.Type = "bot"
	case containsAny(l, "ipad", "tablet") || (strings.Contains(l, "android") && !strings.Contains(l, "mobile")):
		d.Type = "tablet"
	case containsAny(l, "mobi", "iphone", "ipod", "android"):
		d.Type = "mobile"
	case containsAny(l, "windows", "macintosh", "mac os x", "x11", "linux", "cros"):
		d.Type = "desktop"
	}

	switch {
	case strings.Contains(l, "edg/") || strings.Contains(l, "edga/") || strings.Contains(l, "edgios/"):
		d.Browser = "Edge"
	case strings.Contains(l, "opr/") || strings.Contains(l, "opera"):
		d.Browser = "Opera"
	case strings.Contains(l, "firefox/") || strings.Contains(l, "fxios/"):
		d.Browser = "Firefox"
	case strings.Contains(l, "chrome/") || strings.Contains(l, "crios/"):
		d.Browser = "Chrome"
	case strings.Contains(l, "safari/"):
		d.Browser = "Safari"
	case strings.HasPrefix(l, "curl/"):
		d.Browser = "curl"
	}
	return d
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
