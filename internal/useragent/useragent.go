// Package useragent classifies User-Agent strings into browser, OS and
// device class via a prioritized rule list: bots first, then browsers
// in strict signature order (composite-engine browsers before the
// engine they embed), then OS, then device heuristics.
package useragent

import (
	"regexp"
	"strings"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"

	Unknown = "Unknown"
)

type Classification struct {
	Browser string
	OS      string
	Device  string
	Bot     bool
}

var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"slurp",
	"curl",
	"wget",
	"python-requests",
	"go-http-client",
	"facebookexternalhit",
	"headlesschrome",
	"lighthouse",
	"pingdom",
	"uptimerobot",
}

// browserRules are evaluated in order. Chromium forks ship a Chrome
// token and Chrome ships a Safari token, so the forks must be checked
// before Chrome and Chrome before Safari.
var browserRules = []struct {
	signature string
	name      string
}{
	{"edg/", "Edge"},
	{"edge/", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"samsungbrowser/", "Samsung Internet"},
	{"yabrowser/", "Yandex Browser"},
	{"vivaldi/", "Vivaldi"},
	{"firefox/", "Firefox"},
	{"chrome/", "Chrome"},
	{"crios/", "Chrome"},
	{"fxios/", "Firefox"},
	{"safari/", "Safari"},
	{"msie", "Internet Explorer"},
	{"trident/", "Internet Explorer"},
}

// osRules mix plain substrings and version-bearing patterns. iOS
// claims "like Mac OS X" and Android claims "Linux", hence the order.
var osRules = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`windows nt [\d.]+`), "Windows"},
	{regexp.MustCompile(`windows`), "Windows"},
	{regexp.MustCompile(`(iphone|cpu) os [\d_]+`), "iOS"},
	{regexp.MustCompile(`ipad|iphone|ipod`), "iOS"},
	{regexp.MustCompile(`mac os x [\d_.]+`), "macOS"},
	{regexp.MustCompile(`macintosh`), "macOS"},
	{regexp.MustCompile(`android [\d.]+`), "Android"},
	{regexp.MustCompile(`android`), "Android"},
	{regexp.MustCompile(`cros`), "ChromeOS"},
	{regexp.MustCompile(`linux`), "Linux"},
}

// Classify never fails: unrecognized agents come back as
// Unknown/desktop, which is what the analytics rollups expect.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)

	c := Classification{
		Browser: Unknown,
		OS:      Unknown,
		Device:  DeviceDesktop,
	}
	if ua == "" {
		return c
	}

	c.Bot = isBot(ua)

	for _, rule := range browserRules {
		if strings.Contains(ua, rule.signature) {
			c.Browser = rule.name
			break
		}
	}

	for _, rule := range osRules {
		if rule.pattern.MatchString(ua) {
			c.OS = rule.name
			break
		}
	}

	c.Device = deviceClass(ua)
	if c.Bot {
		// bot always overrides the device class
		c.Device = DeviceBot
	}

	return c
}

func isBot(ua string) bool {
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

func deviceClass(ua string) string {
	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobi"),
		strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
