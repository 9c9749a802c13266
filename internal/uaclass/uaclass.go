// Package uaclass classifies a User-Agent string into the features the
// Escalation Engine's rule score and feature vector need. No Go
// user-agent-parsing library appears anywhere in the retrieved example
// corpus, so this is hand-rolled — grounded on the donor system's own
// documented degraded-mode behavior for when its optional UA-parsing
// dependency is unavailable: unknown families, all-false device flags,
// and ua_library_is_bot mirroring ua_is_known_bad.
package uaclass

import "strings"

// Classification holds every UA-derived feature the Escalation Engine's
// feature vector needs.
type Classification struct {
	IsEmpty            bool
	IsKnownBad         bool
	IsKnownBenignCrawler bool
	LibraryIsBot       bool
	BrowserFamily      string
	OSFamily           string
	DeviceFamily       string
	IsMobile           bool
	IsTablet           bool
	IsPC               bool
	IsTouch            bool
}

// knownBad is a curated substring table of automation tooling and scraper
// libraries commonly seen probing web applications.
var knownBad = []string{
	"python-requests", "python-urllib", "scrapy", "curl/", "wget/",
	"libwww-perl", "go-http-client", "java/", "okhttp", "axios/",
	"node-fetch", "httpclient", "aiohttp", "phantomjs", "headlesschrome",
	"masscan", "nikto", "sqlmap", "nmap",
}

// knownBenignCrawler is the substring set recognised as legitimate
// search-engine crawlers; presence suppresses rule-score contributions
// that would otherwise fire for bot-like behavior.
var knownBenignCrawler = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "applebot", "facebookexternalhit",
}

var browserTable = []struct {
	token, family string
}{
	{"edg/", "Edge"},
	{"chrome/", "Chrome"},
	{"firefox/", "Firefox"},
	{"safari/", "Safari"},
	{"opr/", "Opera"},
	{"msie", "Internet Explorer"},
	{"trident/", "Internet Explorer"},
}

var osTable = []struct {
	token, family string
}{
	{"windows nt", "Windows"},
	{"mac os x", "macOS"},
	{"android", "Android"},
	{"iphone os", "iOS"},
	{"cros", "Chrome OS"},
	{"linux", "Linux"},
}

// Classify derives every UA-based feature from ua, the raw header value.
func Classify(ua string) Classification {
	c := Classification{BrowserFamily: "Other", OSFamily: "Unknown", DeviceFamily: "Other"}
	if strings.TrimSpace(ua) == "" {
		c.IsEmpty = true
		return c
	}

	lower := strings.ToLower(ua)

	c.IsKnownBenignCrawler = containsAny(lower, knownBenignCrawler)
	c.IsKnownBad = containsAny(lower, knownBad)
	c.LibraryIsBot = c.IsKnownBad

	for _, e := range browserTable {
		if strings.Contains(lower, e.token) {
			c.BrowserFamily = e.family
			break
		}
	}
	for _, e := range osTable {
		if strings.Contains(lower, e.token) {
			c.OSFamily = e.family
			break
		}
	}

	c.IsTablet = strings.Contains(lower, "ipad") || (strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"))
	c.IsMobile = strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") || (strings.Contains(lower, "android") && !c.IsTablet)
	c.IsTouch = c.IsMobile || c.IsTablet
	c.IsPC = !c.IsMobile && !c.IsTablet

	switch {
	case c.IsTablet:
		c.DeviceFamily = "Tablet"
	case c.IsMobile:
		c.DeviceFamily = "Mobile"
	case c.IsPC:
		c.DeviceFamily = "PC"
	}

	return c
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
