// Package escalation implements the Escalation Engine: feature
// extraction, rule scoring, model blending, IP-reputation adjustment and
// the sequential classifier decision ladder described in SPEC_FULL.md
// §4.5.
package escalation

import (
	"strings"

	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/robots"
	"github.com/rhamenator/antiscrape/internal/store"
	"github.com/rhamenator/antiscrape/internal/uaclass"
)

// ExtractFeatures builds the §4.5.1 feature vector from a request
// metadata record and a Frequency Tracker reading.
func ExtractFeatures(meta reqmeta.Metadata, freq store.FreqReading, robotsMatcher *robots.Matcher) reqmeta.FeatureVector {
	ua := uaclass.Classify(meta.UserAgent)
	normalizedPath := normalizePath(meta.Path)

	fv := reqmeta.FeatureVector{
		"ua_length":              len(meta.UserAgent),
		"status_code":            meta.StatusCode,
		"bytes_sent":             meta.BytesSent,
		"http_method":            meta.Method,
		"path_depth":             pathDepth(normalizedPath),
		"path_length":            len(normalizedPath),
		"path_is_root":           normalizedPath == "/",
		"path_has_docs":          strings.Contains(normalizedPath, "docs"),
		"path_is_wp":             strings.Contains(normalizedPath, "wp-") || strings.Contains(normalizedPath, "wordpress"),
		"path_disallowed":        robotsMatcher != nil && robotsMatcher.Disallowed(normalizedPath),
		"ua_is_known_bad":        ua.IsKnownBad,
		"ua_is_known_benign_crawler": ua.IsKnownBenignCrawler,
		"ua_is_empty":            ua.IsEmpty,
		"ua_browser_family":      ua.BrowserFamily,
		"ua_os_family":           ua.OSFamily,
		"ua_device_family":       ua.DeviceFamily,
		"ua_is_mobile":           ua.IsMobile,
		"ua_is_tablet":           ua.IsTablet,
		"ua_is_pc":               ua.IsPC,
		"ua_is_touch":            ua.IsTouch,
		"ua_library_is_bot":      ua.LibraryIsBot,
		"referer_is_empty":       meta.Referer == "",
		"referer_has_domain":     refererHasDomain(meta.Referer),
		"hour_of_day":            meta.Timestamp.UTC().Hour(),
		"day_of_week":            int(meta.Timestamp.UTC().Weekday()),
		"req_freq_window":        freq.Count,
		"time_since_last_sec":    freq.TimeSinceLast,
	}
	return fv
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func pathDepth(path string) int {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

func refererHasDomain(referer string) bool {
	return strings.Contains(referer, "://")
}

// uaClassification exposes the raw uaclass.Classification for callers
// (the rule scorer) that need the struct rather than the flattened
// feature map.
func uaClassification(meta reqmeta.Metadata) uaclass.Classification {
	return uaclass.Classify(meta.UserAgent)
}
