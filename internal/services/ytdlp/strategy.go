package ytdlp

import "strings"

// Strategy describes one client identity and format selection for a download
// attempt. The fixed order of DefaultStrategies encodes decreasing likelihood
// of being blocked by the source platform.
type Strategy struct {
	Name          string
	Format        string
	ExtractorArgs string
}

// DefaultStrategies returns the download fallback chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "android-bestaudio", Format: "bestaudio/best", ExtractorArgs: "youtube:player_client=android"},
		{Name: "android-format-18", Format: "18", ExtractorArgs: "youtube:player_client=android"},
		{Name: "web-bestaudio", Format: "bestaudio/best", ExtractorArgs: "youtube:player_client=web,mweb"},
		{Name: "default-bestaudio", Format: "bestaudio/best"},
		{Name: "android-worstaudio", Format: "worstaudio/worst", ExtractorArgs: "youtube:player_client=android"},
	}
}

// retryableMarkers are output fragments that indicate a failure tied to the
// client identity or format selection, where the next strategy may still work.
var retryableMarkers = []string{
	"drm",
	"unavailable",
	"not available",
	"no video formats",
	"requested format",
	"configuration error",
	"no longer supported",
	"only images",
	"403",
	"timed out",
	"timeout",
	"connection reset",
	"temporary failure",
}

// IsRetryableMessage reports whether a failure message suggests trying the
// next strategy instead of surfacing the error.
func IsRetryableMessage(message string) bool {
	lowered := strings.ToLower(message)
	for _, marker := range retryableMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
