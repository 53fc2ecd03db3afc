package storage

import "time"

// timeRanges maps shorthand range tokens to durations. Unrecognized tokens
// fall back to one hour.
var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

const defaultTimeRange = time.Hour

// ParseTimeRange resolves a shorthand token to a duration.
func ParseTimeRange(token string) time.Duration {
	if d, ok := timeRanges[token]; ok {
		return d
	}
	return defaultTimeRange
}

// rangeCutoff returns the inclusive lower bound for rows in the window.
func rangeCutoff(token string, now time.Time) time.Time {
	return now.Add(-ParseTimeRange(token))
}

// NormalizeGroupBy maps a groupBy token to a supported bucket width.
// Anything other than "day" buckets by hour.
func NormalizeGroupBy(groupBy string) string {
	if groupBy == "day" {
		return "day"
	}
	return "hour"
}
