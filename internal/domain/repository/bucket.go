package repository

import "time"

// Granularity represents the time-bucket resolution a forecast targets.
type Granularity string

const (
	GranHour Granularity = "hour"
	GranDay  Granularity = "day"
)

// IsValidGranularity returns true if g is a supported granularity.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case GranHour, GranDay:
		return true
	default:
		return false
	}
}

// DefaultGranularity returns the default granularity.
func DefaultGranularity() Granularity { return GranDay }

// NormalizeGranularity converts raw string to a valid granularity (or default).
func NormalizeGranularity(s string) Granularity {
	if s == "" {
		return DefaultGranularity()
	}
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}

// BucketStart truncates t to the start of its bucket.
func BucketStart(t time.Time, g Granularity) time.Time {
	switch g {
	case GranHour:
		return t.Truncate(time.Hour)
	default:
		return t.UTC().Truncate(24 * time.Hour)
	}
}
