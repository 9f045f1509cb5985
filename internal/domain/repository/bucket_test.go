package repository

import (
	"testing"
	"time"
)

func TestNormalizeGranularity(t *testing.T) {
	cases := []struct {
		in   string
		want Granularity
	}{
		{"", GranDay},
		{"hour", GranHour},
		{"day", GranDay},
		{"week", GranDay},
		{"HOUR", GranDay},
	}
	for _, tc := range cases {
		if got := NormalizeGranularity(tc.in); got != tc.want {
			t.Fatalf("NormalizeGranularity(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 37, 12, 0, time.UTC)

	if got := BucketStart(ts, GranHour); !got.Equal(time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("hour bucket = %s", got)
	}
	if got := BucketStart(ts, GranDay); !got.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day bucket = %s", got)
	}
	// unknown granularity defaults to day
	if got := BucketStart(ts, Granularity("week")); !got.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("default bucket = %s", got)
	}
}
