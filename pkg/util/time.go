package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return EpochTime(f), true
	}
	return time.Time{}, false
}

// EpochTime converts epoch seconds (fractional allowed) to time.
// Values that only make sense as milliseconds are scaled down.
func EpochTime(v float64) time.Time {
	if v > 1e11 {
		v /= 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
