package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dayWeekPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(d|day|days|w|week|weeks)$`)

// ParseTimeToMilliseconds converts a human duration such as "7d", "1h30m"
// or "2 weeks" to a millisecond count. Plain numbers and anything it does
// not understand are returned unchanged.
func ParseTimeToMilliseconds(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return trimmed
	}
	if d, err := time.ParseDuration(trimmed); err == nil {
		return strconv.FormatInt(d.Milliseconds(), 10)
	}

	m := dayWeekPattern.FindStringSubmatch(strings.ToLower(trimmed))
	if m == nil {
		return s
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return s
	}
	unit := 24 * time.Hour
	if strings.HasPrefix(m[2], "w") {
		unit *= 7
	}
	return strconv.FormatInt(int64(n*float64(unit.Milliseconds())), 10)
}
