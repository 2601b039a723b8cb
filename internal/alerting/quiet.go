package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseClock converts an "HH:MM" local clock string to minutes past midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hour*60 + minute, nil
}

// inQuietWindow reports whether now falls inside the [start, end) quiet-hours
// window. Windows crossing midnight (start > end) wrap correctly. An unset or
// malformed window, or start == end, suppresses nothing.
func inQuietWindow(start, end string, now time.Time) bool {
	if start == "" || end == "" {
		return false
	}
	startMin, err := parseClock(start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false
	}
	if startMin == endMin {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Window crosses midnight, e.g. 22:00-06:00.
	return nowMin >= startMin || nowMin < endMin
}
