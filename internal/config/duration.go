package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDuration accepts Go durations plus a whole-day form such as "14d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}

		return time.Duration(days) * day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must be non-negative", s)
	}

	return d, nil
}

// RetryIntervalDuration returns the parsed retry interval. Validate has
// already accepted the value.
func (r RemoteConfig) RetryIntervalDuration() time.Duration {
	d, _ := ParseDuration(r.RetryInterval)

	return d
}

// RetentionDuration returns the parsed save-state retention window.
func (l LocksConfig) RetentionDuration() time.Duration {
	d, _ := ParseDuration(l.Retention)

	return d
}

// DebounceDuration returns the parsed watch debounce.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := ParseDuration(w.Debounce)

	return d
}
