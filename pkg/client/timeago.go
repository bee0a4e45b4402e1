package client

import (
	"fmt"
	"time"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
)

// FormatAge renders the age of t at now in the compact form used next to a
// notification: "now", "5m", "3h", "2d" or "4mo". Timestamps in the future
// render as "now".
func FormatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	case d < day:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	case d < month:
		return fmt.Sprintf("%dd", int64(d/day))
	}
	return fmt.Sprintf("%dmo", int64(d/month))
}
