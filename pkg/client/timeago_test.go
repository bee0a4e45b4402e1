package client

import (
	"testing"
	"time"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want string
	}{
		{-time.Hour, "now"},
		{0, "now"},
		{59 * time.Second, "now"},
		{time.Minute, "1m"},
		{59*time.Minute + 59*time.Second, "59m"},
		{time.Hour, "1h"},
		{23 * time.Hour, "23h"},
		{24 * time.Hour, "1d"},
		{29 * 24 * time.Hour, "29d"},
		{30 * 24 * time.Hour, "1mo"},
		{95 * 24 * time.Hour, "3mo"},
	}
	for _, tt := range tests {
		if got := FormatAge(now.Add(-tt.age), now); got != tt.want {
			t.Errorf("FormatAge(now-%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}
