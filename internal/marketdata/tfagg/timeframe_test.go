package tfagg

import (
	"testing"
	"time"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestPeriodStart_FixedWidth(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		at      time.Time
		want    time.Time
	}{
		{"one minute", 1, utc(2025, time.January, 15, 13, 47), utc(2025, time.January, 15, 13, 47)},
		{"five minutes", 5, utc(2025, time.January, 15, 13, 47), utc(2025, time.January, 15, 13, 45)},
		{"forty five minutes", 45, utc(2025, time.January, 15, 13, 47), utc(2025, time.January, 15, 13, 30)},
		{"four hours", 240, utc(2025, time.January, 15, 13, 47), utc(2025, time.January, 15, 12, 0)},
		{"one day", 1440, utc(2025, time.January, 15, 13, 47), utc(2025, time.January, 15, 0, 0)},
		{"aligned input maps to itself", 240, utc(2025, time.January, 15, 12, 0), utc(2025, time.January, 15, 12, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodStart(tt.minutes, tt.at.UnixMilli())
			if got != tt.want.UnixMilli() {
				t.Errorf("got %s, want %s", time.UnixMilli(got).UTC(), tt.want)
			}
		})
	}
}

func TestPeriodStart_WeekStartsMonday(t *testing.T) {
	monday := utc(2025, time.January, 13, 0, 0)
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"wednesday", utc(2025, time.January, 15, 13, 47), monday},
		{"sunday evening", utc(2025, time.January, 19, 23, 59), monday},
		{"monday midnight maps to itself", monday, monday},
		{"next monday starts a new week", utc(2025, time.January, 20, 0, 0), utc(2025, time.January, 20, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodStart(minutesWeek, tt.at.UnixMilli())
			if got != tt.want.UnixMilli() {
				t.Errorf("got %s, want %s", time.UnixMilli(got).UTC(), tt.want)
			}
		})
	}
}

func TestPeriodStart_CalendarMonth(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"mid month", utc(2025, time.February, 17, 10, 30), utc(2025, time.February, 1, 0, 0)},
		{"last minute of january", utc(2025, time.January, 31, 23, 59), utc(2025, time.January, 1, 0, 0)},
		{"december", utc(2025, time.December, 5, 0, 0), utc(2025, time.December, 1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodStart(minutesMonth, tt.at.UnixMilli())
			if got != tt.want.UnixMilli() {
				t.Errorf("got %s, want %s", time.UnixMilli(got).UTC(), tt.want)
			}
		})
	}
}
