package tfagg

import "time"

// Minute counts for the calendar timeframes that cannot be bucketed by
// fixed epoch arithmetic.
const (
	minutesWeek  = 10080
	minutesMonth = 43200
)

// PeriodStart returns the Unix-millisecond start of the aggregation
// period containing tsMs. Fixed-width timeframes align to multiples of
// the width from the Unix epoch in UTC. Weeks start on Monday 00:00 UTC
// and months on the first instant of the UTC calendar month.
func PeriodStart(minutes int, tsMs int64) int64 {
	switch minutes {
	case minutesWeek:
		t := time.UnixMilli(tsMs).UTC()
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		back := (int(t.Weekday()) + 6) % 7 // days since Monday
		return midnight.AddDate(0, 0, -back).UnixMilli()
	case minutesMonth:
		t := time.UnixMilli(tsMs).UTC()
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	default:
		width := int64(minutes) * 60000
		return tsMs - tsMs%width
	}
}
