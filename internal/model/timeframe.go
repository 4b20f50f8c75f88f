package model

// Chart timeframes: label → length in minutes. "1W" buckets start on ISO
// week boundaries (Monday 00:00 UTC); "1M" buckets on calendar months.
var timeframeMinutes = map[string]int{
	"1":  1,
	"3":  3,
	"5":  5,
	"15": 15,
	"30": 30,
	"45": 45,
	"1H": 60,
	"2H": 120,
	"3H": 180,
	"4H": 240,
	"1D": 1440,
	"1W": 10080,
	"1M": 43200,
}

var timeframeLabels = []string{"1", "3", "5", "15", "30", "45", "1H", "2H", "3H", "4H", "1D", "1W", "1M"}

// TimeframeMinutes resolves a timeframe label to its length in minutes.
func TimeframeMinutes(label string) (int, bool) {
	m, ok := timeframeMinutes[label]
	return m, ok
}

// TimeframeLabels returns the supported labels in ascending length order.
func TimeframeLabels() []string {
	return append([]string(nil), timeframeLabels...)
}
