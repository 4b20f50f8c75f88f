package model

import "time"

// CollectorState tracks ingestion progress for one symbol. LastTimestamp
// is the newest persisted candle's bucket start in Unix milliseconds;
// IsRealtime flips to true once historical catch-up completes and stays
// true for the rest of the run.
type CollectorState struct {
	Symbol        string
	LastTimestamp int64
	IsRealtime    bool
	LastUpdated   time.Time
}
