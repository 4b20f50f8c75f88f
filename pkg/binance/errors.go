package binance

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUpstreamUnavailable reports that every retry attempt failed.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// APIError is a non-200 reply from the upstream API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Fatal reports whether the reply must not be retried. Client errors
// other than 429 describe a request that will never succeed.
func (e *APIError) Fatal() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}
