package mediacrush

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError indicates the request hit a rate limit. RetryAfter is the
// server-specified wait before the same request may be retried.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

const defaultRetryAfter = 30 * time.Second

// parseRateLimit returns a RateLimitError if the response signals one,
// nil otherwise. Both 429 and the legacy 420 status are recognized.
func parseRateLimit(resp *http.Response) *RateLimitError {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != 420 {
		return nil
	}

	wait := defaultRetryAfter
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	} else if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				wait = until
			}
		}
	}
	return &RateLimitError{RetryAfter: wait}
}
