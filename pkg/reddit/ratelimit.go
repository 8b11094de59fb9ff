package reddit

import (
	"fmt"
	"time"
)

// RateLimitError indicates Reddit refused the request until RetryAfter has
// elapsed. Callers sleep that long and retry the same request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}
