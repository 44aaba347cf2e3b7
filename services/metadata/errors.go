package metadata

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the upstream provider has no record for the
// requested identifier. It is terminal for the current run; callers record it
// and move on.
var ErrNotFound = errors.New("not found upstream")

// RateLimitedError is returned when the upstream provider throttles us.
// Re-running later is safe because ingestion is idempotent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited upstream (retry after %s)", e.RetryAfter)
	}
	return "rate limited upstream"
}
