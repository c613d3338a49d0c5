package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const maxRetries = 3

var baseDelay = 2 * time.Second

// StatusError is a non-200 answer from an OpenAI-compatible endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Code, e.Body)
}

// withRetry runs call until it succeeds, fails permanently or runs out of
// attempts, backing off exponentially between transient failures.
func withRetry(ctx context.Context, call func() error) error {
	var err error
	for attempt := range maxRetries {
		if err = call(); err == nil || !isRetryable(err) {
			return err
		}
		if attempt == maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(1<<attempt)):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.StatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.Code)
	}
	return false
}

// 529 is Anthropic's overloaded status.
func isRetryableStatus(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503 || code == 529
}
