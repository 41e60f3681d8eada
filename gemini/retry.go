package gemini

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// DefaultRetryDelays returns the backoff delays for embedding requests: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// EmbedFunc is the signature for a single embedding attempt.
type EmbedFunc func(ctx context.Context) (*genai.EmbedContentResponse, error)

// EmbedWithRetry attempts an embedding request with backoff retry logic.
// One initial attempt plus one retry per delay. Transient Gemini API
// failures (rate limits, 5xx) surface as plain errors, so every error is
// retried; the last error is returned when all attempts fail.
func EmbedWithRetry(ctx context.Context, fn EmbedFunc, delays []time.Duration) (*genai.EmbedContentResponse, error) {
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}

	return nil, lastErr
}
