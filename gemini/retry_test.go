package gemini_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkaminski/chimeraxmcp"
	"github.com/pkaminski/chimeraxmcp/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// noDelays keeps retry tests fast.
func noDelays() []time.Duration {
	return []time.Duration{0, 0, 0}
}

func TestEmbedWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("returns first success without retrying", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		want := &genai.EmbedContentResponse{}
		result, err := gemini.EmbedWithRetry(context.Background(), func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			attempts++
			return want, nil
		}, noDelays())

		require.NoError(t, err)
		assert.Same(t, want, result)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		result, err := gemini.EmbedWithRetry(context.Background(), func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			attempts++
			if attempts < 3 {
				return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "rate limited")
			}
			return &genai.EmbedContentResponse{}, nil
		}, noDelays())

		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error when all attempts fail", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		_, err := gemini.EmbedWithRetry(context.Background(), func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			attempts++
			return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "attempt %d failed", attempts)
		}, noDelays())

		require.Error(t, err)
		assert.Equal(t, 4, attempts) // 1 initial + 3 retries
		assert.Contains(t, err.Error(), "attempt 4")
	})

	t.Run("stops when the context is canceled between attempts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		_, err := gemini.EmbedWithRetry(ctx, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			attempts++
			cancel()
			return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "transient")
		}, []time.Duration{time.Minute})

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("no delays means a single attempt", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		_, err := gemini.EmbedWithRetry(context.Background(), func(ctx context.Context) (*genai.EmbedContentResponse, error) {
			attempts++
			return nil, chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "boom")
		}, nil)

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestDefaultRetryDelays(t *testing.T) {
	t.Parallel()

	delays := gemini.DefaultRetryDelays()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}
