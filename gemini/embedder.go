package gemini

import (
	"context"
	"time"

	"github.com/pkaminski/chimeraxmcp"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const model = "gemini-embedding-001"

// maxBatchSize is the largest number of texts sent in a single EmbedContent
// request, matching the API's per-request limit.
const maxBatchSize = 100

// Ensure Embedder implements chimeraxmcp.Embedder at compile time.
var _ chimeraxmcp.Embedder = (*Embedder)(nil)

// Embedder implements chimeraxmcp.Embedder using the Gemini embedding API.
// Documents and queries are embedded with asymmetric task types so that
// retrieval quality matches how the index is queried.
type Embedder struct {
	client  *genai.Client
	limiter *rate.Limiter
	delays  []time.Duration
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithRateLimit bounds how many embedding requests per second are sent to
// the API. Index builds issue many batches back to back, so this keeps them
// under the account's requests-per-minute quota.
func WithRateLimit(rps float64) Option {
	return func(e *Embedder) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryDelays overrides the backoff delays used for failed requests.
func WithRetryDelays(delays []time.Duration) Option {
	return func(e *Embedder) {
		e.delays = delays
	}
}

// NewEmbedder creates a new Embedder.
func NewEmbedder(client *genai.Client, opts ...Option) *Embedder {
	e := &Embedder{
		client: client,
		delays: DefaultRetryDelays(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedDocuments embeds texts for storage, batching requests at the API
// limit. The returned vectors are in the same order as texts.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range Batches(texts, maxBatchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		result, err := e.embed(ctx, contents, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, err
		}
		if result == nil || len(result.Embeddings) != len(batch) {
			return nil, chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "gemini returned %d embeddings for %d texts", embeddingCount(result), len(batch))
		}

		for _, emb := range result.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := e.embed(ctx,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		"RETRIEVAL_QUERY",
	)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "gemini returned no embedding for query")
	}
	return result.Embeddings[0].Values, nil
}

// embed issues one EmbedContent request, applying the rate limit and
// retrying transient failures.
func (e *Embedder) embed(ctx context.Context, contents []*genai.Content, taskType string) (*genai.EmbedContentResponse, error) {
	return EmbedWithRetry(ctx, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return e.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
			TaskType: taskType,
		})
	}, e.delays)
}

func embeddingCount(result *genai.EmbedContentResponse) int {
	if result == nil {
		return 0
	}
	return len(result.Embeddings)
}

// Batches splits items into consecutive slices of at most size elements.
func Batches(items []string, size int) [][]string {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
