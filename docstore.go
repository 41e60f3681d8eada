package chimeraxmcp

import "context"

// Result represents a single stored chunk returned from a store query.
type Result struct {
	ID    string  `json:"id"`
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score,omitempty"`
}

// DocStore persists documentation chunks and serves semantic and
// exact-match queries over them. It is the sole owner of chunk persistence:
// no chunk exists outside the store once indexed.
//
// Implementations are thin adapters over a storage backend and must not
// swallow backend failures; connectivity and corruption errors propagate to
// the caller. Empty-result conditions (empty store, no matching category,
// no matching command) are valid empty results, never errors.
type DocStore interface {
	// AddDocuments inserts chunks under the given ids. The two slices must
	// have equal length. Behavior on duplicate ids is backend-defined and
	// documented on each implementation.
	AddDocuments(ctx context.Context, ids []string, chunks []Chunk) error

	// Search returns up to maxResults chunks ranked by semantic relevance
	// to the query. A non-empty category restricts results to that category
	// as a hard constraint. maxResults is clamped to the number of stored
	// documents; an empty store yields an empty result list.
	Search(ctx context.Context, query string, category Category, maxResults int) ([]Result, error)

	// LookupCommand returns every stored chunk whose command name exactly
	// equals commandName, in insertion order.
	LookupCommand(ctx context.Context, commandName string) ([]Result, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// IsIndexed reports whether the store contains at least one chunk.
	IsIndexed(ctx context.Context) (bool, error)

	// Clear drops all chunks and leaves a fresh collection ready for
	// AddDocuments.
	Clear(ctx context.Context) error
}

// Embedder converts text into fixed-length vectors for similarity search.
// Implementations must be deterministic for the same input text and model.
type Embedder interface {
	// EmbedDocuments embeds a batch of document texts, one vector per text,
	// in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query. Query and document embeddings must
	// live in the same vector space.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
