// Package qdrant provides a Qdrant-backed implementation of
// chimeraxmcp.DocStore. Unlike the embedded SQLite store, similarity search
// runs server-side against a cosine-distance collection, which scales to
// much larger documentation sets.
package qdrant

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkaminski/chimeraxmcp"
	"github.com/qdrant/go-client/qdrant"
)

// CollectionName is the Qdrant collection holding documentation chunks.
const CollectionName = "chimerax_docs"

// pointNamespace seeds deterministic point IDs so re-indexing the same chunk
// id always maps to the same point.
var pointNamespace = uuid.MustParse("2f9f9a46-8a2e-4c7e-9a6b-4a1f3bb0c5d1")

// Compile-time interface verification.
var _ chimeraxmcp.DocStore = (*DocStore)(nil)

// DocStore implements chimeraxmcp.DocStore using a Qdrant collection.
//
// Point IDs are derived deterministically from chunk ids, so adding a
// document under an existing id overwrites the previous point rather than
// failing. The original chunk id is preserved in the point payload.
type DocStore struct {
	client   *qdrant.Client
	embedder chimeraxmcp.Embedder
}

// NewDocStore connects to the Qdrant instance at urlStr, which should be in
// the form "http://host:port" with the HTTP port; the gRPC port is derived
// as port+1.
func NewDocStore(urlStr string, embedder chimeraxmcp.Embedder) (*DocStore, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "invalid qdrant url %q: %v", urlStr, err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to connect to qdrant at %s:%d: %v", host, port, err)
	}

	return &DocStore{client: client, embedder: embedder}, nil
}

// PointID returns the deterministic Qdrant point UUID for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// ensureCollection creates the collection if it does not exist yet. The
// vector size is taken from the first batch of embeddings.
func (s *DocStore) ensureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to check qdrant collection: %v", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "failed to create qdrant collection: %v", err)
	}
	return nil
}

// AddDocuments embeds the chunks in one batch and upserts them as points.
// An id that already exists in the collection is overwritten.
func (s *DocStore) AddDocuments(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error {
	if len(ids) != len(chunks) {
		return chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "ids and chunks length mismatch: %d vs %d", len(ids), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return err
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "embedder returned %d vectors for %d documents", len(vectors), len(chunks))
	}

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(ids[i])),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"id":           ids[i],
				"content":      c.Content,
				"source_file":  c.SourceFile,
				"category":     string(c.Category),
				"title":        c.Title,
				"section":      c.Section,
				"command_name": c.CommandName,
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName,
		Points:         points,
	})
	if err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to upsert points: %v", err)
	}
	return nil
}

// Search queries the collection for the chunks most similar to query.
func (s *DocStore) Search(ctx context.Context, query string, category chimeraxmcp.Category, maxResults int) ([]chimeraxmcp.Result, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []chimeraxmcp.Result{}, nil
	}
	if maxResults <= 0 || maxResults > count {
		maxResults = count
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	limit := uint64(maxResults)
	req := &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(queryVec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if category != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("category", string(category)),
			},
		}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to query points: %v", err)
	}

	results := make([]chimeraxmcp.Result, 0, len(points))
	for _, p := range points {
		r := resultFromPayload(p.Payload)
		r.Score = p.Score
		results = append(results, r)
	}
	return results, nil
}

// LookupCommand scrolls the collection for chunks whose command name exactly
// equals commandName, ordered by chunk position within the source file.
func (s *DocStore) LookupCommand(ctx context.Context, commandName string) ([]chimeraxmcp.Result, error) {
	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to check qdrant collection: %v", err)
	}
	if !exists {
		return []chimeraxmcp.Result{}, nil
	}

	limit := uint32(256)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("command_name", commandName),
			},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to scroll points: %v", err)
	}

	results := make([]chimeraxmcp.Result, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPayload(p.Payload))
	}
	sortResultsByID(results)
	return results, nil
}

// Count returns the number of points in the collection, or 0 when the
// collection has not been created yet.
func (s *DocStore) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return 0, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to check qdrant collection: %v", err)
	}
	if !exists {
		return 0, nil
	}
	info, err := s.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return 0, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to get collection info: %v", err)
	}
	if info.PointsCount == nil {
		return 0, nil
	}
	return int(*info.PointsCount), nil
}

// IsIndexed reports whether the collection contains at least one point.
func (s *DocStore) IsIndexed(ctx context.Context) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Clear drops the collection. It is recreated lazily on the next
// AddDocuments call.
func (s *DocStore) Clear(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to check qdrant collection: %v", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, CollectionName); err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "failed to delete collection: %v", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *DocStore) Close() error {
	return s.client.Close()
}

func resultFromPayload(payload map[string]*qdrant.Value) chimeraxmcp.Result {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return chimeraxmcp.Result{
		ID: get("id"),
		Chunk: chimeraxmcp.Chunk{
			Content:     get("content"),
			SourceFile:  get("source_file"),
			Category:    chimeraxmcp.Category(get("category")),
			Title:       get("title"),
			Section:     get("section"),
			CommandName: get("command_name"),
		},
	}
}

// sortResultsByID orders results by source file and then by the numeric
// chunk index encoded after the "#" in the chunk id.
func sortResultsByID(results []chimeraxmcp.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		fi, ni := splitChunkID(results[i].ID)
		fj, nj := splitChunkID(results[j].ID)
		if fi != fj {
			return fi < fj
		}
		return ni < nj
	})
}

func splitChunkID(id string) (string, int) {
	idx := strings.LastIndexByte(id, '#')
	if idx < 0 {
		return id, 0
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return id[:idx], 0
	}
	return id[:idx], n
}
