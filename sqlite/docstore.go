package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkaminski/chimeraxmcp"
)

// Compile-time interface verification.
var _ chimeraxmcp.DocStore = (*DocStore)(nil)

// DocStore implements chimeraxmcp.DocStore using SQLite. Embeddings are
// computed through the injected Embedder at insert and query time and stored
// as little-endian float32 blobs; similarity is cosine, computed over the
// candidate rows.
//
// Inserting a duplicate id fails with a primary key constraint error; it is
// never silently ignored.
type DocStore struct {
	db       *DB
	embedder chimeraxmcp.Embedder
}

// NewDocStore creates a new DocStore.
func NewDocStore(db *DB, embedder chimeraxmcp.Embedder) *DocStore {
	return &DocStore{db: db, embedder: embedder}
}

// hashContent computes xxHash of content and returns a hex string.
func hashContent(content string) string {
	h := xxhash.Sum64String(content)
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return hex.EncodeToString(b)
}

// AddDocuments inserts chunks under the given ids. All chunks of one call
// are embedded in a single batch and inserted in a single transaction, so a
// file's chunks land atomically.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, source_file, category, title, section, command_name, content, content_hash, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ids[i], c.SourceFile, string(c.Category), c.Title, c.Section, c.CommandName,
			c.Content, hashContent(c.Content), encodeVector(vectors[i]))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Search returns up to maxResults chunks ranked by cosine similarity to the
// query. The category filter is applied in SQL and never relaxed.
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

	stmt := `SELECT id, source_file, category, title, section, command_name, content, embedding FROM chunks`
	var args []any
	if category != "" {
		stmt += " WHERE category = ?"
		args = append(args, string(category))
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []chimeraxmcp.Result
	for rows.Next() {
		var r chimeraxmcp.Result
		var blob []byte
		var cat string
		if err := rows.Scan(&r.ID, &r.Chunk.SourceFile, &cat, &r.Chunk.Title,
			&r.Chunk.Section, &r.Chunk.CommandName, &r.Chunk.Content, &blob); err != nil {
			return nil, err
		}
		r.Chunk.Category = chimeraxmcp.Category(cat)
		r.Score = cosineSimilarity(queryVec, decodeVector(blob))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if results == nil {
		results = []chimeraxmcp.Result{}
	}

	return results, nil
}

// LookupCommand returns every stored chunk whose command name exactly equals
// commandName, in insertion order.
func (s *DocStore) LookupCommand(ctx context.Context, commandName string) ([]chimeraxmcp.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_file, category, title, section, command_name, content
		FROM chunks
		WHERE command_name = ?
		ORDER BY rowid
	`, commandName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []chimeraxmcp.Result{}
	for rows.Next() {
		var r chimeraxmcp.Result
		var cat string
		if err := rows.Scan(&r.ID, &r.Chunk.SourceFile, &cat, &r.Chunk.Title,
			&r.Chunk.Section, &r.Chunk.CommandName, &r.Chunk.Content); err != nil {
			return nil, err
		}
		r.Chunk.Category = chimeraxmcp.Category(cat)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of stored chunks.
func (s *DocStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}

// IsIndexed reports whether the store contains at least one chunk.
func (s *DocStore) IsIndexed(ctx context.Context) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Clear drops all chunks. The schema remains in place, ready for
// AddDocuments.
func (s *DocStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks")
	return err
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian blob into a float32 vector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
