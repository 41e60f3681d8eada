package search_test

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkaminski/chimeraxmcp"
	"github.com/pkaminski/chimeraxmcp/goquery"
	"github.com/pkaminski/chimeraxmcp/mock"
	"github.com/pkaminski/chimeraxmcp/search"
	"github.com/pkaminski/chimeraxmcp/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeDocs lays out files (relative path -> content) under a temp docs root.
func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func passthroughStore() *mock.DocStore {
	return &mock.DocStore{
		ClearFn:        func(ctx context.Context) error { return nil },
		AddDocumentsFn: func(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error { return nil },
	}
}

func singleChunker() *mock.Chunker {
	return &mock.Chunker{
		ChunkHTMLFn: func(html, sourceFile string) ([]chimeraxmcp.Chunk, error) {
			return []chimeraxmcp.Chunk{{
				Content:    html,
				SourceFile: sourceFile,
				Category:   chimeraxmcp.CategoryOther,
				Title:      "Page",
			}}, nil
		},
	}
}

func TestSearcher_BuildIndex(t *testing.T) {
	t.Parallel()

	t.Run("indexes files in lexicographic order with positional ids", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{
			"user/commands/open.html":  "<html>open</html>",
			"user/commands/color.html": "<html>color</html>",
			"index.html":               "<html>index</html>",
			"README.txt":               "not html",
		})

		var gotIDs []string
		store := passthroughStore()
		store.AddDocumentsFn = func(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error {
			gotIDs = append(gotIDs, ids...)
			return nil
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		report, err := searcher.BuildIndex(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 3, report.FilesProcessed)
		assert.Equal(t, 3, report.ChunksCreated)
		assert.Empty(t, report.Failed)
		assert.Equal(t, []string{
			"index.html#0",
			"user/commands/color.html#0",
			"user/commands/open.html#0",
		}, gotIDs)
	})

	t.Run("clears the store before indexing", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{"a.html": "<html>a</html>"})

		cleared := false
		store := passthroughStore()
		store.ClearFn = func(ctx context.Context) error {
			cleared = true
			return nil
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		_, err := searcher.BuildIndex(context.Background())
		require.NoError(t, err)
		assert.True(t, cleared)
	})

	t.Run("missing docs root returns ENOTFOUND", func(t *testing.T) {
		t.Parallel()

		searcher := &search.Searcher{
			DocsPath: filepath.Join(t.TempDir(), "nope"),
			Store:    passthroughStore(),
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		_, err := searcher.BuildIndex(context.Background())
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.ENOTFOUND, chimeraxmcp.ErrorCode(err))
	})

	t.Run("per-file chunker failures are recorded, not fatal", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{
			"bad.html":  "<html>bad</html>",
			"good.html": "<html>good</html>",
		})

		chunker := &mock.Chunker{
			ChunkHTMLFn: func(html, sourceFile string) ([]chimeraxmcp.Chunk, error) {
				if sourceFile == "bad.html" {
					return nil, errors.New("malformed page")
				}
				return []chimeraxmcp.Chunk{{
					Content:    "good content",
					SourceFile: sourceFile,
					Category:   chimeraxmcp.CategoryOther,
				}}, nil
			},
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    passthroughStore(),
			Chunker:  chunker,
			Logger:   discardLogger(),
		}

		report, err := searcher.BuildIndex(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, report.FilesProcessed)
		assert.Equal(t, 1, report.ChunksCreated)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "bad.html", report.Failed[0].Path)
	})

	t.Run("store failures are recorded, not fatal", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{
			"a.html": "<html>a</html>",
			"b.html": "<html>b</html>",
		})

		store := passthroughStore()
		store.AddDocumentsFn = func(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error {
			if strings.HasPrefix(ids[0], "a.html") {
				return errors.New("store unavailable")
			}
			return nil
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		report, err := searcher.BuildIndex(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.ChunksCreated)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "a.html", report.Failed[0].Path)
	})

	t.Run("pages with no chunks still count as processed", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{"empty.html": "<html></html>"})

		chunker := &mock.Chunker{
			ChunkHTMLFn: func(html, sourceFile string) ([]chimeraxmcp.Chunk, error) {
				return nil, nil
			},
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    passthroughStore(),
			Chunker:  chunker,
			Logger:   discardLogger(),
		}

		report, err := searcher.BuildIndex(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.FilesProcessed)
		assert.Zero(t, report.ChunksCreated)
		assert.Empty(t, report.Failed)
	})
}

func TestSearcher_EnsureIndex(t *testing.T) {
	t.Parallel()

	t.Run("builds when not indexed", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{"a.html": "<html>a</html>"})

		built := false
		store := passthroughStore()
		store.IsIndexedFn = func(ctx context.Context) (bool, error) { return false, nil }
		store.AddDocumentsFn = func(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error {
			built = true
			return nil
		}

		searcher := &search.Searcher{
			DocsPath: root,
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		require.NoError(t, searcher.EnsureIndex(context.Background()))
		assert.True(t, built)
	})

	t.Run("no-op when already indexed", func(t *testing.T) {
		t.Parallel()

		store := &mock.DocStore{
			IsIndexedFn: func(ctx context.Context) (bool, error) { return true, nil },
		}

		searcher := &search.Searcher{
			DocsPath: "/does/not/matter",
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		require.NoError(t, searcher.EnsureIndex(context.Background()))
	})

	t.Run("wraps build failures as EINTERNAL", func(t *testing.T) {
		t.Parallel()

		store := &mock.DocStore{
			IsIndexedFn: func(ctx context.Context) (bool, error) { return false, nil },
			ClearFn:     func(ctx context.Context) error { return errors.New("backend down") },
		}

		searcher := &search.Searcher{
			DocsPath: t.TempDir(),
			Store:    store,
			Chunker:  singleChunker(),
			Logger:   discardLogger(),
		}

		err := searcher.EnsureIndex(context.Background())
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EINTERNAL, chimeraxmcp.ErrorCode(err))
		assert.Contains(t, chimeraxmcp.ErrorMessage(err), "failed to build index")
	})
}

func TestSearcher_ReadPage(t *testing.T) {
	t.Parallel()

	t.Run("converts page to markdown", func(t *testing.T) {
		t.Parallel()

		root := writeDocs(t, map[string]string{
			"user/commands/color.html": "<html><body><h1>Command: color</h1></body></html>",
		})

		converter := &mock.Converter{
			ConvertFn: func(html string) (string, error) {
				assert.Contains(t, html, "Command: color")
				return "# Command: color\n", nil
			},
		}

		searcher := &search.Searcher{
			DocsPath:  root,
			Converter: converter,
			Logger:    discardLogger(),
		}

		md, err := searcher.ReadPage("user/commands/color.html")
		require.NoError(t, err)
		assert.Equal(t, "# Command: color\n", md)
	})

	t.Run("missing page returns ENOTFOUND", func(t *testing.T) {
		t.Parallel()

		searcher := &search.Searcher{
			DocsPath:  t.TempDir(),
			Converter: &mock.Converter{},
			Logger:    discardLogger(),
		}

		_, err := searcher.ReadPage("user/commands/missing.html")
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.ENOTFOUND, chimeraxmcp.ErrorCode(err))
	})

	t.Run("rejects paths escaping the docs root", func(t *testing.T) {
		t.Parallel()

		searcher := &search.Searcher{
			DocsPath:  t.TempDir(),
			Converter: &mock.Converter{},
			Logger:    discardLogger(),
		}

		for _, path := range []string{"../etc/passwd", "user/../../secret.html", "/etc/passwd"} {
			_, err := searcher.ReadPage(path)
			require.Error(t, err, path)
			assert.Equal(t, chimeraxmcp.EINVALID, chimeraxmcp.ErrorCode(err), path)
		}
	})
}

// newWordEmbedder buckets words into a small fixed-size vector so that texts
// sharing words score higher, making end-to-end ranking deterministic.
func newWordEmbedder() *mock.Embedder {
	const dim = 16
	embed := func(text string) []float32 {
		vec := make([]float32, dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return r < 'a' || r > 'z'
		})
		for _, word := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%dim]++
		}
		return vec
	}
	return &mock.Embedder{
		EmbedDocumentsFn: func(_ context.Context, texts []string) ([][]float32, error) {
			vecs := make([][]float32, len(texts))
			for i, t := range texts {
				vecs[i] = embed(t)
			}
			return vecs, nil
		},
		EmbedQueryFn: func(_ context.Context, text string) ([]float32, error) {
			return embed(text), nil
		},
	}
}

func TestSearcher_EndToEnd(t *testing.T) {
	t.Parallel()

	colorHTML := `<html><head><title>Command: color</title></head><body>
		<h2>Command: color</h2>
		<p>The color command assigns colors to atoms, cartoons, surfaces and
		other displayed items. Coloring can be applied by element, by chain,
		or sequentially along the model.</p>
		<h3>Simple Coloring</h3>
		<p>Color the specified atoms with a single named color such as red,
		hot pink, or cornflower blue. Built-in color names follow the common
		web color conventions and can be listed with the palette commands.</p>
	</body></html>`

	toolHTML := `<html><head><title>Tool: Model Panel</title></head><body>
		<h2>Tool: Model Panel</h2>
		<p>The Model Panel lists the currently open models along with their
		identifiers, names, and display status. Checkboxes control whether a
		model is shown, and buttons apply actions to the chosen models.</p>
	</body></html>`

	root := writeDocs(t, map[string]string{
		"user/commands/color.html":   colorHTML,
		"user/tools/modelpanel.html": toolHTML,
	})

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	searcher := &search.Searcher{
		DocsPath:  root,
		Store:     sqlite.NewDocStore(db, newWordEmbedder()),
		Chunker:   goquery.NewChunker(),
		Converter: &mock.Converter{},
		Logger:    discardLogger(),
	}
	ctx := context.Background()

	report, err := searcher.BuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesProcessed)
	assert.GreaterOrEqual(t, report.ChunksCreated, 2)
	assert.Empty(t, report.Failed)

	indexed, err := searcher.IsIndexed(ctx)
	require.NoError(t, err)
	assert.True(t, indexed)

	results, err := searcher.Search(ctx, "assign colors to atoms", "", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "user/commands/color.html", results[0].Chunk.SourceFile)
	assert.Equal(t, chimeraxmcp.CategoryCommands, results[0].Chunk.Category)

	filtered, err := searcher.Search(ctx, "assign colors to atoms", chimeraxmcp.CategoryTools, 3)
	require.NoError(t, err)
	for _, r := range filtered {
		assert.Equal(t, chimeraxmcp.CategoryTools, r.Chunk.Category)
	}

	lookup, err := searcher.Lookup(ctx, "color")
	require.NoError(t, err)
	require.NotEmpty(t, lookup)
	for _, r := range lookup {
		assert.Equal(t, "color", r.Chunk.CommandName)
	}
}

func TestSearcher_RebuildUnchangedCorpus(t *testing.T) {
	t.Parallel()

	root := writeDocs(t, map[string]string{
		"user/commands/color.html": `<html><head><title>Command: color</title></head><body>
			<h2>Command: color</h2>
			<p>The color command assigns colors to atoms, cartoons, surfaces and
			other displayed items. Coloring can be applied by element, by chain,
			or sequentially along the model.</p>
		</body></html>`,
		"user/tools/modelpanel.html": `<html><head><title>Tool: Model Panel</title></head><body>
			<h2>Tool: Model Panel</h2>
			<p>The Model Panel lists the currently open models along with their
			identifiers, names, and display status. Checkboxes control whether a
			model is shown, and buttons apply actions to the chosen models.</p>
		</body></html>`,
	})

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	searcher := &search.Searcher{
		DocsPath: root,
		Store:    sqlite.NewDocStore(db, newWordEmbedder()),
		Chunker:  goquery.NewChunker(),
		Logger:   discardLogger(),
	}
	ctx := context.Background()

	// Rebuilding an unchanged corpus must succeed and produce the same
	// counts: ids are re-used across builds, so Clear has to leave the
	// store accepting them again.
	first, err := searcher.BuildIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, first.Failed)

	indexed, err := searcher.IsIndexed(ctx)
	require.NoError(t, err)
	assert.True(t, indexed)

	second, err := searcher.BuildIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Failed)
	assert.Equal(t, first.FilesProcessed, second.FilesProcessed)
	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)

	indexed, err = searcher.IsIndexed(ctx)
	require.NoError(t, err)
	assert.True(t, indexed)

	count, err := searcher.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ChunksCreated, count)
}
