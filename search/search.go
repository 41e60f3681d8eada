// Package search provides documentation indexing and search orchestration.
// It coordinates HTML discovery, chunking, and storage of ChimeraX
// documentation pages.
package search

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkaminski/chimeraxmcp"
)

// Searcher orchestrates building and querying the documentation index.
type Searcher struct {
	// DocsPath is the root directory of the ChimeraX HTML documentation.
	DocsPath string

	Store     chimeraxmcp.DocStore
	Chunker   chimeraxmcp.Chunker
	Converter chimeraxmcp.Converter
	Logger    *slog.Logger
}

// Report holds the outcome of an index build.
type Report struct {
	FilesProcessed int
	ChunksCreated  int

	// Failed lists files that could not be parsed or stored. Failures are
	// not fatal to the build.
	Failed []FileError
}

// FileError records an indexing failure for a single file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// BuildIndex rebuilds the search index from scratch. Files are processed in
// lexicographic path order; a file that fails to parse or store is recorded
// on the report and skipped.
func (s *Searcher) BuildIndex(ctx context.Context) (*Report, error) {
	if err := s.Store.Clear(ctx); err != nil {
		return nil, err
	}

	files, err := discoverHTMLFiles(s.DocsPath)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, relPath := range files {
		report.FilesProcessed++

		chunks, err := s.chunkFile(relPath)
		if err != nil {
			s.logger().Warn("failed to index file", "file", relPath, "err", err)
			report.Failed = append(report.Failed, FileError{Path: relPath, Err: err})
			continue
		}
		if len(chunks) == 0 {
			continue
		}

		ids := make([]string, len(chunks))
		for i := range chunks {
			ids[i] = fmt.Sprintf("%s#%d", relPath, i)
		}
		if err := s.Store.AddDocuments(ctx, ids, chunks); err != nil {
			s.logger().Warn("failed to store chunks", "file", relPath, "err", err)
			report.Failed = append(report.Failed, FileError{Path: relPath, Err: err})
			continue
		}
		report.ChunksCreated += len(chunks)
	}

	s.logger().Info("index built",
		"files", report.FilesProcessed,
		"chunks", report.ChunksCreated,
		"failed", len(report.Failed),
	)
	return report, nil
}

func (s *Searcher) chunkFile(relPath string) ([]chimeraxmcp.Chunk, error) {
	html, err := os.ReadFile(filepath.Join(s.DocsPath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	return s.Chunker.ChunkHTML(string(html), relPath)
}

// Search runs a semantic query over the index.
func (s *Searcher) Search(ctx context.Context, query string, category chimeraxmcp.Category, maxResults int) ([]chimeraxmcp.Result, error) {
	return s.Store.Search(ctx, query, category, maxResults)
}

// Lookup returns all chunks documenting the named command.
func (s *Searcher) Lookup(ctx context.Context, commandName string) ([]chimeraxmcp.Result, error) {
	return s.Store.LookupCommand(ctx, commandName)
}

// IsIndexed reports whether the index has been built.
func (s *Searcher) IsIndexed(ctx context.Context) (bool, error) {
	return s.Store.IsIndexed(ctx)
}

// Count returns the number of indexed chunks.
func (s *Searcher) Count(ctx context.Context) (int, error) {
	return s.Store.Count(ctx)
}

// EnsureIndex builds the index if it has not been built yet.
func (s *Searcher) EnsureIndex(ctx context.Context) error {
	indexed, err := s.IsIndexed(ctx)
	if err != nil {
		return err
	}
	if indexed {
		return nil
	}
	s.logger().Info("index not found, building", "docs_path", s.DocsPath)
	if _, err := s.BuildIndex(ctx); err != nil {
		return chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "failed to build index: %v", err)
	}
	return nil
}

// ReadPage loads a documentation page by its path relative to the docs root
// and returns it converted to Markdown. Paths escaping the root are
// rejected.
func (s *Searcher) ReadPage(sourceFile string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(sourceFile)))
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(sourceFile) {
		return "", chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "page path %q escapes the docs root", sourceFile)
	}

	html, err := os.ReadFile(filepath.Join(s.DocsPath, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", chimeraxmcp.Errorf(chimeraxmcp.ENOTFOUND, "page %q not found", sourceFile)
		}
		return "", err
	}

	return s.Converter.Convert(string(html))
}

func (s *Searcher) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// discoverHTMLFiles returns every *.html file under root as a slash-separated
// relative path, in lexicographic order.
func discoverHTMLFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, chimeraxmcp.Errorf(chimeraxmcp.ENOTFOUND, "docs path %q does not exist", root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "docs path %q is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".html") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
