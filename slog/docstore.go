package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkaminski/chimeraxmcp"
)

// Ensure LoggingDocStore implements chimeraxmcp.DocStore.
var _ chimeraxmcp.DocStore = (*LoggingDocStore)(nil)

// LoggingDocStore wraps a DocStore with operational logging.
type LoggingDocStore struct {
	next   chimeraxmcp.DocStore
	logger *slog.Logger
}

// NewLoggingDocStore creates a new LoggingDocStore.
func NewLoggingDocStore(next chimeraxmcp.DocStore, logger *slog.Logger) *LoggingDocStore {
	return &LoggingDocStore{next: next, logger: logger}
}

// AddDocuments delegates to the wrapped store and logs the operation.
func (s *LoggingDocStore) AddDocuments(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("add documents",
			"count", len(chunks),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.AddDocuments(ctx, ids, chunks)
}

// Search delegates to the wrapped store and logs the operation.
func (s *LoggingDocStore) Search(ctx context.Context, query string, category chimeraxmcp.Category, maxResults int) (results []chimeraxmcp.Result, err error) {
	defer func(begin time.Time) {
		s.logger.Info("search",
			"query", query,
			"category", string(category),
			"results", len(results),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Search(ctx, query, category, maxResults)
}

// LookupCommand delegates to the wrapped store and logs the operation.
func (s *LoggingDocStore) LookupCommand(ctx context.Context, commandName string) (results []chimeraxmcp.Result, err error) {
	defer func(begin time.Time) {
		s.logger.Info("lookup command",
			"command", commandName,
			"results", len(results),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.LookupCommand(ctx, commandName)
}

// Count delegates to the wrapped store.
func (s *LoggingDocStore) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

// IsIndexed delegates to the wrapped store.
func (s *LoggingDocStore) IsIndexed(ctx context.Context) (bool, error) {
	return s.next.IsIndexed(ctx)
}

// Clear delegates to the wrapped store and logs the operation.
func (s *LoggingDocStore) Clear(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("clear index", "err", err)
	}(time.Now())
	return s.next.Clear(ctx)
}
