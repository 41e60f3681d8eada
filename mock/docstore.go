package mock

import (
	"context"

	"github.com/pkaminski/chimeraxmcp"
)

var _ chimeraxmcp.DocStore = (*DocStore)(nil)

// DocStore is a mock implementation of chimeraxmcp.DocStore.
type DocStore struct {
	AddDocumentsFn  func(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error
	SearchFn        func(ctx context.Context, query string, category chimeraxmcp.Category, maxResults int) ([]chimeraxmcp.Result, error)
	LookupCommandFn func(ctx context.Context, commandName string) ([]chimeraxmcp.Result, error)
	CountFn         func(ctx context.Context) (int, error)
	IsIndexedFn     func(ctx context.Context) (bool, error)
	ClearFn         func(ctx context.Context) error
}

func (s *DocStore) AddDocuments(ctx context.Context, ids []string, chunks []chimeraxmcp.Chunk) error {
	return s.AddDocumentsFn(ctx, ids, chunks)
}

func (s *DocStore) Search(ctx context.Context, query string, category chimeraxmcp.Category, maxResults int) ([]chimeraxmcp.Result, error) {
	return s.SearchFn(ctx, query, category, maxResults)
}

func (s *DocStore) LookupCommand(ctx context.Context, commandName string) ([]chimeraxmcp.Result, error) {
	return s.LookupCommandFn(ctx, commandName)
}

func (s *DocStore) Count(ctx context.Context) (int, error) {
	return s.CountFn(ctx)
}

func (s *DocStore) IsIndexed(ctx context.Context) (bool, error) {
	return s.IsIndexedFn(ctx)
}

func (s *DocStore) Clear(ctx context.Context) error {
	return s.ClearFn(ctx)
}
