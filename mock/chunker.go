package mock

import "github.com/pkaminski/chimeraxmcp"

var _ chimeraxmcp.Chunker = (*Chunker)(nil)

// Chunker is a mock implementation of chimeraxmcp.Chunker.
type Chunker struct {
	ChunkHTMLFn func(html, sourceFile string) ([]chimeraxmcp.Chunk, error)
}

func (c *Chunker) ChunkHTML(html, sourceFile string) ([]chimeraxmcp.Chunk, error) {
	return c.ChunkHTMLFn(html, sourceFile)
}
