package mock

import "github.com/pkaminski/chimeraxmcp"

var _ chimeraxmcp.Converter = (*Converter)(nil)

// Converter is a mock implementation of chimeraxmcp.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
