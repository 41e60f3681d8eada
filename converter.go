package chimeraxmcp

// Converter converts HTML to Markdown.
type Converter interface {
	// Convert transforms a documentation page's HTML into Markdown.
	// Returns the Markdown representation of the content.
	Convert(html string) (string, error)
}
