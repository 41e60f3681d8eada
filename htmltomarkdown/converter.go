// Package htmltomarkdown converts ChimeraX manual pages to Markdown for
// display in chat-oriented clients.
package htmltomarkdown

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/pkaminski/chimeraxmcp"
)

// Ensure Converter implements chimeraxmcp.Converter at compile time.
var _ chimeraxmcp.Converter = (*Converter)(nil)

// blankRuns matches runs of three or more newlines left behind by navigation
// tables and icon rows in the manual pages.
var blankRuns = regexp.MustCompile(`\n{3,}`)

// Converter wraps html-to-markdown to convert HTML pages to Markdown.
type Converter struct {
	conv *converter.Converter
}

// NewConverter creates a new Converter. The table plugin is enabled because
// ChimeraX command pages make heavy use of option tables.
func NewConverter() *Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Converter{conv: conv}
}

// Convert transforms an HTML page into Markdown.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "empty HTML input")
	}

	result, err := c.conv.ConvertString(html)
	if err != nil {
		return "", err
	}

	result = blankRuns.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result) + "\n", nil
}
