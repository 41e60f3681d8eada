// Package goquery provides an HTML implementation of chimeraxmcp.Chunker.
// It parses ChimeraX documentation pages, splits them into heading-scoped
// sections, and emits size-bounded chunks with page metadata.
package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkaminski/chimeraxmcp"
	"golang.org/x/net/html"
)

// Ensure Chunker implements chimeraxmcp.Chunker at compile time.
var _ chimeraxmcp.Chunker = (*Chunker)(nil)

// headingTags are the elements that open a new section. Levels 1-5 only;
// h6 is treated as regular content.
var headingTags = map[string]bool{
	"h1": true,
	"h2": true,
	"h3": true,
	"h4": true,
	"h5": true,
}

// Chunker splits documentation pages into chunks using goquery.
// The underlying parser is permissive: malformed markup never fails, it is
// decoded best-effort.
type Chunker struct{}

// NewChunker creates a new Chunker.
func NewChunker() *Chunker {
	return &Chunker{}
}

// ChunkHTML parses a documentation page and returns its chunks in document
// order. Pages without a <title> are skipped and yield no chunks.
//
// Pages with no qualifying headings fall back to chunking the full body
// text. The fallback goes through the same size splitting as sectioned
// text, so an oversized body becomes several chunks rather than one chunk
// over the maximum size.
func (c *Chunker) ChunkHTML(htmlContent, sourceFile string) ([]chimeraxmcp.Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "failed to parse HTML: %v", err)
	}

	title := collapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		return nil, nil
	}

	category := chimeraxmcp.CategorizeFile(sourceFile)
	commandName := chimeraxmcp.CommandName(title, category)

	newChunk := func(content, section string) chimeraxmcp.Chunk {
		if section == "" {
			section = title
		}
		return chimeraxmcp.Chunk{
			Content:     content,
			SourceFile:  sourceFile,
			Category:    category,
			Title:       title,
			Section:     section,
			CommandName: commandName,
		}
	}

	var chunks []chimeraxmcp.Chunk
	for _, sec := range splitByHeadings(doc) {
		if len(strings.TrimSpace(sec.text)) < chimeraxmcp.MinChunkSize {
			continue
		}
		for _, piece := range chimeraxmcp.SplitText(sec.text, chimeraxmcp.MaxChunkSize) {
			piece = strings.TrimSpace(piece)
			if len(piece) < chimeraxmcp.MinChunkSize {
				continue
			}
			chunks = append(chunks, newChunk(piece, sec.heading))
		}
	}

	// Fallback: pages with no qualifying sections (e.g. no headings at all)
	// are indexed as a single full-body chunk if the body text is long
	// enough to qualify.
	if len(chunks) == 0 {
		full := strings.TrimSpace(strings.Join(blockLines(bodyNode(doc)), "\n"))
		if len(full) >= chimeraxmcp.MinChunkSize {
			for _, piece := range chimeraxmcp.SplitText(full, chimeraxmcp.MaxChunkSize) {
				piece = strings.TrimSpace(piece)
				if len(piece) < chimeraxmcp.MinChunkSize {
					continue
				}
				chunks = append(chunks, newChunk(piece, title))
			}
		}
	}

	return chunks, nil
}

// section is a heading-scoped span of page text. Text preceding the first
// heading has an empty heading and is attributed to the page title.
type section struct {
	heading string
	text    string
}

// splitByHeadings walks the page body in document order, closing the current
// section whenever a heading element (h1-h5) is encountered at any depth.
// Script and style content is excluded.
func splitByHeadings(doc *goquery.Document) []section {
	root := bodyNode(doc)
	if root == nil {
		return nil
	}

	var sections []section
	current := section{}
	var texts []string

	flush := func() {
		if len(texts) > 0 {
			current.text = strings.Join(texts, "\n")
			sections = append(sections, current)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case headingTags[n.Data]:
				flush()
				current = section{heading: collapseWhitespace(nodeText(n))}
				texts = nil
				return
			case n.Data == "script" || n.Data == "style":
				return
			case !containsHeading(n):
				// Leaf block: take its whole text as one line so that
				// oversized sections split at element boundaries.
				if t := collapseWhitespace(nodeText(n)); t != "" {
					texts = append(texts, t)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := collapseWhitespace(n.Data); t != "" {
				texts = append(texts, t)
			}
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}

	for ch := root.FirstChild; ch != nil; ch = ch.NextSibling {
		walk(ch)
	}
	flush()

	return sections
}

// blockLines returns the text of every heading-free block under root, one
// line per block, headings included as their own lines. Used by the
// full-body fallback.
func blockLines(root *html.Node) []string {
	if root == nil {
		return nil
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if !containsHeading(n) || headingTags[n.Data] {
				if t := collapseWhitespace(nodeText(n)); t != "" {
					lines = append(lines, t)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := collapseWhitespace(n.Data); t != "" {
				lines = append(lines, t)
			}
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	for ch := root.FirstChild; ch != nil; ch = ch.NextSibling {
		walk(ch)
	}

	return lines
}

// bodyNode returns the page's <body> node, or the document root when the
// page has no body element.
func bodyNode(doc *goquery.Document) *html.Node {
	if body := doc.Find("body"); body.Length() > 0 {
		return body.Get(0)
	}
	if doc.Selection.Length() > 0 {
		return doc.Get(0)
	}
	return nil
}

// containsHeading reports whether any descendant of n is a heading element.
func containsHeading(n *html.Node) bool {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && headingTags[ch.Data] {
			return true
		}
		if containsHeading(ch) {
			return true
		}
	}
	return false
}

// nodeText concatenates all text node content under n, excluding script and
// style elements.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}

// collapseWhitespace trims s and collapses internal whitespace runs to a
// single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
