package chimeraxmcp

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Chunk size bounds in characters. Sections shorter than MinChunkSize after
// trimming are discarded; sections longer than MaxChunkSize are split at
// line boundaries.
const (
	MinChunkSize = 50
	MaxChunkSize = 1500
)

// Category is the coarse classification of a documentation page, derived
// from its location in the documentation tree.
type Category string

// Category values.
const (
	CategoryCommands  Category = "commands"
	CategoryTools     Category = "tools"
	CategoryTutorials Category = "tutorials"
	CategoryConcepts  Category = "concepts"
	CategoryDevel     Category = "devel"
	CategoryOther     Category = "other"
)

// Chunk represents a bounded unit of documentation text with metadata.
// It is the atomic retrievable item of the search index.
type Chunk struct {
	Content     string   `json:"content"`
	SourceFile  string   `json:"sourceFile"`
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Section     string   `json:"section"`
	CommandName string   `json:"commandName"`
}

// Validate returns an error if the chunk contains invalid fields.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return Errorf(EINVALID, "chunk content required")
	}
	if c.SourceFile == "" {
		return Errorf(EINVALID, "chunk source file required")
	}
	if c.CommandName != "" && c.Category != CategoryCommands {
		return Errorf(EINVALID, "command name is only valid for command pages")
	}
	return nil
}

// CategorizeFile determines the category of a documentation page from its
// path relative to the documentation root. It is a pure function: the same
// path always yields the same category.
func CategorizeFile(relPath string) Category {
	parts := strings.Split(path.Clean(filepath.ToSlash(relPath)), "/")
	if len(parts) >= 2 && parts[0] == "user" {
		switch parts[1] {
		case "commands":
			return CategoryCommands
		case "tools":
			return CategoryTools
		case "tutorials":
			return CategoryTutorials
		}
		return CategoryConcepts
	}
	if parts[0] == "devel" {
		return CategoryDevel
	}
	return CategoryOther
}

// commandTitleRe matches reference titles like "Command: color, rainbow".
// Only the first name is captured; comma-separated aliases are ignored.
var commandTitleRe = regexp.MustCompile(`^Command:\s*(\w+)`)

// CommandName extracts the primary command identifier from a page title.
// It returns the empty string unless the page is a command reference page
// whose title matches the "Command: <name>" pattern.
func CommandName(title string, category Category) string {
	if category != CategoryCommands {
		return ""
	}
	m := commandTitleRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// SplitText splits text that exceeds maxSize into smaller pieces at line
// boundaries. Lines are accumulated greedily; a piece is closed when adding
// the next line would exceed maxSize. A single line longer than maxSize is
// emitted as its own oversized piece rather than truncated. Joining the
// pieces with newlines reproduces every input line exactly once.
func SplitText(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var pieces []string
	var current []string
	currentLen := 0

	for _, line := range lines {
		lineLen := len(line) + 1
		if currentLen+lineLen > maxSize && len(current) > 0 {
			pieces = append(pieces, strings.Join(current, "\n"))
			current = []string{line}
			currentLen = lineLen
		} else {
			current = append(current, line)
			currentLen += lineLen
		}
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, "\n"))
	}

	return pieces
}

// Chunker splits a raw documentation page into searchable chunks.
type Chunker interface {
	// ChunkHTML parses raw HTML and returns its chunks in document order.
	// A page without a title yields no chunks; this is a deliberate skip,
	// not an error.
	ChunkHTML(html, sourceFile string) ([]Chunk, error)
}
