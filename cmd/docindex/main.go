// Command docindex builds the ChimeraX documentation search index from a
// local copy of the HTML documentation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pkaminski/chimeraxmcp"
	"github.com/pkaminski/chimeraxmcp/gemini"
	"github.com/pkaminski/chimeraxmcp/goquery"
	"github.com/pkaminski/chimeraxmcp/qdrant"
	"github.com/pkaminski/chimeraxmcp/search"
	"github.com/pkaminski/chimeraxmcp/sqlite"
	"google.golang.org/genai"
)

// embedRequestsPerSecond keeps index builds under the Gemini API
// requests-per-minute quota.
const embedRequestsPerSecond = 2.0

func main() {
	ctx := context.Background()

	m := NewMain()
	defer m.Close()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	DocsPath  string `arg:"" help:"Root directory of the ChimeraX HTML documentation."`
	DataDir   string `help:"Directory for the search index database." env:"CHIMERAX_MCP_DATA_DIR" default:""`
	Backend   string `help:"Document store backend." enum:"sqlite,qdrant" env:"CHIMERAX_MCP_BACKEND" default:"sqlite"`
	QdrantURL string `help:"Qdrant server URL for the qdrant backend." env:"QDRANT_URL" default:"http://localhost:6333"`
	Quiet     bool   `short:"q" help:"Suppress progress logging."`
}

// Main represents the program.
type Main struct {
	// SQLite database when the sqlite backend is used.
	DB *sqlite.DB

	// Store is the document store to index into. When nil, Run opens the
	// backend selected by the CLI flags. Injectable for end-to-end tests.
	Store chimeraxmcp.DocStore
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Optional .env file; flags and real env take precedence.
	_ = godotenv.Load()

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("docindex"),
		kong.Description("Build the ChimeraX documentation search index."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	if cli.Quiet {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if m.Store == nil {
		store, err := m.openStore(ctx, cli)
		if err != nil {
			return err
		}
		m.Store = store
	}

	searcher := &search.Searcher{
		DocsPath: cli.DocsPath,
		Store:    m.Store,
		Chunker:  goquery.NewChunker(),
		Logger:   logger,
	}

	report, err := searcher.BuildIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	fmt.Fprintf(stdout, "Indexed %d files (%d chunks)\n", report.FilesProcessed, report.ChunksCreated)
	for _, fe := range report.Failed {
		fmt.Fprintf(stderr, "failed: %s\n", fe.Error())
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d file(s) failed to index", len(report.Failed))
	}
	return nil
}

// openStore builds the configured document store and its embedder.
func (m *Main) openStore(ctx context.Context, cli *CLI) (chimeraxmcp.DocStore, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set. Get a key at https://aistudio.google.com/apikey")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
	}
	// Index builds send many embedding batches back to back.
	embedder := gemini.NewEmbedder(client, gemini.WithRateLimit(embedRequestsPerSecond))

	if cli.Backend == "qdrant" {
		return qdrant.NewDocStore(cli.QdrantURL, embedder)
	}

	m.DB = sqlite.NewDB(dbPath(cli))
	if err := m.DB.Open(); err != nil {
		return nil, fmt.Errorf("failed to open index database at %q: %w", dbPath(cli), err)
	}
	return sqlite.NewDocStore(m.DB, embedder), nil
}

func dbPath(cli *CLI) string {
	dir := cli.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "chimerax-docs.db"
		}
		dir = filepath.Join(home, ".local", "share", "chimerax-mcp")
	}
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "chimerax-docs.db")
}
