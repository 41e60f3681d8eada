// Command chimerax-mcp is an MCP server exposing ChimeraX remote control and
// documentation search tools over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkaminski/chimeraxmcp"
	"github.com/pkaminski/chimeraxmcp/exec"
	"github.com/pkaminski/chimeraxmcp/gemini"
	"github.com/pkaminski/chimeraxmcp/goquery"
	"github.com/pkaminski/chimeraxmcp/htmltomarkdown"
	cxhttp "github.com/pkaminski/chimeraxmcp/http"
	"github.com/pkaminski/chimeraxmcp/qdrant"
	"github.com/pkaminski/chimeraxmcp/search"
	cxslog "github.com/pkaminski/chimeraxmcp/slog"
	"github.com/pkaminski/chimeraxmcp/sqlite"
	"google.golang.org/genai"
)

const (
	serverName    = "chimerax-mcp"
	serverVersion = "0.2.0"
)

// CLI holds the server flags.
type CLI struct {
	DocsPath  string `help:"Root directory of the ChimeraX HTML documentation." env:"CHIMERAX_DOCS_PATH" default:""`
	DataDir   string `help:"Directory for the search index database." env:"CHIMERAX_MCP_DATA_DIR" default:""`
	Backend   string `help:"Document store backend." enum:"sqlite,qdrant" env:"CHIMERAX_MCP_BACKEND" default:"sqlite"`
	QdrantURL string `help:"Qdrant server URL for the qdrant backend." env:"QDRANT_URL" default:"http://localhost:6333"`
	Host      string `help:"ChimeraX REST host." env:"CHIMERAX_HOST" default:"127.0.0.1"`
	Port      int    `help:"ChimeraX REST port." env:"CHIMERAX_PORT" default:"63269"`
	Version   bool   `help:"Print version and exit."`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Optional .env file; flags and real env take precedence.
	_ = godotenv.Load()

	cli := &CLI{}
	kong.Parse(cli, kong.Name(serverName))

	if cli.Version {
		fmt.Printf("%s version %s\n", serverName, serverVersion)
		return nil
	}

	// MCP uses stdout for the protocol, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, closeStore, err := openStore(ctx, cli, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client := cxslog.NewLoggingChimeraXClient(cxhttp.NewClient(cli.Host, cli.Port), logger)
	defer client.Close()

	deps := &Deps{
		Client: client,
		Searcher: &search.Searcher{
			DocsPath:  docsPath(cli),
			Store:     cxslog.NewLoggingDocStore(store, logger),
			Chunker:   goquery.NewChunker(),
			Converter: htmltomarkdown.NewConverter(),
			Logger:    logger,
		},
		Logger: logger,
		Detect: exec.Detect,
		StartProcess: func(ctx context.Context, opts exec.StartOptions) (Process, error) {
			return exec.Start(ctx, opts)
		},
	}
	defer deps.Shutdown()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	RegisterTools(server, deps)

	logger.Info("server starting", "name", serverName, "version", serverVersion, "backend", cli.Backend)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// openStore builds the configured document store and its embedder.
func openStore(ctx context.Context, cli *CLI, logger *slog.Logger) (chimeraxmcp.DocStore, func(), error) {
	embedder, err := newEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}

	switch cli.Backend {
	case "qdrant":
		store, err := qdrant.NewDocStore(cli.QdrantURL, embedder)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		db := sqlite.NewDB(dbPath(cli))
		if err := db.Open(); err != nil {
			return nil, nil, fmt.Errorf("failed to open index database at %q: %w", dbPath(cli), err)
		}
		return sqlite.NewDocStore(db, embedder), func() { _ = db.Close() }, nil
	}
}

func newEmbedder(ctx context.Context) (chimeraxmcp.Embedder, error) {
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
	// The first docs_search builds the whole index, so embedding requests
	// are rate limited to stay under the API quota.
	return gemini.NewEmbedder(client, gemini.WithRateLimit(2.0)), nil
}

func docsPath(cli *CLI) string {
	if cli.DocsPath != "" {
		return cli.DocsPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "docs"
	}
	return filepath.Join(home, ".local", "share", "chimerax-mcp", "docs")
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
