// Package http provides an HTTP-based implementation of
// chimeraxmcp.ChimeraXClient that talks to the REST server started inside
// ChimeraX with "remotecontrol rest start".
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkaminski/chimeraxmcp"
)

// DefaultTimeout is the default timeout for REST requests. ChimeraX commands
// such as structure fetches can take a while, so it is generous.
const DefaultTimeout = 30 * time.Second

// Ensure Client implements chimeraxmcp.ChimeraXClient at compile time.
var _ chimeraxmcp.ChimeraXClient = (*Client)(nil)

// Client communicates with a running ChimeraX instance over its REST API.
// It understands both "json true" responses and the plain-text responses of
// a server started without JSON mode.
type Client struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the timeout for REST requests.
// Defaults to DefaultTimeout (30s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a Client for the ChimeraX REST server at host:port.
func NewClient(host string, port int, opts ...Option) *Client {
	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = &http.Client{
		Timeout: c.timeout,
	}

	return c
}

// wireResult is the shape of a "json true" REST response.
type wireResult struct {
	PythonValues []any               `json:"python values"`
	JSONValues   []any               `json:"json values"`
	LogMessages  map[string][]string `json:"log messages"`
	Error        json.RawMessage     `json:"error"`
}

// RunCommand executes a ChimeraX command and returns the normalized result.
func (c *Client) RunCommand(ctx context.Context, command string) (*chimeraxmcp.CommandResult, error) {
	reqURL := c.baseURL + "/run?command=" + url.QueryEscape(command)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "ChimeraX REST server unreachable at %s: %v", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "ChimeraX returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire wireResult
	if err := json.Unmarshal(body, &wire); err != nil {
		// Plain-text mode ("json false"). Normalize to the same shape.
		result := &chimeraxmcp.CommandResult{
			LogMessages: map[string][]string{},
		}
		if text := strings.TrimSpace(string(body)); text != "" {
			result.LogMessages["info"] = []string{text}
		}
		return result, nil
	}

	result := &chimeraxmcp.CommandResult{
		PythonValues: wire.PythonValues,
		JSONValues:   wire.JSONValues,
		LogMessages:  wire.LogMessages,
		Error:        parseCommandError(wire.Error),
	}
	if result.LogMessages == nil {
		result.LogMessages = map[string][]string{}
	}
	return result, nil
}

// parseCommandError decodes the "error" field, which ChimeraX reports either
// as an object with type and message or as a bare string.
func parseCommandError(raw json.RawMessage) *chimeraxmcp.CommandError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj chimeraxmcp.CommandError
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Type != "" || obj.Message != "") {
		return &obj
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return &chimeraxmcp.CommandError{Message: s}
	}
	return &chimeraxmcp.CommandError{Message: string(raw)}
}

// IsRunning reports whether the REST server answers a version command.
func (c *Client) IsRunning(ctx context.Context) bool {
	reqURL := c.baseURL + "/run?command=version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Version returns the ChimeraX version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.RunCommand(ctx, "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(chimeraxmcp.ExtractOutput(result)), nil
}

// Models returns the list of open models. JSON values are preferred; when
// the server runs without JSON mode each info log line becomes one entry.
func (c *Client) Models(ctx context.Context) ([]map[string]any, error) {
	result, err := c.RunCommand(ctx, "info models")
	if err != nil {
		return nil, err
	}

	if len(result.JSONValues) > 0 && result.JSONValues[0] != nil {
		return modelsFromJSON(result.JSONValues[0]), nil
	}

	output := chimeraxmcp.ExtractOutput(result)
	var models []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			models = append(models, map[string]any{"info": line})
		}
	}
	return models, nil
}

func modelsFromJSON(value any) []map[string]any {
	toMap := func(v any) map[string]any {
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{"value": v}
	}
	if list, ok := value.([]any); ok {
		models := make([]map[string]any, len(list))
		for i, item := range list {
			models[i] = toMap(item)
		}
		return models
	}
	return []map[string]any{toMap(value)}
}

// Screenshot renders the current view to an image file and returns its path.
// When opts.OutputPath is empty the image is written under the user's data
// directory with a timestamped name.
func (c *Client) Screenshot(ctx context.Context, opts chimeraxmcp.ScreenshotOptions) (string, error) {
	if opts.Width == 0 {
		opts.Width = 1024
	}
	if opts.Height == 0 {
		opts.Height = 768
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir := filepath.Join(home, ".local", "share", "chimerax-mcp", "screenshots")
		outputPath = filepath.Join(dir, fmt.Sprintf("screenshot_%s.%s",
			time.Now().UTC().Format("20060102_150405.000000"), opts.Format))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}

	cmd := fmt.Sprintf("save %s width %d height %d", outputPath, opts.Width, opts.Height)
	result, err := c.RunCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "save command failed: %s", result.Error.Message)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "save command completed but file not found: %s", outputPath)
	}
	return outputPath, nil
}

// Close releases resources. The underlying http.Client needs no explicit
// cleanup.
func (c *Client) Close() error {
	return nil
}
