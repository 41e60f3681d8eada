package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkaminski/chimeraxmcp"
	"github.com/pkaminski/chimeraxmcp/exec"
	"github.com/pkaminski/chimeraxmcp/search"
)

// resetCommands restores the display to a clean default state.
var resetCommands = []string{
	"hide pseudobonds",
	"hide atoms",
	"hide surface",
	"cartoon",
	"color byhetero",
	"lighting soft",
	"view",
}

// Process is the handle to a ChimeraX instance started by this server.
type Process interface {
	Pid() int
	Stop(grace time.Duration) error
}

// Deps holds the services the tool handlers operate on. Everything is
// injected so handlers can be tested without a running ChimeraX.
type Deps struct {
	Client   chimeraxmcp.ChimeraXClient
	Searcher *search.Searcher
	Logger   *slog.Logger

	// Detect locates a ChimeraX installation.
	Detect func() (string, error)

	// StartProcess launches ChimeraX with the REST interface enabled.
	StartProcess func(ctx context.Context, opts exec.StartOptions) (Process, error)

	// StartupTimeout bounds how long chimerax_start waits for the REST
	// interface to come up.
	StartupTimeout time.Duration

	mu   sync.Mutex
	proc Process
}

// RegisterTools registers every tool on the server.
func RegisterTools(server *mcp.Server, deps *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_detect",
		Description: "Detect an installed ChimeraX and return its path.",
	}, deps.ChimeraXDetect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_start",
		Description: "Start ChimeraX with its REST interface enabled and wait until it responds.",
	}, deps.ChimeraXStart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_stop",
		Description: "Stop the ChimeraX instance started by this server.",
	}, deps.ChimeraXStop)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_status",
		Description: "Report whether ChimeraX is running and its version.",
	}, deps.ChimeraXStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_run",
		Description: "Execute a ChimeraX command and return its output.",
	}, deps.ChimeraXRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_models",
		Description: "List the models currently open in ChimeraX.",
	}, deps.ChimeraXModels)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_view",
		Description: "Fit all models, or a specific target, in the view.",
	}, deps.ChimeraXView)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_turn",
		Description: "Rotate the view around the x, y or z axis.",
	}, deps.ChimeraXTurn)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_reset",
		Description: "Reset the display to a clean default state (cartoon, heteroatom coloring, soft lighting).",
	}, deps.ChimeraXReset)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_screenshot",
		Description: "Capture the current 3D view to an image file and return its path.",
	}, deps.ChimeraXScreenshot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_open",
		Description: "Open a structure file, PDB ID, or URL in ChimeraX.",
	}, deps.ChimeraXOpen)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_close",
		Description: "Close models in ChimeraX.",
	}, deps.ChimeraXClose)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_session_save",
		Description: "Save the current ChimeraX session to a .cxs file.",
	}, deps.ChimeraXSessionSave)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chimerax_session_open",
		Description: "Open a previously saved ChimeraX session file.",
	}, deps.ChimeraXSessionOpen)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_search",
		Description: "Semantic search over the ChimeraX documentation. Builds the index on first use.",
	}, deps.DocsSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_lookup",
		Description: "Look up every documentation chunk for an exact ChimeraX command name.",
	}, deps.DocsLookup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_page",
		Description: "Read a full documentation page as Markdown, by its path relative to the docs root.",
	}, deps.DocsPage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_build_index",
		Description: "Rebuild the documentation search index from scratch.",
	}, deps.DocsBuildIndex)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_status",
		Description: "Report whether the documentation index is built and how many chunks it holds.",
	}, deps.DocsStatus)
}

// Shutdown stops a ChimeraX process started by this server, if any.
func (d *Deps) Shutdown() {
	d.mu.Lock()
	proc := d.proc
	d.proc = nil
	d.mu.Unlock()
	if proc != nil {
		_ = proc.Stop(5 * time.Second)
	}
}

type detectOutput struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

func (d *Deps) ChimeraXDetect(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, detectOutput, error) {
	path, err := d.Detect()
	if err != nil {
		if chimeraxmcp.ErrorCode(err) == chimeraxmcp.ENOTFOUND {
			return nil, detectOutput{Found: false, Message: chimeraxmcp.ErrorMessage(err)}, nil
		}
		return nil, detectOutput{}, err
	}
	return nil, detectOutput{Found: true, Path: path}, nil
}

type StartInput struct {
	Port  int  `json:"port,omitempty" jsonschema:"REST port to listen on (default 63269)"`
	NoGUI bool `json:"nogui,omitempty" jsonschema:"Start ChimeraX without its graphical interface"`
}

type startOutput struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Pid     int    `json:"pid,omitempty"`
}

func (d *Deps) ChimeraXStart(ctx context.Context, req *mcp.CallToolRequest, input StartInput) (*mcp.CallToolResult, startOutput, error) {
	if d.Client.IsRunning(ctx) {
		return nil, startOutput{Status: "already_running", Message: "ChimeraX is already running"}, nil
	}

	proc, err := d.StartProcess(ctx, exec.StartOptions{Port: input.Port, NoGUI: input.NoGUI})
	if err != nil {
		return nil, startOutput{}, err
	}

	d.mu.Lock()
	d.proc = proc
	d.mu.Unlock()

	timeout := d.StartupTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Client.IsRunning(ctx) {
			return nil, startOutput{Status: "ok", Message: "ChimeraX started", Pid: proc.Pid()}, nil
		}
		select {
		case <-ctx.Done():
			return nil, startOutput{}, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, startOutput{
		Status:  "timeout",
		Message: fmt.Sprintf("ChimeraX did not respond within %s", timeout),
		Pid:     proc.Pid(),
	}, nil
}

type stopOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (d *Deps) ChimeraXStop(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, stopOutput, error) {
	d.mu.Lock()
	proc := d.proc
	d.proc = nil
	d.mu.Unlock()

	if proc == nil {
		return nil, stopOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "no ChimeraX process to stop")
	}
	if err := proc.Stop(5 * time.Second); err != nil {
		return nil, stopOutput{}, err
	}
	return nil, stopOutput{Status: "ok", Message: "ChimeraX stopped"}, nil
}

type statusOutput struct {
	Running bool   `json:"running"`
	Version string `json:"version,omitempty"`
}

func (d *Deps) ChimeraXStatus(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, statusOutput, error) {
	if !d.Client.IsRunning(ctx) {
		return nil, statusOutput{Running: false}, nil
	}
	version, err := d.Client.Version(ctx)
	if err != nil {
		return nil, statusOutput{Running: true}, nil
	}
	return nil, statusOutput{Running: true, Version: version}, nil
}

type RunInput struct {
	Command string `json:"command" jsonschema:"ChimeraX command to execute"`
}

type runOutput struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// runCommand executes a command if ChimeraX is running and normalizes the
// response. Errors raised inside ChimeraX are reported on the output, not as
// tool errors.
func (d *Deps) runCommand(ctx context.Context, command string) (runOutput, error) {
	if !d.Client.IsRunning(ctx) {
		return runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "ChimeraX is not running")
	}

	result, err := d.Client.RunCommand(ctx, command)
	if err != nil {
		return runOutput{}, err
	}

	out := runOutput{
		Status: "ok",
		Output: chimeraxmcp.ExtractOutput(result),
	}
	if result.Error != nil {
		out.Status = "error"
		out.Error = result.Error.Message
	}
	return out, nil
}

func (d *Deps) ChimeraXRun(ctx context.Context, req *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, runOutput, error) {
	if strings.TrimSpace(input.Command) == "" {
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "command required")
	}
	out, err := d.runCommand(ctx, input.Command)
	return nil, out, err
}

type modelsOutput struct {
	Models []map[string]any `json:"models"`
}

func (d *Deps) ChimeraXModels(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, modelsOutput, error) {
	if !d.Client.IsRunning(ctx) {
		return nil, modelsOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "ChimeraX is not running")
	}
	models, err := d.Client.Models(ctx)
	if err != nil {
		return nil, modelsOutput{}, err
	}
	if models == nil {
		models = []map[string]any{}
	}
	return nil, modelsOutput{Models: models}, nil
}

type ViewInput struct {
	Target string `json:"target,omitempty" jsonschema:"Model or atom specification to fit; all models when omitted"`
}

func (d *Deps) ChimeraXView(ctx context.Context, req *mcp.CallToolRequest, input ViewInput) (*mcp.CallToolResult, runOutput, error) {
	command := "view"
	if input.Target != "" {
		command = "view " + input.Target
	}
	out, err := d.runCommand(ctx, command)
	return nil, out, err
}

type TurnInput struct {
	Axis   string  `json:"axis,omitempty" jsonschema:"Axis to rotate around: x, y or z (default y)"`
	Angle  float64 `json:"angle,omitempty" jsonschema:"Rotation angle in degrees (default 90)"`
	Frames int     `json:"frames,omitempty" jsonschema:"Number of animation frames, must be >= 1 (default 1)"`
}

func (d *Deps) ChimeraXTurn(ctx context.Context, req *mcp.CallToolRequest, input TurnInput) (*mcp.CallToolResult, runOutput, error) {
	axis := strings.ToLower(input.Axis)
	if axis == "" {
		axis = "y"
	}
	switch axis {
	case "x", "y", "z":
	default:
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "invalid axis %q, must be x, y or z", input.Axis)
	}
	if input.Frames < 0 {
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "frames must be >= 1")
	}

	angle := input.Angle
	if angle == 0 {
		angle = 90
	}
	command := fmt.Sprintf("turn %s %g", axis, angle)
	if input.Frames > 1 {
		command = fmt.Sprintf("%s %d", command, input.Frames)
	}
	out, err := d.runCommand(ctx, command)
	return nil, out, err
}

type resetOutput struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (d *Deps) ChimeraXReset(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, resetOutput, error) {
	if !d.Client.IsRunning(ctx) {
		return nil, resetOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "ChimeraX is not running")
	}

	var errs []string
	for _, cmd := range resetCommands {
		result, err := d.Client.RunCommand(ctx, cmd)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", cmd, err))
			if chimeraxmcp.ErrorCode(err) == chimeraxmcp.EUNAVAILABLE {
				return nil, resetOutput{
					Status:  "error",
					Message: "lost connection to ChimeraX during reset",
					Errors:  errs,
				}, nil
			}
			continue
		}
		if result.Error != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", cmd, result.Error.Message))
		}
	}

	switch {
	case len(errs) == len(resetCommands):
		return nil, resetOutput{Status: "error", Message: "all reset commands failed", Errors: errs}, nil
	case len(errs) > 0:
		return nil, resetOutput{Status: "partial", Message: "some commands failed", Errors: errs}, nil
	}
	return nil, resetOutput{
		Status:  "ok",
		Message: fmt.Sprintf("reset complete (%d commands executed)", len(resetCommands)),
	}, nil
}

type ScreenshotInput struct {
	Width      int    `json:"width,omitempty" jsonschema:"Image width in pixels, 1-8192 (default 1024)"`
	Height     int    `json:"height,omitempty" jsonschema:"Image height in pixels, 1-8192 (default 768)"`
	Format     string `json:"format,omitempty" jsonschema:"Image format: png, jpg or jpeg (default png)"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Where to save the image; a timestamped default path is used when omitted"`
	AutoFit    bool   `json:"auto_fit,omitempty" jsonschema:"Fit all models in the view before capturing"`
}

type screenshotOutput struct {
	Status   string `json:"status"`
	FilePath string `json:"file_path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
}

func (d *Deps) ChimeraXScreenshot(ctx context.Context, req *mcp.CallToolRequest, input ScreenshotInput) (*mcp.CallToolResult, screenshotOutput, error) {
	if !d.Client.IsRunning(ctx) {
		return nil, screenshotOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EUNAVAILABLE, "ChimeraX is not running")
	}

	if input.AutoFit {
		// A failed fit should not prevent the capture.
		_, _ = d.Client.RunCommand(ctx, "view")
	}

	opts := chimeraxmcp.ScreenshotOptions{
		Width:      input.Width,
		Height:     input.Height,
		Format:     strings.ToLower(input.Format),
		OutputPath: strings.TrimSpace(input.OutputPath),
	}
	path, err := d.Client.Screenshot(ctx, opts)
	if err != nil {
		return nil, screenshotOutput{}, err
	}

	out := screenshotOutput{
		Status:   "ok",
		FilePath: path,
		Width:    opts.Width,
		Height:   opts.Height,
		Format:   opts.Format,
	}
	if out.Width == 0 {
		out.Width = 1024
	}
	if out.Height == 0 {
		out.Height = 768
	}
	if out.Format == "" {
		out.Format = "png"
	}
	return nil, out, nil
}

type OpenInput struct {
	PathOrID string `json:"path_or_id" jsonschema:"Local file path, PDB ID (e.g. 1a0s), or URL"`
}

func (d *Deps) ChimeraXOpen(ctx context.Context, req *mcp.CallToolRequest, input OpenInput) (*mcp.CallToolResult, runOutput, error) {
	if strings.TrimSpace(input.PathOrID) == "" {
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "path_or_id required")
	}
	out, err := d.runCommand(ctx, "open "+input.PathOrID)
	return nil, out, err
}

type CloseInput struct {
	ModelSpec string `json:"model_spec,omitempty" jsonschema:"Model specification to close (default all)"`
}

func (d *Deps) ChimeraXClose(ctx context.Context, req *mcp.CallToolRequest, input CloseInput) (*mcp.CallToolResult, runOutput, error) {
	spec := input.ModelSpec
	if spec == "" {
		spec = "all"
	}
	out, err := d.runCommand(ctx, "close "+spec)
	return nil, out, err
}

type SessionInput struct {
	Path string `json:"path" jsonschema:"Path to the session file (.cxs)"`
}

func (d *Deps) ChimeraXSessionSave(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, runOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "path required")
	}
	out, err := d.runCommand(ctx, "save "+input.Path)
	return nil, out, err
}

func (d *Deps) ChimeraXSessionOpen(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, runOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, runOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "path required")
	}
	out, err := d.runCommand(ctx, "open "+input.Path)
	return nil, out, err
}

type searchResult struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	SourceFile  string  `json:"source_file"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Section     string  `json:"section,omitempty"`
	CommandName string  `json:"command_name,omitempty"`
	Score       float32 `json:"score,omitempty"`
}

func toSearchResults(results []chimeraxmcp.Result) []searchResult {
	out := make([]searchResult, len(results))
	for i, r := range results {
		out[i] = searchResult{
			ID:          r.ID,
			Content:     r.Chunk.Content,
			SourceFile:  r.Chunk.SourceFile,
			Category:    string(r.Chunk.Category),
			Title:       r.Chunk.Title,
			Section:     r.Chunk.Section,
			CommandName: r.Chunk.CommandName,
			Score:       r.Score,
		}
	}
	return out
}

type DocsSearchInput struct {
	Query      string `json:"query" jsonschema:"Natural language search query"`
	Category   string `json:"category,omitempty" jsonschema:"Restrict results to one category: commands, tools, tutorials, concepts, devel or other"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (default 5)"`
}

type docsSearchOutput struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

func (d *Deps) DocsSearch(ctx context.Context, req *mcp.CallToolRequest, input DocsSearchInput) (*mcp.CallToolResult, docsSearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, docsSearchOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "query required")
	}

	category := chimeraxmcp.Category(input.Category)
	switch category {
	case "", chimeraxmcp.CategoryCommands, chimeraxmcp.CategoryTools, chimeraxmcp.CategoryTutorials,
		chimeraxmcp.CategoryConcepts, chimeraxmcp.CategoryDevel, chimeraxmcp.CategoryOther:
	default:
		return nil, docsSearchOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "unknown category %q", input.Category)
	}

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	if err := d.Searcher.EnsureIndex(ctx); err != nil {
		return nil, docsSearchOutput{}, err
	}

	results, err := d.Searcher.Search(ctx, input.Query, category, maxResults)
	if err != nil {
		return nil, docsSearchOutput{}, err
	}
	return nil, docsSearchOutput{Query: input.Query, Results: toSearchResults(results)}, nil
}

type DocsLookupInput struct {
	Command string `json:"command" jsonschema:"Exact ChimeraX command name, e.g. color"`
}

type docsLookupOutput struct {
	Command string         `json:"command"`
	Results []searchResult `json:"results"`
}

func (d *Deps) DocsLookup(ctx context.Context, req *mcp.CallToolRequest, input DocsLookupInput) (*mcp.CallToolResult, docsLookupOutput, error) {
	if strings.TrimSpace(input.Command) == "" {
		return nil, docsLookupOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "command required")
	}
	if err := d.Searcher.EnsureIndex(ctx); err != nil {
		return nil, docsLookupOutput{}, err
	}
	results, err := d.Searcher.Lookup(ctx, input.Command)
	if err != nil {
		return nil, docsLookupOutput{}, err
	}
	return nil, docsLookupOutput{Command: input.Command, Results: toSearchResults(results)}, nil
}

type DocsPageInput struct {
	Path string `json:"path" jsonschema:"Page path relative to the docs root, e.g. user/commands/color.html"`
}

type docsPageOutput struct {
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

func (d *Deps) DocsPage(ctx context.Context, req *mcp.CallToolRequest, input DocsPageInput) (*mcp.CallToolResult, docsPageOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, docsPageOutput{}, chimeraxmcp.Errorf(chimeraxmcp.EINVALID, "path required")
	}
	md, err := d.Searcher.ReadPage(input.Path)
	if err != nil {
		return nil, docsPageOutput{}, err
	}
	return nil, docsPageOutput{Path: input.Path, Markdown: md}, nil
}

type buildIndexOutput struct {
	FilesProcessed int      `json:"files_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	Failed         []string `json:"failed,omitempty"`
}

func (d *Deps) DocsBuildIndex(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, buildIndexOutput, error) {
	report, err := d.Searcher.BuildIndex(ctx)
	if err != nil {
		return nil, buildIndexOutput{}, err
	}
	out := buildIndexOutput{
		FilesProcessed: report.FilesProcessed,
		ChunksCreated:  report.ChunksCreated,
	}
	for _, fe := range report.Failed {
		out.Failed = append(out.Failed, fe.Error())
	}
	return nil, out, nil
}

type docsStatusOutput struct {
	Indexed bool `json:"indexed"`
	Chunks  int  `json:"chunks"`
}

func (d *Deps) DocsStatus(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, docsStatusOutput, error) {
	indexed, err := d.Searcher.IsIndexed(ctx)
	if err != nil {
		return nil, docsStatusOutput{}, err
	}
	count, err := d.Searcher.Count(ctx)
	if err != nil {
		return nil, docsStatusOutput{}, err
	}
	return nil, docsStatusOutput{Indexed: indexed, Chunks: count}, nil
}
