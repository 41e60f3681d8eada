package chimeraxmcp

import (
	"context"
	"strings"
)

// DefaultRESTPort is the port the ChimeraX remotecontrol REST interface
// listens on by default.
const DefaultRESTPort = 63269

// CommandError describes an error raised inside ChimeraX while executing a
// command.
type CommandError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CommandResult is the normalized response to a ChimeraX command. The REST
// interface answers in JSON mode or plain-text mode depending on how the
// server was started; clients normalize both into this shape.
type CommandResult struct {
	PythonValues []any               `json:"pythonValues"`
	JSONValues   []any               `json:"jsonValues"`
	LogMessages  map[string][]string `json:"logMessages"`
	Error        *CommandError       `json:"error,omitempty"`
}

// ExtractOutput returns the human-readable output of a command result by
// joining its info-level log lines. ChimeraX reports session.logger.info()
// output at the "note" level, so both levels are included.
func ExtractOutput(result *CommandResult) string {
	if result == nil {
		return ""
	}
	var lines []string
	for _, level := range []string{"info", "note"} {
		lines = append(lines, result.LogMessages[level]...)
	}
	return strings.Join(lines, "\n")
}

// ScreenshotOptions configures a screenshot capture of the ChimeraX view.
type ScreenshotOptions struct {
	// Width and Height in pixels.
	Width  int
	Height int

	// Format is the image format ("png" or "jpg").
	Format string

	// OutputPath is where the image is saved. If empty, the client picks a
	// timestamped path under its screenshot directory.
	OutputPath string
}

// MaxScreenshotDim is the largest width or height accepted for a screenshot.
const MaxScreenshotDim = 8192

// Validate returns EINVALID if the options are out of range.
func (o ScreenshotOptions) Validate() error {
	if o.Width < 1 || o.Width > MaxScreenshotDim {
		return Errorf(EINVALID, "width must be between 1 and %d, got %d", MaxScreenshotDim, o.Width)
	}
	if o.Height < 1 || o.Height > MaxScreenshotDim {
		return Errorf(EINVALID, "height must be between 1 and %d, got %d", MaxScreenshotDim, o.Height)
	}
	switch o.Format {
	case "png", "jpg", "jpeg":
	default:
		return Errorf(EINVALID, "format must be png, jpg or jpeg, got %q", o.Format)
	}
	return nil
}

// ChimeraXClient communicates with a running ChimeraX instance.
type ChimeraXClient interface {
	// RunCommand executes a ChimeraX command and returns the normalized
	// result. A command error inside ChimeraX is reported on the result,
	// not as a Go error; transport failures return EUNAVAILABLE.
	RunCommand(ctx context.Context, command string) (*CommandResult, error)

	// IsRunning reports whether the ChimeraX REST interface is reachable.
	IsRunning(ctx context.Context) bool

	// Version returns the ChimeraX version string.
	Version(ctx context.Context) (string, error)

	// Models returns the currently open models.
	Models(ctx context.Context) ([]map[string]any, error)

	// Screenshot captures the current view and returns the saved file path.
	Screenshot(ctx context.Context, opts ScreenshotOptions) (string, error)

	// Close releases client resources.
	Close() error
}
