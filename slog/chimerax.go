package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkaminski/chimeraxmcp"
)

// Ensure LoggingChimeraXClient implements chimeraxmcp.ChimeraXClient.
var _ chimeraxmcp.ChimeraXClient = (*LoggingChimeraXClient)(nil)

// LoggingChimeraXClient wraps a ChimeraXClient with command logging.
type LoggingChimeraXClient struct {
	next   chimeraxmcp.ChimeraXClient
	logger *slog.Logger
}

// NewLoggingChimeraXClient creates a new LoggingChimeraXClient.
func NewLoggingChimeraXClient(next chimeraxmcp.ChimeraXClient, logger *slog.Logger) *LoggingChimeraXClient {
	return &LoggingChimeraXClient{next: next, logger: logger}
}

// RunCommand delegates to the wrapped client and logs the command.
func (c *LoggingChimeraXClient) RunCommand(ctx context.Context, command string) (result *chimeraxmcp.CommandResult, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"command", command,
			"duration", time.Since(begin),
			"err", err,
		}
		if result != nil && result.Error != nil {
			attrs = append(attrs, "command_error", result.Error.Message)
		}
		c.logger.Info("run command", attrs...)
	}(time.Now())
	return c.next.RunCommand(ctx, command)
}

// IsRunning delegates to the wrapped client.
func (c *LoggingChimeraXClient) IsRunning(ctx context.Context) bool {
	return c.next.IsRunning(ctx)
}

// Version delegates to the wrapped client.
func (c *LoggingChimeraXClient) Version(ctx context.Context) (string, error) {
	return c.next.Version(ctx)
}

// Models delegates to the wrapped client.
func (c *LoggingChimeraXClient) Models(ctx context.Context) ([]map[string]any, error) {
	return c.next.Models(ctx)
}

// Screenshot delegates to the wrapped client and logs the saved path.
func (c *LoggingChimeraXClient) Screenshot(ctx context.Context, opts chimeraxmcp.ScreenshotOptions) (path string, err error) {
	defer func(begin time.Time) {
		c.logger.Info("screenshot",
			"path", path,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.Screenshot(ctx, opts)
}

// Close delegates to the wrapped client.
func (c *LoggingChimeraXClient) Close() error {
	return c.next.Close()
}
