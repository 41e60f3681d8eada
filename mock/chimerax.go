package mock

import (
	"context"

	"github.com/pkaminski/chimeraxmcp"
)

var _ chimeraxmcp.ChimeraXClient = (*ChimeraXClient)(nil)

// ChimeraXClient is a mock implementation of chimeraxmcp.ChimeraXClient.
type ChimeraXClient struct {
	RunCommandFn func(ctx context.Context, command string) (*chimeraxmcp.CommandResult, error)
	IsRunningFn  func(ctx context.Context) bool
	VersionFn    func(ctx context.Context) (string, error)
	ModelsFn     func(ctx context.Context) ([]map[string]any, error)
	ScreenshotFn func(ctx context.Context, opts chimeraxmcp.ScreenshotOptions) (string, error)
	CloseFn      func() error
}

func (c *ChimeraXClient) RunCommand(ctx context.Context, command string) (*chimeraxmcp.CommandResult, error) {
	return c.RunCommandFn(ctx, command)
}

func (c *ChimeraXClient) IsRunning(ctx context.Context) bool {
	return c.IsRunningFn(ctx)
}

func (c *ChimeraXClient) Version(ctx context.Context) (string, error) {
	return c.VersionFn(ctx)
}

func (c *ChimeraXClient) Models(ctx context.Context) ([]map[string]any, error) {
	return c.ModelsFn(ctx)
}

func (c *ChimeraXClient) Screenshot(ctx context.Context, opts chimeraxmcp.ScreenshotOptions) (string, error) {
	return c.ScreenshotFn(ctx, opts)
}

func (c *ChimeraXClient) Close() error {
	return c.CloseFn()
}
