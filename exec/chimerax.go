// Package exec locates ChimeraX installations and manages ChimeraX
// processes started with the REST interface enabled.
package exec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkaminski/chimeraxmcp"
)

// versionRe matches the version segment after "ChimeraX" in an installation
// path, e.g. "1.10" in "ChimeraX-1.10.app". Digits elsewhere in the path are
// ignored.
var versionRe = regexp.MustCompile(`(?i)ChimeraX[- ]?(\d[\d.]*)`)

// VersionKey extracts the version numbers from a ChimeraX path for natural
// sorting. Paths without a version segment sort last.
func VersionKey(path string) []int {
	m := versionRe.FindStringSubmatch(path)
	if m == nil {
		return nil
	}
	var key []int
	for _, part := range strings.Split(m[1], ".") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		key = append(key, n)
	}
	return key
}

// lessVersion reports whether a sorts before b in ascending version order.
func lessVersion(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// SortByVersion orders installation paths newest first.
func SortByVersion(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return lessVersion(VersionKey(paths[j]), VersionKey(paths[i]))
	})
}

// Detect locates a ChimeraX executable. The CHIMERAX_PATH environment
// variable takes priority over auto-detection; when it points at a missing
// file, detection falls through to the per-platform search.
func Detect() (string, error) {
	if envPath := os.Getenv("CHIMERAX_PATH"); envPath != "" {
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			return envPath, nil
		}
	}

	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		patterns := []string{
			"/Applications/ChimeraX*.app/Contents/MacOS/ChimeraX",
			"/Applications/UCSF-ChimeraX*.app/Contents/MacOS/ChimeraX",
			filepath.Join(home, "Applications", "ChimeraX*.app", "Contents", "MacOS", "ChimeraX"),
		}
		for _, pattern := range patterns {
			matches, err := filepath.Glob(pattern)
			if err != nil || len(matches) == 0 {
				continue
			}
			SortByVersion(matches)
			return matches[0], nil
		}

	case "linux":
		home, _ := os.UserHomeDir()
		paths := []string{
			"/usr/bin/chimerax",
			"/usr/local/bin/chimerax",
			filepath.Join(home, ".local", "bin", "chimerax"),
			"/opt/UCSF/ChimeraX/bin/ChimeraX",
		}
		for _, p := range paths {
			if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
				return p, nil
			}
		}

	case "windows":
		patterns := []string{
			`C:\Program Files\ChimeraX*\bin\ChimeraX-console.exe`,
			`C:\Program Files\UCSF\ChimeraX*\bin\ChimeraX-console.exe`,
		}
		for _, pattern := range patterns {
			matches, err := filepath.Glob(pattern)
			if err != nil || len(matches) == 0 {
				continue
			}
			SortByVersion(matches)
			return matches[0], nil
		}
	}

	return "", chimeraxmcp.Errorf(chimeraxmcp.ENOTFOUND, "ChimeraX not found; set CHIMERAX_PATH or install ChimeraX")
}

// StartOptions configures how ChimeraX is launched.
type StartOptions struct {
	// Path to the executable. Empty means auto-detect.
	Path string

	// Port for the REST interface. Zero means chimeraxmcp.DefaultRESTPort.
	Port int

	// NoGUI launches ChimeraX without its graphical interface.
	NoGUI bool
}

// Process is a ChimeraX instance started by this program.
type Process struct {
	cmd *exec.Cmd
}

// Start launches ChimeraX with the REST interface listening in JSON mode.
func Start(ctx context.Context, opts StartOptions) (*Process, error) {
	path := opts.Path
	if path == "" {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		path = detected
	}

	port := opts.Port
	if port == 0 {
		port = chimeraxmcp.DefaultRESTPort
	}

	args := []string{}
	if opts.NoGUI {
		args = append(args, "--nogui")
	}
	args = append(args, "--cmd", fmt.Sprintf("remotecontrol rest start port %d json true log true", port))

	cmd := exec.CommandContext(ctx, path, args...)
	if err := cmd.Start(); err != nil {
		return nil, chimeraxmcp.Errorf(chimeraxmcp.EINTERNAL, "failed to start ChimeraX: %v", err)
	}

	return &Process{cmd: cmd}, nil
}

// Pid returns the process id of the running instance.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Stop terminates the process, asking politely first and killing it if it
// has not exited within the grace period.
func (p *Process) Stop(grace time.Duration) error {
	if p.cmd.Process == nil {
		return nil
	}

	// Windows has no SIGTERM equivalent delivered via Signal.
	if runtime.GOOS == "windows" {
		return p.cmd.Process.Kill()
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return p.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return p.cmd.Process.Kill()
	}
}
