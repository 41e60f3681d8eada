package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pkaminski/chimeraxmcp"
	chimeraxhttp "github.com/pkaminski/chimeraxmcp/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server) *chimeraxhttp.Client {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return chimeraxhttp.NewClient(parsed.Hostname(), port)
}

func TestClient_RunCommand(t *testing.T) {
	t.Parallel()

	t.Run("parses json mode response", func(t *testing.T) {
		t.Parallel()

		var gotCommand string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCommand = r.URL.Query().Get("command")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"python values": [null],
				"json values": ["1.10"],
				"log messages": {"info": ["ChimeraX version 1.10"]},
				"error": null
			}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		result, err := client.RunCommand(context.Background(), "version verbose")
		require.NoError(t, err)

		assert.Equal(t, "version verbose", gotCommand)
		assert.Equal(t, []any{"1.10"}, result.JSONValues)
		assert.Equal(t, []string{"ChimeraX version 1.10"}, result.LogMessages["info"])
		assert.Nil(t, result.Error)
	})

	t.Run("normalizes plain text response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ChimeraX version 1.10\n"))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		result, err := client.RunCommand(context.Background(), "version")
		require.NoError(t, err)

		assert.Equal(t, []string{"ChimeraX version 1.10"}, result.LogMessages["info"])
		assert.Empty(t, result.PythonValues)
		assert.Nil(t, result.Error)
	})

	t.Run("empty plain text response yields no log lines", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("   \n"))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		result, err := client.RunCommand(context.Background(), "version")
		require.NoError(t, err)
		assert.Empty(t, result.LogMessages["info"])
	})

	t.Run("surfaces command errors on the result", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"log messages": {}, "error": {"type": "UserError", "message": "unknown command"}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		result, err := client.RunCommand(context.Background(), "bogus")
		require.NoError(t, err)
		require.NotNil(t, result.Error)
		assert.Equal(t, "UserError", result.Error.Type)
		assert.Equal(t, "unknown command", result.Error.Message)
	})

	t.Run("returns EUNAVAILABLE when server is unreachable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // shut down immediately

		client := newTestClient(t, server)
		defer client.Close()

		_, err := client.RunCommand(context.Background(), "version")
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EUNAVAILABLE, chimeraxmcp.ErrorCode(err))
	})

	t.Run("returns error for non-200 status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		_, err := client.RunCommand(context.Background(), "version")
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EINTERNAL, chimeraxmcp.ErrorCode(err))
	})
}

func TestClient_IsRunning(t *testing.T) {
	t.Parallel()

	t.Run("true when server answers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ChimeraX version 1.10"))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		assert.True(t, client.IsRunning(context.Background()))
	})

	t.Run("false when server is down", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		assert.False(t, client.IsRunning(context.Background()))
	})
}

func TestClient_Version(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"log messages": {"info": ["UCSF ChimeraX version: 1.10 (2025)"]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	defer client.Close()

	version, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UCSF ChimeraX version: 1.10 (2025)", version)
}

func TestClient_Models(t *testing.T) {
	t.Parallel()

	t.Run("prefers json values", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"json values": [[{"id": "#1", "name": "1abc"}, {"id": "#2", "name": "2xyz"}]],
				"log messages": {}
			}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		models, err := client.Models(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 2)
		assert.Equal(t, "1abc", models[0]["name"])
		assert.Equal(t, "#2", models[1]["id"])
	})

	t.Run("falls back to info log lines", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"json values": [null],
				"log messages": {"info": ["Model #1, 1abc", "Model #2, 2xyz"]}
			}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		models, err := client.Models(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 2)
		assert.Equal(t, "Model #1, 1abc", models[0]["info"])
	})

	t.Run("no open models yields empty list", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"json values": [null], "log messages": {}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		models, err := client.Models(context.Background())
		require.NoError(t, err)
		assert.Empty(t, models)
	})
}

func TestClient_Screenshot(t *testing.T) {
	t.Parallel()

	t.Run("saves image and returns path", func(t *testing.T) {
		t.Parallel()

		// The handler plays the part of ChimeraX: it parses the save command
		// and writes the target file.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			command := r.URL.Query().Get("command")
			fields := strings.Fields(command)
			require.GreaterOrEqual(t, len(fields), 2)
			require.Equal(t, "save", fields[0])
			require.NoError(t, os.WriteFile(fields[1], []byte("fake image"), 0o644))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"log messages": {}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		outputPath := filepath.Join(t.TempDir(), "view.png")
		path, err := client.Screenshot(context.Background(), chimeraxmcp.ScreenshotOptions{
			Width:      800,
			Height:     600,
			Format:     "png",
			OutputPath: outputPath,
		})
		require.NoError(t, err)
		assert.Equal(t, outputPath, path)
		assert.FileExists(t, path)
	})

	t.Run("fails when the file was not written", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"log messages": {}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)
		defer client.Close()

		_, err := client.Screenshot(context.Background(), chimeraxmcp.ScreenshotOptions{
			OutputPath: filepath.Join(t.TempDir(), "missing.png"),
		})
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EINTERNAL, chimeraxmcp.ErrorCode(err))
	})

	t.Run("rejects out-of-range dimensions", func(t *testing.T) {
		t.Parallel()

		client := chimeraxhttp.NewClient("localhost", chimeraxmcp.DefaultRESTPort)
		defer client.Close()

		_, err := client.Screenshot(context.Background(), chimeraxmcp.ScreenshotOptions{Width: 100000, Height: 600})
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EINVALID, chimeraxmcp.ErrorCode(err))
	})

	t.Run("rejects unsupported format", func(t *testing.T) {
		t.Parallel()

		client := chimeraxhttp.NewClient("localhost", chimeraxmcp.DefaultRESTPort)
		defer client.Close()

		_, err := client.Screenshot(context.Background(), chimeraxmcp.ScreenshotOptions{Format: "tiff"})
		require.Error(t, err)
		assert.Equal(t, chimeraxmcp.EINVALID, chimeraxmcp.ErrorCode(err))
	})
}
