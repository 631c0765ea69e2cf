package logger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browse.log")
	require.NoError(t, InitFile("warn", path))
	t.Cleanup(func() { log = zerolog.Nop() })

	Info().Msg("dropped")
	Warn().Str("repo", "octo/hello").Msg("kept")

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
	assert.Equal(t, "octo/hello", lines[0]["repo"])
	assert.Contains(t, lines[0], "time")
}

func TestInitFile_BadPath(t *testing.T) {
	err := InitFile("info", filepath.Join(t.TempDir(), "missing", "browse.log"))
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, InitFile("info", path))
	t.Cleanup(func() { log = zerolog.Nop() })

	h := middleware.RequestID(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/session", nil))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "request", lines[0]["message"])
	assert.Equal(t, "/api/session", lines[0]["path"])
	assert.Equal(t, float64(http.StatusTeapot), lines[0]["status"])
	assert.NotEmpty(t, lines[0]["req_id"])
}
