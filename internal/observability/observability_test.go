package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	logger.Info("server_start", map[string]any{"addr": ":8080"})
	logger.Warn("migration_ahead", map[string]any{"stored": 4, "latest": 3})
	logger.Error("boom", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "server_start", lines[0]["msg"])
	assert.Equal(t, ":8080", lines[0]["addr"])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.EqualValues(t, 4, lines[1]["stored"])

	assert.Equal(t, "ERROR", lines[2]["level"])
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf).With(map[string]any{"component": "migrate"})

	logger.Info("step", map[string]any{"version": 1})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "migrate", lines[0]["component"])
	assert.EqualValues(t, 1, lines[0]["version"])
}

func TestRequestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	h := RequestLoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_request", lines[0]["msg"])
	assert.EqualValues(t, http.StatusTeapot, lines[0]["status"])
	assert.Equal(t, "/health", lines[0]["path"])
	assert.Equal(t, "10.0.0.7", lines[0]["ip"])
}

func TestRequestLoggingMiddleware_IncludesAnnotations(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	h := RequestLoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateRequest(r.Context(), "badge", "014")
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/incidents", nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "014", lines[0]["badge"])
}

func TestRequestLoggingMiddleware_LogsRecoveredPanicAsError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	h := RequestLoggingMiddleware(logger, RecoverMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateRequest(r.Context(), "badge", "001")
		panic("kaput")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/apparatus/x/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "panic_recovered", lines[0]["msg"])
	assert.Equal(t, "001", lines[0]["badge"])
	assert.Equal(t, "http_request", lines[1]["msg"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.EqualValues(t, http.StatusInternalServerError, lines[1]["status"])
	assert.Equal(t, "001", lines[1]["badge"])
}

func TestAnnotateRequest_OutsideMiddleware(t *testing.T) {
	require.NotPanics(t, func() {
		AnnotateRequest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "badge", "001")
	})
}

func TestRecoverMiddleware_TurnsPanicInto500(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	h := RecoverMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaput")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/incidents", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "panic_recovered", lines[0]["msg"])
}
