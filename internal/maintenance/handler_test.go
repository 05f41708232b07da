package maintenance

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-records/internal/auth"
	"station-records/internal/observability"
)

type fakeCleaner struct {
	calls     int
	retention time.Duration
	batchSize int
	err       error
}

func (f *fakeCleaner) CleanupAttempts(ctx context.Context, retention time.Duration, batchSize int) (auth.CleanupResult, error) {
	f.calls++
	f.retention = retention
	f.batchSize = batchSize
	if f.err != nil {
		return auth.CleanupResult{}, f.err
	}
	return auth.CleanupResult{DeletedAttempts: 17}, nil
}

func cleanup(h *CleanupHandler, method, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestCleanupHandler_HiddenWithoutSecret(t *testing.T) {
	cleaner := &fakeCleaner{}
	h := NewCleanupHandler(cleaner, nil, "  ", 24*time.Hour, 100)

	rec := cleanup(h, http.MethodPost, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, cleaner.calls)
}

func TestCleanupHandler_Authorization(t *testing.T) {
	cleaner := &fakeCleaner{}
	h := NewCleanupHandler(cleaner, observability.NewLoggerWithWriter(&bytes.Buffer{}), "cron-secret", 24*time.Hour, 100)

	assert.Equal(t, http.StatusUnauthorized, cleanup(h, http.MethodPost, "").Code)
	assert.Equal(t, http.StatusUnauthorized, cleanup(h, http.MethodPost, "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, cleanup(h, http.MethodPost, "cron-secret").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, cleanup(h, http.MethodDelete, "Bearer cron-secret").Code)
	assert.Zero(t, cleaner.calls)
}

func TestCleanupHandler_DeletesOneBatch(t *testing.T) {
	var logs bytes.Buffer
	cleaner := &fakeCleaner{}
	h := NewCleanupHandler(cleaner, observability.NewLoggerWithWriter(&logs), "cron-secret", 90*24*time.Hour, 500)

	rec := cleanup(h, http.MethodGet, "bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":{"deleted_attempts":17}}`, rec.Body.String())
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, 90*24*time.Hour, cleaner.retention)
	assert.Equal(t, 500, cleaner.batchSize)
	assert.Contains(t, logs.String(), "attempt_cleanup_completed")
}

func TestCleanupHandler_Failure(t *testing.T) {
	var logs bytes.Buffer
	h := NewCleanupHandler(&fakeCleaner{err: errors.New("statement timeout")}, observability.NewLoggerWithWriter(&logs), "cron-secret", time.Hour, 10)

	rec := cleanup(h, http.MethodPost, "Bearer cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"cleanup failed"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "attempt_cleanup_failed")
}
