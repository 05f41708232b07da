package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"station-records/internal/auth"
	"station-records/internal/httpx"
	"station-records/internal/observability"
)

// AttemptCleaner deletes one batch of expired attempt-log rows.
type AttemptCleaner interface {
	CleanupAttempts(ctx context.Context, retention time.Duration, batchSize int) (auth.CleanupResult, error)
}

type CleanupHandler struct {
	cleaner    AttemptCleaner
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(
	cleaner AttemptCleaner,
	logger *observability.Logger,
	cronSecret string,
	retention time.Duration,
	batchSize int,
) *CleanupHandler {
	if logger == nil {
		logger = observability.NewLogger()
	}
	return &CleanupHandler{
		cleaner:    cleaner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

// Handle serves GET and POST /internal/maintenance/cleanup. The route is
// hidden (404) until CRON_SECRET is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.cleaner.CleanupAttempts(r.Context(), h.retention, h.batchSize)
	if err != nil {
		h.logger.Error("attempt_cleanup_failed", map[string]any{"error": err.Error()})
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("attempt_cleanup_completed", map[string]any{
		"deleted_attempts": result.DeletedAttempts,
		"retention_hours":  h.retention.Hours(),
		"batch_size":       h.batchSize,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func (h *CleanupHandler) authorized(r *http.Request) bool {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	token := strings.TrimSpace(parts[1])
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
