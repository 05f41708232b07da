package observability

import (
	"context"
	"maps"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"station-records/internal/httpx"
)

// requestFields collects values that inner handlers learn about a request,
// such as the authenticated badge, for the access log line.
type requestFields struct {
	mu     sync.Mutex
	values map[string]any
}

type requestFieldsKey struct{}

// AnnotateRequest adds a field to the http_request log line of the request
// that ctx belongs to. Outside RequestLoggingMiddleware it does nothing.
func AnnotateRequest(ctx context.Context, key string, value any) {
	fields, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return
	}
	fields.mu.Lock()
	fields.values[key] = value
	fields.mu.Unlock()
}

func requestAnnotations(ctx context.Context) map[string]any {
	fields, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return nil
	}
	fields.mu.Lock()
	defer fields.mu.Unlock()
	return maps.Clone(fields.values)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.statusCode = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLoggingMiddleware writes one http_request line per request. Server
// errors are logged at error level.
func RequestLoggingMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestFieldsKey{}, &requestFields{values: map[string]any{}})
		next.ServeHTTP(recorder, r.WithContext(ctx))

		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      recorder.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          httpx.ClientIP(r),
		}
		for key, value := range requestAnnotations(ctx) {
			fields[key] = value
		}

		if recorder.statusCode >= http.StatusInternalServerError {
			logger.Error("http_request", fields)
			return
		}
		logger.Info("http_request", fields)
	})
}

// RecoverMiddleware turns a panic into a 500 and reports it with whatever the
// request was annotated with so far.
func RecoverMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			annotations := requestAnnotations(r.Context())
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetExtra("panic", rec)
				scope.SetExtra("stack", string(debug.Stack()))
				scope.SetTag("path", r.URL.Path)
				if badge, ok := annotations["badge"].(string); ok {
					scope.SetUser(sentry.User{ID: badge})
				}
				sentry.CaptureMessage("panic in request")
			})

			fields := map[string]any{
				"path":   r.URL.Path,
				"method": r.Method,
				"panic":  rec,
			}
			for key, value := range annotations {
				fields[key] = value
			}
			logger.Error("panic_recovered", fields)

			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
