package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"station-records/internal/apparatus"
	"station-records/internal/attendance"
	"station-records/internal/auth"
	"station-records/internal/httpx"
	"station-records/internal/incident"
	"station-records/internal/maintenance"
	"station-records/internal/observability"
	"station-records/internal/personnel"
	"station-records/internal/training"
)

// newHandler wires every route. Reads are public; writes need an access
// token, and personnel administration needs an admin token.
func newHandler(core *Core, loginLimiter *auth.LoginRateLimiter) http.Handler {
	cfg := core.Config

	authHandler := auth.NewHandler(core.Auth, core.AuthRepo, cfg.GenericAuthErrors)
	cleanupHandler := maintenance.NewCleanupHandler(core.AuthRepo, core.Logger, cfg.CronSecret, cfg.AttemptRetention, cfg.CleanupBatchSize)
	personnelHandler := personnel.NewHandler(personnel.NewRepository(core.Records), core.Auth)
	incidentHandler := incident.NewHandler(incident.NewRepository(core.Records))
	apparatusHandler := apparatus.NewHandler(apparatus.NewRepository(core.Records))
	trainingHandler := training.NewHandler(training.NewRepository(core.Records))
	attendanceHandler := attendance.NewHandler(attendance.NewRepository(core.Records))

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(cfg.JWTSecret, core.AuthRepo, h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(cfg.JWTSecret, core.AuthRepo, auth.RequireAdmin(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(core.DB))

	mux.HandleFunc("GET /departments", personnelHandler.ListDepartments)
	mux.HandleFunc("GET /personnel", personnelHandler.ListPersonnel)
	mux.HandleFunc("GET /personnel/{badge}", personnelHandler.GetPersonnel)
	mux.Handle("POST /personnel", admin(personnelHandler.CreatePersonnel))
	mux.Handle("PUT /personnel/{badge}", admin(personnelHandler.UpdatePersonnel))
	mux.Handle("POST /personnel/{badge}/pin-reset", admin(authHandler.ResetPIN))
	mux.Handle("GET /personnel/{badge}/attempts", admin(authHandler.ListAttempts))

	mux.HandleFunc("GET /incidents", incidentHandler.ListIncidents)
	mux.HandleFunc("GET /incidents/{id}", incidentHandler.GetIncident)
	mux.Handle("POST /incidents", protected(incidentHandler.CreateIncident))
	mux.Handle("PUT /incidents/{id}", protected(incidentHandler.UpdateIncident))

	mux.HandleFunc("GET /apparatus", apparatusHandler.ListApparatus)
	mux.Handle("POST /apparatus", protected(apparatusHandler.CreateApparatus))
	mux.Handle("PUT /apparatus/{id}/status", protected(apparatusHandler.UpdateStatus))

	mux.HandleFunc("GET /training", trainingHandler.ListEvents)
	mux.HandleFunc("GET /training/{id}", trainingHandler.GetEvent)
	mux.Handle("POST /training", protected(trainingHandler.CreateEvent))

	mux.HandleFunc("GET /attendance", attendanceHandler.ListAttendance)
	mux.Handle("POST /attendance", protected(attendanceHandler.CreateAttendance))

	return observability.RequestLoggingMiddleware(core.Logger, observability.RecoverMiddleware(core.Logger, mux))
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		httpx.WriteJSON(w, status, body)
	}
}
