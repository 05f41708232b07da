package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"station-records/internal/httpx"
)

const (
	msgMissingCredentials = "Badge and PIN are required"
	msgInvalidBadge       = "Invalid badge number"
	msgInvalidPIN         = "Invalid PIN"
	msgGenericInvalid     = "Invalid badge or PIN"
	msgLocked             = "Account is locked. Contact an administrator to reset your PIN."
	msgJustLocked         = "Too many failed attempts. Account is now locked."
)

type AttemptReader interface {
	RecentAttempts(ctx context.Context, badge string, limit int) ([]Attempt, error)
}

type Handler struct {
	service       *Service
	attempts      AttemptReader
	genericErrors bool
}

// NewHandler builds the auth endpoints. With genericErrors set, unknown
// badges and wrong PINs get the same 401 message.
func NewHandler(service *Service, attempts AttemptReader, genericErrors bool) *Handler {
	return &Handler{service: service, attempts: attempts, genericErrors: genericErrors}
}

type loginRequest struct {
	Badge string `json:"badge"`
	PIN   string `json:"pin"`
}

type loginResponse struct {
	Success     bool       `json:"success"`
	Record      Credential `json:"record"`
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int64      `json:"expires_in"`
}

type resetPINRequest struct {
	PIN string `json:"pin"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		// Still goes through the guard so the attempt is logged.
		body.PIN = ""
	}

	origin := Origin{IP: httpx.ClientIP(r), UserAgent: r.UserAgent()}
	outcome, err := h.service.Authenticate(r.Context(), body.Badge, body.PIN, origin)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Success:     true,
		Record:      outcome.Credential,
		AccessToken: outcome.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   outcome.ExpiresIn,
	})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	var lockedErr *LockedError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		httpx.WriteError(w, http.StatusBadRequest, msgMissingCredentials)
	case errors.Is(err, ErrInvalidBadge):
		httpx.WriteError(w, http.StatusUnauthorized, h.unauthorizedMessage(msgInvalidBadge))
	case errors.Is(err, ErrInvalidPIN):
		httpx.WriteError(w, http.StatusUnauthorized, h.unauthorizedMessage(msgInvalidPIN))
	case errors.As(err, &lockedErr):
		message := msgLocked
		if lockedErr.JustLocked {
			message = msgJustLocked
		}
		httpx.WriteError(w, http.StatusLocked, message)
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to authenticate")
	}
}

func (h *Handler) unauthorizedMessage(specific string) string {
	if h.genericErrors {
		return msgGenericInvalid
	}
	return specific
}

// ResetPIN serves POST /personnel/{badge}/pin-reset. It must sit behind
// Middleware and RequireAdmin.
func (h *Handler) ResetPIN(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body resetPINRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	err := h.service.ResetPIN(r.Context(), r.PathValue("badge"), body.PIN, principal.Badge)
	if err != nil {
		switch {
		case errors.Is(err, ErrPINPolicy):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrMissingCredentials):
			httpx.WriteError(w, http.StatusBadRequest, "badge is required")
		case errors.Is(err, ErrCredentialNotFound):
			httpx.WriteError(w, http.StatusNotFound, "personnel not found")
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to reset pin")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAttempts serves GET /personnel/{badge}/attempts for administrators.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	badge := strings.TrimSpace(r.PathValue("badge"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	attempts, err := h.attempts.RecentAttempts(r.Context(), badge, limit)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
