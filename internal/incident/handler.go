package incident

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"station-records/internal/auth"
	"station-records/internal/httpx"
)

type Store interface {
	List(ctx context.Context, window Range) ([]Incident, error)
	Get(ctx context.Context, id string) (Incident, error)
	Create(ctx context.Context, input Input, reportedBy string) (Incident, error)
	Update(ctx context.Context, id string, input Input) (Incident, error)
}

type Handler struct {
	repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	var window Range
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &window.From}, {"to", &window.To}} {
		raw := strings.TrimSpace(r.URL.Query().Get(bound.param))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, bound.param+" must be an RFC 3339 timestamp")
			return
		}
		*bound.dst = &parsed
	}

	incidents, err := h.repo.List(r.Context(), window)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, incidents)
}

func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	i, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.WriteError(w, http.StatusNotFound, "incident not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get incident")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, i)
}

func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	i, err := h.repo.Create(r.Context(), input, principal.Badge)
	if err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			httpx.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create incident")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, i)
}

func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	i, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			httpx.WriteError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, ErrDuplicateNumber):
			httpx.WriteError(w, http.StatusConflict, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to update incident")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, i)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid incident id")
		return "", false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return Input{}, false
	}

	input.IncidentNumber = strings.TrimSpace(input.IncidentNumber)
	input.IncidentType = strings.TrimSpace(input.IncidentType)
	input.Address = strings.TrimSpace(input.Address)
	input.Narrative = strings.TrimSpace(input.Narrative)

	switch {
	case input.IncidentNumber == "":
		httpx.WriteError(w, http.StatusBadRequest, "incident_number is required")
	case len(input.IncidentNumber) > 32:
		httpx.WriteError(w, http.StatusBadRequest, "incident_number is invalid")
	case input.IncidentType == "":
		httpx.WriteError(w, http.StatusBadRequest, "incident_type is required")
	case !utf8.ValidString(input.IncidentType) || len(input.IncidentType) > 100:
		httpx.WriteError(w, http.StatusBadRequest, "incident_type is invalid")
	case input.Address == "":
		httpx.WriteError(w, http.StatusBadRequest, "address is required")
	case !utf8.ValidString(input.Address) || len(input.Address) > 300:
		httpx.WriteError(w, http.StatusBadRequest, "address is invalid")
	case input.OccurredAt.IsZero():
		httpx.WriteError(w, http.StatusBadRequest, "occurred_at is required")
	case !utf8.ValidString(input.Narrative) || len(input.Narrative) > 10000:
		httpx.WriteError(w, http.StatusBadRequest, "narrative is invalid")
	default:
		return input, true
	}
	return Input{}, false
}
