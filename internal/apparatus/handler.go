package apparatus

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

	"station-records/internal/httpx"
)

type Store interface {
	List(ctx context.Context) ([]Apparatus, error)
	Create(ctx context.Context, input CreateInput) (Apparatus, error)
	UpdateStatus(ctx context.Context, id string, status Status, inspectedOn *time.Time) (Apparatus, error)
}

type Handler struct {
	repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListApparatus(w http.ResponseWriter, r *http.Request) {
	units, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list apparatus")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, units)
}

func (h *Handler) CreateApparatus(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.UnitNumber = strings.TrimSpace(input.UnitNumber)
	input.Kind = strings.TrimSpace(input.Kind)
	if input.Status == "" {
		input.Status = StatusInService
	}

	switch {
	case input.UnitNumber == "" || len(input.UnitNumber) > 20:
		httpx.WriteError(w, http.StatusBadRequest, "unit_number is required")
		return
	case input.Kind == "" || !utf8.ValidString(input.Kind) || len(input.Kind) > 50:
		httpx.WriteError(w, http.StatusBadRequest, "kind is required")
		return
	case !input.Status.Valid():
		httpx.WriteError(w, http.StatusBadRequest, "status must be in_service, out_of_service or maintenance")
		return
	}

	unit, err := h.repo.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrDuplicateUnit) {
			httpx.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create apparatus")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, unit)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid apparatus id")
		return
	}

	var input StatusInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !input.Status.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "status must be in_service, out_of_service or maintenance")
		return
	}

	var inspectedOn *time.Time
	if input.LastInspectedOn != nil {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(*input.LastInspectedOn))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "last_inspected_on must be YYYY-MM-DD")
			return
		}
		inspectedOn = &parsed
	}

	unit, err := h.repo.UpdateStatus(r.Context(), id, input.Status, inspectedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.WriteError(w, http.StatusNotFound, "apparatus not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update apparatus")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, unit)
}
