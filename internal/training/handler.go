package training

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"station-records/internal/httpx"
)

// maxDurationMinutes caps a single event at one day.
const maxDurationMinutes = 24 * 60

type Store interface {
	List(ctx context.Context) ([]Event, error)
	Get(ctx context.Context, id string) (Event, error)
	Create(ctx context.Context, input Input) (Event, error)
}

type Handler struct {
	repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list training events")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid training event id")
		return
	}

	e, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.WriteError(w, http.StatusNotFound, "training event not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get training event")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Topic = strings.TrimSpace(input.Topic)
	input.Instructor = strings.TrimSpace(input.Instructor)

	var message string
	switch {
	case input.Title == "":
		message = "title is required"
	case !utf8.ValidString(input.Title) || len(input.Title) > 150:
		message = "title is invalid"
	case !utf8.ValidString(input.Topic) || len(input.Topic) > 100:
		message = "topic is invalid"
	case !utf8.ValidString(input.Instructor) || len(input.Instructor) > 150:
		message = "instructor is invalid"
	case input.StartsAt.IsZero():
		message = "starts_at is required"
	case input.DurationMinutes <= 0 || input.DurationMinutes > maxDurationMinutes:
		message = "duration_minutes must be between 1 and 1440"
	}
	if message != "" {
		httpx.WriteError(w, http.StatusBadRequest, message)
		return
	}

	e, err := h.repo.Create(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create training event")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, e)
}
