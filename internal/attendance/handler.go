package attendance

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"station-records/internal/httpx"
)

type Store interface {
	List(ctx context.Context, filter Filter) ([]Record, error)
	Create(ctx context.Context, input Input) (Record, error)
}

type Handler struct {
	repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := Filter{
		PersonnelID: strings.TrimSpace(query.Get("personnel_id")),
		EventKind:   EventKind(strings.TrimSpace(query.Get("event_kind"))),
		EventID:     strings.TrimSpace(query.Get("event_id")),
	}

	switch {
	case filter.PersonnelID != "":
		if !isUUID(filter.PersonnelID) {
			httpx.WriteError(w, http.StatusBadRequest, "personnel_id is invalid")
			return
		}
	case filter.EventKind != "" || filter.EventID != "":
		if !filter.EventKind.Valid() || !isUUID(filter.EventID) {
			httpx.WriteError(w, http.StatusBadRequest, "event_kind and event_id must both be valid")
			return
		}
	default:
		httpx.WriteError(w, http.StatusBadRequest, "personnel_id or event_kind and event_id are required")
		return
	}

	records, err := h.repo.List(r.Context(), filter)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.Role = strings.TrimSpace(input.Role)
	switch {
	case !isUUID(input.PersonnelID):
		httpx.WriteError(w, http.StatusBadRequest, "personnel_id is invalid")
		return
	case !input.EventKind.Valid():
		httpx.WriteError(w, http.StatusBadRequest, "event_kind must be incident or training")
		return
	case !isUUID(input.EventID):
		httpx.WriteError(w, http.StatusBadRequest, "event_id is invalid")
		return
	case !utf8.ValidString(input.Role) || len(input.Role) > 50:
		httpx.WriteError(w, http.StatusBadRequest, "role is invalid")
		return
	}

	record, err := h.repo.Create(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			httpx.WriteError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrUnknownPersonnel):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to record attendance")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, record)
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
