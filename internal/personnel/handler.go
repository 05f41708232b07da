package personnel

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"station-records/internal/auth"
	"station-records/internal/httpx"
)

var badgePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,16}$`)

type Store interface {
	List(ctx context.Context) ([]auth.Credential, error)
	Get(ctx context.Context, badge string) (auth.Credential, error)
	Create(ctx context.Context, input CreateInput, pinHash string) (auth.Credential, error)
	Update(ctx context.Context, badge string, input UpdateInput) (auth.Credential, error)
	Departments(ctx context.Context) ([]Department, error)
}

// PINHasher applies the guard's PIN policy; *auth.Service satisfies it.
type PINHasher interface {
	HashPIN(pin string) (string, error)
}

type Handler struct {
	repo   Store
	hasher PINHasher
}

func NewHandler(repo Store, hasher PINHasher) *Handler {
	return &Handler{repo: repo, hasher: hasher}
}

func (h *Handler) ListPersonnel(w http.ResponseWriter, r *http.Request) {
	members, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list personnel")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) GetPersonnel(w http.ResponseWriter, r *http.Request) {
	member, err := h.repo.Get(r.Context(), strings.TrimSpace(r.PathValue("badge")))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.WriteError(w, http.StatusNotFound, "personnel not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get personnel")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, member.Public())
}

func (h *Handler) CreatePersonnel(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input.Badge = strings.TrimSpace(input.Badge)
	input.PIN = strings.TrimSpace(input.PIN)
	if !badgePattern.MatchString(input.Badge) {
		httpx.WriteError(w, http.StatusBadRequest, "badge must be 1-16 letters, digits or dashes")
		return
	}
	var ok bool
	if input.Name, input.Department, input.Rank, ok = normalize(w, input.Name, input.Department, input.Rank); !ok {
		return
	}

	pinHash, err := h.hasher.HashPIN(input.PIN)
	if err != nil {
		if errors.Is(err, auth.ErrPINPolicy) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create personnel")
		return
	}

	member, err := h.repo.Create(r.Context(), input, pinHash)
	if err != nil {
		h.writeWriteError(w, err, "failed to create personnel")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, member.Public())
}

func (h *Handler) UpdatePersonnel(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var ok bool
	if input.Name, input.Department, input.Rank, ok = normalize(w, input.Name, input.Department, input.Rank); !ok {
		return
	}

	member, err := h.repo.Update(r.Context(), strings.TrimSpace(r.PathValue("badge")), input)
	if err != nil {
		h.writeWriteError(w, err, "failed to update personnel")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, member.Public())
}

func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.repo.Departments(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list departments")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, departments)
}

func (h *Handler) writeWriteError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httpx.WriteError(w, http.StatusNotFound, "personnel not found")
	case errors.Is(err, ErrDuplicateBadge):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownDepartment):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

func normalize(w http.ResponseWriter, name string, department *string, rank string) (string, *string, string, bool) {
	name = strings.TrimSpace(name)
	rank = strings.TrimSpace(rank)
	if department != nil {
		trimmed := strings.TrimSpace(*department)
		department = &trimmed
		if trimmed == "" {
			department = nil
		}
	}

	switch {
	case name == "":
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
	case !utf8.ValidString(name) || len(name) > 150:
		httpx.WriteError(w, http.StatusBadRequest, "name is invalid")
	case !utf8.ValidString(rank) || len(rank) > 50:
		httpx.WriteError(w, http.StatusBadRequest, "rank is invalid")
	default:
		return name, department, rank, true
	}
	return "", nil, "", false
}
