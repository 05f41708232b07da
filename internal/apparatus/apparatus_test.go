package apparatus

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineID = "0190a3f4-1c2b-7d3e-8f40-aaaaaaaaaaaa"

var apparatusCols = []string{"id", "unit_number", "kind", "status", "last_inspected_on", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewRepository(sqlx.NewDb(mockDB, "pgx")), mock
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusInService.Valid())
	assert.True(t, StatusOutOfService.Valid())
	assert.True(t, StatusMaintenance.Valid())
	assert.False(t, Status("retired").Valid())
	assert.False(t, Status("").Valid())
}

func TestRepository_ListAndCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM apparatus ORDER BY unit_number`).
		WillReturnRows(sqlmock.NewRows(apparatusCols).AddRow(engineID, "E1", "engine", "maintenance", nil, now, now))
	mock.ExpectExec(`INSERT INTO apparatus`).
		WithArgs(sqlmock.AnyArg(), "L2", "ladder", "in_service", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO apparatus`).WillReturnError(&pgconn.PgError{Code: "23505"})

	units, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, StatusMaintenance, units[0].Status)

	unit, err := repo.Create(context.Background(), CreateInput{UnitNumber: "L2", Kind: "ladder", Status: StatusInService})
	require.NoError(t, err)
	assert.NotEmpty(t, unit.ID)

	_, err = repo.Create(context.Background(), CreateInput{UnitNumber: "L2", Kind: "ladder", Status: StatusInService})
	require.ErrorIs(t, err, ErrDuplicateUnit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	inspected := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE apparatus SET status = \$2, last_inspected_on = COALESCE\(\$3::date, last_inspected_on\)`).
		WithArgs(engineID, "in_service", inspected, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(apparatusCols).AddRow(engineID, "E1", "engine", "in_service", inspected, now, now))
	mock.ExpectQuery(`UPDATE apparatus`).WillReturnRows(sqlmock.NewRows(apparatusCols))

	unit, err := repo.UpdateStatus(context.Background(), engineID, StatusInService, &inspected)
	require.NoError(t, err)
	require.NotNil(t, unit.LastInspectedOn)
	assert.True(t, unit.LastInspectedOn.Equal(inspected))

	_, err = repo.UpdateStatus(context.Background(), engineID, StatusInService, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeStore struct {
	status      Status
	inspectedOn *time.Time
}

func (f *fakeStore) List(ctx context.Context) ([]Apparatus, error) {
	return []Apparatus{}, nil
}

func (f *fakeStore) Create(ctx context.Context, input CreateInput) (Apparatus, error) {
	f.status = input.Status
	return Apparatus{ID: engineID, UnitNumber: input.UnitNumber, Status: input.Status}, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status Status, inspectedOn *time.Time) (Apparatus, error) {
	if id != engineID {
		return Apparatus{}, sql.ErrNoRows
	}
	f.status = status
	f.inspectedOn = inspectedOn
	return Apparatus{ID: id, Status: status, LastInspectedOn: inspectedOn}, nil
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apparatus", h.ListApparatus)
	mux.HandleFunc("POST /apparatus", h.CreateApparatus)
	mux.HandleFunc("PUT /apparatus/{id}/status", h.UpdateStatus)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestHandler_CreateDefaultsToInService(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	rec := serve(h, http.MethodPost, "/apparatus", `{"unit_number":"E3","kind":"engine"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, StatusInService, store.status)

	rec = serve(h, http.MethodPost, "/apparatus", `{"unit_number":"E3","kind":"engine","status":"retired"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/apparatus", `{"kind":"engine"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UpdateStatus(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	rec := serve(h, http.MethodPut, "/apparatus/"+engineID+"/status", `{"status":"out_of_service","last_inspected_on":"2026-04-30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusOutOfService, store.status)
	require.NotNil(t, store.inspectedOn)
	assert.Equal(t, "2026-04-30", store.inspectedOn.Format(time.DateOnly))

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{"bad id", "/apparatus/E1/status", `{"status":"in_service"}`, http.StatusBadRequest},
		{"bad status", "/apparatus/" + engineID + "/status", `{"status":"parked"}`, http.StatusBadRequest},
		{"bad date", "/apparatus/" + engineID + "/status", `{"status":"in_service","last_inspected_on":"30/04/2026"}`, http.StatusBadRequest},
		{"unknown unit", "/apparatus/0190a3f4-1c2b-7d3e-8f40-000000000000/status", `{"status":"in_service"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, serve(h, http.MethodPut, tt.target, tt.body).Code)
		})
	}
}
