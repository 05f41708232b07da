package incident

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var incidentCols = []string{
	"id", "incident_number", "incident_type", "address", "occurred_at",
	"narrative", "reported_by", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewRepository(sqlx.NewDb(mockDB, "pgx")), mock
}

func TestRepository_ListWithRange(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	occurred := from.Add(36 * time.Hour)

	mock.ExpectQuery(`FROM incidents WHERE \(\$1::timestamptz IS NULL OR occurred_at >= \$1\)`).
		WithArgs(from, nil).
		WillReturnRows(sqlmock.NewRows(incidentCols).
			AddRow("inc-1", "2026-0042", "structure fire", "12 Main St", occurred, "two alarms", "001", occurred, occurred))

	incidents, err := repo.List(context.Background(), Range{From: &from})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "2026-0042", incidents[0].IncidentNumber)
	assert.Equal(t, "001", incidents[0].ReportedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListEmptyIsNotNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM incidents`).WithArgs(nil, nil).WillReturnRows(sqlmock.NewRows(incidentCols))

	incidents, err := repo.List(context.Background(), Range{})
	require.NoError(t, err)
	assert.NotNil(t, incidents)
	assert.Empty(t, incidents)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM incidents WHERE id = \$1`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(incidentCols))

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	occurred := time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO incidents`).
		WithArgs(sqlmock.AnyArg(), "2026-0043", "medical", "4 Elm Rd", occurred, "", "001", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), Input{
		IncidentNumber: "2026-0043",
		IncidentType:   "medical",
		Address:        "4 Elm Rd",
		OccurredAt:     occurred,
	}, "001")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "001", created.ReportedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateDuplicateNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO incidents`).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), Input{IncidentNumber: "2026-0043", OccurredAt: time.Now()}, "001")
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestRepository_Update(t *testing.T) {
	repo, mock := newMockRepo(t)
	occurred := time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE incidents SET .* WHERE id = \$1 RETURNING`).
		WithArgs("inc-1", "2026-0043", "medical", "4 Elm Rd", occurred, "patient transported", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(incidentCols).
			AddRow("inc-1", "2026-0043", "medical", "4 Elm Rd", occurred, "patient transported", "001", occurred, occurred))

	updated, err := repo.Update(context.Background(), "inc-1", Input{
		IncidentNumber: "2026-0043",
		IncidentType:   "medical",
		Address:        "4 Elm Rd",
		OccurredAt:     occurred,
		Narrative:      "patient transported",
	})
	require.NoError(t, err)
	assert.Equal(t, "patient transported", updated.Narrative)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE incidents`).WillReturnRows(sqlmock.NewRows(incidentCols))

	_, err := repo.Update(context.Background(), "inc-404", Input{OccurredAt: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
}
