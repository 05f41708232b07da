package personnel

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

var memberCols = []string{
	"id", "badge", "name", "department", "rank", "is_admin", "active", "failed_attempts", "locked",
	"last_failed_at", "last_login_at", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewRepository(sqlx.NewDb(mockDB, "pgx")), mock
}

func TestRepository_ListNeverSelectsHash(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, badge, name, department, rank, is_admin, active, failed_attempts, locked, last_failed_at, last_login_at, created_at, updated_at FROM personnel ORDER BY badge`).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("id-1", "001", "Chief", "Administration", "Chief", true, true, 0, false, nil, now, now, now).
			AddRow("id-2", "014", "Engineer", nil, "Engineer", false, true, 3, false, now, nil, now, now))

	members, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Nil(t, members[1].Department)
	assert.Equal(t, 3, members[1].FailedAttempts)
	for _, m := range members {
		assert.Empty(t, m.PINHash)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM personnel WHERE badge = \$1`).WithArgs("404").WillReturnRows(sqlmock.NewRows(memberCols))

	_, err := repo.Get(context.Background(), "404")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	department := "Operations"

	mock.ExpectQuery(`INSERT INTO personnel .* RETURNING`).
		WithArgs(sqlmock.AnyArg(), "120", "Firefighter Lane", "Operations", "Firefighter", false, "hash", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("id-120", "120", "Firefighter Lane", "Operations", "Firefighter", false, true, 0, false, nil, nil, now, now))

	member, err := repo.Create(context.Background(), CreateInput{
		Badge:      "120",
		Name:       "Firefighter Lane",
		Department: &department,
		Rank:       "Firefighter",
	}, "hash")
	require.NoError(t, err)
	assert.Equal(t, "120", member.Badge)
	assert.True(t, member.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateMapsConstraintErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO personnel`).WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err := repo.Create(context.Background(), CreateInput{Badge: "001"}, "hash")
	require.ErrorIs(t, err, ErrDuplicateBadge)

	mock.ExpectQuery(`INSERT INTO personnel`).WillReturnError(&pgconn.PgError{Code: "23503"})
	_, err = repo.Create(context.Background(), CreateInput{Badge: "002"}, "hash")
	require.ErrorIs(t, err, ErrUnknownDepartment)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateKeepsFlagsWhenOmitted(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE personnel SET .* is_admin = COALESCE\(\$5, is_admin\), active = COALESCE\(\$6, active\)`).
		WithArgs("014", "Engineer Ruiz", nil, "Engineer", nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("id-2", "014", "Engineer Ruiz", nil, "Engineer", false, true, 0, false, nil, nil, now, now))

	member, err := repo.Update(context.Background(), "014", UpdateInput{Name: "Engineer Ruiz", Rank: "Engineer"})
	require.NoError(t, err)
	assert.Equal(t, "Engineer Ruiz", member.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateDemotes(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	demote := false

	mock.ExpectQuery(`UPDATE personnel`).
		WithArgs("001", "Chief", nil, "Chief", false, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("id-1", "001", "Chief", nil, "Chief", false, true, 0, false, nil, nil, now, now))

	member, err := repo.Update(context.Background(), "001", UpdateInput{Name: "Chief", Rank: "Chief", Admin: &demote})
	require.NoError(t, err)
	assert.False(t, member.Admin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE personnel`).WillReturnRows(sqlmock.NewRows(memberCols))

	_, err := repo.Update(context.Background(), "404", UpdateInput{Name: "x"})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRepository_Departments(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, created_at FROM departments ORDER BY name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("d1", "Administration", now).
			AddRow("d2", "Operations", now))

	departments, err := repo.Departments(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 2)
	assert.Equal(t, "Operations", departments[1].Name)
}
