package personnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"station-records/internal/auth"
	"station-records/internal/db"
)

var (
	ErrDuplicateBadge    = errors.New("badge already exists")
	ErrUnknownDepartment = errors.New("department does not exist")
)

// columns never includes pin_hash.
const columns = `id, badge, name, department, rank, is_admin, active, failed_attempts, locked,
	last_failed_at, last_login_at, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context) ([]auth.Credential, error) {
	members := make([]auth.Credential, 0)
	if err := r.db.SelectContext(ctx, &members, `SELECT `+columns+` FROM personnel ORDER BY badge ASC`); err != nil {
		return nil, fmt.Errorf("query personnel: %w", err)
	}
	return members, nil
}

func (r *Repository) Get(ctx context.Context, badge string) (auth.Credential, error) {
	var member auth.Credential
	err := r.db.GetContext(ctx, &member, `SELECT `+columns+` FROM personnel WHERE badge = $1`, badge)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Credential{}, err
		}
		return auth.Credential{}, fmt.Errorf("query personnel member: %w", err)
	}
	return member, nil
}

func (r *Repository) Create(ctx context.Context, input CreateInput, pinHash string) (auth.Credential, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return auth.Credential{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	var member auth.Credential
	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO personnel (id, badge, name, department, rank, is_admin, active, pin_hash, failed_attempts, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, 0, FALSE, $8, $8)
		RETURNING `+columns,
		id.String(), input.Badge, input.Name, input.Department, input.Rank, input.Admin, pinHash, now).
		StructScan(&member)
	if err != nil {
		return auth.Credential{}, mapWriteError(err, "insert personnel")
	}
	return member, nil
}

func (r *Repository) Update(ctx context.Context, badge string, input UpdateInput) (auth.Credential, error) {
	var member auth.Credential
	err := r.db.QueryRowxContext(ctx, `
		UPDATE personnel
		SET name = $2, department = $3, rank = $4, is_admin = COALESCE($5, is_admin), active = COALESCE($6, active), updated_at = $7
		WHERE badge = $1
		RETURNING `+columns,
		badge, input.Name, input.Department, input.Rank, input.Admin, input.Active, time.Now().UTC()).
		StructScan(&member)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Credential{}, err
		}
		return auth.Credential{}, mapWriteError(err, "update personnel")
	}
	return member, nil
}

func (r *Repository) Departments(ctx context.Context) ([]Department, error) {
	departments := make([]Department, 0)
	if err := r.db.SelectContext(ctx, &departments, `SELECT id, name, created_at FROM departments ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("query departments: %w", err)
	}
	return departments, nil
}

func mapWriteError(err error, action string) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicateBadge
	case db.IsForeignKeyViolation(err):
		return ErrUnknownDepartment
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}
