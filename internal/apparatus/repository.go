package apparatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"station-records/internal/db"
)

var ErrDuplicateUnit = errors.New("unit number already exists")

const columns = `id, unit_number, kind, status, last_inspected_on, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context) ([]Apparatus, error) {
	units := make([]Apparatus, 0)
	if err := r.db.SelectContext(ctx, &units, `SELECT `+columns+` FROM apparatus ORDER BY unit_number ASC`); err != nil {
		return nil, fmt.Errorf("query apparatus: %w", err)
	}
	return units, nil
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (Apparatus, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Apparatus{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	unit := Apparatus{
		ID:         id.String(),
		UnitNumber: input.UnitNumber,
		Kind:       input.Kind,
		Status:     input.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO apparatus (id, unit_number, kind, status, created_at, updated_at)
		VALUES (:id, :unit_number, :kind, :status, :created_at, :updated_at)
	`, unit)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Apparatus{}, ErrDuplicateUnit
		}
		return Apparatus{}, fmt.Errorf("insert apparatus: %w", err)
	}

	return unit, nil
}

// UpdateStatus sets the status and, when inspectedOn is non-nil, the last
// inspection date.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, inspectedOn *time.Time) (Apparatus, error) {
	var unit Apparatus
	err := r.db.QueryRowxContext(ctx, `
		UPDATE apparatus
		SET status = $2, last_inspected_on = COALESCE($3::date, last_inspected_on), updated_at = $4
		WHERE id = $1
		RETURNING `+columns,
		id, string(status), inspectedOn, time.Now().UTC()).
		StructScan(&unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Apparatus{}, err
		}
		return Apparatus{}, fmt.Errorf("update apparatus status: %w", err)
	}
	return unit, nil
}
