package incident

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

var ErrDuplicateNumber = errors.New("incident number already exists")

const columns = `id, incident_number, incident_type, address, occurred_at, narrative, reported_by, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context, window Range) ([]Incident, error) {
	incidents := make([]Incident, 0)
	err := r.db.SelectContext(ctx, &incidents, `
		SELECT `+columns+`
		FROM incidents
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		ORDER BY occurred_at DESC
	`, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return incidents, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Incident, error) {
	var i Incident
	err := r.db.GetContext(ctx, &i, `SELECT `+columns+` FROM incidents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Incident{}, err
		}
		return Incident{}, fmt.Errorf("query incident: %w", err)
	}
	return i, nil
}

func (r *Repository) Create(ctx context.Context, input Input, reportedBy string) (Incident, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Incident{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	i := Incident{
		ID:             id.String(),
		IncidentNumber: input.IncidentNumber,
		IncidentType:   input.IncidentType,
		Address:        input.Address,
		OccurredAt:     input.OccurredAt.UTC(),
		Narrative:      input.Narrative,
		ReportedBy:     reportedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO incidents (`+columns+`)
		VALUES (:id, :incident_number, :incident_type, :address, :occurred_at, :narrative, :reported_by, :created_at, :updated_at)
	`, i)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Incident{}, ErrDuplicateNumber
		}
		return Incident{}, fmt.Errorf("insert incident: %w", err)
	}

	return i, nil
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Incident, error) {
	var i Incident
	err := r.db.QueryRowxContext(ctx, `
		UPDATE incidents
		SET incident_number = $2, incident_type = $3, address = $4, occurred_at = $5, narrative = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+columns+`
	`, id, input.IncidentNumber, input.IncidentType, input.Address, input.OccurredAt.UTC(), input.Narrative, time.Now().UTC()).
		StructScan(&i)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Incident{}, err
		}
		if db.IsUniqueViolation(err) {
			return Incident{}, ErrDuplicateNumber
		}
		return Incident{}, fmt.Errorf("update incident: %w", err)
	}

	return i, nil
}
