package training

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, title, topic, instructor, starts_at, duration_minutes, created_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context) ([]Event, error) {
	events := make([]Event, 0)
	if err := r.db.SelectContext(ctx, &events, `SELECT `+columns+` FROM training_events ORDER BY starts_at DESC`); err != nil {
		return nil, fmt.Errorf("query training events: %w", err)
	}
	return events, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Event, error) {
	var e Event
	err := r.db.GetContext(ctx, &e, `SELECT `+columns+` FROM training_events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("query training event: %w", err)
	}
	return e, nil
}

func (r *Repository) Create(ctx context.Context, input Input) (Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	e := Event{
		ID:              id.String(),
		Title:           input.Title,
		Topic:           input.Topic,
		Instructor:      input.Instructor,
		StartsAt:        input.StartsAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		CreatedAt:       time.Now().UTC(),
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO training_events (`+columns+`)
		VALUES (:id, :title, :topic, :instructor, :starts_at, :duration_minutes, :created_at)
	`, e)
	if err != nil {
		return Event{}, fmt.Errorf("insert training event: %w", err)
	}

	return e, nil
}
