package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"station-records/internal/db"
)

var (
	ErrDuplicate        = errors.New("attendance already recorded")
	ErrUnknownEvent     = errors.New("event does not exist")
	ErrUnknownPersonnel = errors.New("personnel does not exist")
)

const columns = `id, personnel_id, event_kind, event_id, role, recorded_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Record, error) {
	records := make([]Record, 0)

	var err error
	if filter.PersonnelID != "" {
		err = r.db.SelectContext(ctx, &records, `
			SELECT `+columns+` FROM attendance
			WHERE personnel_id = $1
			ORDER BY recorded_at DESC
		`, filter.PersonnelID)
	} else {
		err = r.db.SelectContext(ctx, &records, `
			SELECT `+columns+` FROM attendance
			WHERE event_kind = $1 AND event_id = $2
			ORDER BY recorded_at ASC
		`, string(filter.EventKind), filter.EventID)
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	return records, nil
}

// Create checks that the referenced event exists and inserts the record in
// the same transaction.
func (r *Repository) Create(ctx context.Context, input Input) (Record, error) {
	table, ok := eventTables[input.EventKind]
	if !ok {
		return Record{}, fmt.Errorf("unsupported event kind %q", input.EventKind)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Record{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	record := Record{
		ID:          id.String(),
		PersonnelID: input.PersonnelID,
		EventKind:   input.EventKind,
		EventID:     input.EventID,
		Role:        input.Role,
		RecordedAt:  time.Now().UTC(),
	}

	err = db.WithTx(ctx, r.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, input.EventID).Scan(&exists); err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return ErrUnknownEvent
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (`+columns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, record.ID, record.PersonnelID, string(record.EventKind), record.EventID, record.Role, record.RecordedAt)
		switch {
		case err == nil:
			return nil
		case db.IsUniqueViolation(err):
			return ErrDuplicate
		case db.IsForeignKeyViolation(err):
			return ErrUnknownPersonnel
		default:
			return fmt.Errorf("insert attendance: %w", err)
		}
	})
	if err != nil {
		return Record{}, err
	}

	return record, nil
}
