package auth

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

// Repository stores credentials in personnel and attempts in auth_attempts.
type Repository struct {
	db *sqlx.DB
}

type CleanupResult struct {
	DeletedAttempts int64 `json:"deleted_attempts"`
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

const credentialColumns = `id, badge, name, department, rank, is_admin, active, pin_hash,
	failed_attempts, locked, last_failed_at, last_login_at, created_at, updated_at`

func (r *Repository) FindByBadge(ctx context.Context, badge string) (Credential, error) {
	var credential Credential
	err := r.db.GetContext(ctx, &credential, `
		SELECT `+credentialColumns+`
		FROM personnel
		WHERE badge = $1
	`, badge)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("query credential by badge: %w", err)
	}

	return credential, nil
}

func (r *Repository) RecordFailure(ctx context.Context, badge string, threshold int, at time.Time) (FailureResult, error) {
	var result FailureResult
	err := r.db.QueryRowxContext(ctx, `
		UPDATE personnel
		SET failed_attempts = failed_attempts + 1,
			locked = (failed_attempts + 1 >= $2),
			last_failed_at = $3,
			updated_at = $3
		WHERE badge = $1 AND NOT locked
		RETURNING failed_attempts, locked
	`, badge, threshold, at.UTC()).Scan(&result.FailedAttempts, &result.Locked)
	if err == nil {
		result.Applied = true
		return result, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return FailureResult{}, fmt.Errorf("increment failed attempts: %w", err)
	}

	// Nothing updated: the row is locked (or gone).
	err = r.db.QueryRowxContext(ctx, `
		SELECT failed_attempts, locked
		FROM personnel
		WHERE badge = $1
	`, badge).Scan(&result.FailedAttempts, &result.Locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FailureResult{}, ErrCredentialNotFound
		}
		return FailureResult{}, fmt.Errorf("read locked credential: %w", err)
	}
	return result, nil
}

func (r *Repository) RecordSuccess(ctx context.Context, badge string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE personnel
		SET failed_attempts = 0,
			last_failed_at = NULL,
			last_login_at = $2,
			updated_at = $2
		WHERE badge = $1 AND NOT locked
	`, badge, at.UTC())
	if err != nil {
		return false, fmt.Errorf("reset failed attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset failed attempts rows affected: %w", err)
	}
	return affected == 1, nil
}

// ResetPIN replaces the hash, unlocks the row and writes the reset log in
// one transaction, holding the row lock against concurrent logins.
func (r *Repository) ResetPIN(ctx context.Context, badge, pinHash, resetBy string, at time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	return db.WithTx(ctx, r.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		var personnelID string
		err := tx.QueryRowContext(ctx, `
			SELECT id
			FROM personnel
			WHERE badge = $1
			FOR UPDATE
		`, badge).Scan(&personnelID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCredentialNotFound
			}
			return fmt.Errorf("lock credential row: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE personnel
			SET pin_hash = $2,
				failed_attempts = 0,
				locked = FALSE,
				last_failed_at = NULL,
				updated_at = $3
			WHERE id = $1
		`, personnelID, pinHash, at.UTC()); err != nil {
			return fmt.Errorf("update pin: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pin_resets (id, badge, reset_by, created_at)
			VALUES ($1, $2, $3, $4)
		`, id.String(), badge, resetBy, at.UTC()); err != nil {
			return fmt.Errorf("insert pin reset: %w", err)
		}

		return nil
	})
}

func (r *Repository) Append(ctx context.Context, attempt Attempt) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO auth_attempts (id, badge, success, reason, ip_address, user_agent, created_at)
		VALUES (:id, :badge, :success, :reason, :ip_address, :user_agent, :created_at)
	`, attempt)
	if err != nil {
		return fmt.Errorf("insert auth attempt: %w", err)
	}
	return nil
}

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 500
)

// RecentAttempts returns the newest attempts for badge, newest first.
func (r *Repository) RecentAttempts(ctx context.Context, badge string, limit int) ([]Attempt, error) {
	switch {
	case limit <= 0:
		limit = defaultAttemptLimit
	case limit > maxAttemptLimit:
		limit = maxAttemptLimit
	}

	attempts := []Attempt{}
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT id, badge, success, reason, ip_address, user_agent, created_at
		FROM auth_attempts
		WHERE badge = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, badge, limit)
	if err != nil {
		return nil, fmt.Errorf("query auth attempts: %w", err)
	}
	return attempts, nil
}

// CleanupAttempts deletes one batch of attempts older than retention.
func (r *Repository) CleanupAttempts(ctx context.Context, retention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_attempts
			WHERE created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_attempts a
		USING stale
		WHERE a.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete stale auth attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("stale auth attempts rows affected: %w", err)
	}

	return CleanupResult{DeletedAttempts: affected}, nil
}
