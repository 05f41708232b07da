package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgUndefinedTable    = "42P01"
	pgUniqueViolation   = "23505"
	pgForeignKeyMissing = "23503"

	// migrationLockKey is the pg_advisory_lock key held during Upgrade.
	migrationLockKey int64 = 0x5354_4e52_4543
)

// PostgresStore keeps the schema version in a single-row table. While Lock
// is held every read and write goes through the locked connection.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	conn *sql.Conn
}

type sessionDB interface {
	DBTX
	TxBeginner
}

func NewPostgresStore(database *sql.DB) *PostgresStore {
	return &PostgresStore{db: database, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) session() sessionDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn
	}
	return s.db
}

func (s *PostgresStore) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := s.session().QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) ApplyStep(ctx context.Context, step Step) error {
	return WithTx(ctx, s.session(), nil, step.Apply)
}

// SetVersion never lowers the stored version.
func (s *PostgresStore) SetVersion(ctx context.Context, version int) error {
	return WithTx(ctx, s.session(), nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_version (
				id SMALLINT PRIMARY KEY CHECK (id = 1),
				version INTEGER NOT NULL CHECK (version >= 0),
				updated_at TIMESTAMPTZ NOT NULL
			)
		`); err != nil {
			return fmt.Errorf("create schema_version table: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_version (id, version, updated_at)
			VALUES (1, $1, $2)
			ON CONFLICT (id) DO UPDATE
			SET version = GREATEST(schema_version.version, EXCLUDED.version),
				updated_at = EXCLUDED.updated_at
		`, version, s.now()); err != nil {
			return fmt.Errorf("upsert schema version: %w", err)
		}

		return nil
	})
}

// Lock takes a session advisory lock so that only one instance migrates at a
// time. The run needs a single pooled connection.
func (s *PostgresStore) Lock(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
		_ = conn.Close()
	}, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUndefinedTable(err error) bool {
	return pgCode(err) == pgUndefinedTable
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyMissing
}
