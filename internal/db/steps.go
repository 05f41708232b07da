package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HashFunc turns a plaintext PIN into the stored hash.
type HashFunc func(pin string) (string, error)

// Steps returns the schema history of the service. New steps are appended;
// existing ones are never edited once released.
func Steps(seed Seed, hashPIN HashFunc) []Step {
	return []Step{
		{Version: 1, Name: "base_schema", Apply: baseSchema(seed, hashPIN)},
		{Version: 2, Name: "pin_resets", Apply: execAll(pinResetsSQL...)},
		{Version: 3, Name: "query_indexes", Apply: execAll(queryIndexesSQL...)},
	}
}

var baseSchemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS personnel (
		id UUID PRIMARY KEY,
		badge TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		department TEXT REFERENCES departments (name) ON UPDATE CASCADE,
		rank TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		pin_hash TEXT NOT NULL,
		failed_attempts INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempts >= 0),
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		last_failed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS auth_attempts (
		id UUID PRIMARY KEY,
		badge TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		reason TEXT,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id UUID PRIMARY KEY,
		incident_number TEXT NOT NULL UNIQUE,
		incident_type TEXT NOT NULL,
		address TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		narrative TEXT NOT NULL DEFAULT '',
		reported_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS apparatus (
		id UUID PRIMARY KEY,
		unit_number TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_service'
			CHECK (status IN ('in_service', 'out_of_service', 'maintenance')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS training_events (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		instructor TEXT NOT NULL DEFAULT '',
		starts_at TIMESTAMPTZ NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id UUID PRIMARY KEY,
		personnel_id UUID NOT NULL REFERENCES personnel (id),
		event_kind TEXT NOT NULL CHECK (event_kind IN ('incident', 'training')),
		event_id UUID NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (personnel_id, event_kind, event_id)
	)`,
}

var pinResetsSQL = []string{
	`CREATE TABLE IF NOT EXISTS pin_resets (
		id UUID PRIMARY KEY,
		badge TEXT NOT NULL REFERENCES personnel (badge),
		reset_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE personnel ADD COLUMN IF NOT EXISTS last_login_at TIMESTAMPTZ`,
}

var queryIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_auth_attempts_badge_created ON auth_attempts (badge, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_attempts_created ON auth_attempts (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_occurred ON incidents (occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_event ON attendance (event_kind, event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pin_resets_badge ON pin_resets (badge, created_at DESC)`,
	`ALTER TABLE apparatus ADD COLUMN IF NOT EXISTS last_inspected_on DATE`,
}

func execAll(statements ...string) func(ctx context.Context, tx DBTX) error {
	return func(ctx context.Context, tx DBTX) error {
		for _, statement := range statements {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(statement), err)
			}
		}
		return nil
	}
}

func baseSchema(seed Seed, hashPIN HashFunc) func(ctx context.Context, tx DBTX) error {
	createTables := execAll(baseSchemaSQL...)

	return func(ctx context.Context, tx DBTX) error {
		if err := createTables(ctx, tx); err != nil {
			return err
		}
		if err := seedDepartments(ctx, tx, seed.Departments); err != nil {
			return err
		}
		return seedAccounts(ctx, tx, seed.Accounts, hashPIN)
	}
}

func seedDepartments(ctx context.Context, tx DBTX, departments []SeedDepartment) error {
	for _, dept := range departments {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate uuid v7: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO departments (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, id.String(), strings.TrimSpace(dept.Name)); err != nil {
			return fmt.Errorf("seed department %q: %w", dept.Name, err)
		}
	}
	return nil
}

// seedAccounts inserts accounts that do not exist yet. An account without a
// PIN is created locked so it cannot sign in before an administrative reset.
func seedAccounts(ctx context.Context, tx DBTX, accounts []SeedAccount, hashPIN HashFunc) error {
	now := time.Now().UTC()

	for _, account := range accounts {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate uuid v7: %w", err)
		}

		pinHash := ""
		locked := true
		if pin := strings.TrimSpace(account.PIN); pin != "" {
			if hashPIN == nil {
				return fmt.Errorf("seed account %q: no pin hasher configured", account.Badge)
			}
			pinHash, err = hashPIN(pin)
			if err != nil {
				return fmt.Errorf("seed account %q: hash pin: %w", account.Badge, err)
			}
			locked = false
		}

		var department any
		if dept := strings.TrimSpace(account.Department); dept != "" {
			department = dept
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO personnel (id, badge, name, department, rank, is_admin, active, pin_hash, failed_attempts, locked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, 0, $8, $9, $9)
			ON CONFLICT (badge) DO NOTHING
		`, id.String(), strings.TrimSpace(account.Badge), strings.TrimSpace(account.Name), department,
			strings.TrimSpace(account.Rank), account.Admin, pinHash, locked, now); err != nil {
			return fmt.Errorf("seed account %q: %w", account.Badge, err)
		}
	}
	return nil
}

func firstLine(statement string) string {
	statement = strings.TrimSpace(statement)
	if i := strings.IndexByte(statement, '\n'); i >= 0 {
		return strings.TrimSpace(statement[:i])
	}
	return statement
}
