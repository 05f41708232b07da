package auth

import (
	"errors"
	"fmt"
	"time"
)

// Credential is a personnel row as the guard sees it. PINHash never leaves
// the process: it has no JSON form and is cleared before records are returned.
type Credential struct {
	ID             string     `json:"id" db:"id"`
	Badge          string     `json:"badge" db:"badge"`
	Name           string     `json:"name" db:"name"`
	Department     *string    `json:"department" db:"department"`
	Rank           string     `json:"rank" db:"rank"`
	Admin          bool       `json:"admin" db:"is_admin"`
	Active         bool       `json:"active" db:"active"`
	PINHash        string     `json:"-" db:"pin_hash"`
	FailedAttempts int        `json:"failed_attempts" db:"failed_attempts"`
	Locked         bool       `json:"locked" db:"locked"`
	LastFailedAt   *time.Time `json:"last_failed_at" db:"last_failed_at"`
	LastLoginAt    *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Public returns a copy safe to hand to callers.
func (c Credential) Public() Credential {
	c.PINHash = ""
	return c
}

// Attempt is one entry of the append-only authentication log.
type Attempt struct {
	ID        string    `json:"id" db:"id"`
	Badge     string    `json:"badge" db:"badge"`
	Success   bool      `json:"success" db:"success"`
	Reason    *string   `json:"reason" db:"reason"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Origin is the transport metadata recorded with each attempt.
type Origin struct {
	IP        string
	UserAgent string
}

type Outcome struct {
	Credential  Credential
	AccessToken string
	ExpiresIn   int64
}

// FailureResult is the counter state after a failed verification.
// Applied is false when the row was already locked and nothing changed.
type FailureResult struct {
	FailedAttempts int
	Locked         bool
	Applied        bool
}

const (
	ReasonMissingCredentials = "missing credentials"
	ReasonBadgeNotFound      = "badge not found"
	ReasonBadgeInactive      = "badge inactive"
	ReasonInvalidPIN         = "invalid pin"
	ReasonAccountLocked      = "account locked"
	ReasonLockoutTriggered   = "lockout triggered"
	ReasonInternalError      = "internal error"
)

var (
	ErrMissingCredentials = errors.New("badge and pin are required")
	ErrInvalidBadge       = errors.New("invalid badge")
	ErrInvalidPIN         = errors.New("invalid pin")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrPINPolicy          = errors.New("pin does not meet policy")
)

type LockedError struct {
	Attempts   int
	JustLocked bool
}

func (e *LockedError) Error() string {
	if e.JustLocked {
		return fmt.Sprintf("account locked after %d failed attempts", e.Attempts)
	}
	return "account locked"
}
