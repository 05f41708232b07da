package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"station-records/internal/observability"
)

const (
	defaultAccessTTL   = time.Hour
	defaultMaxAttempts = 5
)

type CredentialStore interface {
	FindByBadge(ctx context.Context, badge string) (Credential, error)
	// RecordFailure increments the counter and sets the lock flag once the
	// counter reaches threshold, in one atomic update. Locked rows are left
	// untouched.
	RecordFailure(ctx context.Context, badge string, threshold int, at time.Time) (FailureResult, error)
	// RecordSuccess clears the counter of an unlocked row. It reports false
	// when the row was locked in the meantime.
	RecordSuccess(ctx context.Context, badge string, at time.Time) (bool, error)
	ResetPIN(ctx context.Context, badge, pinHash, resetBy string, at time.Time) error
}

type AttemptLog interface {
	Append(ctx context.Context, attempt Attempt) error
}

type Service struct {
	credentials CredentialStore
	attempts    AttemptLog
	logger      *observability.Logger
	jwtSecret   []byte
	accessTTL   time.Duration
	maxAttempts int
	policy      PINPolicy
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(credentials CredentialStore, attempts AttemptLog, jwtSecret string, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewLoggerWithWriter(io.Discard)
	}
	return &Service{
		credentials: credentials,
		attempts:    attempts,
		logger:      logger,
		jwtSecret:   []byte(jwtSecret),
		accessTTL:   defaultAccessTTL,
		maxAttempts: defaultMaxAttempts,
		policy:      DefaultPINPolicy(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithSecurityConfig overrides the defaults. Call it before serving traffic.
func (s *Service) WithSecurityConfig(maxAttempts int, accessTTL time.Duration, policy PINPolicy) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if policy.MinLength > 0 && policy.MaxLength >= policy.MinLength {
		s.policy = policy
	}
}

func (s *Service) Policy() PINPolicy {
	return s.policy
}

// Authenticate checks a badge/PIN pair. Every call appends exactly one
// attempt to the log; if that append fails the call fails with it.
//
// Returned errors: ErrMissingCredentials, ErrInvalidBadge, ErrInvalidPIN,
// *LockedError, or a storage error.
func (s *Service) Authenticate(ctx context.Context, badge, pin string, origin Origin) (Outcome, error) {
	badge = strings.TrimSpace(badge)
	pin = strings.TrimSpace(pin)
	now := s.now()

	if badge == "" || pin == "" {
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonMissingCredentials, ErrMissingCredentials)
	}

	credential, err := s.credentials.FindByBadge(ctx, badge)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			s.burnHash(pin)
			return Outcome{}, s.reject(ctx, badge, origin, now, ReasonBadgeNotFound, ErrInvalidBadge)
		}
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonInternalError, fmt.Errorf("find credential: %w", err))
	}

	if !credential.Active {
		s.burnHash(pin)
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonBadgeInactive, ErrInvalidBadge)
	}

	if credential.Locked {
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonAccountLocked, &LockedError{Attempts: credential.FailedAttempts})
	}

	if !s.verify(credential.PINHash, pin) {
		result, err := s.credentials.RecordFailure(ctx, badge, s.maxAttempts, now)
		if err != nil {
			return Outcome{}, s.reject(ctx, badge, origin, now, ReasonInternalError, fmt.Errorf("record failed attempt: %w", err))
		}
		switch {
		case !result.Applied:
			return Outcome{}, s.reject(ctx, badge, origin, now, ReasonAccountLocked, &LockedError{Attempts: result.FailedAttempts})
		case result.Locked:
			return Outcome{}, s.reject(ctx, badge, origin, now, ReasonLockoutTriggered, &LockedError{Attempts: result.FailedAttempts, JustLocked: true})
		default:
			return Outcome{}, s.reject(ctx, badge, origin, now, ReasonInvalidPIN, ErrInvalidPIN)
		}
	}

	reset, err := s.credentials.RecordSuccess(ctx, badge, now)
	if err != nil {
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonInternalError, fmt.Errorf("reset failed attempts: %w", err))
	}
	if !reset {
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonAccountLocked, &LockedError{Attempts: credential.FailedAttempts})
	}

	token, expiresIn, err := s.issueAccessToken(credential)
	if err != nil {
		return Outcome{}, s.reject(ctx, badge, origin, now, ReasonInternalError, err)
	}

	if err := s.record(ctx, badge, true, "", origin, now); err != nil {
		return Outcome{}, err
	}

	credential.FailedAttempts = 0
	credential.LastFailedAt = nil
	credential.LastLoginAt = &now
	credential.UpdatedAt = now

	return Outcome{
		Credential:  credential.Public(),
		AccessToken: token,
		ExpiresIn:   expiresIn,
	}, nil
}

// ResetPIN sets a new PIN, clears the counter and unlocks the account.
func (s *Service) ResetPIN(ctx context.Context, badge, newPIN, resetBy string) error {
	badge = strings.TrimSpace(badge)
	if badge == "" {
		return ErrMissingCredentials
	}

	hash, err := s.policy.Hash(strings.TrimSpace(newPIN))
	if err != nil {
		return err
	}

	if err := s.credentials.ResetPIN(ctx, badge, hash, resetBy, s.now()); err != nil {
		return err
	}

	s.logger.Info("pin_reset", map[string]any{"badge": badge, "reset_by": resetBy})
	return nil
}

// HashPIN applies the configured policy and hash cost.
func (s *Service) HashPIN(pin string) (string, error) {
	return s.policy.Hash(pin)
}

func (s *Service) verify(hash, pin string) bool {
	if hash == "" {
		s.burnHash(pin)
		return false
	}
	if err := s.policy.Validate(pin); err != nil {
		s.burnHash(pin)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// burnHash spends one comparison so unknown badges cost the same as wrong PINs.
func (s *Service) burnHash(pin string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-such-badge"), s.policy.cost())
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(pin))
}

// reject logs the attempt and returns cause, or the logging error if the
// attempt could not be recorded.
func (s *Service) reject(ctx context.Context, badge string, origin Origin, at time.Time, reason string, cause error) error {
	if err := s.record(ctx, badge, false, reason, origin, at); err != nil {
		return err
	}
	return cause
}

func (s *Service) record(ctx context.Context, badge string, success bool, reason string, origin Origin, at time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate attempt id: %w", err)
	}

	attempt := Attempt{
		ID:        id.String(),
		Badge:     badge,
		Success:   success,
		IPAddress: origin.IP,
		UserAgent: origin.UserAgent,
		CreatedAt: at,
	}
	if reason != "" {
		attempt.Reason = &reason
	}

	s.logger.Info("auth_attempt", map[string]any{
		"badge":   badge,
		"success": success,
		"reason":  reason,
		"ip":      origin.IP,
	})

	if err := s.attempts.Append(ctx, attempt); err != nil {
		s.logger.Error("auth_attempt_log_failed", map[string]any{"badge": badge, "error": err.Error()})
		return fmt.Errorf("append auth attempt: %w", err)
	}
	return nil
}

func (s *Service) issueAccessToken(credential Credential) (string, int64, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   credential.ID,
		"badge": credential.Badge,
		"adm":   credential.Admin,
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
		"typ":   "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, int64(s.accessTTL.Seconds()), nil
}
