package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// memCredentials is an in-memory CredentialStore. Its mutex gives the same
// per-row atomicity as the single UPDATE used against Postgres.
type memCredentials struct {
	mu          sync.Mutex
	rows        map[string]*Credential
	findErr     error
	failureErr  error
	lockOnReset bool
	resets      []string
}

func newMemCredentials() *memCredentials {
	return &memCredentials{rows: map[string]*Credential{}}
}

func (m *memCredentials) add(t *testing.T, badge, pin string, mutate ...func(*Credential)) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)

	credential := &Credential{
		ID:      "id-" + badge,
		Badge:   badge,
		Name:    "Member " + badge,
		Active:  true,
		PINHash: string(hash),
	}
	for _, fn := range mutate {
		fn(credential)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[badge] = credential
}

func (m *memCredentials) get(badge string) Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[badge]
}

func (m *memCredentials) mutate(badge string, fn func(*Credential)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.rows[badge])
}

func (m *memCredentials) FindByBadge(_ context.Context, badge string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Credential{}, m.findErr
	}
	row, ok := m.rows[badge]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return *row, nil
}

func (m *memCredentials) RecordFailure(_ context.Context, badge string, threshold int, at time.Time) (FailureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failureErr != nil {
		return FailureResult{}, m.failureErr
	}
	row, ok := m.rows[badge]
	if !ok {
		return FailureResult{}, ErrCredentialNotFound
	}
	if row.Locked {
		return FailureResult{FailedAttempts: row.FailedAttempts, Locked: true}, nil
	}
	row.FailedAttempts++
	row.Locked = row.FailedAttempts >= threshold
	row.LastFailedAt = &at
	return FailureResult{FailedAttempts: row.FailedAttempts, Locked: row.Locked, Applied: true}, nil
}

func (m *memCredentials) RecordSuccess(_ context.Context, badge string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[badge]
	if m.lockOnReset {
		row.Locked = true
	}
	if row.Locked {
		return false, nil
	}
	row.FailedAttempts = 0
	row.LastFailedAt = nil
	row.LastLoginAt = &at
	return true, nil
}

func (m *memCredentials) ResetPIN(_ context.Context, badge, pinHash, resetBy string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[badge]
	if !ok {
		return ErrCredentialNotFound
	}
	row.PINHash = pinHash
	row.FailedAttempts = 0
	row.Locked = false
	row.LastFailedAt = nil
	m.resets = append(m.resets, badge+"<-"+resetBy)
	return nil
}

type memAttempts struct {
	mu      sync.Mutex
	entries []Attempt
	err     error
}

func (m *memAttempts) Append(_ context.Context, attempt Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, attempt)
	return nil
}

func (m *memAttempts) RecentAttempts(_ context.Context, badge string, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []Attempt{}
	for i := len(m.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.entries[i].Badge == badge {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memAttempts) all() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attempt(nil), m.entries...)
}

func (m *memAttempts) reasons() []string {
	var out []string
	for _, attempt := range m.all() {
		if attempt.Reason == nil {
			out = append(out, "")
			continue
		}
		out = append(out, *attempt.Reason)
	}
	return out
}

func testPolicy() PINPolicy {
	policy := DefaultPINPolicy()
	policy.HashCost = bcrypt.MinCost
	return policy
}

func newTestService(t *testing.T) (*Service, *memCredentials, *memAttempts) {
	t.Helper()
	credentials := newMemCredentials()
	attempts := &memAttempts{}
	service := NewService(credentials, attempts, testSecret, nil)
	service.WithSecurityConfig(5, time.Hour, testPolicy())
	return service, credentials, attempts
}

var errStorage = errors.New("connection reset by peer")
