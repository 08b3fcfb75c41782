package auth

import (
	"context"
	"sync"
	"time"

	"gatelist.org/internal/audit"
)

// MemStore is an in-memory Store. It backs tests and the no-DSN development
// mode of cmd/api; production runs on PGStore. All counter updates happen
// under one lock, so it provides the same atomicity the SQL store does.
type MemStore struct {
	mu       sync.Mutex
	users    map[string]*User    // by id
	sessions map[string]*Session // by id
	entries  []*audit.Entry
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
	}
}

func (m *MemStore) Users(ctx context.Context) UserStore       { return (*memUsers)(m) }
func (m *MemStore) Sessions(ctx context.Context) SessionStore { return (*memSessions)(m) }
func (m *MemStore) Audit(ctx context.Context) audit.Sink      { return (*memAudit)(m) }

// AuditEntries returns a snapshot of recorded entries, oldest first.
func (m *MemStore) AuditEntries() []*audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*audit.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// SessionCount reports the number of live session records for a user.
func (m *MemStore) SessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// User store ---------------------------------------------------------------

type memUsers MemStore

func (m *memUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateUser
		}
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationToken != "" && u.VerificationToken == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.FailedLoginCount++
	u.UpdatedAt = time.Now().UTC()
	return u.FailedLoginCount, nil
}

func (m *memUsers) Lock(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LockUntil = &until
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginCount = 0
	u.LockUntil = nil
	u.LastLogin = &at
	u.UpdatedAt = at
	return nil
}

func (m *memUsers) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	u.VerificationToken = ""
	u.VerificationExpires = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Session store ------------------------------------------------------------

type memSessions MemStore

func (m *memSessions) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memSessions) FindByToken(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			clone := *s
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSessions) DeleteByToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Token == token {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) DeleteByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Audit store --------------------------------------------------------------

type memAudit MemStore

func (m *memAudit) Append(ctx context.Context, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}
