package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gatelist.org/internal/ids"
)

const (
	// DefaultSessionTTL is the lifetime of a stateful session.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// sessionTokenBytes gives 256 bits of entropy per token.
	sessionTokenBytes = 32
)

// Sessions manages the lifecycle of stateful session records on top of a
// SessionStore.
type Sessions struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions constructs a session manager over the given store.
func NewSessions(store SessionStore) *Sessions {
	return &Sessions{store: store, ttl: DefaultSessionTTL, now: time.Now}
}

// WithTTL overrides the session lifetime.
func (s *Sessions) WithTTL(ttl time.Duration) *Sessions {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithClock overrides the time source. Intended for tests.
func (s *Sessions) WithClock(fn func() time.Time) *Sessions {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Create generates a fresh opaque token and persists a session record for the
// user. IP address and user agent are informational and may be empty.
func (s *Sessions) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	token, err := randomToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        ids.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// Validate looks up a session by token. An expired session is reported as
// ErrNotFound, exactly like an absent one; it is not deleted here.
func (s *Sessions) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	sess, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Revoke deletes every session record matching the token. Revoking a token
// with no matching session is not an error.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteByToken(ctx, token)
}

// RevokeAll deletes every session belonging to the user. Used for forced
// logout-everywhere; idempotent.
func (s *Sessions) RevokeAll(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.store.DeleteByUser(ctx, userID)
}

// randomToken returns n cryptographically random bytes, hex encoded.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
