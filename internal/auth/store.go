package auth

import (
	"context"
	"time"

	"gatelist.org/internal/audit"
)

// Store describes the persistence operations the engine requires. The engine
// never touches storage directly; everything goes through this contract.
type Store interface {
	Users(ctx context.Context) UserStore
	Sessions(ctx context.Context) SessionStore
	Audit(ctx context.Context) audit.Sink
}

// UserStore manages user records. The login-counter operations are atomic on
// the storage side so concurrent failed logins cannot lose updates.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)

	// RecordLoginFailure increments the failed-login counter as a single
	// atomic update and returns the new count.
	RecordLoginFailure(ctx context.Context, id string) (int, error)
	// Lock sets the lock-until timestamp.
	Lock(ctx context.Context, id string, until time.Time) error
	// RecordLoginSuccess resets the counter, clears the lock and stamps
	// last_login.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	// MarkVerified flags the account verified and clears the verification
	// token and its expiry.
	MarkVerified(ctx context.Context, id string) error
}

// SessionStore manages stateful session records. Deletes are idempotent:
// removing zero rows is not an error.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
}
