package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionsCreate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemStore()
	sessions := NewSessions(store.Sessions(context.Background())).
		WithClock(func() time.Time { return now })

	sess, err := sessions.Create(context.Background(), "user-1", "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sess.Token) != sessionTokenBytes*2 {
		t.Fatalf("token length %d, want %d hex chars", len(sess.Token), sessionTokenBytes*2)
	}
	if want := now.Add(DefaultSessionTTL); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %v, want %v", sess.ExpiresAt, want)
	}
	if sess.IPAddress != "203.0.113.9" || sess.UserAgent != "test-agent" {
		t.Fatalf("client metadata lost: %+v", sess)
	}

	second, err := sessions.Create(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.Token == sess.Token {
		t.Fatal("expected unique tokens per session")
	}
}

func TestSessionsValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	current := now
	store := NewMemStore()
	sessions := NewSessions(store.Sessions(context.Background())).
		WithClock(func() time.Time { return current })

	sess, err := sessions.Create(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := sessions.Validate(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("unexpected user: %s", got.UserID)
	}

	if _, err := sessions.Validate(context.Background(), "unknown-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}

	// Expired sessions behave exactly like absent ones.
	current = now.Add(DefaultSessionTTL + time.Second)
	if _, err := sessions.Validate(context.Background(), sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	// And the record is not eagerly deleted.
	if store.SessionCount("user-1") != 1 {
		t.Fatal("expired session should remain until revoked or reaped")
	}
}

func TestSessionsRevokeIdempotent(t *testing.T) {
	store := NewMemStore()
	sessions := NewSessions(store.Sessions(context.Background()))

	sess, err := sessions.Create(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sessions.Revoke(context.Background(), sess.Token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := sessions.Validate(context.Background(), sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked session to be gone, got %v", err)
	}
	if err := sessions.Revoke(context.Background(), sess.Token); err != nil {
		t.Fatalf("second Revoke must be a no-op, got %v", err)
	}
}

func TestSessionsRevokeAll(t *testing.T) {
	store := NewMemStore()
	sessions := NewSessions(store.Sessions(context.Background()))

	for i := 0; i < 3; i++ {
		if _, err := sessions.Create(context.Background(), "user-1", "", ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := sessions.Create(context.Background(), "user-2", "", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := sessions.RevokeAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n := store.SessionCount("user-1"); n != 0 {
		t.Fatalf("expected 0 sessions for user-1, got %d", n)
	}
	if n := store.SessionCount("user-2"); n != 1 {
		t.Fatalf("expected user-2 sessions untouched, got %d", n)
	}
	if err := sessions.RevokeAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("second RevokeAll must be a no-op, got %v", err)
	}
}
