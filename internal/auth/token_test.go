package auth

import (
	"errors"
	"testing"
	"time"
)

func testCodec(t *testing.T, now time.Time, opts ...CodecOption) *Codec {
	t.Helper()
	opts = append([]CodecOption{WithCodecClock(func() time.Time { return now })}, opts...)
	codec, err := NewCodec([]byte("test-signing-secret"), opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestCodecRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	user := &User{ID: "user-1", Email: "a@x.com", Role: RoleOrganizer}
	token, err := codec.Encode(user)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@x.com" || claims.Role != RoleOrganizer {
		t.Fatalf("claims lost: %+v", claims)
	}
	if want := now.Add(DefaultBearerTTL); !claims.ExpiresAt.Time.Equal(want) {
		t.Fatalf("expiry %v, want %v", claims.ExpiresAt.Time, want)
	}
}

func TestCodecDecodeExpired(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, issued, WithTokenTTL(time.Hour))

	token, err := codec.Encode(&User{ID: "user-1", Email: "a@x.com", Role: RoleAttendee})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	late, err := NewCodec([]byte("test-signing-secret"),
		WithCodecClock(func() time.Time { return issued.Add(2 * time.Hour) }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := late.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestCodecDecodeFailuresAreUniform(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := testCodec(t, now)

	good, err := codec.Encode(&User{ID: "user-1", Email: "a@x.com", Role: RoleAttendee})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	other, err := NewCodec([]byte("a-different-secret"),
		WithCodecClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	foreign, err := other.Encode(&User{ID: "user-2", Email: "b@x.com", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", foreign},
		{"truncated", good[:len(good)-5]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := codec.Decode(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
			if claims != nil {
				t.Fatal("expected nil claims on failure")
			}
		})
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
