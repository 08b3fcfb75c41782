package auth

import "time"

// Role determines what a user may do on the platform.
type Role string

const (
	RoleOrganizer Role = "ORGANIZER"
	RoleAttendee  Role = "ATTENDEE"
	RoleAdmin     Role = "ADMIN"
	RoleScanner   Role = "SCANNER"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleOrganizer, RoleAttendee, RoleAdmin, RoleScanner:
		return true
	}
	return false
}

// User is a platform account. PasswordHash is empty for accounts without a
// local credential. VerificationToken and VerificationExpires are set
// together while the email is unverified and cleared together on use.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Name                string
	Phone               string
	Role                Role
	Verified            bool
	VerificationToken   string
	VerificationExpires *time.Time
	LockoutState
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a stateful login record. The token is opaque: it carries no
// meaning and is only valid through a store lookup. IPAddress and UserAgent
// are informational.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	IPAddress string
	UserAgent string
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
