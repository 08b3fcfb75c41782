// Package auth implements the credential-and-session engine: password
// hashing, login-attempt lockout, stateful sessions, signed bearer tokens and
// the orchestration between them. It is transport-agnostic: callers map its
// outcomes to HTTP, RPC or anything else.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatelist.org/internal/audit"
	"gatelist.org/internal/ids"
	"gatelist.org/internal/obs"
)

const (
	// verificationTTL is the lifetime of an email verification token.
	verificationTTL = 24 * time.Hour

	// verificationTokenBytes gives 256 bits of entropy per token.
	verificationTokenBytes = 32

	minPasswordLength = 8
)

// VerificationSender delivers a verification token to a freshly registered
// user. Delivery itself (email, SMS) lives outside the engine.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, token string) error
}

// Service orchestrates registration, login, logout, email verification and
// identity resolution. It holds no mutable per-request state; all state lives
// in the Store.
type Service struct {
	store    Store
	codec    *Codec
	sessions *Sessions
	recorder *audit.Recorder
	sender   VerificationSender
	now      func() time.Time

	// exposeVerificationTokens returns the verification token to the caller
	// of Register. Enabled only outside production, where no delivery
	// collaborator is wired.
	exposeVerificationTokens bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source for the service and its session
// manager. Intended for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.sessions.WithTTL(ttl) }
}

// WithVerificationSender wires the delivery collaborator for verification
// tokens.
func WithVerificationSender(sender VerificationSender) ServiceOption {
	return func(s *Service) { s.sender = sender }
}

// WithExposedVerificationTokens makes Register return the verification token
// to the caller. Never enable in production.
func WithExposedVerificationTokens() ServiceOption {
	return func(s *Service) { s.exposeVerificationTokens = true }
}

// NewService constructs the engine over a store and a bearer token codec.
func NewService(store Store, codec *Codec, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		codec:    codec,
		sessions: NewSessions(store.Sessions(context.Background())),
		recorder: audit.NewRecorder(store.Audit(context.Background())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions.WithClock(s.now)
	s.recorder.WithClock(s.now)
	return s
}

// Sessions exposes the session manager, e.g. for an external expiry reaper.
func (s *Service) Sessions() *Sessions { return s.sessions }

// RegisterInput are the fields required to create an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// RegisterResult is the outcome of a successful registration.
// VerificationToken is populated only when the service is configured to
// expose it.
type RegisterResult struct {
	User              *User
	VerificationToken string
}

// Register creates an unverified account and issues a verification token with
// a 24-hour expiry. The token goes to the delivery collaborator when one is
// wired.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	case len(in.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password too short", ErrInvalidInput)
	case name == "":
		return nil, fmt.Errorf("%w: name", ErrInvalidInput)
	}

	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := randomToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now().UTC()
	expires := now.Add(verificationTTL)
	user := &User{
		ID:                  ids.New(),
		Email:               email,
		PasswordHash:        hash,
		Name:                name,
		Phone:               strings.TrimSpace(in.Phone),
		Role:                RoleAttendee,
		Verified:            false,
		VerificationToken:   token,
		VerificationExpires: &expires,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionRegister,
		ResourceType: "USER",
		UserID:       user.ID,
		Detail:       "account registered, verification pending",
	})

	if s.sender != nil {
		if err := s.sender.SendVerification(ctx, email, token); err != nil {
			obs.Error("verification delivery failed", err, map[string]any{"user_id": user.ID})
		}
	}

	res := &RegisterResult{User: user}
	if s.exposeVerificationTokens {
		res.VerificationToken = token
	}
	return res, nil
}

// LoginInput are the credentials presented on login. IPAddress and UserAgent
// are informational and recorded on the session.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is a successful authentication: the user, a persisted session
// and a signed bearer token. Transport of either token is the caller's
// concern.
type LoginResult struct {
	User        *User
	Session     *Session
	BearerToken string
}

// Login authenticates credentials. Failure outcomes, in order of precedence:
// ErrInvalidCredentials (unknown email, credential-less account, or wrong
// password — indistinguishable on purpose), ErrLockedOut (checked before the
// password), ErrUnverified (checked after the password and before the counter
// reset, so a correct password on an unverified account leaves the failure
// counter intact).
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now().UTC()
	if user.Locked(now) {
		return nil, ErrLockedOut
	}

	if user.PasswordHash == "" || !VerifyPassword(user.PasswordHash, in.Password) {
		if user.PasswordHash != "" {
			if err := s.applyLoginFailure(ctx, user, now, in); err != nil {
				return nil, err
			}
		}
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return nil, ErrUnverified
	}

	if err := users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LockoutState = user.LockoutState.OnSuccess()
	user.LastLogin = &now

	session, err := s.sessions.Create(ctx, user.ID, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}
	bearer, err := s.codec.Encode(user)
	if err != nil {
		return nil, fmt.Errorf("sign bearer token: %w", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionLogin,
		ResourceType: "USER",
		UserID:       user.ID,
		Detail:       "login successful",
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
	})

	return &LoginResult{User: user, Session: session, BearerToken: bearer}, nil
}

// applyLoginFailure advances the lockout state through the store's atomic
// increment, then sets the lock when the policy says so. The increment and
// the lock write are separate statements, but the counter itself cannot lose
// updates under concurrent attempts.
func (s *Service) applyLoginFailure(ctx context.Context, user *User, now time.Time, in LoginInput) error {
	users := s.store.Users(ctx)
	count, err := users.RecordLoginFailure(ctx, user.ID)
	if err != nil {
		return err
	}
	next := LockoutState{FailedLoginCount: count, LockUntil: user.LockUntil}
	if next.FailedLoginCount < LockThreshold || user.Locked(now) {
		return nil
	}
	until := now.Add(LockDuration)
	if err := users.Lock(ctx, user.ID, until); err != nil {
		return err
	}
	obs.LockoutTriggered()
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionLock,
		ResourceType: "USER",
		UserID:       user.ID,
		Detail:       fmt.Sprintf("account locked after %d failed attempts", next.FailedLoginCount),
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
	})
	return nil
}

// Logout resolves the user from the presented bearer token and revokes any
// session matching that token. Revoking an already-revoked token is a no-op.
func (s *Service) Logout(ctx context.Context, presentedToken, ipAddress, userAgent string) error {
	claims, err := s.codec.Decode(presentedToken)
	if err != nil {
		return ErrUnauthenticated
	}
	if err := s.sessions.Revoke(ctx, presentedToken); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionLogout,
		ResourceType: "USER",
		UserID:       claims.UserID,
		Detail:       "user logged out",
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	})
	return nil
}

// VerifyEmail marks the account holding this verification token as verified
// and clears the token so it can never match again. An unknown or expired
// token yields ErrInvalidVerification and changes nothing.
func (s *Service) VerifyEmail(ctx context.Context, token, ipAddress, userAgent string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidVerification
	}
	users := s.store.Users(ctx)
	user, err := users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidVerification
		}
		return nil, err
	}
	if user.VerificationExpires == nil || !user.VerificationExpires.After(s.now()) {
		return nil, ErrInvalidVerification
	}
	if err := users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.Verified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionVerify,
		ResourceType: "USER",
		UserID:       user.ID,
		Detail:       "email verification successful",
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	})
	return user, nil
}

// CredentialKind tags the two ways a client can assert identity.
type CredentialKind int

const (
	// CredentialBearer is a self-contained signed token.
	CredentialBearer CredentialKind = iota
	// CredentialSession is an opaque token resolved through the session
	// store.
	CredentialSession
)

// Credential is a presented credential of either kind.
type Credential struct {
	Kind  CredentialKind
	Token string
}

// Identify resolves a presented credential to a user. A credential that does
// not resolve — bad signature, expired, revoked, or pointing at a deleted
// user — yields (nil, nil): no identity, not an error. Storage failures
// propagate.
func (s *Service) Identify(ctx context.Context, cred Credential) (*User, error) {
	switch cred.Kind {
	case CredentialBearer:
		claims, err := s.codec.Decode(cred.Token)
		if err != nil {
			return nil, nil
		}
		return s.userOrAnonymous(ctx, claims.UserID)
	case CredentialSession:
		sess, err := s.sessions.Validate(ctx, cred.Token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return s.userOrAnonymous(ctx, sess.UserID)
	default:
		return nil, nil
	}
}

// ResolveCurrentUser resolves a bearer token to a user, or to no identity.
func (s *Service) ResolveCurrentUser(ctx context.Context, bearerToken string) (*User, error) {
	return s.Identify(ctx, Credential{Kind: CredentialBearer, Token: bearerToken})
}

func (s *Service) userOrAnonymous(ctx context.Context, userID string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// RequireAuth fails with ErrUnauthenticated when there is no resolved user.
func RequireAuth(user *User) error {
	if user == nil {
		return ErrUnauthenticated
	}
	return nil
}

// RequireRole fails with ErrForbidden when the user does not hold the role,
// or ErrUnauthenticated when there is no user at all.
func RequireRole(user *User, role Role) error {
	if err := RequireAuth(user); err != nil {
		return err
	}
	if user.Role != role {
		return ErrForbidden
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
