package auth

import "context"

type userContextKey struct{}
type credentialContextKey struct{}

// ContextWithUser attaches the resolved user to the context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the resolved user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(userContextKey{}).(*User)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}

// ContextWithCredential stores the raw presented credential in the context,
// so logout can revoke exactly what was presented.
func ContextWithCredential(ctx context.Context, cred Credential) context.Context {
	if cred.Token == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialContextKey{}, cred)
}

// CredentialFromContext returns the presented credential if one was attached.
func CredentialFromContext(ctx context.Context) (Credential, bool) {
	if ctx == nil {
		return Credential{}, false
	}
	c, ok := ctx.Value(credentialContextKey{}).(Credential)
	if !ok || c.Token == "" {
		return Credential{}, false
	}
	return c, true
}
