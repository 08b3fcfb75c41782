package httpapi

import (
	"net/http"
	"strings"

	"gatelist.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearerScheme  = "Bearer "
	sessionHeader = "X-Session-Token"

	// tokenCookie carries the signed bearer token for browser clients.
	tokenCookie = "token"
)

// presentedCredential extracts a credential from the request, in order of
// precedence: Authorization bearer, session header, auth cookie.
func presentedCredential(r *http.Request) (auth.Credential, bool) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
			token := strings.TrimSpace(header[len(bearerScheme):])
			if token != "" {
				return auth.Credential{Kind: auth.CredentialBearer, Token: token}, true
			}
		}
	}
	if token := strings.TrimSpace(r.Header.Get(sessionHeader)); token != "" {
		return auth.Credential{Kind: auth.CredentialSession, Token: token}, true
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil && cookie.Value != "" {
		return auth.Credential{Kind: auth.CredentialBearer, Token: cookie.Value}, true
	}
	return auth.Credential{}, false
}

// withIdentity resolves the presented credential (if any) and stores the user
// and the raw credential in the request context. Requests without a resolvable
// identity continue anonymously; handlers decide what requires auth.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := presentedCredential(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.auth.Identify(r.Context(), cred)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "authentication error")
			return
		}
		ctx := auth.ContextWithCredential(r.Context(), cred)
		if user != nil {
			ctx = auth.ContextWithUser(ctx, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser returns the authenticated user or writes a 401 and returns nil.
func requireUser(w http.ResponseWriter, r *http.Request) *auth.User {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatelist"`)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return user
}

// RequireRole guards a handler behind a role check.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := auth.UserFromContext(r.Context())
			if err := auth.RequireRole(user, role); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="gatelist"`)
				if user == nil {
					writeError(w, http.StatusUnauthorized, "authentication required")
				} else {
					writeError(w, http.StatusForbidden, "insufficient role")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
