package httpapi

import (
	"errors"
	"net/http"
	"time"

	"gatelist.org/internal/auth"
	"gatelist.org/internal/obs"
)

// userView is the wire shape of a user. Credential material never leaves the
// service.
type userView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Role      string     `json:"role"`
	Verified  bool       `json:"verified"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewOf(u *auth.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		Verified:  u.Verified,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

// authStatus maps engine errors onto HTTP status codes. Unknown errors are
// internal; their detail stays in the logs.
func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrDuplicateUser):
		return http.StatusConflict, "an account with this email already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, auth.ErrLockedOut):
		return http.StatusLocked, "account temporarily locked after repeated failed logins"
	case errors.Is(err, auth.ErrUnverified):
		return http.StatusForbidden, "email address not verified"
	case errors.Is(err, auth.ErrInvalidVerification):
		return http.StatusBadRequest, "invalid or expired verification token"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "insufficient role"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (a *API) writeAuthError(w http.ResponseWriter, err error) {
	code, msg := authStatus(err)
	if code == http.StatusInternalServerError {
		obs.Error("auth operation failed", err, nil)
	}
	writeError(w, code, msg)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	body := map[string]any{"user": viewOf(res.User)}
	if res.VerificationToken != "" {
		body["verification_token"] = res.VerificationToken
	}
	writeJSON(w, http.StatusCreated, body)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.auth.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrLockedOut):
			obs.LoginAttempt("locked_out")
		case errors.Is(err, auth.ErrUnverified):
			obs.LoginAttempt("unverified")
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.LoginAttempt("invalid_credentials")
		default:
			obs.LoginAttempt("error")
		}
		a.writeAuthError(w, err)
		return
	}
	obs.LoginAttempt("authenticated")
	obs.SessionIssued()

	http.SetCookie(w, a.authCookie(res.BearerToken, auth.DefaultBearerTTL))
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          viewOf(res.User),
		"token":         res.BearerToken,
		"session_token": res.Session.Token,
		"expires_at":    res.Session.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok || cred.Kind != auth.CredentialBearer {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.Logout(r.Context(), cred.Token, clientIP(r), r.UserAgent()); err != nil {
		a.writeAuthError(w, err)
		return
	}
	obs.SessionRevoked()

	http.SetCookie(w, a.authCookie("", -time.Hour))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.VerifyEmail(r.Context(), req.Token, clientIP(r), r.UserAgent())
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(user)})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	user := requireUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(user)})
}

// authCookie builds the HttpOnly bearer cookie. A non-positive maxAge clears
// it.
func (a *API) authCookie(value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.secureCookies,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
	} else {
		c.MaxAge = -1
	}
	return c
}
