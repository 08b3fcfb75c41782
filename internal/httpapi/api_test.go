package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatelist.org/internal/auth"
)

func newTestAPI(t *testing.T) (*API, *auth.MemStore) {
	t.Helper()
	store := auth.NewMemStore()
	codec, err := auth.NewCodec([]byte("test-signing-secret"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc := auth.NewService(store, codec, auth.WithExposedVerificationTokens())
	return New(svc, ReadyProbe{}, "test"), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if prepare != nil {
		prepare(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestRegisterVerifyLoginLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/register",
		`{"email":"Eva@Example.com","password":"correct horse","name":"Eva"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	verifToken, _ := body["verification_token"].(string)
	if verifToken == "" {
		t.Fatal("expected exposed verification token")
	}
	user := body["user"].(map[string]any)
	if user["email"] != "eva@example.com" {
		t.Fatalf("email not normalized: %v", user["email"])
	}
	if user["verified"] != false {
		t.Fatal("fresh account must be unverified")
	}

	// Unverified accounts cannot log in.
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"eva@example.com","password":"correct horse"}`, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified login: expected 403, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/verify",
		fmt.Sprintf(`{"token":%q}`, verifToken), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"eva@example.com","password":"correct horse"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body = decodeBody(t, rr)
	bearer, _ := body["token"].(string)
	sessionToken, _ := body["session_token"].(string)
	if bearer == "" || sessionToken == "" {
		t.Fatalf("expected bearer and session tokens, got %v", body)
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected auth cookie set on login")
	}
	if !cookie.HttpOnly || cookie.Value != bearer {
		t.Fatalf("cookie must be HttpOnly and carry the bearer token: %+v", cookie)
	}

	// /me works with the cookie alone.
	rr = doJSON(t, h, http.MethodGet, "/v1/auth/me", "", func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body = decodeBody(t, rr)
	if body["user"].(map[string]any)["email"] != "eva@example.com" {
		t.Fatalf("unexpected identity: %v", body)
	}

	// /me also works with the opaque session token.
	rr = doJSON(t, h, http.MethodGet, "/v1/auth/me", "", func(r *http.Request) {
		r.Header.Set("X-Session-Token", sessionToken)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("me via session: expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout must clear the auth cookie")
	}

	// Logout is idempotent: revoking again succeeds.
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("second logout: expected 200, got %d", rr.Code)
	}
}

func TestLoginFailureStatuses(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/register",
		`{"email":"a@x.com","password":"password1","name":"A"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: %d", rr.Code)
	}
	verifToken := decodeBody(t, rr)["verification_token"].(string)
	doJSON(t, h, http.MethodPost, "/v1/auth/verify", fmt.Sprintf(`{"token":%q}`, verifToken), nil)

	// Unknown email and wrong password produce the same response.
	unknown := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nobody@x.com","password":"password1"}`, nil)
	wrong := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"a@x.com","password":"wrongwrong"}`, nil)
	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("failure bodies must be indistinguishable: %q vs %q",
			unknown.Body.String(), wrong.Body.String())
	}

	// Four more failures trip the lock; then even the correct password is 423.
	for i := 0; i < 4; i++ {
		doJSON(t, h, http.MethodPost, "/v1/auth/login",
			`{"email":"a@x.com","password":"wrongwrong"}`, nil)
	}
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"a@x.com","password":"password1"}`, nil)
	if rr.Code != http.StatusLocked {
		t.Fatalf("expected 423 after lockout, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/register",
		`{"email":"not-an-email","password":"password1","name":"A"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad email: expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/register", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/register",
		`{"email":"a@x.com","password":"password1","name":"A"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/register",
		`{"email":"a@x.com","password":"password2","name":"B"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rr.Code)
	}
}

func TestVerifyRejectsUnknownToken(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/verify", `{"token":"bogus"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLogoutWithoutCredential(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	// Garbage bearer tokens are rejected, not treated as anonymous.
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	if decodeBody(t, rr)["service"] != "gatelist-auth" {
		t.Fatalf("unexpected healthz body: %s", rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz without a DB should be ready, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/info", "", nil)
	if decodeBody(t, rr)["version"] != "test" {
		t.Fatalf("unexpected info body: %s", rr.Body.String())
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	api, _ := newTestAPI(t)
	rr := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
}
