package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatelist.org/internal/auth"
	"gatelist.org/internal/stream"
)

func newStreamAPI(t *testing.T) *API {
	t.Helper()
	store := auth.NewMemStore()
	codec, err := auth.NewCodec([]byte("test-signing-secret"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc := auth.NewService(store, codec)
	return New(svc, ReadyProbe{}, "test", WithAuditStream(stream.New()))
}

func TestAuditStreamRequiresAdmin(t *testing.T) {
	api := newStreamAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit/stream", nil)
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/audit/stream", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: "u1", Role: auth.RoleAttendee}))
	rr = httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("attendee: expected 403, got %d", rr.Code)
	}
}

func TestAuditStreamOpensForAdmin(t *testing.T) {
	api := newStreamAPI(t)

	// A cancelled context makes the handler return right after the opening
	// comment.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit/stream", nil)
	req = req.WithContext(auth.ContextWithUser(ctx, &auth.User{ID: "u1", Role: auth.RoleAdmin}))
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	if !strings.Contains(rr.Body.String(), ": stream started") {
		t.Fatalf("missing opening comment: %q", rr.Body.String())
	}
}
