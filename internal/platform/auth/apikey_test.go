package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/requestctx"
)

type notFoundErr struct{}

func (notFoundErr) Error() string    { return "tenant not found" }
func (notFoundErr) IsNotFound() bool { return true }

type stubTenantLookup struct {
	tenants  map[string]domain.Tenant
	err      error
	received string
}

func (s *stubTenantLookup) FindByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error) {
	s.received = hash
	if s.err != nil {
		return domain.Tenant{}, s.err
	}
	tenant, ok := s.tenants[hash]
	if !ok {
		return domain.Tenant{}, notFoundErr{}
	}
	return tenant, nil
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("pepper", "key-1")
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if a != HashAPIKey("pepper", " key-1 ") {
		t.Fatalf("expected surrounding whitespace to be ignored")
	}
	if a == HashAPIKey("other", "key-1") {
		t.Fatalf("expected pepper to change the hash")
	}
}

func TestRequireAPIKey(t *testing.T) {
	const pepper = "s3cret"
	lookup := &stubTenantLookup{tenants: map[string]domain.Tenant{
		HashAPIKey(pepper, "live-key"):   {ID: "roma", Name: "Pizzaria Roma", ContactPhone: "+5511999990000", Active: true},
		HashAPIKey(pepper, "paused-key"): {ID: "paused", Active: false},
	}}
	authn := NewAPIKeyAuthenticator(lookup, "", pepper)

	var seen requestctx.TenantInfo
	handler := authn.RequireAPIKey()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Tenant(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		key    string
		status int
		code   string
	}{
		{name: "missing", key: "", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "unknown", key: "nope", status: http.StatusUnauthorized, code: "invalid_api_key"},
		{name: "inactive", key: "paused-key", status: http.StatusForbidden, code: "tenant_inactive"},
		{name: "active", key: "live-key", status: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = requestctx.TenantInfo{}
			req := httptest.NewRequest(http.MethodPost, "/public/orders", nil)
			if tc.key != "" {
				req.Header.Set(DefaultAPIKeyHeader, tc.key)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.code != "" {
				if code := decodeErrorCode(t, rr); code != tc.code {
					t.Fatalf("expected %s, got %s", tc.code, code)
				}
				return
			}
			if seen.ID != "roma" || seen.ContactPhone != "+5511999990000" {
				t.Fatalf("unexpected tenant in context: %+v", seen)
			}
		})
	}
}

func TestRequireAPIKey_LookupFailure(t *testing.T) {
	authn := NewAPIKeyAuthenticator(&stubTenantLookup{err: errors.New("deadline exceeded")}, "X-Bot-Key", "p")
	handler := authn.RequireAPIKey()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Bot-Key", "k")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
