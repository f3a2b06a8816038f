package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/requestctx"
)

// DefaultAPIKeyHeader is the header bots use to present their tenant key.
const DefaultAPIKeyHeader = "X-API-Key"

// TenantLookup resolves a tenant from the hash of its API key.
type TenantLookup interface {
	FindByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error)
}

// HashAPIKey derives the stored representation of an API key. Raw keys are never persisted.
func HashAPIKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(mac.Sum(nil))
}

// APIKeyAuthenticator binds bot-facing requests to the tenant owning the presented key.
type APIKeyAuthenticator struct {
	lookup TenantLookup
	header string
	pepper string
}

// NewAPIKeyAuthenticator constructs the middleware factory. An empty header falls back to X-API-Key.
func NewAPIKeyAuthenticator(lookup TenantLookup, header, pepper string) *APIKeyAuthenticator {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{lookup: lookup, header: header, pepper: pepper}
}

// RequireAPIKey rejects requests without a key for an active tenant.
func (a *APIKeyAuthenticator) RequireAPIKey() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(a.header))
			if key == "" {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "api key missing")
				return
			}
			if a.lookup == nil {
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "dependency_unavailable", "tenant lookup unavailable")
				return
			}

			tenant, err := a.lookup.FindByAPIKeyHash(ctx, HashAPIKey(a.pepper, key))
			if err != nil {
				if isNotFound(err) {
					respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_api_key", "api key not recognised")
					return
				}
				requestctx.Logger(ctx).Warn("tenant lookup failed", zap.Error(err))
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "dependency_unavailable", "tenant lookup failed")
				return
			}
			if !tenant.Active {
				respondAuthError(ctx, w, http.StatusForbidden, "tenant_inactive", "tenant is not active")
				return
			}

			ctx = requestctx.WithTenant(ctx, requestctx.TenantInfo{
				ID:           tenant.ID,
				Name:         tenant.Name,
				ContactPhone: tenant.ContactPhone,
			})
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("tenant_id", tenant.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isNotFound(err error) bool {
	var nf interface{ IsNotFound() bool }
	return errors.As(err, &nf) && nf.IsNotFound()
}
