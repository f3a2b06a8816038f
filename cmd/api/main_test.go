package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathauscm/api-mybot/internal/platform/auth"
	"github.com/mathauscm/api-mybot/internal/platform/config"
)

func TestDevTenantFromEnv(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	_, ok := devTenantFromEnv(map[string]string{"API_DEV_TENANT_ID": "pizzaria-roma"}, "pepper", now)
	assert.False(t, ok, "api key is required")

	tenant, ok := devTenantFromEnv(map[string]string{
		"API_DEV_TENANT_ID":      " pizzaria-roma ",
		"API_DEV_TENANT_API_KEY": "bot-key",
		"API_DEV_TENANT_PHONE":   "+5511999990000",
	}, "pepper", now)
	require.True(t, ok)
	assert.Equal(t, "pizzaria-roma", tenant.ID)
	assert.Equal(t, "pizzaria-roma", tenant.Name)
	assert.Equal(t, "+5511999990000", tenant.ContactPhone)
	assert.True(t, tenant.Active)
	assert.Equal(t, auth.HashAPIKey("pepper", "bot-key"), tenant.APIKeyHash)
	assert.Equal(t, now, tenant.CreatedAt)
}

func TestRequiredSecretNames(t *testing.T) {
	assert.Empty(t, requiredSecretNames(map[string]string{}))
	assert.Empty(t, requiredSecretNames(map[string]string{"API_SECURITY_ENVIRONMENT": "local"}))

	assert.Equal(t, []string{"Security.APIKeyPepper"}, requiredSecretNames(map[string]string{
		"API_SECURITY_ENVIRONMENT": "prod",
	}))
	assert.Equal(t, []string{"Redis.Password", "Security.APIKeyPepper"}, requiredSecretNames(map[string]string{
		"API_SECURITY_ENVIRONMENT": "prod",
		"API_IDEMPOTENCY_BACKEND":  "Redis",
		"API_REDIS_PASSWORD":       "secret://redis-password",
	}))
}

func TestBuildInfoFromEnv(t *testing.T) {
	started := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	info := buildInfoFromEnv(map[string]string{}, config.Config{}, started)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.CommitSHA)
	assert.Equal(t, "local", info.Environment)
	assert.Equal(t, started, info.StartedAt)

	cfg := config.Config{Security: config.SecurityConfig{Environment: "prod"}}
	info = buildInfoFromEnv(map[string]string{"API_BUILD_VERSION": "1.4.0", "API_BUILD_COMMIT_SHA": "abc123"}, cfg, started)
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc123", info.CommitSHA)
	assert.Equal(t, "prod", info.Environment)
}
