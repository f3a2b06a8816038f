package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mybot-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != StoreBackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Store.Backend)
	}
	if cfg.Firestore.ProjectID != "mybot-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "mybot-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.NotificationsTopic != defaultNotificationsTopic {
		t.Errorf("unexpected notifications topic %s", cfg.PubSub.NotificationsTopic)
	}
	if cfg.Security.APIKeyHeader != "X-API-Key" {
		t.Errorf("expected default api key header, got %s", cfg.Security.APIKeyHeader)
	}
	if cfg.Security.PublicRateLimit != 120 || cfg.Security.PublicRateWindow != time.Minute {
		t.Errorf("unexpected public rate limit %d per %s", cfg.Security.PublicRateLimit, cfg.Security.PublicRateWindow)
	}
	if cfg.Idempotency.Backend != IdempotencyBackendMemory {
		t.Errorf("expected memory idempotency backend, got %s", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Orders.Timezone != "America/Sao_Paulo" || cfg.Orders.Location == nil {
		t.Errorf("unexpected orders timezone %q (location %v)", cfg.Orders.Timezone, cfg.Orders.Location)
	}
	if cfg.Orders.StoreTimeout != 5*time.Second {
		t.Errorf("unexpected store timeout %s", cfg.Orders.StoreTimeout)
	}
	if cfg.Orders.NumberRetries != 3 {
		t.Errorf("unexpected number retries %d", cfg.Orders.NumberRetries)
	}
	if !cfg.Notifications.Enabled || cfg.Notifications.Timeout != 10*time.Second {
		t.Errorf("unexpected notifications config %+v", cfg.Notifications)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_STORE_BACKEND":              "memory",
		"API_FIREBASE_PROJECT_ID":        "mybot-prod",
		"API_FIRESTORE_PROJECT_ID":       "mybot-fire",
		"API_PUBSUB_NOTIFICATIONS_TOPIC": "notify",
		"API_REDIS_ADDR":                 "localhost:6379",
		"API_REDIS_PASSWORD":             "secret://redis/password",
		"API_REDIS_DB":                   "2",
		"API_SECURITY_ENVIRONMENT":       "PROD",
		"API_SECURITY_APIKEY_PEPPER":     "sm://apikey/pepper",
		"API_IDEMPOTENCY_BACKEND":        "redis",
		"API_IDEMPOTENCY_TTL":            "48h",
		"API_ORDERS_TIMEZONE":            "UTC",
		"API_ORDERS_STORE_TIMEOUT":       "2s",
		"API_ORDERS_NUMBER_RETRIES":      "5",
		"API_NOTIFY_ENABLED":             "off",
		"API_NOTIFY_TIMEOUT":             "3s",
	}

	secrets := map[string]string{
		"secret://redis/password": "redis-pass",
		"secret://apikey/pepper":  "pepper",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Firestore.ProjectID != "mybot-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.APIKeyPepper != "pepper" {
		t.Errorf("expected resolved pepper, got %s", cfg.Security.APIKeyPepper)
	}
	if cfg.Idempotency.Backend != IdempotencyBackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Orders.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Orders.Location)
	}
	if cfg.Orders.StoreTimeout != 2*time.Second || cfg.Orders.NumberRetries != 5 {
		t.Errorf("unexpected orders config %+v", cfg.Orders)
	}
	if cfg.Notifications.Enabled {
		t.Errorf("expected notifications disabled")
	}
	if cfg.Notifications.Timeout != 3*time.Second {
		t.Errorf("unexpected notify timeout %s", cfg.Notifications.Timeout)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"mybot-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "mybot-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "mybot-dev"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mybot-dev",
		"API_STORE_BACKEND":       "mongo",
		"API_IDEMPOTENCY_BACKEND": "redis",
		"API_ORDERS_TIMEZONE":     "Mars/Olympus",

		"API_SECURITY_PUBLIC_RATE_WINDOW": "0s",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, field := range validation.Fields() {
		fields[field] = true
	}
	for _, want := range []string{"Store.Backend", "Redis.Addr", "Orders.Timezone", "Security.PublicRateWindow"} {
		if !fields[want] {
			t.Errorf("expected %s in invalid fields, got %v", want, validation.Fields())
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":    "mybot-dev",
		"API_SECURITY_APIKEY_PEPPER": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mybot-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.APIKeyPepper"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	expectedRedacted := redactSecretName("Security.APIKeyPepper")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mybot-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Security.APIKeyPepper" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	_, _ = Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.APIKeyPepper"),
		WithPanicOnMissingSecrets(),
	)
}
