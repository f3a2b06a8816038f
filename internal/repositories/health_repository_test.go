package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathauscm/api-mybot/internal/domain"
)

func okCheck(context.Context) error { return nil }

func slowCheck(delay time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-time.After(delay):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestDependencyHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: slowCheck(5 * time.Millisecond)},
		{Name: "pubsub", Check: okCheck},
		{Name: "redis", Check: okCheck},
	}, WithDependencyClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthStatusOK, report.Status)
	assert.Equal(t, now, report.GeneratedAt)
	require.Len(t, report.Checks, 3)
	for name, check := range report.Checks {
		assert.Equal(t, domain.HealthStatusOK, check.Status, name)
		assert.Equal(t, "ok", check.Detail, name)
		assert.Equal(t, now, check.CheckedAt, name)
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: okCheck},
		{Name: "pubsub", Check: func(context.Context) error { return errors.New("topic order-notifications not found") }},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	pubsub := report.Checks["pubsub"]
	assert.Equal(t, domain.HealthStatusDegraded, pubsub.Status)
	assert.Equal(t, "topic order-notifications not found", pubsub.Error)
	assert.Equal(t, domain.HealthStatusOK, report.Checks["firestore"].Status)
}

func TestDependencyHealthRepositoryCriticalFailureFails(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: func(context.Context) error { return errors.New("permission denied") }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, domain.HealthStatusError, report.Checks["firestore"].Status)
	assert.Equal(t, domain.HealthStatusDegraded, report.Checks["redis"].Status)
}

func TestDependencyHealthRepositoryTimeouts(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "redis", Timeout: 5 * time.Millisecond, Check: slowCheck(time.Second)},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	redisCheck := report.Checks["redis"]
	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	assert.Equal(t, domain.HealthStatusDegraded, redisCheck.Status)
	assert.Equal(t, "timeout", redisCheck.Detail)

	repo, err = NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: slowCheck(time.Second)},
	}, WithDependencyTimeout(5*time.Millisecond))
	require.NoError(t, err)

	report, err = repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, "timeout", report.Checks["firestore"].Detail)
}

func TestNewDependencyHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	_, err := NewDependencyHealthRepository(nil)
	assert.Error(t, err, "empty check set")

	_, err = NewDependencyHealthRepository([]DependencyCheck{{Name: " ", Check: okCheck}})
	assert.Error(t, err, "unnamed check")

	_, err = NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore"}})
	assert.Error(t, err, "missing check function")
}
