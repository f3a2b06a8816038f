package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStore_ReserveAndReplay(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "roma|k1", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, res.Outcome)
	assert.Equal(t, time.Hour, mr.TTL("test:"+recordID("roma|k1")))

	res, err = store.Reserve(ctx, "roma|k1", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInFlight, res.Outcome)

	headers := http.Header{"Content-Type": {"application/json"}, "Content-Length": {"12"}}
	require.NoError(t, store.SaveResponse(ctx, "roma|k1", "fp", Response{Status: http.StatusCreated, Headers: headers, Body: []byte(`{"ok":true}`)}, fixedTime, time.Hour))

	res, err = store.Reserve(ctx, "roma|k1", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplay, res.Outcome)
	assert.Equal(t, http.StatusCreated, res.Record.ResponseStatus)
	assert.Equal(t, `{"ok":true}`, string(res.Record.ResponseBody))
	assert.Equal(t, []string{"application/json"}, res.Record.ResponseHeaders["Content-Type"])
	assert.NotContains(t, res.Record.ResponseHeaders, "Content-Length")
}

func TestRedisStore_FingerprintMismatch(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)

	_, err = store.Reserve(ctx, "k", "fp-2", fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	err = store.SaveResponse(ctx, "k", "fp-2", Response{Status: http.StatusOK}, fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
}

func TestRedisStore_ReleaseOnlyByOwner(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	rk := "test:" + recordID("k")

	_, err := store.Reserve(ctx, "k", "owner", fixedTime, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "k", "someone-else"))
	assert.True(t, mr.Exists(rk))

	require.NoError(t, store.Release(ctx, "k", "owner"))
	assert.False(t, mr.Exists(rk))
}

func TestRedisStore_ExpiredKeyCanBeReservedAgain(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k", "fp-1", fixedTime, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	res, err := store.Reserve(ctx, "k", "fp-2", fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, res.Outcome)

	removed, err := store.CleanupExpired(ctx, fixedTime, 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisStore_BackingMiddleware(t *testing.T) {
	store, _ := newRedisStore(t)
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("roma", "redis-key", `{"a":1}`))
	}
	assert.Equal(t, 1, calls)
}
