package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "mybot:idem:"

// RedisStore keeps records in Redis so replicas share reservations. Keys expire through Redis TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses "mybot:idem:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + recordID(key)
}

// Reserve implements Store with SET NX so exactly one caller wins a fresh key.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ttl = normaliseTTL(ttl)
	rec := newPendingRecord(key, fingerprint, now.UTC(), ttl)
	payload, err := json.Marshal(rec)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	rk := s.redisKey(key)
	// The key can expire between SET NX and GET, so a second round settles it.
	for attempt := 0; attempt < 2; attempt++ {
		won, err := s.client.SetNX(ctx, rk, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if won {
			return Reservation{Outcome: OutcomeNew, Record: rec}, nil
		}

		existing, found, err := s.load(ctx, s.client, rk)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return classify(existing, fingerprint)
		}
	}
	return Reservation{}, errors.New("idempotency: reservation contended")
}

// SaveResponse implements Store. The write is guarded by WATCH so a concurrent owner change aborts it.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ttl = normaliseTTL(ttl)
	rk := s.redisKey(key)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, found, err := s.load(ctx, tx, rk)
		if err != nil {
			return err
		}
		if found && existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		payload, err := json.Marshal(completeRecord(existing, key, fingerprint, resp, now.UTC(), ttl))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, ttl)
			return nil
		})
		return err
	}, rk)
}

// Release implements Store. Only the owner of the reservation can release it.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	rk := s.redisKey(key)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, found, err := s.load(ctx, tx, rk)
		if err != nil || !found || existing.Fingerprint != fingerprint {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rk)
			return nil
		})
		return err
	}, rk)
}

// CleanupExpired implements Store. Redis evicts expired keys itself so there is nothing to sweep.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, cmd redis.Cmdable, rk string) (Record, bool, error) {
	raw, err := cmd.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return rec, true, nil
}
