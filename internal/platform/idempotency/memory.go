package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Used in tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.expired(now) {
		rec = newPendingRecord(key, fingerprint, now, normaliseTTL(ttl))
		s.records[id] = rec
		return Reservation{Outcome: OutcomeNew, Record: rec}, nil
	}
	return classify(rec, fingerprint)
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if ok && rec.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completeRecord(rec, key, fingerprint, resp, now, normaliseTTL(ttl))
	return nil
}

// Release implements Store. Only the owner of the reservation can release it.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok && rec.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}

// CleanupExpired implements Store. A non-positive limit removes every expired record.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if rec.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func classify(rec Record, fingerprint string) (Reservation, error) {
	if rec.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if rec.Status == StatusCompleted {
		return Reservation{Outcome: OutcomeReplay, Record: rec}, nil
	}
	return Reservation{Outcome: OutcomeInFlight, Record: rec}, nil
}
