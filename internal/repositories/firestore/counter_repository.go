package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/mathauscm/api-mybot/internal/platform/firestore"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository keeps sequences in tenants/{tenantId}/counters. Each increment is a
// transactional read-increment-write, so Firestore serialises concurrent callers on the document.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewTenantRepository[counterDocument](provider, countersCollection, nil, nil),
		clock:    time.Now,
	}, nil
}

// Next implements repositories.CounterRepository.
func (r *CounterRepository) Next(ctx context.Context, tenantID, counterID string) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counter id is required")
	}
	ref, err := r.counters.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}

	var next int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.clock().UTC()
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			next = 1
			return tx.Create(ref, counterDocument{CurrentValue: next, Step: 1, UpdatedAt: now})
		case codes.OK:
		default:
			return err
		}

		var doc counterDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("counters decode %s: %w", id, err)
		}
		step := doc.Step
		if step <= 0 {
			step = 1
		}
		next = doc.CurrentValue + step
		return tx.Update(ref, []firestore.Update{
			{Path: "currentValue", Value: next},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}
