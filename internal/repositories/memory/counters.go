package memory

import (
	"context"
	"sync"

	"github.com/mathauscm/api-mybot/internal/repositories"
)

// CounterRepository serialises increments with a mutex.
type CounterRepository struct {
	mu     sync.Mutex
	values map[tenantKey]int64
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs an empty counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{values: make(map[tenantKey]int64)}
}

// Next implements repositories.CounterRepository.
func (r *CounterRepository) Next(ctx context.Context, tenantID, counterID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantKey{tenantID, counterID}
	r.values[key]++
	return r.values[key], nil
}
