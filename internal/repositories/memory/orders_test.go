package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

var base = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func order(id string, minute int) domain.Order {
	return domain.Order{
		ID:          id,
		TenantID:    "roma",
		OrderNumber: fmt.Sprintf("ORD-20250301-%03d", minute),
		Status:      domain.OrderStatusPending,
		Customer:    domain.Customer{Name: "Ana", Phone: "+5511987654321"},
		Items:       []domain.OrderItem{{Name: "Pizza", Quantity: 1, UnitPrice: decimal.NewFromInt(30), Total: decimal.NewFromInt(30)}},
		Total:       decimal.NewFromInt(30),
		CreatedAt:   base.Add(time.Duration(minute) * time.Minute),
	}
}

func repoErr(t *testing.T, err error) repositories.RepositoryError {
	t.Helper()
	var re repositories.RepositoryError
	require.True(t, errors.As(err, &re), "expected repository error, got %v", err)
	return re
}

func TestOrderRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	require.NoError(t, repo.Insert(ctx, order("ord_1", 1)))
	assert.True(t, repoErr(t, repo.Insert(ctx, order("ord_2", 1))).IsConflict(), "duplicate number")

	got, err := repo.FindByNumber(ctx, "roma", "ORD-20250301-001")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", got.ID)

	_, err = repo.FindByID(ctx, "napoli", "ord_1")
	assert.True(t, repoErr(t, err).IsNotFound())

	got.Items[0].Name = "mutated"
	again, err := repo.FindByID(ctx, "roma", "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "Pizza", again.Items[0].Name, "stored order must not alias caller slices")
}

func TestOrderRepository_UpdateStatusCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, order("ord_1", 1)))

	change := domain.StatusChange{From: domain.OrderStatusPending, To: domain.OrderStatusConfirmed, At: base}

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = repo.UpdateStatus(ctx, "roma", "ord_1", change)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, repoErr(t, err).IsConflict())
	}
	assert.Equal(t, 1, succeeded)

	stored, err := repo.FindByID(ctx, "roma", "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
}

func TestOrderRepository_ListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	for i := 1; i <= 5; i++ {
		o := order(fmt.Sprintf("ord_%d", i), i)
		if i%2 == 0 {
			o.Status = domain.OrderStatusCancelled
		}
		require.NoError(t, repo.Insert(ctx, o))
	}

	var seen []string
	query := repositories.OrderListQuery{Limit: 2}
	for {
		page, err := repo.List(ctx, "roma", query)
		require.NoError(t, err)
		for _, o := range page.Items {
			seen = append(seen, o.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		query.After, err = pagination.DecodeToken(page.NextPageToken)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"ord_5", "ord_4", "ord_3", "ord_2", "ord_1"}, seen)

	page, err := repo.List(ctx, "roma", repositories.OrderListQuery{Statuses: []domain.OrderStatus{domain.OrderStatusCancelled}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ord_4", page.Items[0].ID)

	from := base.Add(2 * time.Minute)
	to := base.Add(3 * time.Minute)
	page, err = repo.List(ctx, "roma", repositories.OrderListQuery{CreatedFrom: &from, CreatedTo: &to})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestOrderRepository_ListCreatedBetweenIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Insert(ctx, order(fmt.Sprintf("ord_%d", i), i)))
	}

	orders, err := repo.ListCreatedBetween(ctx, "roma", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ord_1", orders[0].ID)
	assert.Equal(t, "ord_2", orders[1].ID)
}

func TestCounterRepository_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewCounterRepository()

	const n = 32
	var wg sync.WaitGroup
	seen := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := repo.Next(ctx, "roma", "orders-20250301")
			assert.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[int64]bool)
	for v := range seen {
		values[v] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, values[i], "missing %d", i)
	}

	v, err := repo.Next(ctx, "napoli", "orders-20250301")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestTenantRepository_FindByAPIKeyHash(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository()
	repo.Put(domain.Tenant{ID: "roma", APIKeyHash: "h1", Active: true})

	tenant, err := repo.FindByAPIKeyHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "roma", tenant.ID)

	_, err = repo.FindByAPIKeyHash(ctx, "")
	assert.True(t, repoErr(t, err).IsNotFound())
}
