//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

func sampleOrder(tenantID, id, number string, createdAt time.Time) domain.Order {
	change := decimal.RequireFromString("100")
	return domain.Order{
		ID:            id,
		TenantID:      tenantID,
		OrderNumber:   number,
		Status:        domain.OrderStatusPending,
		Customer:      domain.Customer{Name: "Ana", Phone: "+5511987654321", Address: "Rua A, 10"},
		PaymentMethod: domain.PaymentMethodCash,
		ChangeFor:     &change,
		Items: []domain.OrderItem{{
			ProductID: "pizza-margherita",
			Name:      "Pizza Margherita",
			Size:      "Grande",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("30.10"),
			Options:   []domain.SelectedOption{{Name: "Borda", Price: decimal.RequireFromString("5")}},
			Total:     decimal.RequireFromString("70.20"),
		}},
		DeliveryFee: decimal.RequireFromString("5"),
		Subtotal:    decimal.RequireFromString("70.20"),
		Total:       decimal.RequireFromString("75.20"),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-test")
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	order := sampleOrder("roma", "ord_1", "ORD-20250301-001", base)

	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := sampleOrder("roma", "ord_other", "ORD-20250301-001", base)
	if err := repo.Insert(ctx, dup); !isConflict(err) {
		t.Fatalf("expected conflict for duplicate number, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "roma", "ord_other"); !isNotFound(err) {
		t.Fatalf("duplicate insert must not leave an order behind, got %v", err)
	}

	got, err := repo.FindByNumber(ctx, "roma", "ORD-20250301-001")
	if err != nil {
		t.Fatalf("find by number: %v", err)
	}
	if got.ID != "ord_1" || !got.Total.Equal(order.Total) || !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("30.10")) {
		t.Fatalf("unexpected order %+v", got)
	}
	if got.ChangeFor == nil || !got.ChangeFor.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected change for to round-trip, got %v", got.ChangeFor)
	}
	if _, err := repo.FindByNumber(ctx, "napoli", "ORD-20250301-001"); !isNotFound(err) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}

	at := base.Add(5 * time.Minute)
	updated, err := repo.UpdateStatus(ctx, "roma", "ord_1", domain.StatusChange{From: domain.OrderStatusPending, To: domain.OrderStatusConfirmed, Actor: "staff", At: at})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed || updated.ConfirmedAt == nil {
		t.Fatalf("unexpected updated order %+v", updated)
	}
	_, err = repo.UpdateStatus(ctx, "roma", "ord_1", domain.StatusChange{From: domain.OrderStatusPending, To: domain.OrderStatusCancelled, At: at})
	if !isConflict(err) {
		t.Fatalf("expected conflict for stale status, got %v", err)
	}
	stored, err := repo.FindByID(ctx, "roma", "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.OrderStatusConfirmed || len(stored.StatusHistory) != 1 {
		t.Fatalf("stale transition must not change the order: %+v", stored)
	}

	for i, text := range []string{"sem cebola", "sem cebola"} {
		note := domain.OrderNote{ID: fmt.Sprintf("note_%d", i), Text: text, Author: "staff", CreatedAt: at.Add(time.Duration(i) * time.Second)}
		if _, err := repo.AppendNote(ctx, "roma", "ord_1", note); err != nil {
			t.Fatalf("append note %d: %v", i, err)
		}
	}
	withNotes, err := repo.FindByID(ctx, "roma", "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(withNotes.Notes) != 2 || withNotes.Notes[0].ID != "note_0" || withNotes.Notes[1].ID != "note_1" {
		t.Fatalf("expected two notes in append order, got %+v", withNotes.Notes)
	}
	if _, err := repo.AppendNote(ctx, "roma", "missing", domain.OrderNote{ID: "n", Text: "x", CreatedAt: at}); !isNotFound(err) {
		t.Fatalf("expected not found for missing order, got %v", err)
	}

	rated, err := repo.UpdateRating(ctx, "roma", "ord_1", repositories.OrderRating{Value: 5, Comment: "ótimo", RatedAt: at})
	if err != nil {
		t.Fatalf("update rating: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 5 || rated.RatingComment != "ótimo" {
		t.Fatalf("unexpected rating %+v", rated)
	}
}

func TestOrderRepositoryListIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-list-test")
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		order := sampleOrder("roma", fmt.Sprintf("ord_%d", i), fmt.Sprintf("ORD-20250301-%03d", i), base.Add(time.Duration(i)*time.Minute))
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page, err := repo.List(ctx, "roma", repositories.OrderListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "ord_5" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	cursor, err := pagination.DecodeToken(page.NextPageToken)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	page, err = repo.List(ctx, "roma", repositories.OrderListQuery{Limit: 2, After: cursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "ord_3" {
		t.Fatalf("unexpected second page %+v", page.Items)
	}

	between, err := repo.ListCreatedBetween(ctx, "roma", base.Add(2*time.Minute), base.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(between) != 2 || between[0].ID != "ord_2" || between[1].ID != "ord_3" {
		t.Fatalf("expected half-open window, got %d orders", len(between))
	}
}

func TestCatalogAndTenantRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "catalog-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	tenantRef := client.Collection("tenants").Doc("roma")
	seed := []struct {
		ref  *firestore.DocumentRef
		data any
	}{
		{tenantRef, tenantDocument{Name: "Pizzaria Roma", ContactPhone: "+5511999990000", Active: true, APIKeyHash: "hash-1"}},
		{tenantRef.Collection("categories").Doc("pizzas"), categoryDocument{Name: "Pizzas"}},
		{tenantRef.Collection("products").Doc("margherita"), productDocument{
			Name: "Margherita", CategoryID: "pizzas", Type: "pizza", Available: true,
			Sizes: []sizeDocument{{Name: "Média", Price: "35.00"}, {Name: "Grande", Price: "45.50"}},
		}},
	}
	for _, s := range seed {
		if _, err := s.ref.Set(ctx, s.data); err != nil {
			t.Fatalf("seed %s: %v", s.ref.Path, err)
		}
	}

	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		t.Fatalf("catalog repository: %v", err)
	}
	product, err := catalog.FindProduct(ctx, "roma", "margherita")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Type != domain.ProductTypePizza || len(product.Sizes) != 2 || !product.Sizes[1].Price.Equal(decimal.RequireFromString("45.5")) {
		t.Fatalf("unexpected product %+v", product)
	}
	if _, err := catalog.FindProduct(ctx, "roma", "calzone"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	categories, err := catalog.ListCategories(ctx, "roma")
	if err != nil || len(categories) != 1 || categories[0].Name != "Pizzas" {
		t.Fatalf("unexpected categories %+v (%v)", categories, err)
	}

	tenants, err := NewTenantRepository(provider)
	if err != nil {
		t.Fatalf("tenant repository: %v", err)
	}
	tenant, err := tenants.FindByAPIKeyHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if tenant.ID != "roma" || !tenant.Active {
		t.Fatalf("unexpected tenant %+v", tenant)
	}
	if _, err := tenants.FindByAPIKeyHash(ctx, "unknown"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
