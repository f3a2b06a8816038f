package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mathauscm/api-mybot/internal/domain"
	pfirestore "github.com/mathauscm/api-mybot/internal/platform/firestore"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
	maxStatusFilter        = 10
)

// OrderRepository stores orders under tenants/{tenantId}/orders. Order numbers are claimed through
// an index document in tenants/{tenantId}/orderNumbers written in the same transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewTenantRepository[orderDocument](provider, ordersCollection, nil, nil),
		numbers:  pfirestore.NewTenantRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil),
	}, nil
}

// Insert implements repositories.OrderRepository.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order id and number are required")
	}
	orderRef, err := r.orders.DocumentRef(ctx, order.TenantID, order.ID)
	if err != nil {
		return err
	}
	numberRef, err := r.numbers.DocumentRef(ctx, order.TenantID, order.OrderNumber)
	if err != nil {
		return err
	}

	doc := fromDomainOrder(order)
	index := orderNumberDocument{OrderID: order.ID, CreatedAt: order.CreatedAt.UTC()}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, index); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	return pfirestore.WrapError("orders.insert", err)
}

// FindByID implements repositories.OrderRepository.
func (r *OrderRepository) FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data)
}

// FindByNumber resolves the order through the number index.
func (r *OrderRepository) FindByNumber(ctx context.Context, tenantID, orderNumber string) (domain.Order, error) {
	index, err := r.numbers.Get(ctx, tenantID, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, tenantID, index.Data.OrderID)
}

// UpdateStatus implements repositories.OrderRepository with a read-compare-write transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tenantID, orderID string, change domain.StatusChange) (domain.Order, error) {
	ref, err := r.orders.DocumentRef(ctx, tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := r.decode(snap)
		if err != nil {
			return err
		}
		if current.Status != change.From {
			return pfirestore.ConflictError("orders.update_status",
				fmt.Sprintf("order %s is %s, expected %s", orderID, current.Status, change.From))
		}

		current.ApplyStatusChange(change)
		updates := []firestore.Update{
			{Path: "status", Value: string(current.Status)},
			{Path: "updatedAt", Value: current.UpdatedAt.UTC()},
			{Path: "statusHistory", Value: firestore.ArrayUnion(fromDomainStatusChange(change))},
		}
		switch change.To {
		case domain.OrderStatusConfirmed:
			updates = append(updates, firestore.Update{Path: "confirmedAt", Value: change.At.UTC()})
		case domain.OrderStatusCompleted:
			updates = append(updates, firestore.Update{Path: "completedAt", Value: change.At.UTC()})
		case domain.OrderStatusCancelled:
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: change.At.UTC()})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update_status", err)
	}
	return updated, nil
}

// UpdateRating implements repositories.OrderRepository.
func (r *OrderRepository) UpdateRating(ctx context.Context, tenantID, orderID string, rating repositories.OrderRating) (domain.Order, error) {
	at := rating.RatedAt.UTC()
	err := r.orders.Update(ctx, tenantID, orderID, []firestore.Update{
		{Path: "rating", Value: rating.Value},
		{Path: "ratingComment", Value: rating.Comment},
		{Path: "ratedAt", Value: at},
		{Path: "updatedAt", Value: at},
	}, firestore.Exists)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, tenantID, orderID)
}

// AppendNote appends with ArrayUnion so concurrent writers never drop each other's notes.
func (r *OrderRepository) AppendNote(ctx context.Context, tenantID, orderID string, note domain.OrderNote) (domain.Order, error) {
	err := r.orders.Update(ctx, tenantID, orderID, []firestore.Update{
		{Path: "notes", Value: firestore.ArrayUnion(fromDomainNote(note))},
		{Path: "updatedAt", Value: note.CreatedAt.UTC()},
	}, firestore.Exists)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, tenantID, orderID)
}

// List returns orders newest first, keyed by (createdAt, document id) for stable cursors.
func (r *OrderRepository) List(ctx context.Context, tenantID string, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if len(query.Statuses) > maxStatusFilter {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: at most %d statuses", maxStatusFilter)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}

	docs, err := r.orders.Query(ctx, tenantID, func(q firestore.Query) firestore.Query {
		if len(query.Statuses) > 0 {
			statuses := make([]string, 0, len(query.Statuses))
			for _, s := range query.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if phone := strings.TrimSpace(query.CustomerPhone); phone != "" {
			q = q.Where("customer.phone", "==", phone)
		}
		if query.CreatedFrom != nil {
			q = q.Where("createdAt", ">=", query.CreatedFrom.UTC())
		}
		if query.CreatedTo != nil {
			q = q.Where("createdAt", "<=", query.CreatedTo.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !query.After.IsZero() {
			q = q.StartAfter(query.After.CreatedAt.UTC(), query.After.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		order, err := toDomainOrder(doc.ID, doc.Data)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

// ListCreatedBetween implements repositories.OrderRepository.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, tenantID, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", start.UTC()).
			Where("createdAt", "<", end.UTC()).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toDomainOrder(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) decode(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	doc, err := r.orders.Decode(snap)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data)
}
