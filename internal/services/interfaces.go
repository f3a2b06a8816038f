package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
)

// Order aliases the domain order so handlers depend on the services package only.
type Order = domain.Order

// OrderStatistics aliases the aggregated report returned by the statistics service.
type OrderStatistics = domain.OrderStatistics

// SystemHealthReport aliases the domain health report.
type SystemHealthReport = domain.SystemHealthReport

// OrderService owns the order lifecycle: creation, lookups, status transitions, ratings and notes.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrderStatus(ctx context.Context, tenantID, orderNumber string) (OrderStatusView, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (Order, error)
	ListOrders(ctx context.Context, tenantID string, filter domain.OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error)
	RateOrder(ctx context.Context, cmd RateOrderCommand) (Order, error)
	AppendNote(ctx context.Context, cmd AppendNoteCommand) (Order, error)
}

// CounterService allocates human readable sequence numbers.
type CounterService interface {
	// NextOrderNumber returns the next ORD-YYYYMMDD-NNN number for the tenant's business day.
	NextOrderNumber(ctx context.Context, tenantID string) (string, error)
}

// StatisticsService derives order reports on demand.
type StatisticsService interface {
	OrderStatistics(ctx context.Context, query StatisticsQuery) (OrderStatistics, error)
}

// SystemService exposes health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogLookup resolves products referenced by order items.
type CatalogLookup interface {
	FindProduct(ctx context.Context, tenantID, productID string) (domain.Product, error)
}

// NotificationSender delivers a text message to a phone number on behalf of a tenant.
type NotificationSender interface {
	Notify(ctx context.Context, tenantID, phone, text string) (bool, error)
}

// NotificationDispatcher schedules best-effort notifications that must never fail the caller.
type NotificationDispatcher interface {
	OrderCreated(ctx context.Context, order Order, tenantPhone string)
	StatusChanged(ctx context.Context, order Order, previous domain.OrderStatus)
	// Drain blocks until in-flight notifications finish or ctx is done.
	Drain(ctx context.Context) error
}

// CreateOrderCommand is the raw order input accepted from the bot.
type CreateOrderCommand struct {
	TenantID      string
	TenantPhone   string
	Customer      domain.Customer
	Items         []OrderItemInput
	PaymentMethod string
	ChangeFor     *decimal.Decimal
	DeliveryFee   *decimal.Decimal
	Notes         string
	// Actor authors the note created from Notes. Defaults to "customer".
	Actor         string
}

// OrderItemInput is a requested line item. UnitPrice is trusted as a snapshot of the catalog price.
type OrderItemInput struct {
	ProductID string
	Name      string
	Flavor    string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
	Options   []domain.SelectedOption
}

// OrderStatusView is the customer facing projection of an order.
type OrderStatusView struct {
	OrderNumber   string
	Status        domain.OrderStatus
	CustomerName  string
	Total         decimal.Decimal
	Rating        *int
	RatingComment string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// NewOrderStatusView projects order for the customer.
func NewOrderStatusView(order Order) OrderStatusView {
	return OrderStatusView{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		CustomerName:  order.Customer.Name,
		Total:         order.Total,
		Rating:        order.Rating,
		RatingComment: order.RatingComment,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		ConfirmedAt:   order.ConfirmedAt,
		CompletedAt:   order.CompletedAt,
		CancelledAt:   order.CancelledAt,
	}
}

// TransitionStatusCommand requests a lifecycle move for an order.
type TransitionStatusCommand struct {
	TenantID string
	OrderID  string
	Status   string
	Actor    string
}

// RateOrderCommand assigns a customer rating to a completed order.
type RateOrderCommand struct {
	TenantID    string
	OrderNumber string
	Rating      int
	Comment     string
}

// AppendNoteCommand adds an entry to an order's note log.
type AppendNoteCommand struct {
	TenantID string
	OrderID  string
	Text     string
	Author   string
}

// StatisticsQuery selects a reporting window. Start and End are YYYY-MM-DD and only used with the custom period.
type StatisticsQuery struct {
	TenantID string
	Period   string
	Start    string
	End      string
}
