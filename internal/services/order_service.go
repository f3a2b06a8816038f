package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventRated          = "order.rated"
	orderEventNoteAppended   = "order.note.appended"
	orderEventNumberConflict = "order.number.conflict"

	orderIDPrefix = "ord_"
	noteIDPrefix  = "note_"

	defaultStoreTimeout  = 5 * time.Second
	defaultNumberRetries = 3
	maxNoteLength        = 1000
	maxRatingComment     = 500
	minRating            = 1
	maxRating            = 5

	defaultNoteAuthor     = "admin"
	customerNoteAuthor    = "customer"
	defaultStatusActor    = "system"
	maxStatusFilterValues = 10
)

// InvalidTransitionError names the current and requested status of a rejected transition.
type InvalidTransitionError struct {
	Current   domain.OrderStatus
	Requested domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", ErrOrderInvalidTransition, e.Current, e.Requested)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrOrderInvalidTransition }

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Counters      CounterService
	Catalog       CatalogLookup
	Notifications NotificationDispatcher
	Clock         func() time.Time
	IDGenerator   func() string
	// StoreTimeout bounds every repository call. Defaults to 5s.
	StoreTimeout time.Duration
	// NumberRetries is how many order numbers creation may try before giving up. Defaults to 3.
	NumberRetries int
	Meter         metric.Meter
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	counters      CounterService
	validator     *orderValidator
	notifications NotificationDispatcher
	clock         func() time.Time
	newID         func() string
	storeTimeout  time.Duration
	numberRetries int
	sanitizer     *bluemonday.Policy
	logger        func(context.Context, string, map[string]any)

	created     metric.Int64Counter
	transitions metric.Int64Counter
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog lookup is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	retries := deps.NumberRetries
	if retries <= 0 {
		retries = defaultNumberRetries
	}
	notifications := deps.Notifications
	if notifications == nil {
		notifications = noopDispatcher{}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	svc := &orderService{
		orders:        deps.Orders,
		counters:      deps.Counters,
		validator:     newOrderValidator(deps.Catalog),
		notifications: notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		storeTimeout:  timeout,
		numberRetries: retries,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger,
	}

	var err error
	if svc.created, err = meter.Int64Counter("orders.created", metric.WithDescription("Orders persisted")); err != nil {
		return nil, fmt.Errorf("order service: register metric: %w", err)
	}
	if svc.transitions, err = meter.Int64Counter("orders.status_transitions", metric.WithDescription("Order status transitions persisted")); err != nil {
		return nil, fmt.Errorf("order service: register metric: %w", err)
	}
	return svc, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	cmd.TenantID = strings.TrimSpace(cmd.TenantID)
	if cmd.TenantID == "" {
		return Order{}, newFieldError("tenantId", "is required")
	}

	input, err := s.validator.Validate(ctx, cmd)
	if err != nil {
		return Order{}, err
	}

	priced := make([]PricedItem, len(input.Items))
	for i, item := range input.Items {
		priced[i] = PricedItem{Quantity: item.Quantity, UnitPrice: item.UnitPrice, Options: item.Options}
	}
	breakdown, err := PriceOrder(priced, input.DeliveryFee)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	for i := range input.Items {
		input.Items[i].Total = breakdown.Items[i].Total
	}

	now := s.clock()
	order := Order{
		TenantID:      cmd.TenantID,
		Status:        domain.OrderStatusPending,
		Customer:      input.Customer,
		Items:         input.Items,
		PaymentMethod: input.PaymentMethod,
		ChangeFor:     input.ChangeFor,
		DeliveryFee:   breakdown.DeliveryFee,
		Subtotal:      breakdown.Subtotal,
		Total:         breakdown.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if text := s.sanitizeText(cmd.Notes); text != "" {
		if utf8.RuneCountInString(text) > maxNoteLength {
			return Order{}, newFieldError("notes", "must be at most %d characters", maxNoteLength)
		}
		author := strings.TrimSpace(cmd.Actor)
		if author == "" {
			author = customerNoteAuthor
		}
		order.Notes = []domain.OrderNote{{
			ID:        noteIDPrefix + s.newID(),
			Text:      text,
			Author:    author,
			CreatedAt: now,
		}}
	}

	var lastErr error
	for attempt := 1; attempt <= s.numberRetries; attempt++ {
		number, err := s.nextOrderNumber(ctx, cmd.TenantID)
		if err != nil {
			return Order{}, err
		}
		order.ID = orderIDPrefix + s.newID()
		order.OrderNumber = number

		err = s.withStore(ctx, func(ctx context.Context) error {
			return s.orders.Insert(ctx, order)
		})
		if err == nil {
			lastErr = nil
			break
		}
		if !isRepoConflict(err) {
			return Order{}, mapRepositoryError(err)
		}
		lastErr = err
		s.logger(ctx, orderEventNumberConflict, map[string]any{
			"tenantId":    cmd.TenantID,
			"orderNumber": number,
			"attempt":     attempt,
		})
	}
	if lastErr != nil {
		return Order{}, mapRepositoryError(lastErr)
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(order.PaymentMethod))))
	s.logger(ctx, orderEventCreated, map[string]any{
		"tenantId":    order.TenantID,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.Total.StringFixed(2),
		"items":       len(order.Items),
	})
	s.notifications.OrderCreated(ctx, order, cmd.TenantPhone)
	return order, nil
}

func (s *orderService) GetOrderStatus(ctx context.Context, tenantID, orderNumber string) (OrderStatusView, error) {
	tenantID = strings.TrimSpace(tenantID)
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if tenantID == "" || orderNumber == "" {
		return OrderStatusView{}, fmt.Errorf("%w: tenant id and order number are required", ErrOrderInvalidInput)
	}

	var order Order
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindByNumber(ctx, tenantID, orderNumber)
		return err
	})
	if err != nil {
		return OrderStatusView{}, mapRepositoryError(err)
	}
	return NewOrderStatusView(order), nil
}

func (s *orderService) GetOrder(ctx context.Context, tenantID, orderID string) (Order, error) {
	tenantID = strings.TrimSpace(tenantID)
	orderID = strings.TrimSpace(orderID)
	if tenantID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: tenant id and order id are required", ErrOrderInvalidInput)
	}
	return s.loadOrder(ctx, tenantID, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, tenantID string, filter domain.OrderListFilter) (domain.CursorPage[Order], error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.CursorPage[Order]{}, newFieldError("tenantId", "is required")
	}

	verr := &OrderValidationError{}
	query := repositories.OrderListQuery{
		CustomerPhone: normalisePhone(filter.CustomerPhone),
		CreatedFrom:   filter.CreatedFrom,
		CreatedTo:     filter.CreatedTo,
	}

	seen := make(map[domain.OrderStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		status = domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
		if !status.Valid() {
			verr.add("status", "unknown status %q", status)
			continue
		}
		if _, dup := seen[status]; dup {
			continue
		}
		seen[status] = struct{}{}
		query.Statuses = append(query.Statuses, status)
	}
	if len(query.Statuses) > maxStatusFilterValues {
		verr.add("status", "at most %d statuses may be combined", maxStatusFilterValues)
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		verr.add("createdTo", "must not be before createdFrom")
	}

	limit, err := pagination.ClampPageSize(filter.PageSize)
	if err != nil {
		verr.add("pageSize", "must be greater than zero")
	}
	query.Limit = limit

	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		verr.add("pageToken", "is invalid")
	}
	query.After = cursor

	if !verr.empty() {
		return domain.CursorPage[Order]{}, verr
	}

	var page domain.CursorPage[Order]
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		page, err = s.orders.List(ctx, tenantID, query)
		return err
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if tenantID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: tenant id and order id are required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !target.Valid() {
		return Order{}, newFieldError("status", "unknown status %q", cmd.Status)
	}

	current, err := s.loadOrder(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if !current.Status.CanTransitionTo(target) {
		return Order{}, &InvalidTransitionError{Current: current.Status, Requested: target}
	}

	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = defaultStatusActor
	}
	change := domain.StatusChange{From: current.Status, To: target, Actor: actor, At: s.clock()}

	var updated Order
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.orders.UpdateStatus(ctx, tenantID, orderID, change)
		return err
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	))
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"tenantId":    tenantID,
		"orderId":     orderID,
		"orderNumber": updated.OrderNumber,
		"from":        string(change.From),
		"to":          string(change.To),
		"actor":       actor,
	})
	s.notifications.StatusChanged(ctx, updated, change.From)
	return updated, nil
}

func (s *orderService) RateOrder(ctx context.Context, cmd RateOrderCommand) (Order, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	orderNumber := strings.ToUpper(strings.TrimSpace(cmd.OrderNumber))
	if tenantID == "" || orderNumber == "" {
		return Order{}, fmt.Errorf("%w: tenant id and order number are required", ErrOrderInvalidInput)
	}
	if cmd.Rating < minRating || cmd.Rating > maxRating {
		return Order{}, newFieldError("rating", "must be between %d and %d", minRating, maxRating)
	}
	comment := s.sanitizeText(cmd.Comment)
	if utf8.RuneCountInString(comment) > maxRatingComment {
		return Order{}, newFieldError("comment", "must be at most %d characters", maxRatingComment)
	}

	var order Order
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindByNumber(ctx, tenantID, orderNumber)
		return err
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusCompleted {
		return Order{}, newFieldError("status", "only completed orders can be rated, order is %s", order.Status)
	}

	rating := repositories.OrderRating{Value: cmd.Rating, Comment: comment, RatedAt: s.clock()}
	var updated Order
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.orders.UpdateRating(ctx, tenantID, order.ID, rating)
		return err
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	s.logger(ctx, orderEventRated, map[string]any{
		"tenantId":    tenantID,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"rating":      cmd.Rating,
	})
	return updated, nil
}

func (s *orderService) AppendNote(ctx context.Context, cmd AppendNoteCommand) (Order, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if tenantID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: tenant id and order id are required", ErrOrderInvalidInput)
	}
	text := s.sanitizeText(cmd.Text)
	if text == "" {
		return Order{}, newFieldError("text", "is required")
	}
	if utf8.RuneCountInString(text) > maxNoteLength {
		return Order{}, newFieldError("text", "must be at most %d characters", maxNoteLength)
	}
	author := strings.TrimSpace(cmd.Author)
	if author == "" {
		author = defaultNoteAuthor
	}

	note := domain.OrderNote{
		ID:        noteIDPrefix + s.newID(),
		Text:      text,
		Author:    author,
		CreatedAt: s.clock(),
	}
	var updated Order
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.orders.AppendNote(ctx, tenantID, orderID, note)
		return err
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}

	s.logger(ctx, orderEventNoteAppended, map[string]any{
		"tenantId": tenantID,
		"orderId":  orderID,
		"noteId":   note.ID,
	})
	return updated, nil
}

func (s *orderService) nextOrderNumber(ctx context.Context, tenantID string) (string, error) {
	var number string
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		number, err = s.counters.NextOrderNumber(ctx, tenantID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCounterInvalidInput) {
			return "", fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return "", mapRepositoryError(err)
	}
	return number, nil
}

func (s *orderService) loadOrder(ctx context.Context, tenantID, orderID string) (Order, error) {
	var order Order
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindByID(ctx, tenantID, orderID)
		return err
	})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) withStore(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

// sanitizeText strips markup from free text. The policy escapes what it keeps, so entities are decoded
// again to store the text as typed.
func (s *orderService) sanitizeText(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

type noopDispatcher struct{}

func (noopDispatcher) OrderCreated(context.Context, Order, string)                 {}
func (noopDispatcher) StatusChanged(context.Context, Order, domain.OrderStatus) {}
func (noopDispatcher) Drain(context.Context) error                                 { return nil }
