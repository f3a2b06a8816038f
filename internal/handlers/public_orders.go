package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mathauscm/api-mybot/internal/platform/httpx"
	"github.com/mathauscm/api-mybot/internal/platform/requestctx"
	"github.com/mathauscm/api-mybot/internal/services"
)

const botActor = "bot"

// PublicOrderHandlers exposes the endpoints the chat bot calls on behalf of a tenant.
type PublicOrderHandlers struct {
	orders       services.OrderService
	createGuards []func(http.Handler) http.Handler
}

// PublicOrderOption customises PublicOrderHandlers.
type PublicOrderOption func(*PublicOrderHandlers)

// WithCreateOrderMiddlewares wraps only the order creation route, e.g. with the idempotency guard.
func WithCreateOrderMiddlewares(mw ...func(http.Handler) http.Handler) PublicOrderOption {
	return func(h *PublicOrderHandlers) {
		for _, m := range mw {
			if m != nil {
				h.createGuards = append(h.createGuards, m)
			}
		}
	}
}

// NewPublicOrderHandlers constructs the /public/orders handlers.
func NewPublicOrderHandlers(orders services.OrderService, opts ...PublicOrderOption) *PublicOrderHandlers {
	h := &PublicOrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints. Tenant binding is expected from group middleware.
func (h *PublicOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.With(h.createGuards...).Post("/", h.createOrder)
		orders.Get("/{orderNumber}/status", h.orderStatus)
		orders.Post("/{orderNumber}/rating", h.rateOrder)
	})
}

func (h *PublicOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenant, ok := requestctx.Tenant(ctx)
	if !ok || strings.TrimSpace(tenant.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "request is not bound to a tenant", http.StatusUnauthorized))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	cmd := req.command(tenant.ID, tenant.ContactPhone)
	cmd.Actor = botActor
	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *PublicOrderHandlers) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))

	view, err := h.orders.GetOrderStatus(ctx, tenantID, number)
	if err != nil {
		writeOrderError(ctx, w, err, zap.String("order_number", number))
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderStatusPayload(view))
}

func (h *PublicOrderHandlers) rateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))

	var req rateOrderRequest
	if !decodeJSONBody(ctx, w, r, maxSmallBodySize, &req) {
		return
	}

	order, err := h.orders.RateOrder(ctx, services.RateOrderCommand{
		TenantID:    tenantID,
		OrderNumber: number,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		writeOrderError(ctx, w, err, zap.String("order_number", number))
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderStatusPayload(services.NewOrderStatusView(order)))
}
