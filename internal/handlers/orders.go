package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/auth"
	"github.com/mathauscm/api-mybot/internal/platform/httpx"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/platform/requestctx"
	"github.com/mathauscm/api-mybot/internal/services"
)

const (
	maxOrderBodySize = 64 * 1024
	maxSmallBodySize = 4 * 1024
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// AdminOrderHandlers exposes order management and reports to back-office users.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	stats  services.StatisticsService
}

// NewAdminOrderHandlers constructs the /admin/orders handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, stats services.StatisticsService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
		stats:  stats,
	}
}

// Routes registers the /orders endpoints. Staff may operate orders; statistics are admin only.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.Group(func(g chi.Router) {
			if h.authn != nil {
				g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
			}
			g.Get("/statistics", h.statistics)
		})
		orders.Group(func(g chi.Router) {
			if h.authn != nil {
				g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
			}
			g.Get("/", h.listOrders)
			g.Get("/{orderID}", h.getOrder)
			g.Patch("/{orderID}/status", h.transitionStatus)
			g.Post("/{orderID}/notes", h.appendNote)
		})
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	var fields []services.FieldError
	filter := domain.OrderListFilter{
		CustomerPhone: strings.TrimSpace(query.Get("customerPhone")),
	}
	for _, status := range parseFilterValues(query["status"]) {
		filter.Statuses = append(filter.Statuses, domain.OrderStatus(status))
	}
	if raw := strings.TrimSpace(query.Get("createdFrom")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			fields = append(fields, services.FieldError{Field: "createdFrom", Message: err.Error()})
		} else {
			filter.CreatedFrom = &ts
		}
	}
	if raw := strings.TrimSpace(query.Get("createdTo")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			fields = append(fields, services.FieldError{Field: "createdTo", Message: err.Error()})
		} else {
			filter.CreatedTo = &ts
		}
	}
	page, err := pagination.Parse(query)
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize):
		fields = append(fields, services.FieldError{Field: "pageSize", Message: "must be a positive integer"})
	case errors.Is(err, pagination.ErrInvalidPageToken):
		fields = append(fields, services.FieldError{Field: "pageToken", Message: "is invalid"})
	case err != nil:
		writeOrderError(ctx, w, err)
		return
	}
	filter.PageSize = page.PageSize
	filter.PageToken = page.PageToken
	if len(fields) > 0 {
		writeOrderError(ctx, w, &services.OrderValidationError{Fields: fields})
		return
	}

	result, err := h.orders.ListOrders(ctx, tenantID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteData(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	order, err := h.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err, zap.String("order_id", orderID))
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req transitionStatusRequest
	if !decodeJSONBody(ctx, w, r, maxSmallBodySize, &req) {
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionStatusCommand{
		TenantID: tenantID,
		OrderID:  orderID,
		Status:   req.Status,
		Actor:    actorFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err, zap.String("order_id", orderID))
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) appendNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req appendNoteRequest
	if !decodeJSONBody(ctx, w, r, maxSmallBodySize, &req) {
		return
	}

	order, err := h.orders.AppendNote(ctx, services.AppendNoteCommand{
		TenantID: tenantID,
		OrderID:  orderID,
		Text:     req.Text,
		Author:   actorFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err, zap.String("order_id", orderID))
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statistics_service_unavailable", "statistics service unavailable", http.StatusServiceUnavailable))
		return
	}
	tenantID, ok := requireTenant(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	stats, err := h.stats.OrderStatistics(ctx, services.StatisticsQuery{
		TenantID: tenantID,
		Period:   strings.TrimSpace(query.Get("period")),
		Start:    strings.TrimSpace(query.Get("start")),
		End:      strings.TrimSpace(query.Get("end")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildStatisticsPayload(stats))
}

func requireTenant(ctx context.Context, w http.ResponseWriter) (string, bool) {
	tenantID := strings.TrimSpace(requestctx.TenantID(ctx))
	if tenantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "request is not bound to a tenant", http.StatusUnauthorized))
		return "", false
	}
	return tenantID, true
}

func actorFromContext(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.Actor()
}

// decodeJSONBody reads a bounded JSON body into dst and writes the error response itself on failure.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error, logFields ...zap.Field) {
	if err == nil {
		return
	}

	var transitionErr *services.InvalidTransitionError
	var validationErr *services.OrderValidationError
	switch {
	case errors.As(err, &transitionErr):
		allowed := make([]string, 0)
		for _, status := range transitionErr.Current.NextStatuses() {
			allowed = append(allowed, string(status))
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"currentStatus":   string(transitionErr.Current),
			"requestedStatus": string(transitionErr.Requested),
			"allowedStatuses": allowed,
		}))
	case errors.As(err, &validationErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"fields": validationErr.Fields,
		}))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; reload and retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "order storage unavailable, try again", http.StatusServiceUnavailable))
	default:
		fields := append([]zap.Field{zap.Error(err)}, logFields...)
		requestctx.Logger(ctx).Error("order request failed", fields...)
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
