package requestctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/mathauscm/api-mybot/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/mathauscm/api-mybot/internal/platform/requestctx/trace"
	tenantContextKey contextKey = "github.com/mathauscm/api-mybot/internal/platform/requestctx/tenant"
	notesContextKey  contextKey = "github.com/mathauscm/api-mybot/internal/platform/requestctx/annotations"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// TenantInfo identifies the restaurant a request acts on behalf of.
type TenantInfo struct {
	ID           string
	Name         string
	ContactPhone string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithTenant binds the resolved tenant to the context. Blank tenant ids are ignored.
func WithTenant(ctx context.Context, tenant TenantInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	tenant.ID = strings.TrimSpace(tenant.ID)
	if tenant.ID == "" {
		return ctx
	}
	if notes := annotationsFrom(ctx); notes != nil {
		notes.setTenant(tenant.ID)
	}
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// Tenant returns the tenant bound to the context.
func Tenant(ctx context.Context) (TenantInfo, bool) {
	if ctx == nil {
		return TenantInfo{}, false
	}
	tenant, ok := ctx.Value(tenantContextKey).(TenantInfo)
	return tenant, ok
}

// TenantID returns the bound tenant id or an empty string.
func TenantID(ctx context.Context) string {
	tenant, _ := Tenant(ctx)
	return tenant.ID
}

// Annotations records values bound deeper in the handler chain, such as the tenant resolved by
// authentication, so middleware that wraps the chain can report them after the handler returns.
type Annotations struct {
	mu       sync.Mutex
	tenantID string
}

// WithAnnotations attaches a fresh Annotations to ctx.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	notes := &Annotations{}
	return context.WithValue(ctx, notesContextKey, notes), notes
}

// TenantID returns the last tenant bound below the annotated context.
func (a *Annotations) TenantID() string {
	if a == nil {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tenantID
}

func (a *Annotations) setTenant(id string) {
	a.mu.Lock()
	a.tenantID = id
	a.mu.Unlock()
}

func annotationsFrom(ctx context.Context) *Annotations {
	notes, _ := ctx.Value(notesContextKey).(*Annotations)
	return notes
}
