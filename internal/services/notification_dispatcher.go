package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/observability"
)

const (
	defaultNotifyTimeout = 10 * time.Second
	meterName            = "github.com/mathauscm/api-mybot/internal/services"

	notifyKindOrderCreated  = "order_created"
	notifyKindStatusChanged = "status_changed"
)

var statusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed:  "Olá, %s! Seu pedido %s foi confirmado e logo entra em preparo.",
	domain.OrderStatusPreparing:  "Olá, %s! Seu pedido %s está sendo preparado.",
	domain.OrderStatusDelivering: "Olá, %s! Seu pedido %s saiu para entrega.",
	domain.OrderStatusCompleted:  "Olá, %s! Seu pedido %s foi concluído. Obrigado pela preferência! Avalie seu pedido com uma nota de 1 a 5.",
	domain.OrderStatusCancelled:  "Olá, %s! Seu pedido %s foi cancelado. Em caso de dúvidas, fale com a gente.",
}

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaymentMethodPix:        "Pix",
	domain.PaymentMethodCreditCard: "Cartão de crédito",
	domain.PaymentMethodCash:       "Dinheiro",
}

// NotificationDispatcherDeps bundles collaborators for the notification dispatcher.
type NotificationDispatcherDeps struct {
	Sender  NotificationSender
	Timeout time.Duration
	Meter   metric.Meter
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type notificationDispatcher struct {
	sender  NotificationSender
	timeout time.Duration
	logger  func(context.Context, string, map[string]any)
	wg      sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]notifyJob

	sent   metric.Int64Counter
	failed metric.Int64Counter
}

type notifyJob struct {
	ctx   context.Context
	kind  string
	order Order
	phone string
	text  string
}

// NewNotificationDispatcher returns a dispatcher that sends notifications in the background with a
// context detached from the triggering request. Messages for one recipient are sent one at a time,
// in the order they were dispatched; different recipients proceed concurrently.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.New("notification dispatcher: sender is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	d := &notificationDispatcher{
		sender:  deps.Sender,
		timeout: timeout,
		logger:  logger,
		queues:  make(map[string][]notifyJob),
	}
	var err error
	if d.sent, err = meter.Int64Counter("notifications.sent", metric.WithDescription("Notifications accepted by the sender")); err != nil {
		return nil, fmt.Errorf("notification dispatcher: register metric: %w", err)
	}
	if d.failed, err = meter.Int64Counter("notifications.failed", metric.WithDescription("Notifications that failed or were not delivered")); err != nil {
		return nil, fmt.Errorf("notification dispatcher: register metric: %w", err)
	}
	return d, nil
}

func (d *notificationDispatcher) OrderCreated(ctx context.Context, order Order, tenantPhone string) {
	tenantPhone = strings.TrimSpace(tenantPhone)
	if tenantPhone == "" {
		d.logger(ctx, "notification.skipped", map[string]any{
			"tenantId": order.TenantID,
			"orderId":  order.ID,
			"reason":   "tenant has no contact phone",
		})
		return
	}
	d.dispatch(ctx, notifyKindOrderCreated, order, tenantPhone, renderNewOrderMessage(order))
}

func (d *notificationDispatcher) StatusChanged(ctx context.Context, order Order, previous domain.OrderStatus) {
	text, ok := renderStatusMessage(order)
	if !ok || order.Customer.Phone == "" {
		d.logger(ctx, "notification.skipped", map[string]any{
			"tenantId": order.TenantID,
			"orderId":  order.ID,
			"status":   string(order.Status),
			"previous": string(previous),
		})
		return
	}
	d.dispatch(ctx, notifyKindStatusChanged, order, order.Customer.Phone, text)
}

func (d *notificationDispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *notificationDispatcher) dispatch(ctx context.Context, kind string, order Order, phone, text string) {
	job := notifyJob{ctx: context.WithoutCancel(ctx), kind: kind, order: order, phone: phone, text: text}
	key := order.TenantID + ":" + phone

	d.wg.Add(1)
	d.mu.Lock()
	pending, running := d.queues[key]
	d.queues[key] = append(pending, job)
	d.mu.Unlock()
	if !running {
		go d.runRecipient(key)
	}
}

// runRecipient sends queued jobs for key until the queue is empty. The key stays registered while a
// send is in flight so later dispatches join the queue instead of starting a second sender.
func (d *notificationDispatcher) runRecipient(key string) {
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.send(job)
		d.wg.Done()
	}
}

func (d *notificationDispatcher) send(job notifyJob) {
	sendCtx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()

	attrs := metric.WithAttributes(attribute.String("kind", job.kind))
	fields := map[string]any{
		"tenantId":    job.order.TenantID,
		"orderId":     job.order.ID,
		"orderNumber": job.order.OrderNumber,
		"kind":        job.kind,
		"recipient":   observability.MaskPhone(job.phone),
	}
	delivered, err := d.sender.Notify(sendCtx, job.order.TenantID, job.phone, job.text)
	switch {
	case err != nil:
		d.failed.Add(sendCtx, 1, attrs)
		fields["error"] = err.Error()
		d.logger(sendCtx, "notification.failed", fields)
	case !delivered:
		d.failed.Add(sendCtx, 1, attrs)
		d.logger(sendCtx, "notification.undelivered", fields)
	default:
		d.sent.Add(sendCtx, 1, attrs)
		d.logger(sendCtx, "notification.sent", fields)
	}
}

func renderStatusMessage(order Order) (string, bool) {
	format, ok := statusMessages[order.Status]
	if !ok {
		return "", false
	}
	name := firstName(order.Customer.Name)
	return fmt.Sprintf(format, name, order.OrderNumber), true
}

func renderNewOrderMessage(order Order) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	var b strings.Builder
	fmt.Fprintf(&b, "Novo pedido %s\n", order.OrderNumber)
	fmt.Fprintf(&b, "Cliente: %s (%s)\n", order.Customer.Name, order.Customer.Phone)
	if order.Customer.Address != "" {
		fmt.Fprintf(&b, "Endereço: %s\n", order.Customer.Address)
	}
	b.WriteString("Itens:\n")
	for _, item := range order.Items {
		label := item.Name
		if item.Flavor != "" {
			label += " " + item.Flavor
		}
		if item.Size != "" {
			label += " (" + item.Size + ")"
		}
		fmt.Fprintf(&b, "- %dx %s: %s\n", item.Quantity, label, formatBRL(p, item.Total))
		for _, opt := range item.Options {
			fmt.Fprintf(&b, "  + %s\n", opt.Name)
		}
	}
	if order.DeliveryFee.IsPositive() {
		fmt.Fprintf(&b, "Entrega: %s\n", formatBRL(p, order.DeliveryFee))
	}
	fmt.Fprintf(&b, "Total: %s\n", formatBRL(p, order.Total))
	payment := paymentLabels[order.PaymentMethod]
	if order.ChangeFor != nil {
		payment += ", troco para " + formatBRL(p, *order.ChangeFor)
	}
	fmt.Fprintf(&b, "Pagamento: %s", payment)
	return b.String()
}

func formatBRL(p *message.Printer, amount decimal.Decimal) string {
	return p.Sprintf("R$ %.2f", amount.Round(2).InexactFloat64())
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "cliente"
	}
	return fields[0]
}
