package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
)

type sentMessage struct {
	tenantID string
	phone    string
	text     string
	deadline bool
}

type stubSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	delivered bool
	err       error
	block     chan struct{}
}

func (s *stubSender) Notify(ctx context.Context, tenantID, phone, text string) (bool, error) {
	if s.block != nil {
		<-s.block
	}
	_, hasDeadline := ctx.Deadline()
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{tenantID: tenantID, phone: phone, text: text, deadline: hasDeadline})
	s.mu.Unlock()
	return s.delivered, s.err
}

func (s *stubSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *eventLog) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{event: event, fields: fields})
}

func (l *eventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.event == event {
			return true
		}
	}
	return false
}

func sampleOrder() Order {
	change := decimal.NewFromInt(100)
	return Order{
		ID:            "ord_1",
		TenantID:      testTenant,
		OrderNumber:   "ORD-20250310-001",
		Status:        domain.OrderStatusPending,
		Customer:      domain.Customer{Name: "Maria Silva", Phone: "+5511988887777", Address: "Rua A, 10"},
		PaymentMethod: domain.PaymentMethodCash,
		ChangeFor:     &change,
		Items: []domain.OrderItem{{
			Name:     "Pizza",
			Flavor:   "Calabresa",
			Size:     "Grande",
			Quantity: 2,
			Options:  []domain.SelectedOption{{Name: "Borda", Price: decimal.NewFromInt(5)}},
			Total:    decimal.NewFromInt(70),
		}},
		DeliveryFee: decimal.NewFromInt(5),
		Total:       decimal.RequireFromString("75.5"),
	}
}

func TestNotificationDispatcherOrderCreatedMessage(t *testing.T) {
	sender := &stubSender{delivered: true}
	logs := &eventLog{}
	d, err := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender, Logger: logs.log})
	if err != nil {
		t.Fatalf("NewNotificationDispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.OrderCreated(ctx, sampleOrder(), "+5511900000000")
	cancel()
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.phone != "+5511900000000" || msg.tenantID != testTenant {
		t.Fatalf("unexpected destination %+v", msg)
	}
	if !msg.deadline {
		t.Fatalf("expected send context to carry a deadline")
	}
	for _, want := range []string{
		"Novo pedido ORD-20250310-001",
		"Maria Silva",
		"2x Pizza Calabresa (Grande): R$ 70,00",
		"Total: R$ 75,50",
		"Dinheiro, troco para R$ 100,00",
	} {
		if !strings.Contains(msg.text, want) {
			t.Fatalf("expected %q in message:\n%s", want, msg.text)
		}
	}
	if !logs.has("notification.sent") {
		t.Fatalf("expected notification.sent log")
	}
}

func TestNotificationDispatcherStatusChanged(t *testing.T) {
	sender := &stubSender{delivered: true}
	d, err := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender})
	if err != nil {
		t.Fatalf("NewNotificationDispatcher: %v", err)
	}
	order := sampleOrder()
	order.Status = domain.OrderStatusDelivering

	d.StatusChanged(context.Background(), order, domain.OrderStatusPreparing)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].phone != order.Customer.Phone {
		t.Fatalf("expected customer phone, got %s", msgs[0].phone)
	}
	if msgs[0].text != "Olá, Maria! Seu pedido ORD-20250310-001 saiu para entrega." {
		t.Fatalf("unexpected text %q", msgs[0].text)
	}
}

func TestNotificationDispatcherFailuresAreLoggedOnly(t *testing.T) {
	cases := []struct {
		name   string
		sender *stubSender
		event  string
	}{
		{"error", &stubSender{err: errors.New("topic gone")}, "notification.failed"},
		{"undelivered", &stubSender{delivered: false}, "notification.undelivered"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := &eventLog{}
			d, err := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: tc.sender, Logger: logs.log})
			if err != nil {
				t.Fatalf("NewNotificationDispatcher: %v", err)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusConfirmed
			d.StatusChanged(context.Background(), order, domain.OrderStatusPending)
			if err := d.Drain(context.Background()); err != nil {
				t.Fatalf("Drain: %v", err)
			}
			if !logs.has(tc.event) {
				t.Fatalf("expected %s log, got %+v", tc.event, logs.events)
			}
		})
	}
}

func TestNotificationDispatcherSkipsMissingTenantPhone(t *testing.T) {
	sender := &stubSender{delivered: true}
	logs := &eventLog{}
	d, _ := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender, Logger: logs.log})

	d.OrderCreated(context.Background(), sampleOrder(), " ")
	_ = d.Drain(context.Background())
	if len(sender.messages()) != 0 {
		t.Fatalf("expected no message without tenant phone")
	}
	if !logs.has("notification.skipped") {
		t.Fatalf("expected skip to be logged")
	}
}

func TestNotificationDispatcherDrainHonoursContext(t *testing.T) {
	sender := &stubSender{delivered: true, block: make(chan struct{})}
	d, _ := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender, Timeout: time.Minute})
	order := sampleOrder()
	order.Status = domain.OrderStatusConfirmed
	d.StatusChanged(context.Background(), order, domain.OrderStatusPending)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while sender blocks, got %v", err)
	}

	close(sender.block)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain after release: %v", err)
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("expected message after release")
	}
}

func TestNewNotificationDispatcherRequiresSender(t *testing.T) {
	if _, err := NewNotificationDispatcher(NotificationDispatcherDeps{}); err == nil {
		t.Fatalf("expected error without sender")
	}
}

type gatedSender struct {
	mu          sync.Mutex
	inFlight    map[string]int
	maxInFlight map[string]int
	texts       map[string][]string
	started     chan string
	gate        chan struct{}
}

func newGatedSender() *gatedSender {
	return &gatedSender{
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
		texts:       make(map[string][]string),
		started:     make(chan string, 8),
		gate:        make(chan struct{}),
	}
}

func (s *gatedSender) Notify(_ context.Context, _, phone, text string) (bool, error) {
	s.mu.Lock()
	s.inFlight[phone]++
	if s.inFlight[phone] > s.maxInFlight[phone] {
		s.maxInFlight[phone] = s.inFlight[phone]
	}
	s.mu.Unlock()

	s.started <- text
	<-s.gate

	s.mu.Lock()
	s.inFlight[phone]--
	s.texts[phone] = append(s.texts[phone], text)
	s.mu.Unlock()
	return true, nil
}

func TestNotificationDispatcherSerialisesPerRecipient(t *testing.T) {
	sender := newGatedSender()
	d, err := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("NewNotificationDispatcher: %v", err)
	}

	confirmed := sampleOrder()
	confirmed.Status = domain.OrderStatusConfirmed
	preparing := sampleOrder()
	preparing.Status = domain.OrderStatusPreparing
	other := sampleOrder()
	other.ID = "ord_2"
	other.OrderNumber = "ORD-20250310-002"
	other.Customer.Phone = "+5511911112222"
	other.Status = domain.OrderStatusConfirmed

	d.StatusChanged(context.Background(), confirmed, domain.OrderStatusPending)
	d.StatusChanged(context.Background(), preparing, domain.OrderStatusConfirmed)
	d.StatusChanged(context.Background(), other, domain.OrderStatusPending)

	for i := 0; i < 2; i++ {
		select {
		case <-sender.started:
		case <-time.After(time.Second):
			t.Fatalf("expected both recipients to start sending")
		}
	}
	select {
	case text := <-sender.started:
		t.Fatalf("second message for the same recipient started early: %q", text)
	case <-time.After(20 * time.Millisecond):
	}

	close(sender.gate)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	texts := sender.texts[confirmed.Customer.Phone]
	if len(texts) != 2 {
		t.Fatalf("expected two messages for the first customer, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "confirmado") || !strings.Contains(texts[1], "sendo preparado") {
		t.Fatalf("expected dispatch order to be kept, got %q", texts)
	}
	if got := sender.maxInFlight[confirmed.Customer.Phone]; got != 1 {
		t.Fatalf("expected one send in flight per recipient, got %d", got)
	}
	if len(sender.texts[other.Customer.Phone]) != 1 {
		t.Fatalf("expected the other customer to be notified")
	}
}

func TestNotificationDispatcherMasksRecipientInLogs(t *testing.T) {
	sender := &stubSender{delivered: true}
	logs := &eventLog{}
	d, _ := NewNotificationDispatcher(NotificationDispatcherDeps{Sender: sender, Logger: logs.log})
	order := sampleOrder()
	order.Status = domain.OrderStatusConfirmed

	d.StatusChanged(context.Background(), order, domain.OrderStatusPending)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	logs.mu.Lock()
	defer logs.mu.Unlock()
	for _, e := range logs.events {
		if e.event != "notification.sent" {
			continue
		}
		if got := e.fields["recipient"]; got != "*********7777" {
			t.Fatalf("expected masked recipient, got %v", got)
		}
		return
	}
	t.Fatalf("expected notification.sent log")
}
