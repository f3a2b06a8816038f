package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// NotificationMessage is the payload consumed by the messaging gateway that delivers bot messages.
type NotificationMessage struct {
	TenantID string    `json:"tenantId"`
	Phone    string    `json:"phone"`
	Text     string    `json:"text"`
	QueuedAt time.Time `json:"queuedAt"`
}

// PubSubNotifier hands customer and tenant notifications to a Pub/Sub topic. Messages for the same
// recipient share an ordering key, which keeps them in publish order as long as the caller publishes
// them one at a time.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	clock   func() time.Time
}

// NewPubSubNotifier constructs a notifier publishing to topic. Message ordering is enabled on the topic.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
		clock:   time.Now,
	}, nil
}

// Notify publishes one message and reports true once Pub/Sub has accepted it.
func (p *PubSubNotifier) Notify(ctx context.Context, tenantID, phone, text string) (bool, error) {
	if p == nil || p.topic == nil {
		return false, errors.New("pubsub notifier: not initialised")
	}
	tenantID = strings.TrimSpace(tenantID)
	phone = strings.TrimSpace(phone)
	if tenantID == "" || phone == "" {
		return false, errors.New("pubsub notifier: tenant and phone are required")
	}

	data, err := p.marshal(NotificationMessage{
		TenantID: tenantID,
		Phone:    phone,
		Text:     text,
		QueuedAt: p.clock().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}

	orderingKey := tenantID + ":" + phone
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: orderingKey,
		Attributes:  map[string]string{"tenantId": tenantID},
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(orderingKey)
		return false, fmt.Errorf("publish notification: %w", err)
	}
	return true, nil
}

// Stop flushes pending messages. Call during shutdown after notifications have drained.
func (p *PubSubNotifier) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
