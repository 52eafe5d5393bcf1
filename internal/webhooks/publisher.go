package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"feedmill/internal/store"
)

// Event types emitted by the API.
const (
	EventOrderCreated   = "order.created"
	EventOrderScheduled = "order.scheduled"
	EventOrderStatus    = "order.status.changed"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues one delivery per subscription matching the event type. Emit is
// fire-and-forget: enqueue failures are swallowed so an event can never fail
// the request that produced it.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   uuid.New().String(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
