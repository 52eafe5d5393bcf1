package store

import (
	"context"
	"errors"
	"time"

	"feedmill/internal/model"
	"feedmill/internal/sched"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, in model.ProductIn) (model.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (model.Product, error)
	PatchProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error)

	// Customers
	CreateCustomer(ctx context.Context, in model.CustomerIn) (model.Customer, error)
	ListCustomers(ctx context.Context, query, cursor string, limit int) ([]model.Customer, string, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (model.Customer, error)
	PatchCustomer(ctx context.Context, id string, patch model.CustomerPatch) (model.Customer, error)

	// Capacity config
	GetCapacityConfig(ctx context.Context) (model.CapacityConfig, error)
	PutCapacityConfig(ctx context.Context, cfg model.CapacityConfig) (model.CapacityConfig, error)

	// Orders. CreateOrder persists an already assembled and scheduled order;
	// OpenBacklog sums bags per line over non-terminal orders in one
	// consistent read.
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	ListOrders(ctx context.Context, status, customerID, cursor string, limit int) ([]model.Order, string, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	SetOrderStatus(ctx context.Context, id, status string) (model.Order, error)
	OpenBacklog(ctx context.Context) (sched.Backlog, error)

	// Reports
	PendingByCustomer(ctx context.Context) ([]model.PendingByCustomerRow, error)
	PendingByProduct(ctx context.Context) ([]model.PendingByProductRow, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, eventType, cursor string, limit int) ([]map[string]any, string, error)
	RequeueWebhookDLQ(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("not found")

// WebhookDelivery is one queued outbound delivery as seen by the worker.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}
