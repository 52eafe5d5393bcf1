package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedmill/internal/model"
	"feedmill/internal/sched"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	products    map[string]model.Product
	productIDs  []string
	customers   map[string]model.Customer
	customerIDs []string
	orders      map[string]model.Order
	orderIDs    []string
	capacity    model.CapacityConfig
	subs        []model.Subscription
	deliveries  map[string]*memDelivery
	deliveryIDs []string
	dlq         []map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		products:   map[string]model.Product{},
		customers:  map[string]model.Customer{},
		orders:     map[string]model.Order{},
		capacity:   model.DefaultCapacityConfig(),
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

// Products

func (m *Memory) CreateProduct(ctx context.Context, in model.ProductIn) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	p := model.Product{
		ID:          uuid.New().String(),
		SKU:         in.SKU,
		Name:        in.Name,
		Pelletized:  in.Pelletized,
		PricePerBag: in.PricePerBag,
		BagsPerUnit: in.BagsPerUnit,
		Active:      active,
	}
	m.products[p.ID] = p
	m.productIDs = append(m.productIDs, p.ID)
	return p, nil
}

func (m *Memory) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Product{}
	for _, id := range m.productIDs {
		p := m.products[id]
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) GetProduct(ctx context.Context, id string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetProductBySKU(ctx context.Context, sku string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.productIDs {
		if p := m.products[id]; strings.EqualFold(p.SKU, sku) {
			return p, nil
		}
	}
	return model.Product{}, ErrNotFound
}

func (m *Memory) PatchProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	if patch.PricePerBag != nil {
		p.PricePerBag = *patch.PricePerBag
	}
	if patch.BagsPerUnit != nil {
		p.BagsPerUnit = *patch.BagsPerUnit
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	m.products[id] = p
	return p, nil
}

// Customers

func (m *Memory) CreateCustomer(ctx context.Context, in model.CustomerIn) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Customer{
		ID:            uuid.New().String(),
		Name:          in.Name,
		DocType:       in.DocType,
		DocNumber:     in.DocNumber,
		NitDV:         in.NitDV,
		BillingEmail:  in.BillingEmail,
		WhatsappPhone: in.WhatsappPhone,
		DiscountPct:   in.DiscountPct,
		CreatedAt:     time.Now().UTC(),
	}
	m.customers[c.ID] = c
	m.customerIDs = append(m.customerIDs, c.ID)
	return c, nil
}

func (m *Memory) ListCustomers(ctx context.Context, query, cursor string, limit int) ([]model.Customer, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.customerIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	q := strings.ToLower(query)
	out := []model.Customer{}
	var next string
	for i := start; i < len(m.customerIDs) && len(out) < limit; i++ {
		c := m.customers[m.customerIDs[i]]
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(c.DocNumber, q) && !strings.Contains(c.WhatsappPhone, q) {
			continue
		}
		out = append(out, c)
		next = c.ID
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.customerIDs {
		if c := m.customers[id]; c.WhatsappPhone == phone {
			return c, nil
		}
	}
	return model.Customer{}, ErrNotFound
}

func (m *Memory) PatchCustomer(ctx context.Context, id string, patch model.CustomerPatch) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	if patch.DiscountPct != nil {
		c.DiscountPct = *patch.DiscountPct
	}
	if patch.BillingEmail != nil {
		c.BillingEmail = *patch.BillingEmail
	}
	m.customers[id] = c
	return c, nil
}

// Capacity config

func (m *Memory) GetCapacityConfig(ctx context.Context) (model.CapacityConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity, nil
}

func (m *Memory) PutCapacityConfig(ctx context.Context, cfg model.CapacityConfig) (model.CapacityConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = cfg
	return m.capacity, nil
}

// Orders

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.orders[o.ID] = o
	m.orderIDs = append(m.orderIDs, o.ID)
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, customerID, cursor string, limit int) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.orderIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Order{}
	var next string
	for i := start; i < len(m.orderIDs) && len(out) < limit; i++ {
		o := m.orders[m.orderIDs[i]]
		if status != "" && o.Status != status {
			continue
		}
		if customerID != "" && o.CustomerID != customerID {
			continue
		}
		out = append(out, o)
		next = o.ID
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) SetOrderStatus(ctx context.Context, id, status string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return o, nil
}

func (m *Memory) OpenBacklog(ctx context.Context) (sched.Backlog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := make([]model.Order, 0, len(m.orderIDs))
	for _, id := range m.orderIDs {
		open = append(open, m.orders[id])
	}
	return sched.BacklogFromOrders(open), nil
}

// Reports

func (m *Memory) PendingByCustomer(ctx context.Context) ([]model.PendingByCustomerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct{ cust, prod string }
	sums := map[key]int{}
	var keys []key
	for _, id := range m.orderIDs {
		o := m.orders[id]
		if model.IsTerminalStatus(o.Status) {
			continue
		}
		cust := o.CustomerID
		if c, ok := m.customers[o.CustomerID]; ok {
			cust = c.Name
		}
		for _, it := range o.Items {
			k := key{cust, it.Name}
			if _, seen := sums[k]; !seen {
				keys = append(keys, k)
			}
			sums[k] += it.QtyBags
		}
	}
	out := make([]model.PendingByCustomerRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.PendingByCustomerRow{Customer: k.cust, Product: k.prod, QtyBags: sums[k]})
	}
	return out, nil
}

func (m *Memory) PendingByProduct(ctx context.Context) ([]model.PendingByProductRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := map[string]int{}
	var keys []string
	for _, id := range m.orderIDs {
		o := m.orders[id]
		if model.IsTerminalStatus(o.Status) {
			continue
		}
		for _, it := range o.Items {
			if _, seen := sums[it.Name]; !seen {
				keys = append(keys, it.Name)
			}
			sums[it.Name] += it.QtyBags
		}
	}
	out := make([]model.PendingByProductRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.PendingByProductRow{Product: k, QtyBags: sums[k]})
	}
	return out, nil
}

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i := range m.subs {
			if m.subs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	items := append([]model.Subscription(nil), m.subs[start:end]...)
	next := ""
	if end < len(m.subs) {
		next = m.subs[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt:   time.Now(),
	}
	m.deliveries[id] = d
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
	}
	m.dlq = append(m.dlq, map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// filter-less implementation for the memory store
	out := append([]map[string]any(nil), m.dlq...)
	if out == nil {
		out = []map[string]any{}
	}
	return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.Status != "failed" {
		return ErrNotFound
	}
	d.Status = "pending"
	d.Attempts = 0
	d.NextAttemptAt = time.Now()
	return nil
}
