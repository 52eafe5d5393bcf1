package model

import "time"

// Order lifecycle statuses. Delivered and canceled are terminal: orders in a
// terminal status no longer consume production capacity.
const (
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusInProduction   = "in_production"
	StatusReady          = "ready"
	StatusDelivered      = "delivered"
	StatusCanceled       = "canceled"
)

// Statuses lists every valid order status in lifecycle order.
var Statuses = []string{
	StatusPendingPayment,
	StatusPaid,
	StatusInProduction,
	StatusReady,
	StatusDelivered,
	StatusCanceled,
}

// IsValidStatus reports whether s is a known order status.
func IsValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether s removes an order from the backlog.
func IsTerminalStatus(s string) bool {
	return s == StatusDelivered || s == StatusCanceled
}

// Product is one catalog entry. BagsPerUnit is the bag-equivalence factor for
// bulk units of sale; 1 means the unit of sale is the bag itself.
type Product struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Pelletized  bool    `json:"pelletized"`
	PricePerBag float64 `json:"pricePerBag"`
	BagsPerUnit int     `json:"bagsPerUnit"`
	Active      bool    `json:"active"`
}

// BagEquivalence returns the effective bags-per-unit factor, never below 1.
func (p Product) BagEquivalence() int {
	if p.BagsPerUnit < 1 {
		return 1
	}
	return p.BagsPerUnit
}

// ProductIn is the create payload for a product.
type ProductIn struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Pelletized  bool    `json:"pelletized"`
	PricePerBag float64 `json:"pricePerBag,omitempty"`
	BagsPerUnit int     `json:"bagsPerUnit,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ProductPatch updates mutable product fields; nil fields are left untouched.
type ProductPatch struct {
	PricePerBag *float64 `json:"pricePerBag,omitempty"`
	BagsPerUnit *int     `json:"bagsPerUnit,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Customer document types.
const (
	DocTypeCedula = "CEDULA"
	DocTypeNIT    = "NIT"
)

type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DocType       string    `json:"docType"`
	DocNumber     string    `json:"docNumber"`
	NitDV         string    `json:"nitDv,omitempty"`
	BillingEmail  string    `json:"billingEmail,omitempty"`
	WhatsappPhone string    `json:"whatsappPhone,omitempty"`
	DiscountPct   float64   `json:"discountPct"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CustomerIn struct {
	Name          string  `json:"name"`
	DocType       string  `json:"docType"`
	DocNumber     string  `json:"docNumber"`
	NitDV         string  `json:"nitDv,omitempty"`
	BillingEmail  string  `json:"billingEmail,omitempty"`
	WhatsappPhone string  `json:"whatsappPhone,omitempty"`
	DiscountPct   float64 `json:"discountPct,omitempty"`
}

type CustomerPatch struct {
	DiscountPct  *float64 `json:"discountPct,omitempty"`
	BillingEmail *string  `json:"billingEmail,omitempty"`
}

// OrderItemIn names a product by id or SKU and a quantity in units of sale.
// Bulk units are expanded to bag-equivalents before scheduling.
type OrderItemIn struct {
	ProductID string `json:"productId,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Qty       int    `json:"qty"`
}

type OrderIn struct {
	CustomerID string        `json:"customerId"`
	Items      []OrderItemIn `json:"items"`
}

// OrderItem is a priced, bag-expanded order line.
type OrderItem struct {
	ProductID          string  `json:"productId"`
	SKU                string  `json:"sku"`
	Name               string  `json:"name"`
	Pelletized         bool    `json:"pelletized"`
	QtyBags            int     `json:"qtyBags"`
	UnitPrice          float64 `json:"unitPrice"`
	DiscountPctApplied float64 `json:"discountPctApplied"`
	LineTotal          float64 `json:"lineTotal"`
}

type Order struct {
	ID            string      `json:"id"`
	CustomerID    string      `json:"customerId"`
	Status        string      `json:"status"`
	Items         []OrderItem `json:"items"`
	TotalBags     int         `json:"totalBags"`
	Subtotal      float64     `json:"subtotal"`
	DiscountTotal float64     `json:"discountTotal"`
	Total         float64     `json:"total"`
	ScheduledAt   time.Time   `json:"scheduledAt"`
	ReadyAt       time.Time   `json:"readyAt"`
	DeliveryAt    time.Time   `json:"deliveryAt"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ScheduleResult carries the three instants the scheduler computes for an order.
type ScheduleResult struct {
	ScheduledAt time.Time `json:"scheduledAt"`
	ReadyAt     time.Time `json:"readyAt"`
	DeliveryAt  time.Time `json:"deliveryAt"`
}

// Subscriptions for outbound event webhooks.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Report rows for pending (non-terminal) bag quantities.
type PendingByCustomerRow struct {
	Customer string `json:"customer"`
	Product  string `json:"product"`
	QtyBags  int    `json:"qtyBags"`
}

type PendingByProductRow struct {
	Product string `json:"product"`
	QtyBags int    `json:"qtyBags"`
}
