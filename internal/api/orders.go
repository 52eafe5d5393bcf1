package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedmill/internal/metrics"
	"feedmill/internal/model"
	"feedmill/internal/sched"
	"feedmill/internal/webhooks"
)

// assembleOrder resolves catalog references, expands bulk units to
// bag-equivalents, prices the lines with the customer discount and runs the
// capacity scheduler against a fresh backlog snapshot. A failed config or
// backlog read aborts the whole call; orders are never persisted with a
// guessed schedule.
func (s *Server) assembleOrder(ctx context.Context, in model.OrderIn, now time.Time) (model.Order, error) {
	cust, err := s.Store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return model.Order{}, fmt.Errorf("customer %s: %w", in.CustomerID, err)
	}
	var (
		items     []model.OrderItem
		lineItems []sched.LineItem
		totalBags int
		subtotal  float64
		discount  float64
	)
	for i, it := range in.Items {
		var p model.Product
		if it.ProductID != "" {
			p, err = s.Store.GetProduct(ctx, it.ProductID)
		} else {
			p, err = s.Store.GetProductBySKU(ctx, it.SKU)
		}
		if err != nil {
			return model.Order{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		if !p.Active {
			return model.Order{}, fmt.Errorf("items[%d]: product %s is inactive", i, p.SKU)
		}
		qtyBags := it.Qty * p.BagEquivalence()
		lineSub := float64(qtyBags) * p.PricePerBag
		lineDisc := lineSub * cust.DiscountPct / 100
		items = append(items, model.OrderItem{
			ProductID:          p.ID,
			SKU:                p.SKU,
			Name:               p.Name,
			Pelletized:         p.Pelletized,
			QtyBags:            qtyBags,
			UnitPrice:          p.PricePerBag,
			DiscountPctApplied: cust.DiscountPct,
			LineTotal:          lineSub - lineDisc,
		})
		lineItems = append(lineItems, sched.LineItem{QtyBags: qtyBags, Pelletized: p.Pelletized})
		totalBags += qtyBags
		subtotal += lineSub
		discount += lineDisc
	}
	res, err := s.runScheduler(ctx, lineItems, now)
	if err != nil {
		return model.Order{}, err
	}
	return model.Order{
		ID:            uuid.NewString(),
		CustomerID:    cust.ID,
		Status:        model.StatusPendingPayment,
		Items:         items,
		TotalBags:     totalBags,
		Subtotal:      subtotal,
		DiscountTotal: discount,
		Total:         subtotal - discount,
		ScheduledAt:   res.ScheduledAt,
		ReadyAt:       res.ReadyAt,
		DeliveryAt:    res.DeliveryAt,
		CreatedAt:     now.UTC(),
	}, nil
}

// resolveLineItems maps intake items to scheduler lines without pricing.
// Used by the dry-run preview, which has no customer attached.
func (s *Server) resolveLineItems(ctx context.Context, in []model.OrderItemIn) ([]sched.LineItem, error) {
	var items []sched.LineItem
	for i, it := range in {
		var (
			p   model.Product
			err error
		)
		if it.ProductID != "" {
			p, err = s.Store.GetProduct(ctx, it.ProductID)
		} else {
			p, err = s.Store.GetProductBySKU(ctx, it.SKU)
		}
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, sched.LineItem{QtyBags: it.Qty * p.BagEquivalence(), Pelletized: p.Pelletized})
	}
	return items, nil
}

// runScheduler reads config and backlog in one go and invokes the scheduler.
func (s *Server) runScheduler(ctx context.Context, items []sched.LineItem, now time.Time) (model.ScheduleResult, error) {
	cfg, err := s.Store.GetCapacityConfig(ctx)
	if err != nil {
		return model.ScheduleResult{}, fmt.Errorf("capacity config: %w", err)
	}
	backlog, err := s.Store.OpenBacklog(ctx)
	if err != nil {
		return model.ScheduleResult{}, fmt.Errorf("backlog: %w", err)
	}
	start := time.Now()
	res, err := sched.Schedule(items, now, backlog, cfg)
	metrics.ScheduleDuration.Observe(time.Since(start).Seconds())
	return res, err
}

// createOrder persists the assembled order, emits webhook events and fans out
// SSE. Shared by the administrative and conversational intake paths.
func (s *Server) createOrder(ctx context.Context, in model.OrderIn, intakeChannel string) (model.Order, error) {
	o, err := s.assembleOrder(ctx, in, time.Now())
	if err != nil {
		return model.Order{}, err
	}
	o, err = s.Store.CreateOrder(ctx, o)
	if err != nil {
		return model.Order{}, err
	}
	metrics.OrdersCreated.WithLabelValues(intakeChannel).Inc()
	s.Pub.Emit(ctx, webhooks.EventOrderCreated, o)
	s.Pub.Emit(ctx, webhooks.EventOrderScheduled, map[string]any{
		"orderId":     o.ID,
		"scheduledAt": o.ScheduledAt,
		"readyAt":     o.ReadyAt,
		"deliveryAt":  o.DeliveryAt,
	})
	s.publishOrderEvent(o.ID, SSEEvent{Type: webhooks.EventOrderCreated, Data: map[string]any{
		"orderId":    o.ID,
		"customerId": o.CustomerID,
		"totalBags":  o.TotalBags,
		"deliveryAt": o.DeliveryAt.Format(time.RFC3339),
	}})
	return o, nil
}

// publishOrderEvent fans an event out to the per-order topic and the firehose.
func (s *Server) publishOrderEvent(orderID string, evt SSEEvent) {
	s.Broker.Publish(orderID, evt)
	s.Broker.Publish(TopicAllOrders, evt)
}

// etaText renders the delivery instant for humans in the plant's timezone.
func (s *Server) etaText(ctx context.Context, o model.Order) string {
	cfg, err := s.Store.GetCapacityConfig(ctx)
	if err != nil {
		return o.DeliveryAt.Format("2006-01-02 15:04")
	}
	return o.DeliveryAt.In(cfg.Location()).Format("Mon 2006-01-02 15:04")
}
