package store

import (
	"context"
	"testing"
	"time"

	"feedmill/internal/model"
)

func seedProduct(t *testing.T, m *Memory, sku string, pelletized bool) model.Product {
	t.Helper()
	p, err := m.CreateProduct(context.Background(), model.ProductIn{SKU: sku, Name: "Feed " + sku, Pelletized: pelletized, PricePerBag: 52000})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func seedCustomer(t *testing.T, m *Memory, name, phone string) model.Customer {
	t.Helper()
	c, err := m.CreateCustomer(context.Background(), model.CustomerIn{Name: name, DocType: model.DocTypeCedula, DocNumber: "1020304050", WhatsappPhone: phone})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return c
}

func TestMemoryProductLookup(t *testing.T) {
	m := NewMemory()
	p := seedProduct(t, m, "PEL-30", true)
	got, err := m.GetProductBySKU(context.Background(), "pel-30")
	if err != nil {
		t.Fatalf("GetProductBySKU: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("lookup mismatch: %s != %s", got.ID, p.ID)
	}
	if _, err := m.GetProduct(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryProductPatch(t *testing.T) {
	m := NewMemory()
	p := seedProduct(t, m, "PEL-30", true)
	price := 60000.0
	inactive := false
	got, err := m.PatchProduct(context.Background(), p.ID, model.ProductPatch{PricePerBag: &price, Active: &inactive})
	if err != nil {
		t.Fatalf("PatchProduct: %v", err)
	}
	if got.PricePerBag != 60000 || got.Active {
		t.Fatalf("patch not applied: %+v", got)
	}
	active, err := m.ListProducts(context.Background(), true)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("inactive product listed: %v", active)
	}
}

func TestMemoryCustomerByPhone(t *testing.T) {
	m := NewMemory()
	c := seedCustomer(t, m, "Granja El Roble", "573001112233")
	got, err := m.GetCustomerByPhone(context.Background(), "573001112233")
	if err != nil || got.ID != c.ID {
		t.Fatalf("GetCustomerByPhone: %v %v", got, err)
	}
	if _, err := m.GetCustomerByPhone(context.Background(), "573009999999"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryCapacityConfigDefaults(t *testing.T) {
	m := NewMemory()
	cfg, err := m.GetCapacityConfig(context.Background())
	if err != nil {
		t.Fatalf("GetCapacityConfig: %v", err)
	}
	if cfg.PelletBPH != 200 || cfg.NonPelletBPH != 300 || cfg.Timezone != "America/Bogota" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	cfg.PelletBPH = 250
	saved, err := m.PutCapacityConfig(context.Background(), cfg)
	if err != nil || saved.PelletBPH != 250 {
		t.Fatalf("PutCapacityConfig: %+v %v", saved, err)
	}
}

func TestMemoryBacklogExcludesTerminal(t *testing.T) {
	m := NewMemory()
	c := seedCustomer(t, m, "Granja El Roble", "573001112233")
	mk := func(status string, bags int, pelletized bool) {
		_, err := m.CreateOrder(context.Background(), model.Order{
			CustomerID: c.ID,
			Status:     status,
			Items:      []model.OrderItem{{ProductID: "p", SKU: "S", Name: "Feed", Pelletized: pelletized, QtyBags: bags}},
			TotalBags:  bags,
		})
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	mk(model.StatusPaid, 100, true)
	mk(model.StatusInProduction, 40, false)
	mk(model.StatusDelivered, 500, true)
	mk(model.StatusCanceled, 500, false)

	b, err := m.OpenBacklog(context.Background())
	if err != nil {
		t.Fatalf("OpenBacklog: %v", err)
	}
	if b.PelletBags != 100 || b.NonPelletBags != 40 {
		t.Fatalf("backlog = %+v", b)
	}
}

func TestMemoryListOrdersFilters(t *testing.T) {
	m := NewMemory()
	c := seedCustomer(t, m, "Granja El Roble", "573001112233")
	other := seedCustomer(t, m, "Avicola Norte", "573004445566")
	for i := 0; i < 3; i++ {
		if _, err := m.CreateOrder(context.Background(), model.Order{CustomerID: c.ID, Status: model.StatusPaid}); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	if _, err := m.CreateOrder(context.Background(), model.Order{CustomerID: other.ID, Status: model.StatusReady}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, _, err := m.ListOrders(context.Background(), model.StatusPaid, c.ID, "", 10)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 paid orders, got %d", len(got))
	}
	page, next, err := m.ListOrders(context.Background(), "", "", "", 2)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page) != 2 || next == "" {
		t.Fatalf("pagination broken: %d items, next=%q", len(page), next)
	}
	rest, _, err := m.ListOrders(context.Background(), "", "", next, 10)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("want remaining 2 orders, got %d", len(rest))
	}
}

func TestMemoryPendingReports(t *testing.T) {
	m := NewMemory()
	c := seedCustomer(t, m, "Granja El Roble", "573001112233")
	items := []model.OrderItem{
		{ProductID: "p1", SKU: "PEL-30", Name: "Pellet 30", Pelletized: true, QtyBags: 60},
		{ProductID: "p2", SKU: "HAR-20", Name: "Harina 20", Pelletized: false, QtyBags: 20},
	}
	if _, err := m.CreateOrder(context.Background(), model.Order{CustomerID: c.ID, Status: model.StatusPaid, Items: items}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := m.CreateOrder(context.Background(), model.Order{CustomerID: c.ID, Status: model.StatusDelivered, Items: items}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	byCust, err := m.PendingByCustomer(context.Background())
	if err != nil {
		t.Fatalf("PendingByCustomer: %v", err)
	}
	if len(byCust) != 2 {
		t.Fatalf("want 2 customer rows, got %v", byCust)
	}
	for _, r := range byCust {
		if r.Customer != "Granja El Roble" {
			t.Fatalf("unexpected customer %q", r.Customer)
		}
	}
	byProd, err := m.PendingByProduct(context.Background())
	if err != nil {
		t.Fatalf("PendingByProduct: %v", err)
	}
	if len(byProd) != 2 {
		t.Fatalf("want 2 product rows, got %v", byProd)
	}
	for _, r := range byProd {
		if r.Product == "Pellet 30" && r.QtyBags != 60 {
			t.Fatalf("delivered order counted: %+v", r)
		}
	}
}

func TestMemoryWebhookQueueLifecycle(t *testing.T) {
	m := NewMemory()
	id, err := m.EnqueueWebhook(context.Background(), "sub1", "order.created", "https://example.com/hook", "s3cret", []byte(`{"id":"evt"}`))
	if err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("FetchDue: %v %v", due, err)
	}
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(context.Background(), id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("MarkWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("retry scheduled in the future should not be due")
	}
	if err := m.RetryWebhookDelivery(context.Background(), id); err != nil {
		t.Fatalf("RetryWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 1 {
		t.Fatalf("manual retry should make the delivery due again")
	}
	if err := m.FailWebhookDelivery(context.Background(), id, "gave up", 500, 10); err != nil {
		t.Fatalf("FailWebhookDelivery: %v", err)
	}
	dlq, _, err := m.ListWebhookDLQ(context.Background(), "", "", 10)
	if err != nil || len(dlq) != 1 {
		t.Fatalf("ListWebhookDLQ: %v %v", dlq, err)
	}
	if err := m.RequeueWebhookDLQ(context.Background(), id); err != nil {
		t.Fatalf("RequeueWebhookDLQ: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 1 || due[0].Attempts != 0 {
		t.Fatalf("requeued delivery should be due with attempts reset: %+v", due)
	}
}
