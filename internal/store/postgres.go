package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"feedmill/internal/model"
	"feedmill/internal/sched"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Files are
// written to be idempotent (CREATE TABLE IF NOT EXISTS etc), so re-running on
// boot is safe.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// Products

func (p *Postgres) CreateProduct(ctx context.Context, in model.ProductIn) (model.Product, error) {
	id := uuid.New().String()
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	bpu := in.BagsPerUnit
	if bpu < 1 {
		bpu = 1
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO products (id, sku, name, pelletized, price_per_bag, bags_per_unit, active) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, in.SKU, in.Name, in.Pelletized, in.PricePerBag, bpu, active)
	if err != nil {
		return model.Product{}, err
	}
	return model.Product{ID: id, SKU: in.SKU, Name: in.Name, Pelletized: in.Pelletized, PricePerBag: in.PricePerBag, BagsPerUnit: bpu, Active: active}, nil
}

func (p *Postgres) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	q := `SELECT id::text, sku, name, pelletized, price_per_bag, bags_per_unit, active FROM products`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY sku`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		var pr model.Product
		if err := rows.Scan(&pr.ID, &pr.SKU, &pr.Name, &pr.Pelletized, &pr.PricePerBag, &pr.BagsPerUnit, &pr.Active); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProduct(ctx context.Context, id string) (model.Product, error) {
	return p.scanProduct(p.db.QueryRowContext(ctx, `SELECT id::text, sku, name, pelletized, price_per_bag, bags_per_unit, active FROM products WHERE id=$1`, id))
}

func (p *Postgres) GetProductBySKU(ctx context.Context, sku string) (model.Product, error) {
	return p.scanProduct(p.db.QueryRowContext(ctx, `SELECT id::text, sku, name, pelletized, price_per_bag, bags_per_unit, active FROM products WHERE lower(sku)=lower($1)`, sku))
}

func (p *Postgres) scanProduct(row *sql.Row) (model.Product, error) {
	var pr model.Product
	if err := row.Scan(&pr.ID, &pr.SKU, &pr.Name, &pr.Pelletized, &pr.PricePerBag, &pr.BagsPerUnit, &pr.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pr, ErrNotFound
		}
		return pr, err
	}
	return pr, nil
}

func (p *Postgres) PatchProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	sets := []string{}
	args := []any{}
	idx := 1
	if patch.PricePerBag != nil {
		sets = append(sets, fmt.Sprintf("price_per_bag=$%d", idx))
		args = append(args, *patch.PricePerBag)
		idx++
	}
	if patch.BagsPerUnit != nil {
		sets = append(sets, fmt.Sprintf("bags_per_unit=$%d", idx))
		args = append(args, *patch.BagsPerUnit)
		idx++
	}
	if patch.Active != nil {
		sets = append(sets, fmt.Sprintf("active=$%d", idx))
		args = append(args, *patch.Active)
		idx++
	}
	if len(sets) > 0 {
		args = append(args, id)
		q := `UPDATE products SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE id=$%d`, idx)
		if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
			return model.Product{}, err
		}
	}
	return p.GetProduct(ctx, id)
}

// Customers

func (p *Postgres) CreateCustomer(ctx context.Context, in model.CustomerIn) (model.Customer, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `INSERT INTO customers (id, name, doc_type, doc_number, nit_dv, billing_email, whatsapp_phone, discount_pct, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, in.Name, in.DocType, in.DocNumber, nullIfEmpty(in.NitDV), nullIfEmpty(in.BillingEmail), nullIfEmpty(in.WhatsappPhone), in.DiscountPct, now)
	if err != nil {
		return model.Customer{}, err
	}
	return model.Customer{ID: id, Name: in.Name, DocType: in.DocType, DocNumber: in.DocNumber, NitDV: in.NitDV,
		BillingEmail: in.BillingEmail, WhatsappPhone: in.WhatsappPhone, DiscountPct: in.DiscountPct, CreatedAt: now}, nil
}

const customerCols = `id::text, name, doc_type, doc_number, COALESCE(nit_dv,''), COALESCE(billing_email,''), COALESCE(whatsapp_phone,''), discount_pct, created_at`

func (p *Postgres) ListCustomers(ctx context.Context, query, cursor string, limit int) ([]model.Customer, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	base := `SELECT ` + customerCols + ` FROM customers WHERE 1=1`
	args := []any{}
	idx := 1
	if query != "" {
		base += fmt.Sprintf(` AND (name ILIKE $%d OR doc_number LIKE $%d OR whatsapp_phone LIKE $%d)`, idx, idx+1, idx+2)
		like := "%" + query + "%"
		args = append(args, like, like, like)
		idx += 3
	}
	if cursor != "" {
		base += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	base += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Customer{}
	var last string
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.DocType, &c.DocNumber, &c.NitDV, &c.BillingEmail, &c.WhatsappPhone, &c.DiscountPct, &c.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, c)
		last = c.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	return p.scanCustomer(p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE id=$1`, id))
}

func (p *Postgres) GetCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	return p.scanCustomer(p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE whatsapp_phone=$1`, phone))
}

func (p *Postgres) scanCustomer(row *sql.Row) (model.Customer, error) {
	var c model.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.DocType, &c.DocNumber, &c.NitDV, &c.BillingEmail, &c.WhatsappPhone, &c.DiscountPct, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	return c, nil
}

func (p *Postgres) PatchCustomer(ctx context.Context, id string, patch model.CustomerPatch) (model.Customer, error) {
	sets := []string{}
	args := []any{}
	idx := 1
	if patch.DiscountPct != nil {
		sets = append(sets, fmt.Sprintf("discount_pct=$%d", idx))
		args = append(args, *patch.DiscountPct)
		idx++
	}
	if patch.BillingEmail != nil {
		sets = append(sets, fmt.Sprintf("billing_email=$%d", idx))
		args = append(args, nullIfEmpty(*patch.BillingEmail))
		idx++
	}
	if len(sets) > 0 {
		args = append(args, id)
		q := `UPDATE customers SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE id=$%d`, idx)
		if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
			return model.Customer{}, err
		}
	}
	return p.GetCustomer(ctx, id)
}

// Capacity config. Stored as a single row; a missing row means the seed
// defaults are in effect.

func (p *Postgres) GetCapacityConfig(ctx context.Context) (model.CapacityConfig, error) {
	row := p.db.QueryRowContext(ctx, `SELECT timezone, workdays, workday_start, workday_end, pellet_bph, non_pellet_bph,
		COALESCE(sat_workday_start,''), COALESCE(sat_workday_end,''), COALESCE(sat_pellet_bph,0), COALESCE(sat_non_pellet_bph,0),
		COALESCE(sat_dispatch_cutoff,''), dispatch_buffer_min FROM capacity_config WHERE id=1`)
	var cfg model.CapacityConfig
	err := row.Scan(&cfg.Timezone, &cfg.Workdays, &cfg.WorkdayStart, &cfg.WorkdayEnd, &cfg.PelletBPH, &cfg.NonPelletBPH,
		&cfg.SatWorkdayStart, &cfg.SatWorkdayEnd, &cfg.SatPelletBPH, &cfg.SatNonPelletBPH, &cfg.SatDispatchCutoff, &cfg.DispatchBufferMin)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultCapacityConfig(), nil
	}
	if err != nil {
		return model.CapacityConfig{}, err
	}
	return cfg, nil
}

func (p *Postgres) PutCapacityConfig(ctx context.Context, cfg model.CapacityConfig) (model.CapacityConfig, error) {
	_, err := p.db.ExecContext(ctx, `INSERT INTO capacity_config (id, timezone, workdays, workday_start, workday_end, pellet_bph, non_pellet_bph,
		sat_workday_start, sat_workday_end, sat_pellet_bph, sat_non_pellet_bph, sat_dispatch_cutoff, dispatch_buffer_min)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET timezone=$1, workdays=$2, workday_start=$3, workday_end=$4, pellet_bph=$5, non_pellet_bph=$6,
		sat_workday_start=$7, sat_workday_end=$8, sat_pellet_bph=$9, sat_non_pellet_bph=$10, sat_dispatch_cutoff=$11, dispatch_buffer_min=$12, updated_at=now()`,
		cfg.Timezone, cfg.Workdays, cfg.WorkdayStart, cfg.WorkdayEnd, cfg.PelletBPH, cfg.NonPelletBPH,
		nullIfEmpty(cfg.SatWorkdayStart), nullIfEmpty(cfg.SatWorkdayEnd), zeroToNull(cfg.SatPelletBPH), zeroToNull(cfg.SatNonPelletBPH),
		nullIfEmpty(cfg.SatDispatchCutoff), cfg.DispatchBufferMin)
	if err != nil {
		return model.CapacityConfig{}, err
	}
	return p.GetCapacityConfig(ctx)
}

// Orders

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, customer_id, status, total_bags, subtotal, discount_total, total, scheduled_at, ready_at, delivery_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.CustomerID, o.Status, o.TotalBags, o.Subtotal, o.DiscountTotal, o.Total, o.ScheduledAt, o.ReadyAt, o.DeliveryAt, o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}
	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, product_id, sku, name, pelletized, qty_bags, unit_price, discount_pct, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			uuid.New().String(), o.ID, it.ProductID, it.SKU, it.Name, it.Pelletized, it.QtyBags, it.UnitPrice, it.DiscountPctApplied, it.LineTotal)
		if err != nil {
			return model.Order{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

const orderCols = `id::text, customer_id::text, status, total_bags, subtotal, discount_total, total, scheduled_at, ready_at, delivery_at, created_at`

func (p *Postgres) ListOrders(ctx context.Context, status, customerID, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	base := `SELECT ` + orderCols + ` FROM orders WHERE 1=1`
	args := []any{}
	idx := 1
	if status != "" {
		base += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, status)
		idx++
	}
	if customerID != "" {
		base += fmt.Sprintf(` AND customer_id=$%d`, idx)
		args = append(args, customerID)
		idx++
	}
	if cursor != "" {
		base += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	base += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	var last string
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalBags, &o.Subtotal, &o.DiscountTotal, &o.Total, &o.ScheduledAt, &o.ReadyAt, &o.DeliveryAt, &o.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, o)
		last = o.ID
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	for i := range out {
		items, err := p.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, "", err
		}
		out[i].Items = items
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	row := p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalBags, &o.Subtotal, &o.DiscountTotal, &o.Total, &o.ScheduledAt, &o.ReadyAt, &o.DeliveryAt, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, ErrNotFound
		}
		return o, err
	}
	items, err := p.loadItems(ctx, o.ID)
	if err != nil {
		return o, err
	}
	o.Items = items
	return o, nil
}

func (p *Postgres) loadItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT product_id::text, sku, name, pelletized, qty_bags, unit_price, discount_pct, line_total FROM order_items WHERE order_id=$1 ORDER BY sku`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ProductID, &it.SKU, &it.Name, &it.Pelletized, &it.QtyBags, &it.UnitPrice, &it.DiscountPctApplied, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) SetOrderStatus(ctx context.Context, id, status string) (model.Order, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return model.Order{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Order{}, ErrNotFound
	}
	return p.GetOrder(ctx, id)
}

func (p *Postgres) OpenBacklog(ctx context.Context) (sched.Backlog, error) {
	var b sched.Backlog
	err := p.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN i.pelletized THEN i.qty_bags ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN i.pelletized THEN 0 ELSE i.qty_bags END),0)
		FROM order_items i JOIN orders o ON o.id=i.order_id
		WHERE o.status NOT IN ('delivered','canceled')`).Scan(&b.PelletBags, &b.NonPelletBags)
	return b, err
}

// Reports

func (p *Postgres) PendingByCustomer(ctx context.Context) ([]model.PendingByCustomerRow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT c.name, i.name, SUM(i.qty_bags)::int
		FROM order_items i
		JOIN orders o ON o.id=i.order_id
		JOIN customers c ON c.id=o.customer_id
		WHERE o.status NOT IN ('delivered','canceled')
		GROUP BY c.name, i.name ORDER BY c.name, i.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PendingByCustomerRow{}
	for rows.Next() {
		var r model.PendingByCustomerRow
		if err := rows.Scan(&r.Customer, &r.Product, &r.QtyBags); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) PendingByProduct(ctx context.Context) ([]model.PendingByProductRow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT i.name, SUM(i.qty_bags)::int
		FROM order_items i JOIN orders o ON o.id=i.order_id
		WHERE o.status NOT IN ('delivered','canceled')
		GROUP BY i.name ORDER BY i.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PendingByProductRow{}
	for rows.Next() {
		var r model.PendingByProductRow
		if err := rows.Scan(&r.Product, &r.QtyBags); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events @> $1::jsonb`, fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err != nil {
		return err
	}
	// move to DLQ
	_, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, delivery_id, event_type, url, secret, payload, attempts, last_error)
		SELECT gen_random_uuid(), id, event_type, url, secret, payload, attempts+1, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE 1=1`
	args := []any{}
	idx := 1
	if status != "" {
		q += fmt.Sprintf(` AND status=$%d`, idx)
		args = append(args, status)
		idx++
	}
	if cursor != "" {
		q += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE id=$1`, id)
	return err
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, eventType, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	base := `SELECT id::text, delivery_id::text, event_type, url, COALESCE(last_error,''), attempts, created_at FROM webhook_dlq WHERE 1=1`
	args := []any{}
	idx := 1
	if eventType != "" {
		base += fmt.Sprintf(` AND event_type=$%d`, idx)
		args = append(args, eventType)
		idx++
	}
	if cursor != "" {
		base += fmt.Sprintf(` AND id::text > $%d`, idx)
		args = append(args, cursor)
		idx++
	}
	base += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, delID, et, url, errStr string
		var attempts int
		var created time.Time
		if err := rows.Scan(&id, &delID, &et, &url, &errStr, &attempts, &created); err != nil {
			return nil, "", err
		}
		out = append(out, map[string]any{"id": id, "deliveryId": delID, "eventType": et, "url": url, "lastError": errStr, "attempts": attempts, "createdAt": created})
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, id string) error {
	var delID, et, url, secret string
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT COALESCE(delivery_id::text,''), event_type, url, COALESCE(secret,''), payload FROM webhook_dlq WHERE id=$1`, id).Scan(&delID, &et, &url, &secret, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err := p.EnqueueWebhook(ctx, delID, et, url, secret, payload); err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `DELETE FROM webhook_dlq WHERE id=$1`, id)
	return err
}

// computeDedupKey derives a stable key for a payload so the same event is
// never queued twice for one (event_type, url): the event id when present,
// otherwise a short content hash.
func computeDedupKey(payload []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.ID != "" {
		return probe.ID
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func zeroToNull(v float64) any {
	if v <= 0 {
		return nil
	}
	return v
}
