package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "feedmill/internal/model"
    "feedmill/internal/webhooks"
)

// ProductsHandler handles GET/POST /v1/products
func (s *Server) ProductsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        activeOnly := true
        if v := r.URL.Query().Get("all"); strings.EqualFold(v, "true") || v == "1" { activeOnly = false }
        items, err := s.Store.ListProducts(r.Context(), activeOnly)
        if err != nil { writeProblem(w, 500, "List products failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items})
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var in model.ProductIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateProductIn(&in); err != nil { writeProblem(w, 400, "Invalid product", err.Error(), r.URL.Path); return }
        prod, err := s.Store.CreateProduct(r.Context(), in)
        if err != nil { writeProblem(w, 500, "Create product failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, prod)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ProductByIDHandler handles GET/PATCH /v1/products/{id}
func (s *Server) ProductByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/products/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        prod, err := s.Store.GetProduct(r.Context(), id)
        if err != nil { writeProblem(w, 404, "Product not found", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, prod)
    case http.MethodPatch:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var patch model.ProductPatch
        if err := json.NewDecoder(r.Body).Decode(&patch); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if patch.PricePerBag != nil && *patch.PricePerBag < 0 { writeProblem(w, 400, "Invalid product", "pricePerBag must not be negative", r.URL.Path); return }
        prod, err := s.Store.PatchProduct(r.Context(), id, patch)
        if err != nil { writeProblem(w, 500, "Update product failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, prod)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// CustomersHandler handles GET/POST /v1/customers
func (s *Server) CustomersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
        q := r.URL.Query().Get("q")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListCustomers(r.Context(), q, cursor, limit)
        if err != nil { writeProblem(w, 500, "List customers failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
        var in model.CustomerIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateCustomerIn(&in); err != nil { writeProblem(w, 400, "Invalid customer", err.Error(), r.URL.Path); return }
        cust, err := s.Store.CreateCustomer(r.Context(), in)
        if err != nil { writeProblem(w, 500, "Create customer failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, cust)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// CustomerByIDHandler handles GET/PATCH /v1/customers/{id}
func (s *Server) CustomerByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/customers/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cust, err := s.Store.GetCustomer(r.Context(), id)
        if err != nil { writeProblem(w, 404, "Customer not found", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, cust)
    case http.MethodPatch:
        var patch model.CustomerPatch
        if err := json.NewDecoder(r.Body).Decode(&patch); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if patch.DiscountPct != nil && (*patch.DiscountPct < 0 || *patch.DiscountPct > 100) {
            writeProblem(w, 400, "Invalid customer", "discountPct must be between 0 and 100", r.URL.Path)
            return
        }
        cust, err := s.Store.PatchCustomer(r.Context(), id, patch)
        if err != nil { writeProblem(w, 500, "Update customer failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, cust)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
        var in model.OrderIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateOrderIn(&in); err != nil { writeProblem(w, 400, "Invalid order", err.Error(), r.URL.Path); return }
        o, err := s.createOrder(r.Context(), in, "api")
        if err != nil {
            writeProblem(w, http.StatusUnprocessableEntity, "Create order failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"order": o, "etaText": s.etaText(r.Context(), o)})
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        customerID := r.URL.Query().Get("customerId")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListOrders(r.Context(), status, customerID, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler handles GET /v1/orders/{id}, POST /v1/orders/{id}/status
// and GET /v1/orders/{id}/events/stream
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 && parts[1] == "events" && len(parts) > 2 && parts[2] == "stream" {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        if _, err := s.Store.GetOrder(r.Context(), id); err != nil {
            writeProblem(w, 404, "Order not found", err.Error(), r.URL.Path)
            return
        }
        s.streamTopic(w, r, id)
        return
    }
    if len(parts) > 1 && parts[1] == "status" {
        if r.Method != http.MethodPost {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        p := s.getPrincipal(r)
        if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
        var req struct {
            Status string `json:"status"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if !model.IsValidStatus(req.Status) {
            writeProblem(w, 400, "Invalid status", fmt.Sprintf("unknown status %q", req.Status), r.URL.Path)
            return
        }
        cur, err := s.Store.GetOrder(r.Context(), id)
        if err != nil { writeProblem(w, 404, "Order not found", err.Error(), r.URL.Path); return }
        if model.IsTerminalStatus(cur.Status) {
            writeProblem(w, http.StatusConflict, "Invalid transition", fmt.Sprintf("order is %s", cur.Status), r.URL.Path)
            return
        }
        o, err := s.Store.SetOrderStatus(r.Context(), id, req.Status)
        if err != nil { writeProblem(w, 500, "Update status failed", err.Error(), r.URL.Path); return }
        data := map[string]any{
            "orderId": o.ID,
            "from":    cur.Status,
            "to":      o.Status,
            "ts":      time.Now().UTC().Format(time.RFC3339),
        }
        s.Pub.Emit(r.Context(), webhooks.EventOrderStatus, data)
        s.publishOrderEvent(o.ID, SSEEvent{Type: webhooks.EventOrderStatus, Data: data})
        writeJSON(w, http.StatusOK, o)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    o, err := s.Store.GetOrder(r.Context(), id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Order not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, o)
}

// SchedulePreviewHandler handles POST /v1/schedule/preview: runs the scheduler
// for a hypothetical order without persisting anything.
func (s *Server) SchedulePreviewHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var in model.OrderIn
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if len(in.Items) == 0 { writeProblem(w, 400, "Invalid preview", "items required", r.URL.Path); return }
    items, err := s.resolveLineItems(r.Context(), in.Items)
    if err != nil { writeProblem(w, http.StatusUnprocessableEntity, "Preview failed", err.Error(), r.URL.Path); return }
    res, err := s.runScheduler(r.Context(), items, time.Now())
    if err != nil { writeProblem(w, http.StatusUnprocessableEntity, "Preview failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, res)
}

// CapacityConfigHandler handles GET/PUT /v1/config/capacity
func (s *Server) CapacityConfigHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetCapacityConfig(r.Context())
        if err != nil { writeProblem(w, 500, "Read config failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, cfg)
    case http.MethodPut:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var cfg model.CapacityConfig
        if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        // Whole-record upsert; the clock clamps nonsense values at read time.
        saved, err := s.Store.PutCapacityConfig(r.Context(), cfg)
        if err != nil { writeProblem(w, 500, "Save config failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, saved)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PendingByCustomerHandler handles GET /v1/reports/pending-by-customer
func (s *Server) PendingByCustomerHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    rows, err := s.Store.PendingByCustomer(r.Context())
    if err != nil { writeProblem(w, 500, "Report failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": rows})
}

// PendingByProductHandler handles GET /v1/reports/pending-by-product
func (s *Server) PendingByProductHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    rows, err := s.Store.PendingByProduct(r.Context())
    if err != nil { writeProblem(w, 500, "Report failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": rows})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.URL == "" || len(req.Events) == 0 { writeProblem(w, 400, "Invalid subscription", "url and events required", r.URL.Path); return }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// EventsStreamHandler handles GET /v1/events/stream: every order event.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    s.streamTopic(w, r, TopicAllOrders)
}

// streamTopic subscribes to a broker topic and streams it as SSE with a
// heartbeat every 15s.
func (s *Server) streamTopic(w http.ResponseWriter, r *http.Request, topic string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(topic)
    defer s.Broker.Unsubscribe(topic, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"topic\":\"%s\",\"ts\":\"%s\"}\n\n", topic, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"topic\":\"%s\",\"ts\":\"%s\"}\n\n", topic, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), id); err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        eventType := r.URL.Query().Get("eventType")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), eventType, cursor, limit)
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), id); err != nil { writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}
