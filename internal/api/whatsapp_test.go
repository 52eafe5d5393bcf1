package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
)

// recordChannel captures outbound conversational messages.
type recordChannel struct {
    mu    sync.Mutex
    texts []string
    lists [][]string
}

func (c *recordChannel) Name() string { return "record" }

func (c *recordChannel) SendText(_ context.Context, _, body string) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.texts = append(c.texts, body)
    return nil
}

func (c *recordChannel) SendProductList(_ context.Context, _ string, skus []string, _ string) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.lists = append(c.lists, skus)
    return nil
}

func waTextPayload(from, body string) []byte {
    b, _ := json.Marshal(map[string]any{
        "entry": []map[string]any{{
            "changes": []map[string]any{{
                "value": map[string]any{
                    "messages": []map[string]any{{
                        "from": from,
                        "type": "text",
                        "text": map[string]string{"body": body},
                    }},
                },
            }},
        }},
    })
    return b
}

func TestWhatsAppVerify(t *testing.T) {
    s := newTestServer(t)
    s.Cfg.WhatsApp.VerifyToken = "vt123"

    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=vt123&hub.challenge=c99", nil)
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != 200 || rr.Body.String() != "c99" { t.Fatalf("verify: %d %q", rr.Code, rr.Body.String()) }

    rr = httptest.NewRecorder()
    req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=c99", nil)
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("bad token: %d", rr.Code) }
}

func TestWhatsAppTextOrder(t *testing.T) {
    s := newTestServer(t)
    rec := &recordChannel{}
    s.Channel = rec
    seedProduct(t, s, "PEL40", true, 50)
    c := seedCustomer(t, s, "Finca La Meseta", "573001112233", 0)

    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(waTextPayload("573001112233", "PEL40 x 25")))
    req.Header.Set("Content-Type", "application/json")
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("receive: %d", rr.Code) }

    items, _, err := s.Store.ListOrders(context.Background(), "", c.ID, "", 10)
    if err != nil { t.Fatalf("list orders: %v", err) }
    if len(items) != 1 { t.Fatalf("expected 1 order, got %d", len(items)) }
    if items[0].TotalBags != 25 { t.Fatalf("totalBags: got %d", items[0].TotalBags) }

    rec.mu.Lock()
    defer rec.mu.Unlock()
    if len(rec.texts) != 1 { t.Fatalf("expected confirmation text, got %d", len(rec.texts)) }
}

func TestWhatsAppUnknownPhone(t *testing.T) {
    s := newTestServer(t)
    rec := &recordChannel{}
    s.Channel = rec

    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(waTextPayload("579999999999", "PEL40 x 25")))
    req.Header.Set("Content-Type", "application/json")
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("receive: %d", rr.Code) }

    rec.mu.Lock()
    defer rec.mu.Unlock()
    if len(rec.texts) != 1 { t.Fatalf("expected registration prompt, got %d texts", len(rec.texts)) }
}

func TestWhatsAppNonOrderTextSendsCatalog(t *testing.T) {
    s := newTestServer(t)
    rec := &recordChannel{}
    s.Channel = rec
    seedProduct(t, s, "PEL40", true, 50)
    seedCustomer(t, s, "Finca", "573001112244", 0)

    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(waTextPayload("573001112244", "hola, buenos días")))
    req.Header.Set("Content-Type", "application/json")
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("receive: %d", rr.Code) }

    rec.mu.Lock()
    defer rec.mu.Unlock()
    if len(rec.lists) != 1 { t.Fatalf("expected a product list, got %d", len(rec.lists)) }
    if len(rec.lists[0]) != 1 || rec.lists[0][0] != "PEL40" { t.Fatalf("catalog skus: %v", rec.lists[0]) }
}

func TestWhatsAppCartOrder(t *testing.T) {
    s := newTestServer(t)
    rec := &recordChannel{}
    s.Channel = rec
    seedProduct(t, s, "PEL40", true, 50)
    c := seedCustomer(t, s, "Finca", "573001112255", 0)

    payload, _ := json.Marshal(map[string]any{
        "entry": []map[string]any{{
            "changes": []map[string]any{{
                "value": map[string]any{
                    "messages": []map[string]any{{
                        "from": "573001112255",
                        "type": "order",
                        "order": map[string]any{
                            "product_items": []map[string]any{
                                {"product_retailer_id": "pel40", "quantity": 3},
                            },
                        },
                    }},
                },
            }},
        }},
    })
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(payload))
    req.Header.Set("Content-Type", "application/json")
    s.WhatsAppWebhookHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("receive: %d", rr.Code) }

    items, _, err := s.Store.ListOrders(context.Background(), "", c.ID, "", 10)
    if err != nil { t.Fatalf("list orders: %v", err) }
    if len(items) != 1 { t.Fatalf("expected 1 order, got %d", len(items)) }
    if items[0].Items[0].SKU != "PEL40" { t.Fatalf("sku: %s", items[0].Items[0].SKU) }
}

func TestParseInboundItems(t *testing.T) {
    m := waMessage{Type: "text"}
    m.Text.Body = "PEL40 x 25\nHAR25 X3\ngracias"
    items := parseInboundItems(m)
    if len(items) != 2 { t.Fatalf("expected 2 items, got %d: %v", len(items), items) }
    if items[0].SKU != "PEL40" || items[0].Qty != 25 { t.Fatalf("item 0: %+v", items[0]) }
    if items[1].SKU != "HAR25" || items[1].Qty != 3 { t.Fatalf("item 1: %+v", items[1]) }
}
