package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"feedmill/internal/model"
	"feedmill/internal/store"
	"feedmill/internal/wa"
)

// waEntry mirrors the slice of the Graph webhook payload we care about.
type waEntry struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Order struct {
		ProductItems []struct {
			ProductRetailerID string `json:"product_retailer_id"`
			Quantity          int    `json:"quantity"`
		} `json:"product_items"`
	} `json:"order"`
}

// skuQtyRe matches lines like "PEL40 x 25" or "bulto2 X3".
var skuQtyRe = regexp.MustCompile(`(?i)([A-Z0-9_-]+)\s*[x*]\s*(\d+)`)

// WhatsAppWebhookHandler handles GET (verification) and POST (messages) on
// /webhooks/whatsapp. Replies go back through the configured channel adapter;
// the HTTP response itself is only an ack to the platform.
func (s *Server) WhatsAppWebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.Cfg.WhatsApp.VerifyToken && s.Cfg.WhatsApp.VerifyToken != "" {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(q.Get("hub.challenge")))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	case http.MethodPost:
		if !s.intake.Allow() {
			// still ack; the platform retries on non-2xx and we would rather
			// drop a burst than be re-sent the same burst
			w.WriteHeader(200)
			return
		}
		var payload waEntry
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for _, e := range payload.Entry {
			for _, c := range e.Changes {
				for _, m := range c.Value.Messages {
					s.handleInboundMessage(r, m)
				}
			}
		}
		w.WriteHeader(200)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleInboundMessage(r *http.Request, m waMessage) {
	ctx := r.Context()
	phone := wa.NormalizePhone(m.From)
	if phone == "" {
		return
	}
	cust, err := s.Store.GetCustomerByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.Channel.SendText(ctx, phone, "Hola! Aún no tenemos este número registrado. Escríbenos con tu nombre y NIT o cédula para crear tu cuenta.")
		return
	}
	if err != nil {
		return
	}
	items := parseInboundItems(m)
	if len(items) == 0 {
		// not an order; offer the catalog
		skus := s.activeSKUs(ctx)
		if len(skus) > 0 {
			_ = s.Channel.SendProductList(ctx, phone, skus, "Catálogo")
		} else {
			_ = s.Channel.SendText(ctx, phone, "Hola "+cust.Name+"! Envíanos tu pedido como \"REFERENCIA x CANTIDAD\", una línea por producto.")
		}
		return
	}
	o, err := s.createOrder(ctx, model.OrderIn{CustomerID: cust.ID, Items: items}, "whatsapp")
	if err != nil {
		_ = s.Channel.SendText(ctx, phone, "No pudimos registrar el pedido: "+err.Error())
		return
	}
	msg := fmt.Sprintf("Pedido %s recibido: %d bultos, total $%.0f. Entrega estimada: %s.",
		shortID(o.ID), o.TotalBags, o.Total, s.etaText(ctx, o))
	_ = s.Channel.SendText(ctx, phone, msg)
}

// parseInboundItems extracts order lines from a catalog cart or a free-text
// "SKU x qty" message.
func parseInboundItems(m waMessage) []model.OrderItemIn {
	var items []model.OrderItemIn
	if m.Type == "order" {
		for _, pi := range m.Order.ProductItems {
			if pi.Quantity > 0 && pi.ProductRetailerID != "" {
				items = append(items, model.OrderItemIn{SKU: strings.ToUpper(pi.ProductRetailerID), Qty: pi.Quantity})
			}
		}
		return items
	}
	if m.Type != "text" {
		return nil
	}
	for _, match := range skuQtyRe.FindAllStringSubmatch(m.Text.Body, -1) {
		qty, err := strconv.Atoi(match[2])
		if err != nil || qty <= 0 {
			continue
		}
		items = append(items, model.OrderItemIn{SKU: strings.ToUpper(match[1]), Qty: qty})
	}
	return items
}

// activeSKUs lists the catalog references offered in the interactive message.
func (s *Server) activeSKUs(ctx context.Context) []string {
	prods, err := s.Store.ListProducts(ctx, true)
	if err != nil {
		return nil
	}
	skus := make([]string, 0, len(prods))
	for _, p := range prods {
		skus = append(skus, p.SKU)
	}
	return skus
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
