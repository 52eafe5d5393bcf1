// Package wa is a minimal WhatsApp Cloud API client: just enough of the Graph
// messages endpoint to confirm orders and push the product catalog.
package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultBaseURL = "https://graph.facebook.com/v20.0"

// maxTextLen is the Graph API limit for one text message body; longer
// messages are sent in order as multiple chunks.
const maxTextLen = 3500

type Client struct {
	BaseURL string
	PhoneID string
	Token   string
	HTTP    *http.Client
}

func NewClient(phoneID, token string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		PhoneID: phoneID,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "whatsapp" }

// Configured reports whether the client has credentials to send with.
func (c *Client) Configured() bool {
	return c.PhoneID != "" && c.Token != ""
}

// NormalizePhone strips everything but digits, the form the Graph API wants.
func NormalizePhone(n string) string {
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SendText delivers body to the given phone, chunked to the API's message
// size limit.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	to = NormalizePhone(to)
	for len(body) > 0 {
		chunk := body
		if len(chunk) > maxTextLen {
			cut := maxTextLen
			// back off to a rune boundary so a chunk never carries a
			// split multibyte character
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxTextLen
			}
			chunk = chunk[:cut]
		}
		body = body[len(chunk):]
		err := c.call(ctx, map[string]any{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]any{"preview_url": false, "body": chunk},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SendProductList pushes an interactive multi-product message whose
// retailer ids are catalog SKUs.
func (c *Client) SendProductList(ctx context.Context, to string, skus []string, sectionTitle string) error {
	if sectionTitle == "" {
		sectionTitle = "Catálogo"
	}
	items := make([]map[string]any, 0, len(skus))
	for _, sku := range skus {
		items = append(items, map[string]any{"product_retailer_id": sku})
	}
	return c.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                NormalizePhone(to),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "product_list",
			"header": map[string]any{"type": "text", "text": "Catálogo"},
			"body":   map[string]any{"type": "text", "text": "Selecciona productos y envía el carrito."},
			"action": map[string]any{
				"sections": []map[string]any{{"title": sectionTitle, "product_items": items}},
			},
		},
	})
}

func (c *Client) call(ctx context.Context, payload map[string]any) error {
	if !c.Configured() {
		return fmt.Errorf("wa: missing phone id or access token")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wa: graph api %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
