// Package channel abstracts the conversational channel used to talk back to
// customers, so the API can confirm orders without knowing which messenger is
// wired in.
package channel

import "context"

// Adapter is the outbound side of a conversational channel.
type Adapter interface {
	Name() string
	// SendText delivers a plain text message to a phone number.
	SendText(ctx context.Context, to, body string) error
	// SendProductList pushes the catalog (by SKU) as an interactive message.
	SendProductList(ctx context.Context, to string, skus []string, sectionTitle string) error
}

// Noop discards every message. Used when no channel credentials are
// configured, and in tests.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) SendText(context.Context, string, string) error { return nil }

func (Noop) SendProductList(context.Context, string, []string, string) error { return nil }
