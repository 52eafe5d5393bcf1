// Package main runs a demo WebSocket client that tails live order events.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	topic := os.Getenv("ORDER_ID") // empty subscribes to the firehose

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws/orders"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	must := func(err error) {
		if err != nil {
			log.Fatal(err)
		}
	}
	must(c.WriteJSON(wsMessage{Type: "connection_init"}))
	must(c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Topic: topic}))
	log.Printf("subscribed; waiting for order events (topic=%q)", topic)

	deadline := time.Now().Add(10 * time.Minute)
	for time.Now().Before(deadline) {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case "ping":
			must(c.WriteJSON(wsMessage{Type: "pong"}))
		case "next":
			log.Printf("event: %s", string(msg.Payload))
		case "complete":
			log.Println("stream complete")
			return
		}
	}
}
