package wa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+57 300-111-2233"); got != "573001112233" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizePhone(""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestSendTextChunks(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			To   string `json:"to"`
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		if payload.To != "573001112233" {
			t.Errorf("to = %q", payload.To)
		}
		bodies = append(bodies, payload.Text.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := NewClient("ph1", "tok")
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()

	long := strings.Repeat("a", maxTextLen+10)
	if err := c.SendText(context.Background(), "+57 300 111 2233", long); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(bodies) != 2 || len(bodies[0]) != maxTextLen || len(bodies[1]) != 10 {
		t.Fatalf("unexpected chunking: %d messages", len(bodies))
	}
}

func TestSendTextUnconfigured(t *testing.T) {
	c := NewClient("", "")
	if err := c.SendText(context.Background(), "573001112233", "hola"); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSendGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClient("ph1", "tok")
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()
	err := c.SendText(context.Background(), "573001112233", "hola")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("want graph 401 error, got %v", err)
	}
}

func TestSendTextChunksOnRuneBoundary(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		bodies = append(bodies, payload.Text.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := NewClient("ph1", "tok")
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()

	// 1 + 2*1750 bytes puts the byte limit in the middle of the last ñ.
	long := "a" + strings.Repeat("ñ", 1750)
	if err := c.SendText(context.Background(), "573001112233", long); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("unexpected chunking: %d messages", len(bodies))
	}
	for i, b := range bodies {
		if !utf8.ValidString(b) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
	}
	if strings.Join(bodies, "") != long {
		t.Fatal("chunks do not reassemble the original message")
	}
}
