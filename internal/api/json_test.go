package api

import (
    "encoding/json"
    "net/http/httptest"
    "testing"
)

func TestWriteProblemShape(t *testing.T) {
    rec := httptest.NewRecorder()
    writeProblem(rec, 404, "Not Found", "order missing", "/v1/orders/x")

    if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
        t.Fatalf("content type = %q", ct)
    }
    var p Problem
    if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if p.Status != 404 || p.Title != "Not Found" {
        t.Fatalf("problem = %+v", p)
    }
    if p.Type != "https://feedmill.dev/problems/not-found" {
        t.Fatalf("type = %q", p.Type)
    }
}
