package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireClientCredentialsDisabledWhenUnset(t *testing.T) {
	d := &apiDeps{cfg: Config{}}
	r := httptest.NewRequest(http.MethodPost, "/process-doc", nil)
	w := httptest.NewRecorder()

	if !d.requireClientCredentials(w, r) {
		t.Fatal("expected credentials check to pass when no client id/secret is configured")
	}
}

func TestRequireClientCredentialsRejectsMissingHeaders(t *testing.T) {
	d := &apiDeps{cfg: Config{ClientID: "abc", ClientSecret: "secret"}}
	r := httptest.NewRequest(http.MethodPost, "/process-doc", nil)
	w := httptest.NewRecorder()

	if d.requireClientCredentials(w, r) {
		t.Fatal("expected credentials check to fail without headers")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireClientCredentialsAcceptsMatchingHeaders(t *testing.T) {
	d := &apiDeps{cfg: Config{ClientID: "abc", ClientSecret: "secret"}}
	r := httptest.NewRequest(http.MethodPost, "/process-doc", nil)
	r.Header.Set("X-Client-Id", "abc")
	r.Header.Set("X-Client-Secret", "secret")
	w := httptest.NewRecorder()

	if !d.requireClientCredentials(w, r) {
		t.Fatal("expected credentials check to pass with matching headers")
	}
}

func TestQueryIntOrUsesFallbackOnMissingOrInvalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/documents?limit=notanumber", nil)
	if got := queryIntOr(r, "limit", 20); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/documents", nil)
	if got := queryIntOr(r2, "offset", 0); got != 0 {
		t.Fatalf("expected fallback 0, got %d", got)
	}
}

func TestQueryIntOrParsesValidValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/documents?limit=50", nil)
	if got := queryIntOr(r, "limit", 20); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != "yes" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWriteErrorShapesErrorField(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "bad input")

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "bad input" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestHandleHealth(t *testing.T) {
	d := &apiDeps{}
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	d.handleHealth(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}
