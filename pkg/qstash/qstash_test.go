package qstash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{URL: "", Token: "t", Destination: "https://example.com/hook"},
		{URL: "not a url", Token: "t", Destination: "https://example.com/hook"},
		{URL: "https://qstash.upstash.io", Token: " ", Destination: "https://example.com/hook"},
		{URL: "https://qstash.upstash.io", Token: "t", Destination: ""},
	}
	for _, cfg := range cases {
		if _, err := NewClient(cfg); err == nil {
			t.Fatalf("NewClient(%+v) expected error", cfg)
		}
	}
}

func TestPublishJSON(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotAuth   string
		gotHeader string
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotHeader = r.Header.Get("Upstash-Forward-X-Call-Id")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"messageId":"msg_1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "token", Destination: "https://example.com/hook"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	id, err := client.PublishJSON(context.Background(), map[string]any{"call_id": "c1"}, map[string]string{"X-Call-Id": "c1"})
	if err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("message id = %q, want msg_1", id)
	}
	if gotPath != "/v2/publish/https://example.com/hook" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotHeader != "c1" {
		t.Fatalf("forward header = %q", gotHeader)
	}
	if gotBody["call_id"] != "c1" {
		t.Fatalf("body = %#v", gotBody)
	}
}

func TestPublishJSONHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{URL: server.URL, Token: "token", Destination: "https://example.com/hook"})
	if _, err := client.PublishJSON(context.Background(), map[string]any{}, nil); err == nil {
		t.Fatal("expected error on 401")
	}
}
