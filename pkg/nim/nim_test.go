package nim

import (
	"context"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if c := NewClient(Config{APIKey: "   "}); c != nil {
		t.Fatal("expected nil client without api key")
	}
	if c := NewClient(Config{APIKey: "key"}); c == nil {
		t.Fatal("expected client with api key")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "  ", Model: ""}
	if got := cfg.baseURL(); got != DefaultBaseURL {
		t.Fatalf("baseURL() = %q, want %q", got, DefaultBaseURL)
	}
	if got := cfg.ModelName(); got != DefaultModel {
		t.Fatalf("ModelName() = %q, want %q", got, DefaultModel)
	}

	cfg = Config{BaseURL: "http://localhost:8000/v1/"}
	if got := cfg.baseURL(); got != "http://localhost:8000/v1" {
		t.Fatalf("baseURL() = %q, want trailing slash trimmed", got)
	}
}

func TestConfigNewBuildsChatModel(t *testing.T) {
	t.Parallel()

	maxTokens := 256
	cfg := Config{
		BaseURL:            "http://localhost:8000/v1",
		APIKey:             "key",
		Model:              "test-model",
		MaxCompletionToken: &maxTokens,
		JSONMode:           true,
	}
	m, err := cfg.New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m == nil {
		t.Fatal("expected chat model")
	}
}
