package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Senna-Wallet/internal/llm"
)

func newServerClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "   "})
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Kind != llm.FailureUnconfigured {
		t.Fatalf("expected FailureUnconfigured, got %v", perr.Kind)
	}
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "  {\"intent\": \"help\"}  "}}]}`))
	})

	got, err := client.Complete(context.Background(), llm.Request{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != `{"intent": "help"}` {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestCompleteHTTPErrorCarriesStatusAndBody(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	})

	_, err := client.Complete(context.Background(), llm.Request{User: "hi"})
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Kind != llm.FailureHTTP || perr.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if !strings.Contains(perr.Message, "rate limited") {
		t.Fatalf("expected body excerpt in message, got %q", perr.Message)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.Complete(context.Background(), llm.Request{User: "hi"})
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Kind != llm.FailureNetwork {
		t.Fatalf("unexpected kind: %v", perr.Kind)
	}
}
