package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/tokens"
)

const somiBody = `{
	"market_data": {
		"current_price": {"usd": 0.42, "idr": 6636},
		"price_change_percentage_24h": 3.2,
		"total_volume": {"usd": 1200000},
		"market_cap": {"usd": 42000000},
		"ath": {"usd": 1.9}
	}
}`

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "demo-key"}, tokens.Default(), price.NewMemoryCache())
	return client, &calls
}

func TestQuoteParsesUpstreamResponse(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/somnia" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "demo-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		_, _ = w.Write([]byte(somiBody))
	})

	quote, err := client.Quote(context.Background(), "somi")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Symbol != "SOMI" || quote.Source != "coingecko" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if quote.USD.String() != "0.42" {
		t.Fatalf("unexpected USD price: %s", quote.USD)
	}
	if quote.Change24h.String() != "3.2" {
		t.Fatalf("unexpected 24h change: %s", quote.Change24h)
	}
}

func TestQuoteCachesUpstreamResult(t *testing.T) {
	client, calls := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(somiBody))
	})

	if _, err := client.Quote(context.Background(), "SOMI"); err != nil {
		t.Fatalf("first Quote failed: %v", err)
	}
	if _, err := client.Quote(context.Background(), "SOMI"); err != nil {
		t.Fatalf("second Quote failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls.Load())
	}
}

func TestQuoteFallsBackOnUpstreamError(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	quote, err := client.Quote(context.Background(), "SOMI")
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if quote.Source != "fallback" {
		t.Fatalf("expected fallback source, got %q", quote.Source)
	}
	if quote.USD.String() != "0.25" {
		t.Fatalf("unexpected reference price: %s", quote.USD)
	}
	if quote.IDR.String() != "3950" {
		t.Fatalf("unexpected IDR conversion: %s", quote.IDR)
	}
}

func TestQuoteWithoutFeedUsesReferencePrice(t *testing.T) {
	// STT 未配置行情来源，直接走参考价。
	client, calls := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(somiBody))
	})

	quote, err := client.Quote(context.Background(), "STT")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Source != "fallback" {
		t.Fatalf("expected fallback source, got %q", quote.Source)
	}
	if calls.Load() != 0 {
		t.Fatalf("no upstream call expected, got %d", calls.Load())
	}
}

func TestQuoteUnknownSymbolFails(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Quote(context.Background(), "DOGE")
	if xerrors.CodeOf(err) != xerrors.CodeCollaboratorFailure {
		t.Fatalf("expected CodeCollaboratorFailure, got %v", err)
	}
}

func TestQuoteRejectsEmptySymbol(t *testing.T) {
	client, _ := newClient(t, func(http.ResponseWriter, *http.Request) {})

	_, err := client.Quote(context.Background(), "  ")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected CodeInvalidArgument, got %v", err)
	}
}
