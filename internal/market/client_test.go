package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"token-trader/internal/observability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewHTTPClient(server.URL,
		WithAPIKey("test-key"),
		WithRateLimit(rate.Inf, 1),
	)
	return client, server
}

func TestClient_Trending(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/trending" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "test-key" {
			t.Errorf("API key header: got %q", got)
		}
		w.Write([]byte(`{
			"coins": [
				{"item": {"id": "token-a", "name": "Token A", "symbol": "TKA", "market_cap_rank": 42, "score": 0, "price_btc": 0.0001}},
				{"item": {"id": "token-b", "name": "Token B", "symbol": "TKB", "market_cap_rank": 310, "score": 1, "price_btc": 0.00002}}
			]
		}`))
	})

	entries, err := client.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "token-a" || entries[0].MarketCapRank != 42 {
		t.Errorf("First entry mismatch: %+v", entries[0])
	}
	if entries[1].TrendingScore != 1 {
		t.Errorf("TrendingScore: got %f, want 1", entries[1].TrendingScore)
	}
}

func TestClient_Snapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/token-a" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("market_data"); got != "true" {
			t.Errorf("market_data query: got %q", got)
		}
		w.Write([]byte(`{
			"id": "token-a",
			"name": "Token A",
			"symbol": "tka",
			"market_cap_rank": 42,
			"platforms": {
				"ethereum": "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
				"solana": "So11111111111111111111111111111111111111112",
				"fantom": ""
			},
			"market_data": {
				"current_price": {"usd": 1.25, "eur": 1.1},
				"ath": {"usd": 5.0},
				"total_volume": {"usd": 2500000},
				"market_cap": {"usd": 90000000}
			}
		}`))
	})

	snap, err := client.Snapshot(context.Background(), "token-a")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.CurrentPrice == nil || *snap.CurrentPrice != 1.25 {
		t.Errorf("CurrentPrice: got %v, want 1.25", snap.CurrentPrice)
	}
	if snap.ATH == nil || *snap.ATH != 5.0 {
		t.Errorf("ATH: got %v, want 5.0", snap.ATH)
	}
	if snap.ATL != nil {
		t.Errorf("ATL should be nil when absent, got %v", *snap.ATL)
	}
	if snap.Volume24h != 2500000 {
		t.Errorf("Volume24h: got %f", snap.Volume24h)
	}
	if snap.MarketCap != 90000000 {
		t.Errorf("MarketCap: got %f", snap.MarketCap)
	}
	// Empty platform addresses are dropped during normalization.
	if _, ok := snap.Contracts["fantom"]; ok {
		t.Error("Empty fantom address should be dropped")
	}
	if snap.Contracts["ethereum"] == "" {
		t.Error("Ethereum contract missing")
	}
}

func TestClient_SnapshotNoMarketData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "token-a", "name": "Token A", "symbol": "tka"}`))
	})

	snap, err := client.Snapshot(context.Background(), "token-a")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.CurrentPrice != nil {
		t.Errorf("CurrentPrice should be nil without market_data, got %v", *snap.CurrentPrice)
	}
	if snap.Volume24h != 0 {
		t.Errorf("Volume24h should be zero, got %f", snap.Volume24h)
	}
}

func TestClient_MarketChart(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/token-a/market_chart" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("days"); got != "1" {
			t.Errorf("days query: got %q", got)
		}
		if got := r.URL.Query().Get("vs_currency"); got != "usd" {
			t.Errorf("vs_currency query: got %q", got)
		}
		w.Write([]byte(`{
			"prices": [
				[1704067200000, 1.0],
				[1704070800000, 1.1],
				[1704074400000]
			]
		}`))
	})

	points, err := client.MarketChart(context.Background(), "token-a", 1)
	if err != nil {
		t.Fatalf("MarketChart failed: %v", err)
	}

	// Malformed single-element pair is skipped.
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}
	if points[0].TimestampMs != 1704067200000 || points[0].Price != 1.0 {
		t.Errorf("First point mismatch: %+v", points[0])
	}
	if points[1].Price != 1.1 {
		t.Errorf("Second point: got %f, want 1.1", points[1].Price)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "coin not found"}`, http.StatusNotFound)
	})

	_, err := client.Snapshot(context.Background(), "missing")
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Error should carry status code: %v", err)
	}
}

func TestClient_MetricLabelIsRouteTemplate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x"}`))
	})

	before := testutil.CollectAndCount(observability.DefaultMetrics.ProviderCallLatency)
	for _, id := range []string{"token-one", "token-two", "token-three"} {
		if _, err := client.Snapshot(context.Background(), id); err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
	}
	after := testutil.CollectAndCount(observability.DefaultMetrics.ProviderCallLatency)

	// All snapshot calls share one route-template label; per-token paths
	// would add a label child per token.
	if grown := after - before; grown > 1 {
		t.Errorf("latency label cardinality grew by %d across 3 tokens", grown)
	}
}

func TestClient_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Trending(context.Background())
	if err == nil {
		t.Fatal("Expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Error should mention rate limiting: %v", err)
	}
}
