// Package market implements the market-data provider client: trending-token
// discovery, per-token detail and historical price charts. Provider-shaped
// responses are normalized into domain records at this boundary; nothing
// downstream reads raw provider fields.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"token-trader/internal/domain"
	"token-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout = 15 * time.Second

	// Free-tier pacing: ~30 requests/minute with short bursts.
	DefaultRateLimit = rate.Limit(0.5)
	DefaultRateBurst = 5
)

// TrendingEntry is one normalized row of the trending-list query.
type TrendingEntry struct {
	ID            string
	Name          string
	Symbol        string
	MarketCapRank int
	TrendingScore float64
	PriceBTC      float64
}

// Client is the read surface the discovery scorer depends on.
type Client interface {
	// Trending returns the current trending tokens in provider order.
	Trending(ctx context.Context) ([]TrendingEntry, error)

	// Snapshot returns the normalized detail record for a token.
	// The snapshot carries no price history; see MarketChart.
	Snapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error)

	// MarketChart returns the ordered (timestamp, price) sequence over the
	// trailing day window.
	MarketChart(ctx context.Context, id string, days int) ([]domain.PricePoint, error)
}

// HTTPClient implements Client against a CoinGecko-compatible REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithAPIKey sets the provider API key header value.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithRateLimit overrides the request pacing.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *HTTPClient) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.log = log
	}
}

// NewHTTPClient creates a new market-data client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(DefaultRateLimit, DefaultRateBurst),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// Trending returns the current trending tokens in provider order.
func (c *HTTPClient) Trending(ctx context.Context) ([]TrendingEntry, error) {
	var raw trendingResponse
	if err := c.get(ctx, "/search/trending", "/search/trending", nil, &raw); err != nil {
		return nil, err
	}

	entries := make([]TrendingEntry, 0, len(raw.Coins))
	for _, coin := range raw.Coins {
		entries = append(entries, TrendingEntry{
			ID:            coin.Item.ID,
			Name:          coin.Item.Name,
			Symbol:        coin.Item.Symbol,
			MarketCapRank: coin.Item.MarketCapRank,
			TrendingScore: coin.Item.Score,
			PriceBTC:      coin.Item.PriceBTC,
		})
	}

	c.log.Debug().Int("entries", len(entries)).Msg("trending list retrieved")
	return entries, nil
}

// Snapshot returns the normalized detail record for a token.
func (c *HTTPClient) Snapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error) {
	query := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"market_data":    {"true"},
		"community_data": {"false"},
		"developer_data": {"false"},
		"sparkline":      {"false"},
	}

	var raw coinDetailResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id), "/coins/{id}", query, &raw); err != nil {
		return nil, err
	}

	return normalizeSnapshot(id, &raw), nil
}

// MarketChart returns the ordered price sequence over the trailing window.
func (c *HTTPClient) MarketChart(ctx context.Context, id string, days int) ([]domain.PricePoint, error) {
	query := url.Values{
		"vs_currency": {"usd"},
		"days":        {fmt.Sprintf("%d", days)},
	}

	var raw marketChartResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/market_chart", "/coins/{id}/market_chart", query, &raw); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(raw.Prices))
	for _, pair := range raw.Prices {
		if len(pair) < 2 {
			continue
		}
		points = append(points, domain.PricePoint{
			TimestampMs: int64(pair[0]),
			Price:       pair[1],
		})
	}

	return points, nil
}

// get performs a rate-limited GET and decodes the JSON body into result.
// route is the endpoint template used as the metric label; token IDs never
// appear in it.
func (c *HTTPClient) get(ctx context.Context, path, route string, query url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	observability.RecordProviderCall("market", route, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
