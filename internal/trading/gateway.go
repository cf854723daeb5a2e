// Package trading wraps the trading venue's REST API. The gateway is
// stateless and performs no retries: a failed call is surfaced to the
// caller, which decides whether the run dies.
package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"token-trader/internal/domain"
	"token-trader/internal/observability"
)

// DefaultTimeout bounds every venue call.
const DefaultTimeout = 30 * time.Second

// Gateway exposes quote and execute plus the read-only account queries
// used by the confirmation prompt.
type Gateway interface {
	Quote(ctx context.Context, req domain.TradeRequest) (domain.QuoteResult, error)
	Execute(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error)

	AgentProfile(ctx context.Context) (json.RawMessage, error)
	Portfolio(ctx context.Context) (json.RawMessage, error)
	Balances(ctx context.Context) (json.RawMessage, error)
	TradeHistory(ctx context.Context) (json.RawMessage, error)
}

// HTTPGateway implements Gateway against a Recall-compatible REST API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// GatewayOption configures HTTPGateway.
type GatewayOption func(*HTTPGateway)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		g.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

// WithLogger sets the gateway logger.
func WithLogger(log zerolog.Logger) GatewayOption {
	return func(g *HTTPGateway) {
		g.log = log
	}
}

// NewHTTPGateway creates a gateway for the venue at baseURL
// authenticated with apiKey.
func NewHTTPGateway(baseURL, apiKey string, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Quote prices a prospective trade without committing it.
func (g *HTTPGateway) Quote(ctx context.Context, req domain.TradeRequest) (domain.QuoteResult, error) {
	q := url.Values{}
	q.Set("fromToken", req.FromToken)
	q.Set("toToken", req.ToToken)
	q.Set("amount", req.Amount)
	q.Set("fromChain", req.FromChain)
	q.Set("toChain", req.ToChain)

	return g.do(ctx, http.MethodGet, "/api/trade/quote?"+q.Encode(), nil)
}

// Execute submits the trade. Callers must hold a successful quote for
// the same parameters first; the gateway does not enforce ordering.
func (g *HTTPGateway) Execute(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	body, err := json.Marshal(map[string]string{
		"fromToken":         req.FromToken,
		"toToken":           req.ToToken,
		"amount":            req.Amount,
		"fromChain":         req.FromChain,
		"toChain":           req.ToChain,
		"slippageTolerance": req.SlippageTolerancePct,
		"reason":            req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	return g.do(ctx, http.MethodPost, "/api/trade/execute", body)
}

// AgentProfile fetches the venue's agent profile record.
func (g *HTTPGateway) AgentProfile(ctx context.Context) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, "/api/agent", nil)
}

// Portfolio fetches current token holdings and values.
func (g *HTTPGateway) Portfolio(ctx context.Context) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, "/api/agent/portfolio", nil)
}

// Balances fetches current balance information.
func (g *HTTPGateway) Balances(ctx context.Context) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, "/api/agent/balances", nil)
}

// TradeHistory fetches past trades for the agent.
func (g *HTTPGateway) TradeHistory(ctx context.Context) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, "/api/agent/trades", nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	observability.RecordProviderCall("trading", method+" "+trimQuery(path), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("venue request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read venue response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

func trimQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

var _ Gateway = (*HTTPGateway)(nil)
