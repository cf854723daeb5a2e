// Package validation computes on-chain whale and network-growth signals
// for candidate tokens and reduces them to a single recommendation.
package validation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-trader/internal/domain"
	"token-trader/internal/observability"
	"token-trader/internal/onchain"
)

const (
	// WhaleThreshold is the raw transfer value above which a transfer
	// counts as whale activity (100k tokens at 18 decimals).
	WhaleThreshold = 100_000 * 1e18

	// whaleWindow is the trailing window a whale transfer must fall in.
	whaleWindow = 24 * time.Hour

	// transferMaxCount bounds the recent-transfer fetch per token.
	transferMaxCount = 100

	// blocksPerDay approximates Ethereum mainnet block production.
	blocksPerDay = 7200

	// trendDays is the trailing range scanned for network growth.
	trendDays = 14

	// defaultConcurrency bounds parallel per-address analyses.
	defaultConcurrency = 4
)

// Validator analyzes candidate addresses against on-chain activity.
type Validator struct {
	chain       onchain.Client
	log         zerolog.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithConcurrency sets the per-address analysis parallelism.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// NewValidator creates a Validator over the given chain client.
func NewValidator(chain onchain.Client, log zerolog.Logger, opts ...Option) *Validator {
	v := &Validator{
		chain:       chain,
		log:         log.With().Str("component", "validation").Logger(),
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// timestampCache memoizes block timestamp lookups for one validation
// pass. Both scans hit the same recent blocks repeatedly.
type timestampCache struct {
	mu    sync.Mutex
	chain onchain.Client
	byNum map[int64]int64
}

func newTimestampCache(chain onchain.Client) *timestampCache {
	return &timestampCache{chain: chain, byNum: make(map[int64]int64)}
}

func (c *timestampCache) get(ctx context.Context, blockNum int64) (int64, error) {
	c.mu.Lock()
	if ts, ok := c.byNum[blockNum]; ok {
		c.mu.Unlock()
		return ts, nil
	}
	c.mu.Unlock()

	ts, err := c.chain.BlockTimestamp(ctx, blockNum)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.byNum[blockNum] = ts
	c.mu.Unlock()
	return ts, nil
}

// Validate computes a ValidationResult for every address. A provider
// failure during either scan degrades that address to the conservative
// default and marks it Degraded; it never aborts the batch. Results
// keep input order.
func (v *Validator) Validate(ctx context.Context, addresses []string) []domain.ValidationResult {
	results := make([]domain.ValidationResult, len(addresses))
	cache := newTimestampCache(v.chain)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, addr := range addresses {
		g.Go(func() error {
			results[i] = v.validateOne(gctx, cache, addr)
			return nil
		})
	}
	g.Wait()

	return results
}

func (v *Validator) validateOne(ctx context.Context, cache *timestampCache, addr string) domain.ValidationResult {
	result := domain.ValidationResult{
		Address: addr,
		Whale:   domain.WhaleSignal{Address: addr},
		Trend:   domain.NetworkTrend{Address: addr},
	}

	// The two scans are independent reads; run them concurrently.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		hasWhale, err := v.whaleScan(ctx, cache, addr)
		if err != nil {
			v.log.Warn().Err(err).Str("address", addr).Msg("whale scan failed, degrading signal")
			observability.RecordDegradedSignal("whale")
			result.Whale.Degraded = true
			return
		}
		result.Whale.HasWhaleActivity = hasWhale
		if hasWhale {
			observability.RecordWhaleSignal()
		}
	}()

	go func() {
		defer wg.Done()
		trend, err := v.trendScan(ctx, cache, addr)
		if err != nil {
			v.log.Warn().Err(err).Str("address", addr).Msg("trend scan failed, degrading signal")
			observability.RecordDegradedSignal("trend")
			result.Trend.Degraded = true
			return
		}
		result.Trend = trend
	}()

	wg.Wait()
	observability.RecordAddressValidated()
	return result
}

// whaleScan reports whether at least one transfer above WhaleThreshold
// landed within the trailing 24 hours.
func (v *Validator) whaleScan(ctx context.Context, cache *timestampCache, addr string) (bool, error) {
	transfers, err := v.chain.TokenTransfers(ctx, addr, transferMaxCount)
	if err != nil {
		return false, err
	}

	now := v.now().Unix()
	for _, t := range transfers {
		if t.Value <= WhaleThreshold {
			continue
		}
		ts, err := cache.get(ctx, t.BlockNum)
		if err != nil {
			return false, err
		}
		if now-ts < int64(whaleWindow/time.Second) {
			return true, nil
		}
	}
	return false, nil
}

// dayBucket accumulates distinct participants and transactions for one
// UTC calendar day.
type dayBucket struct {
	addresses map[string]struct{}
	txs       map[string]struct{}
}

// trendScan buckets transfer logs over the trailing 14-day block range
// by UTC calendar day and compares the most recent 7 day-buckets with
// the prior 7.
func (v *Validator) trendScan(ctx context.Context, cache *timestampCache, addr string) (domain.NetworkTrend, error) {
	trend := domain.NetworkTrend{Address: addr}

	endBlock, err := v.chain.BlockNumber(ctx)
	if err != nil {
		return trend, err
	}
	startBlock := endBlock - trendDays*blocksPerDay

	logs, err := v.chain.TransferLogs(ctx, addr, startBlock, endBlock)
	if err != nil {
		return trend, err
	}

	byDay := make(map[string]*dayBucket)
	for _, log := range logs {
		ts, err := cache.get(ctx, log.BlockNumber)
		if err != nil {
			return trend, err
		}
		day := time.Unix(ts, 0).UTC().Format("2006-01-02")

		bucket := byDay[day]
		if bucket == nil {
			bucket = &dayBucket{
				addresses: make(map[string]struct{}),
				txs:       make(map[string]struct{}),
			}
			byDay[day] = bucket
		}

		// topics[1] and topics[2] are the indexed sender and receiver.
		for _, topic := range log.Topics[1:min(len(log.Topics), 3)] {
			bucket.addresses[topic] = struct{}{}
		}
		bucket.txs[log.TxHash] = struct{}{}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	last7 := days
	if len(last7) > 7 {
		last7 = days[len(days)-7:]
	}
	var prev7 []string
	if len(days) > 7 {
		start := max(len(days)-trendDays, 0)
		prev7 = days[start : len(days)-7]
	}

	var curAddrs, prevAddrs, curTxs, prevTxs int
	for _, day := range last7 {
		curAddrs += len(byDay[day].addresses)
		curTxs += len(byDay[day].txs)
	}
	for _, day := range prev7 {
		prevAddrs += len(byDay[day].addresses)
		prevTxs += len(byDay[day].txs)
	}

	trend.AddressDelta = curAddrs - prevAddrs
	trend.TxDelta = curTxs - prevTxs
	trend.AddressesIncreasing = curAddrs > prevAddrs
	trend.TxIncreasing = curTxs > prevTxs
	return trend, nil
}

// Select reduces validated results to a single recommendation. The
// first non-empty tier wins; within a tier the first element by input
// order. Returns false for an empty input.
func Select(results []domain.ValidationResult) (domain.Recommendation, bool) {
	if len(results) == 0 {
		return domain.Recommendation{}, false
	}

	// Tier 1: whale activity with both metrics increasing.
	for _, r := range results {
		if r.Whale.HasWhaleActivity && r.Trend.AddressesIncreasing && r.Trend.TxIncreasing {
			return recommend(r, domain.OutlookBullish), true
		}
	}

	// Tier 2: whale activity with at least one metric increasing.
	for _, r := range results {
		if r.Whale.HasWhaleActivity && (r.Trend.AddressesIncreasing || r.Trend.TxIncreasing) {
			return recommend(r, domain.OutlookNeutral), true
		}
	}

	// Tier 3: highest combined delta, ties by input order.
	best := results[0]
	bestScore := best.Trend.AddressDelta + best.Trend.TxDelta
	for _, r := range results[1:] {
		if score := r.Trend.AddressDelta + r.Trend.TxDelta; score > bestScore {
			best = r
			bestScore = score
		}
	}

	outlook := domain.OutlookCautious
	if bestScore >= 0 {
		outlook = domain.OutlookNeutral
	}
	return recommend(best, outlook), true
}

func recommend(r domain.ValidationResult, outlook domain.Outlook) domain.Recommendation {
	return domain.Recommendation{
		Address:  r.Address,
		Outlook:  outlook,
		Degraded: r.Whale.Degraded || r.Trend.Degraded,
	}
}
