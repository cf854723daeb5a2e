package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"token-trader/internal/domain"
	"token-trader/internal/market"
)

func f64(v float64) *float64 { return &v }

func points(prices ...float64) []domain.PricePoint {
	pts := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = domain.PricePoint{TimestampMs: int64(i) * 3_600_000, Price: p}
	}
	return pts
}

// fakeMarket serves canned trending entries, snapshots, and charts.
type fakeMarket struct {
	trending    []market.TrendingEntry
	trendingErr error
	snapshots   map[string]*domain.MarketSnapshot
	charts      map[string][]domain.PricePoint
	failDetail  map[string]bool
	failChart   map[string]bool
}

func (f *fakeMarket) Trending(ctx context.Context) ([]market.TrendingEntry, error) {
	return f.trending, f.trendingErr
}

func (f *fakeMarket) Snapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error) {
	if f.failDetail[id] {
		return nil, errors.New("detail unavailable")
	}
	snap, ok := f.snapshots[id]
	if !ok {
		return nil, errors.New("unknown token")
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeMarket) MarketChart(ctx context.Context, id string, days int) ([]domain.PricePoint, error) {
	if f.failChart[id] {
		return nil, errors.New("chart unavailable")
	}
	return f.charts[id], nil
}

func TestScore_Deterministic(t *testing.T) {
	snap := &domain.MarketSnapshot{
		ID:            "tok",
		Symbol:        "TOK",
		CurrentPrice:  f64(1.0),
		ATH:           f64(4.0),
		Volume24h:     2_000_000,
		MarketCapRank: 300,
		TrendingScore: 50,
		History:       points(0.8, 0.9, 1.0),
	}

	a := Score(snap)
	b := Score(snap)

	if a != b {
		t.Errorf("identical input produced different scores: %+v vs %+v", a, b)
	}
}

func TestScore_Tiers(t *testing.T) {
	// ATH 4.0, price 1.0 → 75% below ATH → +20.
	// History 0.8→1.0 → momentum +25% → +15.
	// Volume 2M → +8. Rank 300 → +3. Trending 50*0.3 capped at 15.
	snap := &domain.MarketSnapshot{
		CurrentPrice:  f64(1.0),
		ATH:           f64(4.0),
		Volume24h:     2_000_000,
		MarketCapRank: 300,
		TrendingScore: 50,
		History:       points(0.8, 0.9, 1.0),
	}

	b := Score(snap)

	if b.Base != 25 {
		t.Errorf("expected base 25, got %g", b.Base)
	}
	if b.TrendingBonus != 15 {
		t.Errorf("expected trending bonus 15, got %g", b.TrendingBonus)
	}
	if b.ATHBonus != 20 {
		t.Errorf("expected ATH bonus 20, got %g", b.ATHBonus)
	}
	if b.MomentumBonus != 15 {
		t.Errorf("expected momentum bonus 15, got %g", b.MomentumBonus)
	}
	if b.VolumeTier != 8 {
		t.Errorf("expected volume tier 8, got %g", b.VolumeTier)
	}
	if b.RankTier != 3 {
		t.Errorf("expected rank tier 3, got %g", b.RankTier)
	}
}

func TestScore_TrendingBonusCap(t *testing.T) {
	snap := &domain.MarketSnapshot{
		CurrentPrice:  f64(1.0),
		TrendingScore: 100,
	}

	if b := Score(snap); b.TrendingBonus != 20 {
		t.Errorf("expected trending bonus capped at 20, got %g", b.TrendingBonus)
	}
}

func TestScore_ShortHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []domain.PricePoint
	}{
		{"empty", nil},
		{"single point", points(1.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &domain.MarketSnapshot{
				CurrentPrice: f64(1.0),
				History:      tt.history,
			}

			b := Score(snap)

			if b.MomentumPct != 0 {
				t.Errorf("expected momentum 0, got %g", b.MomentumPct)
			}
			if b.Volatility != 0 {
				t.Errorf("expected volatility 0, got %g", b.Volatility)
			}
			// Momentum 0 still lands in the lowest (> -10%) tier.
			if b.MomentumBonus != 3 {
				t.Errorf("expected momentum bonus 3, got %g", b.MomentumBonus)
			}
			if b.VolatilityTier != 0 {
				t.Errorf("expected no volatility bonus, got %g", b.VolatilityTier)
			}
		})
	}
}

func TestScore_NoATH(t *testing.T) {
	snap := &domain.MarketSnapshot{CurrentPrice: f64(1.0)}

	if b := Score(snap); b.ATHBonus != 0 {
		t.Errorf("expected no ATH bonus without ATH, got %g", b.ATHBonus)
	}
}

func TestScore_VolatilityTiers(t *testing.T) {
	tests := []struct {
		name    string
		history []domain.PricePoint
		want    float64
	}{
		// Alternating ±10% per step: stddev near 10 → (5,20) tier.
		{"mid band", points(1.0, 1.1, 0.99, 1.089, 0.98), 10},
		// Flat prices: zero volatility, no bonus.
		{"flat", points(1.0, 1.0, 1.0, 1.0), 0},
		// Small moves around 2%: > 1 tier.
		{"low band", points(1.0, 1.02, 0.9996, 1.0196), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &domain.MarketSnapshot{
				CurrentPrice: f64(1.0),
				History:      tt.history,
			}

			if b := Score(snap); b.VolatilityTier != tt.want {
				t.Errorf("expected volatility tier %g, got %g (volatility %g)",
					tt.want, b.VolatilityTier, b.Volatility)
			}
		})
	}
}

func TestResolveAddress_Priority(t *testing.T) {
	tests := []struct {
		name      string
		contracts map[string]string
		wantChain string
		wantAddr  string
	}{
		{
			name: "ethereum wins",
			contracts: map[string]string{
				"base":     "0xbase",
				"ethereum": "0xeth",
			},
			wantChain: "ethereum",
			wantAddr:  "0xeth",
		},
		{
			name: "priority order over map order",
			contracts: map[string]string{
				"fantom":      "0xftm",
				"polygon-pos": "0xpoly",
			},
			wantChain: "polygon-pos",
			wantAddr:  "0xpoly",
		},
		{
			name: "non-priority allow-listed chain",
			contracts: map[string]string{
				"scroll": "0xscroll",
				"solana": "soladdr",
			},
			wantChain: "scroll",
			wantAddr:  "0xscroll",
		},
		{
			name:      "no evm contract",
			contracts: map[string]string{"solana": "soladdr"},
		},
		{
			name: "empty address skipped",
			contracts: map[string]string{
				"ethereum": "",
				"base":     "0xbase",
			},
			wantChain: "base",
			wantAddr:  "0xbase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, addr := ResolveAddress(tt.contracts)
			if chain != tt.wantChain || addr != tt.wantAddr {
				t.Errorf("expected (%q, %q), got (%q, %q)", tt.wantChain, tt.wantAddr, chain, addr)
			}
		})
	}
}

func TestDiscover_EndToEnd(t *testing.T) {
	// Three entries: one without a price (skipped), one scoring below the
	// threshold (dropped), one qualifying.
	fm := &fakeMarket{
		trending: []market.TrendingEntry{
			{ID: "nopriced", TrendingScore: 10},
			{ID: "weak", TrendingScore: 0},
			{ID: "strong", TrendingScore: 60, MarketCapRank: 50},
		},
		snapshots: map[string]*domain.MarketSnapshot{
			"nopriced": {
				ID:        "nopriced",
				Symbol:    "NOP",
				Contracts: map[string]string{"ethereum": "0x1111111111111111111111111111111111111111"},
			},
			"weak": {
				ID:           "weak",
				Symbol:       "WEAK",
				CurrentPrice: f64(1.0),
				Contracts:    map[string]string{"ethereum": "0x2222222222222222222222222222222222222222"},
			},
			"strong": {
				ID:            "strong",
				Symbol:        "STR",
				CurrentPrice:  f64(1.0),
				ATH:           f64(4.0),
				Volume24h:     20_000_000,
				MarketCapRank: 50,
				Contracts:     map[string]string{"ethereum": "0x3333333333333333333333333333333333333333"},
			},
		},
		charts: map[string][]domain.PricePoint{
			"strong": points(0.8, 0.9, 1.0),
		},
	}

	scorer := NewScorer(fm, zerolog.Nop())

	got, err := scorer.Discover(context.Background(), Params{
		Limit:    5,
		MinScore: 30,
		EVMOnly:  true,
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ID != "strong" {
		t.Errorf("expected strong, got %s", got[0].ID)
	}
	if got[0].ChainAddress != "0x3333333333333333333333333333333333333333" {
		t.Errorf("unexpected address %s", got[0].ChainAddress)
	}
	if got[0].Chain != "ethereum" {
		t.Errorf("expected chain ethereum, got %s", got[0].Chain)
	}
	if got[0].Score.Total < 30 {
		t.Errorf("expected score >= 30, got %g", got[0].Score.Total)
	}
}

func TestDiscover_TieStability(t *testing.T) {
	// Identical snapshots score identically; output keeps discovery order.
	snap := func(id, addr string) *domain.MarketSnapshot {
		return &domain.MarketSnapshot{
			ID:           id,
			Symbol:       id,
			CurrentPrice: f64(1.0),
			Volume24h:    20_000_000,
			Contracts:    map[string]string{"ethereum": addr},
		}
	}

	fm := &fakeMarket{
		trending: []market.TrendingEntry{
			{ID: "first", TrendingScore: 10},
			{ID: "second", TrendingScore: 10},
			{ID: "third", TrendingScore: 10},
		},
		snapshots: map[string]*domain.MarketSnapshot{
			"first":  snap("first", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			"second": snap("second", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
			"third":  snap("third", "0xcccccccccccccccccccccccccccccccccccccccc"),
		},
		charts: map[string][]domain.PricePoint{},
	}

	scorer := NewScorer(fm, zerolog.Nop())

	got, err := scorer.Discover(context.Background(), Params{Limit: 3, MinScore: 10})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestDiscover_FaultIsolation(t *testing.T) {
	fm := &fakeMarket{
		trending: []market.TrendingEntry{
			{ID: "broken", TrendingScore: 50},
			{ID: "chartless", TrendingScore: 50},
			{ID: "good", TrendingScore: 50},
		},
		snapshots: map[string]*domain.MarketSnapshot{
			"chartless": {
				ID:           "chartless",
				CurrentPrice: f64(1.0),
				Contracts:    map[string]string{"ethereum": "0x4444444444444444444444444444444444444444"},
			},
			"good": {
				ID:           "good",
				Symbol:       "GOOD",
				CurrentPrice: f64(1.0),
				Volume24h:    20_000_000,
				Contracts:    map[string]string{"ethereum": "0x5555555555555555555555555555555555555555"},
			},
		},
		charts:     map[string][]domain.PricePoint{},
		failDetail: map[string]bool{"broken": true},
		failChart:  map[string]bool{"chartless": true},
	}

	scorer := NewScorer(fm, zerolog.Nop())

	got, err := scorer.Discover(context.Background(), Params{Limit: 5, MinScore: 20})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(got) != 1 || got[0].ID != "good" {
		t.Fatalf("expected only the good entry, got %+v", got)
	}
}

func TestDiscover_EarlyExit(t *testing.T) {
	// 30 trending entries, limit 2: the scan is capped at max(2*2, 10)=10
	// detail fetches and stops once 2 candidates qualify.
	var trending []market.TrendingEntry
	snaps := map[string]*domain.MarketSnapshot{}
	for i := 0; i < 30; i++ {
		id := string(rune('a' + i))
		trending = append(trending, market.TrendingEntry{ID: id, TrendingScore: 50})
		snaps[id] = &domain.MarketSnapshot{
			ID:           id,
			CurrentPrice: f64(1.0),
			Volume24h:    20_000_000,
			Contracts:    map[string]string{"ethereum": "0x6666666666666666666666666666666666666666"},
		}
	}

	fm := &fakeMarket{trending: trending, snapshots: snaps, charts: map[string][]domain.PricePoint{}}
	scorer := NewScorer(fm, zerolog.Nop())

	got, err := scorer.Discover(context.Background(), Params{Limit: 2, MinScore: 20})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected first two entries, got %s %s", got[0].ID, got[1].ID)
	}
}

func TestDiscover_TrendingFailureFatal(t *testing.T) {
	fm := &fakeMarket{trendingErr: errors.New("upstream down")}
	scorer := NewScorer(fm, zerolog.Nop())

	if _, err := scorer.Discover(context.Background(), Params{}); err == nil {
		t.Fatal("expected error when trending fetch fails")
	}
}
