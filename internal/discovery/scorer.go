// Package discovery ranks trending tokens into tradeable candidates.
//
// The scorer pulls the trending list from the market provider, fetches
// detail and price history per entry, and computes an additive growth
// score from bounded tier contributions. Entries below the minimum
// score or without an EVM contract address are skipped.
package discovery

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"token-trader/internal/domain"
	"token-trader/internal/market"
	"token-trader/internal/observability"
)

// Default scoring parameters.
const (
	DefaultLimit    = 10
	DefaultMinScore = 20
	DefaultDays     = 1
)

// Params controls a single discovery pass.
type Params struct {
	// Limit caps the number of candidates returned.
	Limit int
	// MinScore is the qualification threshold for the total score.
	MinScore float64
	// Days is the price-history window forwarded to the chart query.
	Days int
	// EVMOnly skips tokens without a contract on an accepted EVM network.
	EVMOnly bool
}

func (p Params) withDefaults() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.MinScore == 0 {
		p.MinScore = DefaultMinScore
	}
	if p.Days <= 0 {
		p.Days = DefaultDays
	}
	return p
}

// Scorer ranks trending tokens using market provider data.
type Scorer struct {
	market market.Client
	log    zerolog.Logger
}

// NewScorer creates a Scorer over the given market client.
func NewScorer(mc market.Client, log zerolog.Logger) *Scorer {
	return &Scorer{
		market: mc,
		log:    log.With().Str("component", "discovery").Logger(),
	}
}

// Discover fetches the trending list and returns up to Limit qualifying
// candidates, highest score first. Ties keep discovery order. A provider
// failure for one entry skips that entry and continues; a failed trending
// fetch fails the whole pass.
func (s *Scorer) Discover(ctx context.Context, params Params) ([]domain.TokenCandidate, error) {
	params = params.withDefaults()

	trending, err := s.market.Trending(ctx)
	if err != nil {
		return nil, err
	}
	observability.RecordTrendingSeen(len(trending))

	// Detail fetches are rate-limited; never process the whole trending
	// list when only Limit candidates are wanted.
	toProcess := len(trending)
	if bound := max(params.Limit*2, 10); toProcess > bound {
		toProcess = bound
	}

	candidates := make([]domain.TokenCandidate, 0, params.Limit)

	for _, entry := range trending[:toProcess] {
		snap, err := s.market.Snapshot(ctx, entry.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("id", entry.ID).Msg("detail fetch failed, skipping entry")
			observability.RecordCandidateSkipped("detail_fetch")
			continue
		}

		if params.EVMOnly {
			if _, addr := ResolveAddress(snap.Contracts); addr == "" {
				observability.RecordCandidateSkipped("no_evm_contract")
				continue
			}
		}

		if snap.CurrentPrice == nil || *snap.CurrentPrice == 0 {
			observability.RecordCandidateSkipped("no_price")
			continue
		}

		chart, err := s.market.MarketChart(ctx, entry.ID, params.Days)
		if err != nil {
			s.log.Warn().Err(err).Str("id", entry.ID).Msg("chart fetch failed, skipping entry")
			observability.RecordCandidateSkipped("chart_fetch")
			continue
		}
		snap.History = chart
		snap.TrendingScore = entry.TrendingScore
		if snap.MarketCapRank == 0 {
			snap.MarketCapRank = entry.MarketCapRank
		}

		breakdown := Score(snap)
		observability.RecordCandidateScored()

		s.log.Debug().
			Str("symbol", snap.Symbol).
			Float64("score", breakdown.Total).
			Msg("scored token")

		if breakdown.Total < params.MinScore {
			observability.RecordCandidateSkipped("below_min_score")
			continue
		}

		chain, addr := ResolveAddress(snap.Contracts)
		if addr == "" {
			// Resolvable only when EVMOnly was off and the token has no
			// EVM contract at all.
			observability.RecordCandidateSkipped("no_address")
			continue
		}

		candidates = append(candidates, domain.TokenCandidate{
			ID:           snap.ID,
			Symbol:       snap.Symbol,
			ChainAddress: addr,
			Chain:        chain,
			Score:        breakdown,
		})

		if len(candidates) >= params.Limit {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score.Total > candidates[j].Score.Total
	})
	if len(candidates) > params.Limit {
		candidates = candidates[:params.Limit]
	}
	return candidates, nil
}

// Score computes the additive growth score for one snapshot. Each tier
// contribution is independently bounded; the result is deterministic in
// the snapshot fields.
func Score(snap *domain.MarketSnapshot) domain.ScoreBreakdown {
	var b domain.ScoreBreakdown

	// Base participation bonus for appearing in the trending list.
	b.Base = 25

	b.TrendingBonus = math.Min(snap.TrendingScore*0.3, 20)

	price := 0.0
	if snap.CurrentPrice != nil {
		price = *snap.CurrentPrice
	}

	if snap.ATH != nil && *snap.ATH > 0 {
		b.DistanceFromATHPct = (*snap.ATH - price) / *snap.ATH * 100
	}
	if snap.ATL != nil && *snap.ATL > 0 {
		b.DistanceFromATLPct = (price - *snap.ATL) / *snap.ATL * 100
	}

	switch {
	case b.DistanceFromATHPct > 50:
		b.ATHBonus = 20
	case b.DistanceFromATHPct > 30:
		b.ATHBonus = 15
	case b.DistanceFromATHPct > 10:
		b.ATHBonus = 10
	case b.DistanceFromATHPct > 0:
		b.ATHBonus = 5
	}

	b.MomentumPct = momentum(snap.History)
	switch {
	case b.MomentumPct > 20:
		b.MomentumBonus = 15
	case b.MomentumPct > 10:
		b.MomentumBonus = 12
	case b.MomentumPct > 0:
		b.MomentumBonus = 8
	case b.MomentumPct > -10:
		b.MomentumBonus = 3
	}

	b.Volatility = volatility(snap.History)
	switch {
	case b.Volatility > 5 && b.Volatility < 20:
		b.VolatilityTier = 10
	case b.Volatility > 3 && b.Volatility < 30:
		b.VolatilityTier = 8
	case b.Volatility > 1:
		b.VolatilityTier = 5
	}

	switch {
	case snap.Volume24h > 10_000_000:
		b.VolumeTier = 10
	case snap.Volume24h > 1_000_000:
		b.VolumeTier = 8
	case snap.Volume24h > 100_000:
		b.VolumeTier = 5
	case snap.Volume24h > 50_000:
		b.VolumeTier = 3
	}

	switch {
	case snap.MarketCapRank > 0 && snap.MarketCapRank <= 100:
		b.RankTier = 5
	case snap.MarketCapRank > 0 && snap.MarketCapRank <= 500:
		b.RankTier = 3
	case snap.MarketCapRank > 0 && snap.MarketCapRank <= 1000:
		b.RankTier = 1
	}

	b.Total = b.Base + b.TrendingBonus + b.ATHBonus + b.MomentumBonus +
		b.VolatilityTier + b.VolumeTier + b.RankTier
	return b
}

// momentum returns the percentage price change over the trailing 7
// history points, or 0 with fewer than 2 points.
func momentum(history []domain.PricePoint) float64 {
	recent := history
	if len(recent) > 7 {
		recent = recent[len(recent)-7:]
	}
	if len(recent) < 2 {
		return 0
	}
	first := recent[0].Price
	last := recent[len(recent)-1].Price
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

// volatility returns the population standard deviation of
// period-over-period percentage price changes across the full history.
// Fewer than 2 points yields 0, never NaN.
func volatility(history []domain.PricePoint) float64 {
	if len(history) < 2 {
		return 0
	}

	changes := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Price
		if prev == 0 {
			continue
		}
		changes = append(changes, (history[i].Price-prev)/prev*100)
	}
	if len(changes) == 0 {
		return 0
	}

	var mean float64
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))

	var variance float64
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))

	return math.Sqrt(variance)
}
