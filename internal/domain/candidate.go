package domain

// ScoreBreakdown is the additive growth-potential score for one token.
// Each term is independently bounded, so Total stays within [0, 100] by
// construction without hard clamping.
type ScoreBreakdown struct {
	// Raw metrics the tiers are derived from.
	DistanceFromATHPct float64
	DistanceFromATLPct float64
	Volatility         float64
	MomentumPct        float64

	// Tier contributions.
	Base           float64 // fixed participation bonus for trending tokens
	TrendingBonus  float64
	ATHBonus       float64
	MomentumBonus  float64
	VolatilityTier float64
	VolumeTier     float64
	RankTier       float64

	Total float64
}

// TokenCandidate is a scored, address-resolved discovery result.
// One candidate per token; duplicates across chains collapse to a single
// preferred address.
type TokenCandidate struct {
	ID     string // provider token id
	Symbol string

	// ChainAddress is the resolved 42-char hex contract address.
	ChainAddress string
	// Chain is the slug the address was resolved on.
	Chain string

	Score ScoreBreakdown
}
