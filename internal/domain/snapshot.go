package domain

// PricePoint is a single (timestamp, price) sample from a historical
// price chart. Timestamps are Unix milliseconds, prices in USD.
type PricePoint struct {
	TimestampMs int64
	Price       float64
}

// MarketSnapshot is the normalized view of one trending token, built once at
// the market-data ingestion boundary. Downstream logic reads only this
// structure, never provider-shaped records. Immutable once fetched.
type MarketSnapshot struct {
	ID     string // provider token id
	Name   string
	Symbol string

	// Contracts maps chain slug (e.g. "ethereum") to contract address.
	Contracts map[string]string

	// CurrentPrice is nil when the provider has no price for the token.
	CurrentPrice *float64
	ATH          *float64
	ATL          *float64
	Volume24h    float64
	MarketCap    float64

	// MarketCapRank is 0 when the provider reports no rank.
	MarketCapRank int

	// TrendingScore is the provider-assigned trending score.
	TrendingScore float64
	PriceBTC      float64

	// History is the ordered price chart over the requested day window.
	History []PricePoint
}
