package domain

// TradeRequest carries the parameters for a quote or an execution against
// the trading venue. Amount is a decimal string in source-token units.
type TradeRequest struct {
	FromToken            string
	ToToken              string
	Amount               string
	FromChain            string
	ToChain              string
	SlippageTolerancePct string
	Reason               string
}

// ExecutedTrade records a completed purchase so later discovery runs can
// skip tokens that were already bought.
type ExecutedTrade struct {
	Address    string
	RunID      string
	ExecutedAt int64 // Unix ms
}
