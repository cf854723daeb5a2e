package domain

// ScorePoint is one discovery-stage score observation, kept for later
// analysis. Corresponds to the score_history ClickHouse table.
type ScorePoint struct {
	RunID         string
	Address       string
	Symbol        string
	Total         float64
	TrendingBonus float64
	MomentumPct   float64
	Volatility    float64
	RecordedAt    int64 // Unix ms
}

// SignalPoint is one validation-stage signal observation.
// Corresponds to the validation_signals ClickHouse table.
type SignalPoint struct {
	RunID               string
	Address             string
	HasWhaleActivity    bool
	AddressDelta        int
	TxDelta             int
	AddressesIncreasing bool
	TxIncreasing        bool
	Degraded            bool
	RecordedAt          int64 // Unix ms
}
