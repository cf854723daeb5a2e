package domain

// WhaleSignal reports whether a token saw at least one transfer above the
// whale threshold within the trailing 24 hours.
type WhaleSignal struct {
	Address          string
	HasWhaleActivity bool

	// Degraded is true when the scan failed and the conservative default
	// was substituted. A defaulted "no whale activity" is not a confirmed
	// absence.
	Degraded bool
}

// NetworkTrend compares transfer activity over the most recent 7 day-buckets
// against the prior 7, derived from daily-bucketed event logs over a
// trailing 14-day block range.
type NetworkTrend struct {
	Address             string
	AddressDelta        int
	TxDelta             int
	AddressesIncreasing bool
	TxIncreasing        bool

	// Degraded is true when the scan failed and deltas defaulted to zero.
	Degraded bool
}

// ValidationResult pairs both on-chain signals for one candidate address.
type ValidationResult struct {
	Address string
	Whale   WhaleSignal
	Trend   NetworkTrend
}

// Outlook is a qualitative label derived from the winning address's signals.
// It is for display only and never affects selection.
type Outlook string

const (
	OutlookBullish  Outlook = "BULLISH"
	OutlookNeutral  Outlook = "NEUTRAL"
	OutlookCautious Outlook = "CAUTIOUS"
)

// Recommendation is the single winning address chosen by the selection
// policy, plus its display label.
type Recommendation struct {
	Address string
	Outlook Outlook

	// Degraded is true when any signal backing the winner was defaulted
	// after a provider failure.
	Degraded bool
}
