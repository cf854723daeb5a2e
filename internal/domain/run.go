package domain

import "encoding/json"

// Stage identifies the position of a workflow run in the pipeline
// state machine.
type Stage string

const (
	StageDiscover Stage = "DISCOVER"
	StageValidate Stage = "VALIDATE"
	StageConfirm  Stage = "CONFIRM"
	StageExecute  Stage = "EXECUTE"
	StageDone     Stage = "DONE"
	StageFailed   Stage = "FAILED"
)

// TradeResult is the opaque execution response from the trading venue,
// passed through without interpretation.
type TradeResult = json.RawMessage

// QuoteResult is the opaque quote response from the trading venue.
type QuoteResult = json.RawMessage

// WorkflowRun is the durable record of one pipeline execution.
// A run suspended at CONFIRM must be reconstructible from this record alone
// after an arbitrary delay, process restart, or redeployment.
// Corresponds to the workflow_runs table in PostgreSQL.
type WorkflowRun struct {
	RunID string
	Stage Stage

	// Candidate addresses that survived discovery, in score order.
	CandidateAddresses []string

	// Suspension payload, set when the run reaches CONFIRM.
	RecommendedAddress string
	Outlook            Outlook
	Prompt             string

	// Resume payload, set when a valid resume is accepted.
	FromToken string
	Amount    string

	// Terminal output.
	TradeResult TradeResult
	FailReason  string

	CreatedAt int64 // Unix ms
	UpdatedAt int64 // Unix ms
}

// Terminal reports whether the run has reached a final state.
func (r *WorkflowRun) Terminal() bool {
	return r.Stage == StageDone || r.Stage == StageFailed
}
