// Package workflow drives the discover → validate → confirm → execute
// pipeline as a durable state machine. A run suspends at CONFIRM until
// an external resume supplies the approved trade amount; suspended runs
// hold no resources beyond their persisted state.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-trader/internal/discovery"
	"token-trader/internal/domain"
	"token-trader/internal/observability"
	"token-trader/internal/storage"
	"token-trader/internal/trading"
	"token-trader/internal/validation"
)

// Trade defaults carried over from the deployed configuration: trades
// fund from USDC on Ethereum mainnet with 1% slippage tolerance.
const (
	USDCAddress     = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	defaultChain    = "ethereum"
	defaultSlippage = "1"
	defaultTradeWhy = "User-affirmed trade for token with highest growth potential"
)

// Sentinel errors returned by the runner.
var (
	// ErrInvalidResume marks a malformed resume payload. The run stays
	// suspended and may be resumed again.
	ErrInvalidResume = errors.New("invalid resume payload")

	// ErrNotSuspended marks a resume against a run that is not awaiting
	// confirmation.
	ErrNotSuspended = errors.New("run is not awaiting confirmation")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Discoverer produces ranked trade candidates.
type Discoverer interface {
	Discover(ctx context.Context, params discovery.Params) ([]domain.TokenCandidate, error)
}

// Validator computes on-chain signals for candidate addresses.
type Validator interface {
	Validate(ctx context.Context, addresses []string) []domain.ValidationResult
}

// ResumePayload is the external confirmation input. FromToken is
// optional; a missing value defaults to USDC.
type ResumePayload struct {
	FromToken string `json:"fromToken,omitempty"`
	Amount    string `json:"amount"`
}

// Runner owns WorkflowRun state exclusively. All stage transitions go
// through it.
type Runner struct {
	discoverer Discoverer
	validator  Validator
	gateway    trading.Gateway
	runs       storage.RunStore
	executed   storage.ExecutedTradeStore
	scores     storage.ScoreHistoryStore
	signals    storage.ValidationSignalStore
	params     discovery.Params
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDiscoveryParams sets the parameters for the DISCOVER stage.
func WithDiscoveryParams(p discovery.Params) RunnerOption {
	return func(r *Runner) {
		r.params = p
	}
}

// WithScoreSink attaches an analytics sink for discovery scores.
// Writes are best effort and never fail a run.
func WithScoreSink(s storage.ScoreHistoryStore) RunnerOption {
	return func(r *Runner) {
		r.scores = s
	}
}

// WithSignalSink attaches an analytics sink for validation signals.
func WithSignalSink(s storage.ValidationSignalStore) RunnerOption {
	return func(r *Runner) {
		r.signals = s
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner wires the pipeline stages over the given stores.
func NewRunner(
	d Discoverer,
	v Validator,
	g trading.Gateway,
	runs storage.RunStore,
	executed storage.ExecutedTradeStore,
	log zerolog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		discoverer: d,
		validator:  v,
		gateway:    g,
		runs:       runs,
		executed:   executed,
		params:     discovery.Params{EVMOnly: true},
		log:        log.With().Str("component", "workflow").Logger(),
		now:        time.Now,
		runLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a new run and drives it through DISCOVER and VALIDATE,
// leaving it suspended at CONFIRM on success. Stage failures terminate
// the run as FAILED with a reason; the run record is returned either
// way. A non-nil error means the run state itself could not be
// persisted.
func (r *Runner) Start(ctx context.Context) (*domain.WorkflowRun, error) {
	now := r.now().UnixMilli()
	run := &domain.WorkflowRun{
		RunID:     uuid.NewString(),
		Stage:     domain.StageDiscover,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	observability.RecordRunStarted()

	log := r.log.With().Str("run_id", run.RunID).Logger()

	// DISCOVER
	stageStart := r.now()
	candidates, err := r.discoverer.Discover(ctx, r.params)
	observability.RecordStageDuration(string(domain.StageDiscover), time.Since(stageStart).Seconds())
	if err != nil {
		return r.fail(ctx, run, fmt.Sprintf("discovery failed: %v", err))
	}
	if len(candidates) == 0 {
		return r.fail(ctx, run, "no candidates cleared the minimum score")
	}

	r.sinkScores(ctx, run.RunID, candidates)

	// Drop tokens we already hold from a previous run.
	candidates, err = r.dedupe(ctx, candidates)
	if err != nil {
		log.Warn().Err(err).Msg("dedup lookup failed, keeping all candidates")
	}
	if len(candidates) == 0 {
		return r.fail(ctx, run, "all candidates were already traded")
	}

	run.CandidateAddresses = make([]string, len(candidates))
	for i, c := range candidates {
		run.CandidateAddresses[i] = c.ChainAddress
	}
	run.Stage = domain.StageValidate
	if err := r.update(ctx, run); err != nil {
		return nil, err
	}

	// VALIDATE
	stageStart = r.now()
	results := r.validator.Validate(ctx, run.CandidateAddresses)
	observability.RecordStageDuration(string(domain.StageValidate), time.Since(stageStart).Seconds())

	r.sinkSignals(ctx, run.RunID, results)

	rec, ok := validation.Select(results)
	if !ok {
		return r.fail(ctx, run, "no validated address available")
	}

	// CONFIRM: suspend with the recommendation and a prompt.
	run.RecommendedAddress = rec.Address
	run.Outlook = rec.Outlook
	run.Prompt = r.buildPrompt(ctx, rec)
	run.Stage = domain.StageConfirm
	if err := r.update(ctx, run); err != nil {
		return nil, err
	}

	r.refreshPendingGauge(ctx)
	log.Info().
		Str("address", rec.Address).
		Str("outlook", string(rec.Outlook)).
		Bool("degraded", rec.Degraded).
		Msg("run suspended awaiting confirmation")

	return run, nil
}

// Resume applies an external confirmation to a suspended run. Calls for
// the same run are serialized; exactly one valid resume advances the
// state. A run already DONE returns its stored result without touching
// the venue again. An invalid payload leaves the run suspended and
// returns ErrInvalidResume.
func (r *Runner) Resume(ctx context.Context, runID string, payload json.RawMessage) (*domain.WorkflowRun, error) {
	unlock := r.lockRun(runID)
	defer unlock()

	run, err := r.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	switch run.Stage {
	case domain.StageDone:
		// Idempotent: the trade already happened.
		return run, nil
	case domain.StageConfirm:
	default:
		return run, fmt.Errorf("%w: stage %s", ErrNotSuspended, run.Stage)
	}

	resume, err := parseResume(payload)
	if err != nil {
		observability.RecordResume(false)
		r.log.Warn().Str("run_id", runID).Err(err).Msg("resume rejected, run stays suspended")
		return run, errors.Join(ErrInvalidResume, err)
	}
	observability.RecordResume(true)

	run.FromToken = resume.FromToken
	if run.FromToken == "" {
		run.FromToken = USDCAddress
	}
	run.Amount = resume.Amount
	run.Stage = domain.StageExecute
	if err := r.update(ctx, run); err != nil {
		return nil, err
	}
	r.refreshPendingGauge(ctx)

	return r.execute(ctx, run)
}

// execute drives the EXECUTE stage: quote, then trade. Either failure
// is fatal to the run; trades are never retried because re-submission
// risks duplicate execution.
func (r *Runner) execute(ctx context.Context, run *domain.WorkflowRun) (*domain.WorkflowRun, error) {
	req := domain.TradeRequest{
		FromToken:            run.FromToken,
		ToToken:              run.RecommendedAddress,
		Amount:               run.Amount,
		FromChain:            defaultChain,
		ToChain:              defaultChain,
		SlippageTolerancePct: defaultSlippage,
		Reason:               defaultTradeWhy,
	}

	stageStart := r.now()
	quote, err := r.gateway.Quote(ctx, req)
	if err != nil {
		return r.fail(ctx, run, fmt.Sprintf("quote failed: %v", err))
	}
	r.log.Info().Str("run_id", run.RunID).RawJSON("quote", quote).Msg("trade quote received")

	result, err := r.gateway.Execute(ctx, req)
	observability.RecordStageDuration(string(domain.StageExecute), time.Since(stageStart).Seconds())
	if err != nil {
		return r.fail(ctx, run, fmt.Sprintf("execute failed: %v", err))
	}
	observability.RecordTradeExecuted()

	run.TradeResult = result
	run.Stage = domain.StageDone
	if err := r.update(ctx, run); err != nil {
		return nil, err
	}
	observability.RecordRunCompleted(string(domain.StageDone))

	trade := &domain.ExecutedTrade{
		Address:    run.RecommendedAddress,
		RunID:      run.RunID,
		ExecutedAt: r.now().UnixMilli(),
	}
	if err := r.executed.Insert(ctx, trade); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		r.log.Warn().Err(err).Str("run_id", run.RunID).Msg("recording executed trade failed")
	}

	r.log.Info().Str("run_id", run.RunID).Msg("trade executed, run done")
	return run, nil
}

// Get returns the persisted run record.
func (r *Runner) Get(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	return r.runs.Get(ctx, runID)
}

// Pending lists runs suspended at CONFIRM, oldest first.
func (r *Runner) Pending(ctx context.Context) ([]*domain.WorkflowRun, error) {
	return r.runs.ListByStage(ctx, domain.StageConfirm)
}

func (r *Runner) fail(ctx context.Context, run *domain.WorkflowRun, reason string) (*domain.WorkflowRun, error) {
	run.Stage = domain.StageFailed
	run.FailReason = reason
	if err := r.update(ctx, run); err != nil {
		return nil, err
	}
	observability.RecordRunCompleted(string(domain.StageFailed))
	r.log.Warn().Str("run_id", run.RunID).Str("reason", reason).Msg("run failed")
	return run, nil
}

func (r *Runner) update(ctx context.Context, run *domain.WorkflowRun) error {
	run.UpdatedAt = r.now().UnixMilli()
	if err := r.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	return nil
}

// dedupe drops candidates whose address was already bought by a prior
// run. A lookup failure keeps the candidate.
func (r *Runner) dedupe(ctx context.Context, candidates []domain.TokenCandidate) ([]domain.TokenCandidate, error) {
	kept := candidates[:0]
	var lookupErr error
	for _, c := range candidates {
		bought, err := r.executed.HasAddress(ctx, c.ChainAddress)
		if err != nil {
			lookupErr = err
			kept = append(kept, c)
			continue
		}
		if !bought {
			kept = append(kept, c)
		}
	}
	return kept, lookupErr
}

// buildPrompt renders the human confirmation message. The portfolio
// snapshot is best effort; a venue failure degrades to the plain
// prompt.
func (r *Runner) buildPrompt(ctx context.Context, rec domain.Recommendation) string {
	prompt := fmt.Sprintf(
		"The trade will use USDC (Ethereum) as the source token.\nUSDC address: %s\n\nRecommended Token: %s\nOutlook: %s\n\nPlease provide the amount of USDC you want to trade.",
		USDCAddress, rec.Address, rec.Outlook,
	)
	if rec.Degraded {
		prompt += "\n\nNote: one or more on-chain signals were unavailable; the recommendation is based on partial data."
	}

	portfolio, err := r.gateway.Portfolio(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("portfolio fetch failed, using plain prompt")
		return prompt
	}
	return prompt + "\n\nCurrent portfolio:\n" + string(portfolio)
}

func (r *Runner) sinkScores(ctx context.Context, runID string, candidates []domain.TokenCandidate) {
	if r.scores == nil {
		return
	}
	now := r.now().UnixMilli()
	points := make([]*domain.ScorePoint, len(candidates))
	for i, c := range candidates {
		points[i] = &domain.ScorePoint{
			RunID:         runID,
			Address:       c.ChainAddress,
			Symbol:        c.Symbol,
			Total:         c.Score.Total,
			TrendingBonus: c.Score.TrendingBonus,
			MomentumPct:   c.Score.MomentumPct,
			Volatility:    c.Score.Volatility,
			RecordedAt:    now,
		}
	}
	if err := r.scores.InsertBulk(ctx, points); err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Msg("score sink write failed")
	}
}

func (r *Runner) sinkSignals(ctx context.Context, runID string, results []domain.ValidationResult) {
	if r.signals == nil {
		return
	}
	now := r.now().UnixMilli()
	points := make([]*domain.SignalPoint, len(results))
	for i, res := range results {
		points[i] = &domain.SignalPoint{
			RunID:               runID,
			Address:             res.Address,
			HasWhaleActivity:    res.Whale.HasWhaleActivity,
			AddressDelta:        res.Trend.AddressDelta,
			TxDelta:             res.Trend.TxDelta,
			AddressesIncreasing: res.Trend.AddressesIncreasing,
			TxIncreasing:        res.Trend.TxIncreasing,
			Degraded:            res.Whale.Degraded || res.Trend.Degraded,
			RecordedAt:          now,
		}
	}
	if err := r.signals.InsertBulk(ctx, points); err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Msg("signal sink write failed")
	}
}

func (r *Runner) refreshPendingGauge(ctx context.Context) {
	pending, err := r.runs.ListByStage(ctx, domain.StageConfirm)
	if err != nil {
		return
	}
	observability.SetPendingConfirmations(len(pending))
}

// lockRun serializes resume handling per run id.
func (r *Runner) lockRun(runID string) func() {
	r.mu.Lock()
	lock, ok := r.runLocks[runID]
	if !ok {
		lock = &sync.Mutex{}
		r.runLocks[runID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// parseResume validates the confirmation input: a non-empty positive
// decimal amount, and a syntactically valid EVM address when a source
// token is supplied.
func parseResume(payload json.RawMessage) (ResumePayload, error) {
	var resume ResumePayload
	if len(payload) == 0 {
		return resume, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &resume); err != nil {
		return resume, fmt.Errorf("malformed payload: %w", err)
	}

	if resume.Amount == "" {
		return resume, errors.New("amount is required")
	}
	amount, err := strconv.ParseFloat(resume.Amount, 64)
	if err != nil {
		return resume, fmt.Errorf("amount %q is not a decimal number", resume.Amount)
	}
	if amount <= 0 {
		return resume, fmt.Errorf("amount must be positive, got %q", resume.Amount)
	}

	if resume.FromToken != "" && !addressPattern.MatchString(resume.FromToken) {
		return resume, fmt.Errorf("fromToken %q is not a valid address", resume.FromToken)
	}

	return resume, nil
}
