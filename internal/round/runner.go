// Package round runs one selection round end to end: aggregate, select,
// validate the pick against ground truth (re-drawing on failure) and hand the
// audit to the configured sinks.
package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/selector"
	"solana-round-selector/internal/storage"
)

// DefaultMaxDraws bounds validation re-draws per round.
const DefaultMaxDraws = 3

// Round outcomes, used as status labels in logs, metrics and /status.
const (
	StatusSelected            = "selected"
	StatusNoCandidates        = "no_candidates"
	StatusNoEligible          = "no_eligible"
	StatusValidationExhausted = "validation_exhausted"
	StatusError               = "error"
)

// Errors returned by Run.
var (
	ErrNoCandidates        = errors.New("no candidates from any source")
	ErrValidationExhausted = errors.New("every drawn candidate failed validation")
	ErrRoundInProgress     = errors.New("a round is already running")
)

// Aggregator is the discovery side of a round.
type Aggregator interface {
	FetchAggregatedCandidates(ctx context.Context) *domain.AggregationResult
	ValidateCandidate(ctx context.Context, c *domain.TokenCandidate) bool
}

// Selector draws one mint from a candidate pool. Draw leaves the exclusion
// history alone; Commit records the pick the round finally accepts.
type Selector interface {
	Draw(ctx context.Context, roundID string, snapshot time.Time, candidates []*domain.TokenCandidate, skip map[string]struct{}) (*domain.SelectionAudit, error)
	Commit(ctx context.Context, mint string) error
}

// Result describes a finished round.
type Result struct {
	RoundID      string                 `json:"round_id"`
	Status       string                 `json:"status"`
	Audit        *domain.SelectionAudit `json:"audit,omitempty"`
	Draws        int                    `json:"draws"`
	Rejected     []string               `json:"rejected,omitempty"`
	Candidates   int                    `json:"candidates"`
	SourcesUsed  []string               `json:"sources_used"`
	SnapshotTime time.Time              `json:"snapshot_time"`
	FinishedAt   time.Time              `json:"finished_at"`
	Error        string                 `json:"error,omitempty"`
}

// Runner executes rounds. Only one round runs at a time.
type Runner struct {
	agg       Aggregator
	sel       Selector
	audits    storage.AuditStore
	snapshots storage.SnapshotStore
	maxDraws  int
	logger    *zap.Logger
	now       func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *Result
}

// Option configures Runner.
type Option func(*Runner)

// WithAuditStore persists the audit of every selected round.
func WithAuditStore(s storage.AuditStore) Option {
	return func(r *Runner) {
		r.audits = s
	}
}

// WithSnapshotStore persists the candidate pool of every selected round.
func WithSnapshotStore(s storage.SnapshotStore) Option {
	return func(r *Runner) {
		r.snapshots = s
	}
}

// WithMaxDraws overrides DefaultMaxDraws.
func WithMaxDraws(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxDraws = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a round runner.
func NewRunner(agg Aggregator, sel Selector, opts ...Option) *Runner {
	r := &Runner{
		agg:      agg,
		sel:      sel,
		maxDraws: DefaultMaxDraws,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("round")
	return r
}

// Last returns the most recent finished round, or nil.
func (r *Runner) Last() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// TryRun runs a round unless one is already running.
func (r *Runner) TryRun(ctx context.Context, roundID string) (*Result, error) {
	if !r.running.TryLock() {
		return nil, ErrRoundInProgress
	}
	defer r.running.Unlock()
	return r.run(ctx, roundID)
}

// Run runs a round, waiting for a running one to finish first.
//
// A selected round returns its Result with a nil error unless a sink failed; sink
// errors are returned alongside the Result and never change the chosen mint.
// Rounds without a pick return ErrNoCandidates, selector.ErrNoEligibleCandidates
// or ErrValidationExhausted.
func (r *Runner) Run(ctx context.Context, roundID string) (*Result, error) {
	r.running.Lock()
	defer r.running.Unlock()
	return r.run(ctx, roundID)
}

func (r *Runner) run(ctx context.Context, roundID string) (*Result, error) {
	start := r.now()
	logger := r.logger.With(zap.String("round_id", roundID))

	agg := r.agg.FetchAggregatedCandidates(ctx)
	res := &Result{
		RoundID:      roundID,
		Candidates:   len(agg.Candidates),
		SourcesUsed:  agg.SourcesUsed,
		SnapshotTime: agg.SnapshotTime,
	}

	if agg.Empty() {
		logger.Warn("round voided, no candidates")
		return r.finish(res, start, StatusNoCandidates, ErrNoCandidates)
	}

	byMint := make(map[string]*domain.TokenCandidate, len(agg.Candidates))
	for _, c := range agg.Candidates {
		byMint[c.Mint] = c
	}

	var audit *domain.SelectionAudit
	rejected := make(map[string]struct{})
	for res.Draws < r.maxDraws {
		res.Draws++

		a, err := r.sel.Draw(ctx, roundID, agg.SnapshotTime, agg.Candidates, rejected)
		if errors.Is(err, selector.ErrNoEligibleCandidates) {
			logger.Warn("round voided, no eligible candidates", zap.Int("draw", res.Draws))
			return r.finish(res, start, StatusNoEligible, err)
		}
		if err != nil {
			return r.finish(res, start, StatusError, fmt.Errorf("select round %s: %w", roundID, err))
		}

		if r.agg.ValidateCandidate(ctx, byMint[a.ChosenMint]) {
			audit = a
			break
		}

		rejected[a.ChosenMint] = struct{}{}
		res.Rejected = append(res.Rejected, a.ChosenMint)
		logger.Warn("chosen candidate failed validation, re-drawing",
			zap.String("mint", a.ChosenMint),
			zap.Int("draw", res.Draws),
			zap.Int("max_draws", r.maxDraws))
	}

	if audit == nil {
		return r.finish(res, start, StatusValidationExhausted, ErrValidationExhausted)
	}

	if err := r.sel.Commit(ctx, audit.ChosenMint); err != nil {
		return r.finish(res, start, StatusError, fmt.Errorf("commit round %s: %w", roundID, err))
	}

	res.Audit = audit
	sinkErr := r.emit(ctx, audit, agg.Candidates)
	if sinkErr != nil {
		logger.Error("failed to persist round", zap.Error(sinkErr))
	}

	logger.Info("round selected",
		zap.String("mint", audit.ChosenMint),
		zap.Int("draws", res.Draws),
		zap.Int("candidates", res.Candidates),
		zap.Strings("sources_used", res.SourcesUsed))

	out, _ := r.finish(res, start, StatusSelected, nil)
	return out, sinkErr
}

// emit writes the audit and snapshot rows to the configured stores.
func (r *Runner) emit(ctx context.Context, audit *domain.SelectionAudit, candidates []*domain.TokenCandidate) error {
	var errs []error
	if r.audits != nil {
		if err := r.audits.Insert(ctx, audit); err != nil {
			errs = append(errs, fmt.Errorf("store audit: %w", err))
		}
	}
	if r.snapshots != nil {
		if err := r.snapshots.InsertBulk(ctx, domain.NewCandidateSnapshots(audit, candidates)); err != nil {
			errs = append(errs, fmt.Errorf("store snapshots: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) finish(res *Result, start time.Time, status string, err error) (*Result, error) {
	end := r.now()
	res.Status = status
	res.FinishedAt = end.UTC()
	if err != nil {
		res.Error = err.Error()
	}

	observability.RecordRound(status, res.Draws, end.Sub(start).Seconds(), end.Unix())

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	return res, err
}
