// Package selector picks one target token per round.
//
// A round runs five steps over the aggregated pool:
//
//  1. filter by age, activity and the exclusion window,
//  2. relax with the top-N unfiltered candidates by volume when the strict pool is too small,
//  3. score each eligible candidate on five capped features,
//  4. turn scores into weights with a temperature softmax,
//  5. draw one mint with a single uniform value derived from the round seed.
//
// The draw is a pure function of the audit's seed, eligible order and weights,
// so any audit can be replayed with Replay.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/idhash"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/storage"
)

// Errors returned by the selector.
var (
	// ErrNoEligibleCandidates is the terminal outcome of a round with nothing to pick.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")

	// ErrNoUsedMintStore is returned by New without an exclusion store.
	ErrNoUsedMintStore = errors.New("used mint store is required")

	// ErrMalformedAudit is returned by Replay for audits that cannot be replayed.
	ErrMalformedAudit = errors.New("malformed audit")
)

var tracer = otel.Tracer("selector")

// Selector holds the configuration and the exclusion history of the process.
// Calls are serialized so the exclusion window is consistent across rounds.
type Selector struct {
	cfg    Config
	used   storage.UsedMintStore
	seeder Seeder
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures Selector.
type Option func(*Selector)

// WithSeeder overrides CryptoSeeder.
func WithSeeder(s Seeder) Option {
	return func(sel *Selector) {
		sel.seeder = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(sel *Selector) {
		sel.logger = l
	}
}

// WithClock overrides the clock used for audit creation times.
func WithClock(now func() time.Time) Option {
	return func(sel *Selector) {
		sel.now = now
	}
}

// New validates cfg and creates a selector backed by the given exclusion store.
func New(cfg Config, used storage.UsedMintStore, opts ...Option) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if used == nil {
		return nil, ErrNoUsedMintStore
	}

	s := &Selector{
		cfg:    cfg,
		used:   used,
		seeder: CryptoSeeder,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seeder == nil {
		s.seeder = CryptoSeeder
	}
	s.logger = s.logger.Named("selector")
	return s, nil
}

// Config returns the selector configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// SelectTargetToken filters, scores and draws one mint from candidates, records it
// in the exclusion store and returns the audit of the selection.
// An empty eligible pool returns ErrNoEligibleCandidates and records nothing.
func (s *Selector) SelectTargetToken(ctx context.Context, roundID string, snapshot time.Time, candidates []*domain.TokenCandidate) (*domain.SelectionAudit, error) {
	ctx, span := tracer.Start(ctx, "Selector.SelectTargetToken",
		trace.WithAttributes(
			attribute.String("round_id", roundID),
			attribute.Int("candidates", len(candidates)),
		))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	audit, err := s.draw(ctx, span, roundID, snapshot, candidates, nil)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, audit.ChosenMint); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return audit, nil
}

// Draw is SelectTargetToken without the record step. Mints in skip are ineligible
// for this call only, e.g. picks already rejected earlier in the same round.
// The caller records an accepted pick with Commit, so a round that never accepts
// a pick leaves the exclusion history untouched.
func (s *Selector) Draw(ctx context.Context, roundID string, snapshot time.Time, candidates []*domain.TokenCandidate, skip map[string]struct{}) (*domain.SelectionAudit, error) {
	ctx, span := tracer.Start(ctx, "Selector.Draw",
		trace.WithAttributes(
			attribute.String("round_id", roundID),
			attribute.Int("candidates", len(candidates)),
			attribute.Int("skipped", len(skip)),
		))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.draw(ctx, span, roundID, snapshot, candidates, skip)
}

// Commit records mint as the pick of a round in the exclusion store.
func (s *Selector) Commit(ctx context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(ctx, mint)
}

func (s *Selector) record(ctx context.Context, mint string) error {
	if err := s.used.Record(ctx, mint); err != nil {
		return fmt.Errorf("record chosen mint %s: %w", mint, err)
	}
	return nil
}

// draw runs filter, relax, score, weight and draw. Callers hold s.mu.
func (s *Selector) draw(ctx context.Context, span trace.Span, roundID string, snapshot time.Time, candidates []*domain.TokenCandidate, skip map[string]struct{}) (*domain.SelectionAudit, error) {
	history, err := s.used.Excluded(ctx, s.cfg.ExclusionWindowRounds)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load excluded mints: %w", err)
	}
	excluded := make(map[string]struct{}, len(history)+len(skip))
	for m := range history {
		excluded[m] = struct{}{}
	}
	for m := range skip {
		excluded[m] = struct{}{}
	}

	pool, raw := uniqueCandidates(candidates)
	eligible, relaxations := s.eligible(pool, snapshot, excluded)

	audit := &domain.SelectionAudit{
		RoundID:         roundID,
		SnapshotTime:    snapshot,
		RawCandidates:   raw,
		Filters:         s.cfg.Filters,
		ExclusionWindow: s.cfg.ExclusionWindowRounds,
		Temperature:     s.cfg.Temperature,
		EngineVersion:   s.cfg.EngineVersion,
		Relaxations:     relaxations,
	}

	if len(eligible) == 0 {
		s.logger.Warn("no eligible candidates",
			zap.String("round_id", roundID),
			zap.Int("candidates", len(pool)),
			zap.Int("excluded", len(excluded)),
			zap.Strings("relaxations", relaxations))
		span.SetStatus(codes.Error, ErrNoEligibleCandidates.Error())
		return nil, ErrNoEligibleCandidates
	}

	scores := make([]float64, len(eligible))
	for i, c := range eligible {
		scores[i] = score(c, s.cfg)
	}
	weights := Softmax(scores, s.cfg.Temperature)

	seed, err := s.seeder.Seed(roundID, snapshot)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("seed round %s: %w", roundID, err)
	}
	idx := pick(weights, drawUniform(seed))
	chosen := eligible[idx].Mint

	audit.Eligible = make([]string, len(eligible))
	audit.Scores = make(map[string]float64, len(eligible))
	audit.Weights = make(map[string]float64, len(eligible))
	for i, c := range eligible {
		audit.Eligible[i] = c.Mint
		audit.Scores[c.Mint] = scores[i]
		audit.Weights[c.Mint] = weights[i]
	}
	audit.ChosenMint = chosen
	audit.Seed = seed
	audit.AuditID = idhash.ComputeAuditID(roundID, chosen, seed, s.cfg.EngineVersion)
	audit.CreatedAt = s.now().UTC()

	observability.RecordSelection(len(eligible), relaxations, weights[idx])
	span.SetAttributes(
		attribute.Int("eligible", len(eligible)),
		attribute.String("chosen_mint", chosen),
		attribute.StringSlice("relaxations", relaxations),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Info("target drawn",
		zap.String("round_id", roundID),
		zap.String("mint", chosen),
		zap.String("symbol", eligible[idx].Symbol),
		zap.Float64("weight", weights[idx]),
		zap.Int("eligible", len(eligible)),
		zap.Strings("relaxations", relaxations),
		zap.String("seed", seed))

	return audit, nil
}

// eligible applies the filters and, if the strict pool is too small, the relaxation.
// Strict survivors keep input order; relaxed additions follow in volume order.
func (s *Selector) eligible(pool []*domain.TokenCandidate, snapshot time.Time, excluded map[string]struct{}) ([]*domain.TokenCandidate, []string) {
	var open, strict []*domain.TokenCandidate
	for _, c := range pool {
		if _, ok := excluded[c.Mint]; ok {
			continue
		}
		open = append(open, c)
		if passesFilters(c, s.cfg.Filters, snapshot) {
			strict = append(strict, c)
		}
	}

	relaxations := []string{}
	if len(strict) >= s.cfg.MinPoolSize {
		return strict, relaxations
	}

	relaxations = append(relaxations, RelaxTopNByVolume)
	inStrict := make(map[string]struct{}, len(strict))
	for _, c := range strict {
		inStrict[c.Mint] = struct{}{}
	}

	result := strict
	for _, c := range topByVolume(open, s.cfg.RelaxTopN) {
		if _, ok := inStrict[c.Mint]; !ok {
			result = append(result, c)
		}
	}

	s.logger.Info("relaxed eligibility",
		zap.String("rule", RelaxTopNByVolume),
		zap.Int("strict", len(strict)),
		zap.Int("min_pool_size", s.cfg.MinPoolSize),
		zap.Int("eligible", len(result)))
	return result, relaxations
}

// uniqueCandidates drops nil entries and repeated mints, keeping the first occurrence.
func uniqueCandidates(candidates []*domain.TokenCandidate) ([]*domain.TokenCandidate, []domain.CandidateRef) {
	seen := make(map[string]struct{}, len(candidates))
	pool := make([]*domain.TokenCandidate, 0, len(candidates))
	raw := make([]domain.CandidateRef, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.Mint == "" {
			continue
		}
		if _, dup := seen[c.Mint]; dup {
			continue
		}
		seen[c.Mint] = struct{}{}
		pool = append(pool, c)
		raw = append(raw, domain.CandidateRef{Mint: c.Mint, Symbol: c.Symbol})
	}
	return pool, raw
}

// Replay recomputes the draw of an audit from its seed, eligible order and weights.
func Replay(a *domain.SelectionAudit) (string, error) {
	if a == nil || len(a.Eligible) == 0 || a.Seed == "" {
		return "", ErrMalformedAudit
	}

	weights := make([]float64, len(a.Eligible))
	for i, m := range a.Eligible {
		w, ok := a.Weights[m]
		if !ok {
			return "", fmt.Errorf("%w: no weight for %s", ErrMalformedAudit, m)
		}
		weights[i] = w
	}
	return a.Eligible[pick(weights, drawUniform(a.Seed))], nil
}
