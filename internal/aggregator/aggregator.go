// Package aggregator fans candidate discovery out over the primary sources,
// merges the results into one deduplicated pool and validates picks against
// the ground-truth source.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/source"
)

// Errors returned by New.
var (
	ErrNoPrimarySources = errors.New("at least one primary source is required")
	ErrNoGroundTruth    = errors.New("ground-truth source is required")
	ErrWrongTier        = errors.New("source registered with the wrong tier")
)

// anomalyLiquidityRatio flags candidates whose liquidity exceeds this multiple of market cap.
const anomalyLiquidityRatio = 2.0

var tracer = otel.Tracer("aggregator")

// Aggregator merges primary sources into one candidate pool per round.
type Aggregator struct {
	primary       []source.Source
	truth         source.Source
	policy        ConflictPolicy
	sourceTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures Aggregator.
type Option func(*Aggregator)

// WithConflictPolicy overrides PreferPriced.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(a *Aggregator) {
		a.policy = p
	}
}

// WithSourceTimeout bounds each source call. Zero leaves bounding to the sources.
func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.sourceTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithClock overrides the snapshot clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New creates an aggregator over primary sources and one ground-truth source.
func New(primary []source.Source, truth source.Source, opts ...Option) (*Aggregator, error) {
	if len(primary) == 0 {
		return nil, ErrNoPrimarySources
	}
	if truth == nil {
		return nil, ErrNoGroundTruth
	}
	for _, s := range primary {
		if s.Tier() != source.TierPrimary {
			return nil, fmt.Errorf("%w: %s is %s", ErrWrongTier, s.Name(), s.Tier())
		}
	}
	if truth.Tier() != source.TierGroundTruth {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongTier, truth.Name(), truth.Tier())
	}

	a := &Aggregator{
		primary: primary,
		truth:   truth,
		policy:  PreferPriced,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.policy == nil {
		a.policy = PreferPriced
	}
	a.logger = a.logger.Named("aggregator")
	return a, nil
}

// FetchAggregatedCandidates queries every primary source concurrently, waits for
// all of them and merges the results in source order. It never fails: an empty
// pool is reported through logs and metrics and returned as is.
func (a *Aggregator) FetchAggregatedCandidates(ctx context.Context) *domain.AggregationResult {
	ctx, span := tracer.Start(ctx, "Aggregator.FetchAggregatedCandidates")
	defer span.End()

	snapshot := a.now().UTC()
	lists := make([][]*domain.TokenCandidate, len(a.primary))
	reports := make([]domain.SourceReport, len(a.primary))

	var g errgroup.Group
	for i, src := range a.primary {
		g.Go(func() error {
			start := time.Now()
			lists[i] = a.fetch(ctx, src)
			reports[i] = domain.SourceReport{
				Name:     src.Name(),
				Count:    len(lists[i]),
				Health:   src.Health(),
				Duration: time.Since(start),
			}
			return nil
		})
	}
	g.Wait()

	result := &domain.AggregationResult{
		SnapshotTime: snapshot,
		Reports:      reports,
	}

	index := make(map[string]int)
	for i, list := range lists {
		contributed := false
		for _, c := range list {
			if c == nil || c.Mint == "" {
				continue
			}
			contributed = true
			if pos, ok := index[c.Mint]; ok {
				result.Candidates[pos] = a.policy.Resolve(result.Candidates[pos], c)
				continue
			}
			index[c.Mint] = len(result.Candidates)
			result.Candidates = append(result.Candidates, c)
		}
		if contributed {
			result.SourcesUsed = append(result.SourcesUsed, a.primary[i].Name())
		}
	}

	for _, r := range reports {
		a.logger.Info("source fetched",
			zap.String("source", r.Name),
			zap.Int("candidates", r.Count),
			zap.Stringer("health", r.Health),
			zap.Duration("duration", r.Duration))
	}

	observability.RecordAggregation(len(result.Candidates))
	span.SetAttributes(
		attribute.Int("candidates", len(result.Candidates)),
		attribute.StringSlice("sources_used", result.SourcesUsed),
	)

	if result.Empty() {
		a.logger.Warn("no candidates from any source", zap.Int("sources", len(a.primary)))
		span.SetStatus(codes.Error, "empty candidate pool")
		return result
	}

	a.logger.Info("aggregated candidates",
		zap.Int("unique", len(result.Candidates)),
		zap.Strings("sources_used", result.SourcesUsed))
	span.SetStatus(codes.Ok, "")
	return result
}

// fetch calls one source, abandoning it once the source deadline passes.
func (a *Aggregator) fetch(ctx context.Context, src source.Source) []*domain.TokenCandidate {
	if a.sourceTimeout <= 0 {
		return src.FetchCandidates(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()

	done := make(chan []*domain.TokenCandidate, 1)
	go func() {
		done <- src.FetchCandidates(ctx)
	}()

	select {
	case list := <-done:
		return list
	case <-ctx.Done():
		a.logger.Warn("source timed out", zap.String("source", src.Name()), zap.Duration("timeout", a.sourceTimeout))
		observability.RecordSourceFailure(src.Name(), "timeout")
		return nil
	}
}

// ValidateCandidate checks the candidate against the ground-truth source.
// Unknown mints and lookup failures are rejected. Economic anomalies are only logged.
func (a *Aggregator) ValidateCandidate(ctx context.Context, c *domain.TokenCandidate) bool {
	ctx, span := tracer.Start(ctx, "Aggregator.ValidateCandidate")
	defer span.End()
	span.SetAttributes(attribute.String("mint", c.Mint))

	m, err := a.truth.FetchTokenDetails(ctx, c.Mint)
	if err != nil {
		a.logger.Warn("validation lookup failed, rejecting",
			zap.String("mint", c.Mint), zap.String("source", a.truth.Name()), zap.Error(err))
		observability.RecordValidation("error")
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	if m == nil || !m.Exists {
		a.logger.Warn("candidate not found in ground truth", zap.String("mint", c.Mint))
		observability.RecordValidation("not_found")
		return false
	}

	if c.MarketCap > 0 && c.Liquidity > anomalyLiquidityRatio*c.MarketCap {
		a.logger.Warn("liquidity exceeds market cap",
			zap.String("mint", c.Mint),
			zap.Float64("liquidity_usd", c.Liquidity),
			zap.Float64("market_cap_usd", c.MarketCap))
		observability.RecordValidation("anomaly")
	} else {
		observability.RecordValidation("valid")
	}
	span.SetStatus(codes.Ok, "")
	return true
}

// Sources returns the names and health of every registered source.
func (a *Aggregator) Sources() []domain.SourceReport {
	out := make([]domain.SourceReport, 0, len(a.primary)+1)
	for _, s := range a.primary {
		out = append(out, domain.SourceReport{Name: s.Name(), Health: s.Health()})
	}
	return append(out, domain.SourceReport{Name: a.truth.Name(), Health: a.truth.Health()})
}
