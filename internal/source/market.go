package source

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-round-selector/internal/dexscreener"
	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
)

// MarketIndex is the subset of the market index client used by the adapters.
type MarketIndex interface {
	LatestProfileMints(ctx context.Context, chain string, limit int) ([]string, error)
	LatestBoostMints(ctx context.Context, chain string, limit int) ([]string, error)
	TokenPairs(ctx context.Context, chain string, mints []string) ([]dexscreener.Pair, error)
	Search(ctx context.Context, query string) ([]dexscreener.Pair, error)
}

// Compile-time interface check.
var _ MarketIndex = (*dexscreener.Client)(nil)

// RecentMints supplies mints observed outside the index feeds, newest first.
type RecentMints interface {
	Recent(limit int) []string
}

// Defaults for MarketPairSource.
const (
	DefaultFeedLimit        = 30
	DefaultFetchTimeout     = 10 * time.Second
	DefaultBatchConcurrency = 4
)

// MarketPairSource discovers fresh and trending tokens from the market index feeds
// and resolves them to pair metrics in batches.
type MarketPairSource struct {
	index            MarketIndex
	launches         RecentMints
	feedLimit        int
	timeout          time.Duration
	batchConcurrency int
	downAfter        int
	logger           *zap.Logger
	health           *HealthTracker
}

// Compile-time interface check.
var _ Source = (*MarketPairSource)(nil)

// MarketOption configures MarketPairSource.
type MarketOption func(*MarketPairSource)

// WithFeedLimit caps the number of mints taken from each feed.
func WithFeedLimit(n int) MarketOption {
	return func(s *MarketPairSource) {
		s.feedLimit = n
	}
}

// WithFetchTimeout bounds one FetchCandidates call.
func WithFetchTimeout(d time.Duration) MarketOption {
	return func(s *MarketPairSource) {
		s.timeout = d
	}
}

// WithLaunchFeed adds on-chain launches as a third mint feed.
func WithLaunchFeed(r RecentMints) MarketOption {
	return func(s *MarketPairSource) {
		s.launches = r
	}
}

// WithBatchConcurrency limits concurrent pair lookups.
func WithBatchConcurrency(n int) MarketOption {
	return func(s *MarketPairSource) {
		s.batchConcurrency = n
	}
}

// WithMarketLogger sets the logger.
func WithMarketLogger(l *zap.Logger) MarketOption {
	return func(s *MarketPairSource) {
		s.logger = l
	}
}

// WithMarketDownAfter sets consecutive failures before the source is down.
func WithMarketDownAfter(n int) MarketOption {
	return func(s *MarketPairSource) {
		s.downAfter = n
	}
}

// MarketPairSourceName is the adapter name.
const MarketPairSourceName = "market_pairs"

// NewMarketPairSource creates the market-pair adapter.
func NewMarketPairSource(index MarketIndex, opts ...MarketOption) *MarketPairSource {
	s := &MarketPairSource{
		index:            index,
		feedLimit:        DefaultFeedLimit,
		timeout:          DefaultFetchTimeout,
		batchConcurrency: DefaultBatchConcurrency,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named(MarketPairSourceName)
	s.health = NewHealthTracker(MarketPairSourceName, s.downAfter, s.logger)
	return s
}

func (s *MarketPairSource) Name() string                { return MarketPairSourceName }
func (s *MarketPairSource) Tier() Tier                  { return TierPrimary }
func (s *MarketPairSource) Health() domain.SourceHealth { return s.health.State() }

// FetchCandidates collects mints from every feed, resolves them in batches and
// maps each mint's most liquid pair to a candidate.
func (s *MarketPairSource) FetchCandidates(ctx context.Context) []*domain.TokenCandidate {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "MarketPairSource.FetchCandidates")
	defer span.End()

	mints, feedsOK := s.collectMints(ctx)
	if !feedsOK {
		s.fail(span, "feeds", "all mint feeds failed")
		return []*domain.TokenCandidate{}
	}
	if len(mints) == 0 {
		s.health.RecordSuccess()
		observability.RecordSourceFetch(s.Name(), 0, time.Since(start).Seconds())
		return []*domain.TokenCandidate{}
	}

	pairs, batchesOK := s.resolve(ctx, mints)
	if !batchesOK {
		s.fail(span, "pairs", "all pair batches failed")
		return []*domain.TokenCandidate{}
	}

	requested := make(map[string]struct{}, len(mints))
	for _, m := range mints {
		requested[m] = struct{}{}
	}
	best := mostLiquidBySolanaMint(pairs, func(mint string) bool {
		_, ok := requested[mint]
		return ok
	})

	out := make([]*domain.TokenCandidate, 0, len(best))
	for _, p := range best {
		out = append(out, pairToCandidate(p, s.Name()))
	}

	s.health.RecordSuccess()
	span.SetAttributes(
		attribute.Int("mints", len(mints)),
		attribute.Int("candidates", len(out)),
	)
	span.SetStatus(codes.Ok, "")
	observability.RecordSourceFetch(s.Name(), len(out), time.Since(start).Seconds())
	return out
}

// collectMints reads the feeds concurrently and returns their union in feed order.
// ok is false only when every configured feed failed.
func (s *MarketPairSource) collectMints(ctx context.Context) ([]string, bool) {
	var profiles, boosts []string
	var profileErr, boostErr error

	var g errgroup.Group
	g.Go(func() error {
		profiles, profileErr = s.index.LatestProfileMints(ctx, dexscreener.ChainSolana, s.feedLimit)
		return nil
	})
	g.Go(func() error {
		boosts, boostErr = s.index.LatestBoostMints(ctx, dexscreener.ChainSolana, s.feedLimit)
		return nil
	})
	g.Wait()

	if profileErr != nil {
		s.logger.Warn("profile feed failed", zap.Error(profileErr))
		observability.RecordSourceFailure(s.Name(), "profiles")
	}
	if boostErr != nil {
		s.logger.Warn("boost feed failed", zap.Error(boostErr))
		observability.RecordSourceFailure(s.Name(), "boosts")
	}

	var launches []string
	if s.launches != nil {
		launches = s.launches.Recent(s.feedLimit)
	}

	if profileErr != nil && boostErr != nil && len(launches) == 0 {
		return nil, false
	}

	seen := make(map[string]struct{})
	var mints []string
	for _, feed := range [][]string{profiles, boosts, launches} {
		for _, m := range feed {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			mints = append(mints, m)
		}
	}
	return mints, true
}

// resolve looks mints up in batches. A failed batch is discarded; ok is false
// only when every batch failed.
func (s *MarketPairSource) resolve(ctx context.Context, mints []string) ([]dexscreener.Pair, bool) {
	var batches [][]string
	for i := 0; i < len(mints); i += dexscreener.MaxBatchSize {
		end := min(i+dexscreener.MaxBatchSize, len(mints))
		batches = append(batches, mints[i:end])
	}

	results := make([][]dexscreener.Pair, len(batches))
	var (
		mu     sync.Mutex
		failed int
	)

	var g errgroup.Group
	if s.batchConcurrency > 0 {
		g.SetLimit(s.batchConcurrency)
	}
	for i, batch := range batches {
		g.Go(func() error {
			pairs, err := s.index.TokenPairs(ctx, dexscreener.ChainSolana, batch)
			if err != nil {
				s.logger.Warn("pair batch failed", zap.Int("batch", i), zap.Int("size", len(batch)), zap.Error(err))
				observability.RecordSourceFailure(s.Name(), "pairs")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = pairs
			return nil
		})
	}
	g.Wait()

	if failed == len(batches) {
		return nil, false
	}

	var all []dexscreener.Pair
	for _, r := range results {
		all = append(all, r...)
	}
	return all, true
}

func (s *MarketPairSource) fail(span trace.Span, op, msg string) {
	s.health.RecordFailure()
	span.SetStatus(codes.Error, msg)
	s.logger.Warn("fetch candidates failed", zap.String("stage", op), zap.Stringer("health", s.health.State()))
}

// FetchTokenDetails returns the most liquid pair's metrics for mint.
// A mint without any Solana pair is reported as not found.
func (s *MarketPairSource) FetchTokenDetails(ctx context.Context, mint string) (*domain.TokenMetrics, error) {
	pairs, err := s.index.TokenPairs(ctx, dexscreener.ChainSolana, []string{mint})
	if err != nil {
		observability.RecordSourceFailure(s.Name(), "details")
		return nil, err
	}
	return pairsToMetrics(pairs, mint), nil
}

func pairsToMetrics(pairs []dexscreener.Pair, mint string) *domain.TokenMetrics {
	best := mostLiquidBySolanaMint(pairs, func(m string) bool { return m == mint })
	if len(best) == 0 {
		return nil
	}
	p := best[0]
	marketCap := p.MarketCap
	if marketCap == 0 {
		marketCap = p.FDV
	}
	return &domain.TokenMetrics{
		Mint:      mint,
		Exists:    true,
		PriceUSD:  p.PriceUSDFloat(),
		Liquidity: p.LiquidityUSD(),
		Volume24h: p.Volume.H24,
		MarketCap: marketCap,
		UpdatedAt: time.Now().UTC(),
	}
}
