package source

import (
	"context"
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

// KeywordSourceName is the adapter name.
const KeywordSourceName = "keyword_search"

// DefaultQueries are the search terms used when none are configured.
var DefaultQueries = []string{"pump", "sol", "meme", "new"}

// KeywordSource discovers tokens by running fixed free-text searches.
type KeywordSource struct {
	index   MarketIndex
	queries []string
	timeout time.Duration
	logger  *zap.Logger
	health  *HealthTracker
}

// Compile-time interface check.
var _ Source = (*KeywordSource)(nil)

// NewKeywordSource creates the keyword-search adapter.
// Empty queries fall back to DefaultQueries; a nil logger discards logs.
func NewKeywordSource(index MarketIndex, queries []string, timeout time.Duration, downAfter int, logger *zap.Logger) *KeywordSource {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(KeywordSourceName)
	return &KeywordSource{
		index:   index,
		queries: queries,
		timeout: timeout,
		logger:  logger,
		health:  NewHealthTracker(KeywordSourceName, downAfter, logger),
	}
}

func (s *KeywordSource) Name() string                { return KeywordSourceName }
func (s *KeywordSource) Tier() Tier                  { return TierPrimary }
func (s *KeywordSource) Health() domain.SourceHealth { return s.health.State() }

// FetchCandidates runs every query concurrently and keeps the most liquid
// Solana pair per mint. Results follow query order.
func (s *KeywordSource) FetchCandidates(ctx context.Context) []*domain.TokenCandidate {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "KeywordSource.FetchCandidates",
		trace.WithAttributes(attribute.StringSlice("queries", s.queries)))
	defer span.End()

	results := make([][]dexscreener.Pair, len(s.queries))
	errs := make([]error, len(s.queries))

	var g errgroup.Group
	for i, q := range s.queries {
		g.Go(func() error {
			results[i], errs[i] = s.index.Search(ctx, q)
			return nil
		})
	}
	g.Wait()

	failed := 0
	var all []dexscreener.Pair
	for i, err := range errs {
		if err != nil {
			failed++
			s.logger.Warn("search failed", zap.String("query", s.queries[i]), zap.Error(err))
			observability.RecordSourceFailure(s.Name(), "search")
			continue
		}
		all = append(all, results[i]...)
	}

	if failed == len(s.queries) {
		s.health.RecordFailure()
		span.SetStatus(codes.Error, "all searches failed")
		return []*domain.TokenCandidate{}
	}

	best := mostLiquidBySolanaMint(all, nil)
	out := make([]*domain.TokenCandidate, 0, len(best))
	for _, p := range best {
		out = append(out, pairToCandidate(p, s.Name()))
	}

	s.health.RecordSuccess()
	span.SetAttributes(attribute.Int("candidates", len(out)))
	span.SetStatus(codes.Ok, "")
	observability.RecordSourceFetch(s.Name(), len(out), time.Since(start).Seconds())
	return out
}

// FetchTokenDetails resolves the mint through the pair lookup.
func (s *KeywordSource) FetchTokenDetails(ctx context.Context, mint string) (*domain.TokenMetrics, error) {
	pairs, err := s.index.TokenPairs(ctx, dexscreener.ChainSolana, []string{mint})
	if err != nil {
		observability.RecordSourceFailure(s.Name(), "details")
		return nil, err
	}
	return pairsToMetrics(pairs, mint), nil
}
