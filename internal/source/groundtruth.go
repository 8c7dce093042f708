package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/solana"
)

// GroundTruthSourceName is the adapter name.
const GroundTruthSourceName = "solana_rpc"

// GroundTruthSource answers whether a mint exists on-chain.
// It never discovers candidates.
type GroundTruthSource struct {
	rpc    solana.RPCClient
	logger *zap.Logger
	health *HealthTracker
}

// Compile-time interface check.
var _ Source = (*GroundTruthSource)(nil)

// NewGroundTruthSource creates the on-chain ground-truth adapter.
func NewGroundTruthSource(rpc solana.RPCClient, downAfter int, logger *zap.Logger) *GroundTruthSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(GroundTruthSourceName)
	return &GroundTruthSource{
		rpc:    rpc,
		logger: logger,
		health: NewHealthTracker(GroundTruthSourceName, downAfter, logger),
	}
}

func (s *GroundTruthSource) Name() string                { return GroundTruthSourceName }
func (s *GroundTruthSource) Tier() Tier                  { return TierGroundTruth }
func (s *GroundTruthSource) Health() domain.SourceHealth { return s.health.State() }

// FetchCandidates always returns an empty list.
func (s *GroundTruthSource) FetchCandidates(ctx context.Context) []*domain.TokenCandidate {
	return []*domain.TokenCandidate{}
}

// FetchTokenDetails looks the mint account up with jsonParsed encoding.
// Malformed addresses and accounts that are not token mints are reported as
// not found. Economic fields are always zero; name and symbol come from the
// metadata account when one exists.
func (s *GroundTruthSource) FetchTokenDetails(ctx context.Context, mint string) (*domain.TokenMetrics, error) {
	if !solana.IsValidAddress(mint) {
		s.logger.Debug("rejecting malformed mint", zap.String("mint", mint))
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "GroundTruthSource.FetchTokenDetails")
	defer span.End()

	acct, err := s.rpc.GetParsedAccountInfo(ctx, mint)
	if err != nil {
		s.health.RecordFailure()
		observability.RecordSourceFailure(s.Name(), "account")
		return nil, fmt.Errorf("get mint account %s: %w", mint, err)
	}
	s.health.RecordSuccess()

	if !acct.IsMint() {
		return nil, nil
	}

	metrics := &domain.TokenMetrics{
		Mint:      mint,
		Exists:    true,
		Decimals:  acct.Mint.Decimals,
		UpdatedAt: time.Now().UTC(),
	}
	if supply, ok := scaleSupply(acct.Mint.Supply, acct.Mint.Decimals); ok {
		metrics.Supply = &supply
	}

	s.attachMetadata(ctx, mint, metrics)
	return metrics, nil
}

// attachMetadata fills name and symbol. Lookup failures are not fatal.
func (s *GroundTruthSource) attachMetadata(ctx context.Context, mint string, m *domain.TokenMetrics) {
	addr, err := solana.MetadataAddress(mint)
	if err != nil {
		return
	}
	info, err := s.rpc.GetAccountInfo(ctx, addr)
	if err != nil || info == nil {
		if err != nil {
			s.logger.Debug("metadata lookup failed", zap.String("mint", mint), zap.Error(err))
		}
		return
	}
	meta, err := solana.ParseMetadataAccount(info.Data)
	if err != nil {
		s.logger.Debug("metadata parse failed", zap.String("mint", mint), zap.Error(err))
		return
	}
	if meta.Name != "" {
		m.Name = &meta.Name
	}
	if meta.Symbol != "" {
		m.Symbol = &meta.Symbol
	}
}

// scaleSupply converts a raw integer supply to token units.
func scaleSupply(raw string, decimals int) (float64, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	f, _ := d.Shift(int32(-decimals)).Float64()
	return f, true
}
