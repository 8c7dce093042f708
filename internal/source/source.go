// Package source holds the data source adapters that discover and look up tokens.
//
// Adapters never fail a round: FetchCandidates swallows errors, logs them and
// reports an empty list while degrading the adapter's health.
package source

import (
	"context"

	"go.opentelemetry.io/otel"

	"solana-round-selector/internal/domain"
)

// Tier classifies an adapter.
type Tier int

const (
	// TierPrimary adapters discover candidates.
	TierPrimary Tier = 1
	// TierGroundTruth adapters answer existence lookups only.
	TierGroundTruth Tier = 2
)

// String returns the string representation of Tier.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierGroundTruth:
		return "ground_truth"
	default:
		return "unknown"
	}
}

// Source is the capability every data source adapter implements.
type Source interface {
	// Name returns a stable adapter name used in logs, metrics and candidate provenance.
	Name() string

	// Tier returns the adapter tier.
	Tier() Tier

	// FetchCandidates returns the adapter's current candidate list.
	// On failure it returns an empty list and degrades health.
	FetchCandidates(ctx context.Context) []*domain.TokenCandidate

	// FetchTokenDetails looks up one mint.
	// Returns (nil, nil) when the token does not exist.
	FetchTokenDetails(ctx context.Context, mint string) (*domain.TokenMetrics, error)

	// Health returns the adapter health without blocking.
	Health() domain.SourceHealth
}

var tracer = otel.Tracer("source")
