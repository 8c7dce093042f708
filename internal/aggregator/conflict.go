package aggregator

import "solana-round-selector/internal/domain"

// ConflictPolicy decides which of two candidates with the same mint is kept.
// kept is the candidate already in the pool; incoming arrived later in source order.
type ConflictPolicy interface {
	Resolve(kept, incoming *domain.TokenCandidate) *domain.TokenCandidate
}

// ConflictPolicyFunc adapts a function to ConflictPolicy.
type ConflictPolicyFunc func(kept, incoming *domain.TokenCandidate) *domain.TokenCandidate

// Resolve calls f(kept, incoming).
func (f ConflictPolicyFunc) Resolve(kept, incoming *domain.TokenCandidate) *domain.TokenCandidate {
	return f(kept, incoming)
}

// PreferPriced keeps the first candidate unless it has no price and the incoming one does.
var PreferPriced ConflictPolicy = ConflictPolicyFunc(func(kept, incoming *domain.TokenCandidate) *domain.TokenCandidate {
	if !kept.HasPrice() && incoming.HasPrice() {
		return incoming
	}
	return kept
})

// PreferLiquid keeps whichever candidate reports deeper liquidity, the first one on ties.
var PreferLiquid ConflictPolicy = ConflictPolicyFunc(func(kept, incoming *domain.TokenCandidate) *domain.TokenCandidate {
	if incoming.Liquidity > kept.Liquidity {
		return incoming
	}
	return kept
})

// PolicyByName returns a named policy. Unknown names return nil.
func PolicyByName(name string) ConflictPolicy {
	switch name {
	case "", "prefer_priced":
		return PreferPriced
	case "prefer_liquid":
		return PreferLiquid
	default:
		return nil
	}
}
