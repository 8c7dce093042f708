package domain

import "time"

// TokenMetrics is a point-in-time snapshot of one token used for detail lookups
// and validation, never for discovery.
type TokenMetrics struct {
	Mint      string    // token mint address
	Exists    bool      // account exists on-chain (or pair exists in the index)
	PriceUSD  float64   // 0 when the source cannot price the token
	Liquidity float64   // USD
	Volume24h float64   // USD
	MarketCap float64   // USD
	UpdatedAt time.Time // when the snapshot was taken

	// On-chain fields, filled by ground-truth lookups.
	Name     *string  // token name (nullable)
	Symbol   *string  // token symbol (nullable)
	Decimals int      // token decimals
	Supply   *float64 // total supply adjusted for decimals (nullable)
}
