package domain

import "time"

// TokenCandidate represents a discovered token eligible for round selection.
// Identity is Mint: two candidates with the same mint are the same token.
type TokenCandidate struct {
	Mint            string    // token mint address (identity key)
	Symbol          string    // ticker symbol
	Name            string    // display name
	CreatedAt       time.Time // pair/listing creation time
	Volume5m        float64   // 5-minute volume in SOL
	Volume1h        float64   // 1-hour volume in SOL
	Trades5m        int       // buys + sells in the last 5 minutes
	UniqueTraders5m int       // distinct trader estimate in the last 5 minutes
	Volatility5m    float64   // |5m price change| as a fraction

	BondingProgress *float64 // bonding curve completion in percent (nullable)
	MarketCap       float64  // USD, 0 when unknown
	Liquidity       float64  // USD, 0 when unknown
	PriceUSD        float64  // USD, 0 when unknown
	ImageURL        string   // optional

	PairAddress string // pair the metrics were read from
	DexID       string // venue of the pair
	Source      string // name of the adapter that produced the candidate
}

// HasPrice reports whether the candidate carries a usable (positive) price.
func (c *TokenCandidate) HasPrice() bool {
	return c.PriceUSD > 0
}

// AgeAt returns the candidate age relative to t.
// Candidates without a creation time report zero age.
func (c *TokenCandidate) AgeAt(t time.Time) time.Duration {
	if c.CreatedAt.IsZero() {
		return 0
	}
	return t.Sub(c.CreatedAt)
}

// CandidateRef is the minimal mint+symbol reference kept in audits.
type CandidateRef struct {
	Mint   string `json:"mint"`
	Symbol string `json:"symbol"`
}
