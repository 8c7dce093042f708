package domain

import "time"

// CandidateSnapshot is one candidate as it was seen in a selection round.
// Rows are append-only analytics data keyed by (round_id, mint).
type CandidateSnapshot struct {
	RoundID         string
	SnapshotTime    time.Time
	Mint            string
	Symbol          string
	Source          string
	Volume5m        float64 // SOL
	Volume1h        float64 // SOL
	Trades5m        int
	UniqueTraders5m int
	Volatility5m    float64
	MarketCap       float64 // USD
	Liquidity       float64 // USD
	PriceUSD        float64
	Eligible        bool    // in the eligible pool of the round
	Score           float64 // 0 when not eligible
	Weight          float64 // 0 when not eligible
	Chosen          bool
}

// NewCandidateSnapshots joins the raw candidates of a round with its audit.
func NewCandidateSnapshots(audit *SelectionAudit, candidates []*TokenCandidate) []*CandidateSnapshot {
	eligible := make(map[string]bool, len(audit.Eligible))
	for _, m := range audit.Eligible {
		eligible[m] = true
	}

	out := make([]*CandidateSnapshot, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &CandidateSnapshot{
			RoundID:         audit.RoundID,
			SnapshotTime:    audit.SnapshotTime,
			Mint:            c.Mint,
			Symbol:          c.Symbol,
			Source:          c.Source,
			Volume5m:        c.Volume5m,
			Volume1h:        c.Volume1h,
			Trades5m:        c.Trades5m,
			UniqueTraders5m: c.UniqueTraders5m,
			Volatility5m:    c.Volatility5m,
			MarketCap:       c.MarketCap,
			Liquidity:       c.Liquidity,
			PriceUSD:        c.PriceUSD,
			Eligible:        eligible[c.Mint],
			Score:           audit.Scores[c.Mint],
			Weight:          audit.Weights[c.Mint],
			Chosen:          c.Mint == audit.ChosenMint,
		})
	}
	return out
}
