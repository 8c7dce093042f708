package source

import (
	"math"
	"strings"
	"time"

	"solana-round-selector/internal/dexscreener"
	"solana-round-selector/internal/domain"
)

// bondingCurveCapUSD is the market cap at which a bonding curve launch graduates.
const bondingCurveCapUSD = 69000.0

// bondingCurveSuffix marks mints minted by the bonding curve launchpad.
const bondingCurveSuffix = "pump"

// pairToCandidate maps one index pair onto a candidate for its base token.
func pairToCandidate(p *dexscreener.Pair, sourceName string) *domain.TokenCandidate {
	priceUSD := p.PriceUSDFloat()

	c := &domain.TokenCandidate{
		Mint:            p.BaseToken.Address,
		Symbol:          p.BaseToken.Symbol,
		Name:            p.BaseToken.Name,
		Volume5m:        volumeInSOL(p, p.Volume.M5),
		Volume1h:        volumeInSOL(p, p.Volume.H1),
		Trades5m:        p.Txns.M5.Buys + p.Txns.M5.Sells,
		UniqueTraders5m: max(p.Txns.M5.Buys, p.Txns.M5.Sells),
		Volatility5m:    math.Abs(p.PriceChange.M5) / 100,
		MarketCap:       p.MarketCap,
		Liquidity:       p.LiquidityUSD(),
		PriceUSD:        priceUSD,
		ImageURL:        p.ImageURL(),
		PairAddress:     p.PairAddress,
		DexID:           p.DexID,
		Source:          sourceName,
	}
	if c.MarketCap == 0 {
		c.MarketCap = p.FDV
	}
	if p.PairCreatedAt > 0 {
		c.CreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}

	progress := bondingProgress(c.Mint, c.MarketCap)
	c.BondingProgress = &progress

	return c
}

// volumeInSOL converts a USD volume to SOL using the pair's own prices.
// Pairs not quoted in SOL report 0.
func volumeInSOL(p *dexscreener.Pair, volumeUSD float64) float64 {
	if !p.QuotedInSOL() {
		return 0
	}
	priceUSD := p.PriceUSDFloat()
	if priceUSD <= 0 {
		return 0
	}
	return volumeUSD * p.PriceNativeFloat() / priceUSD
}

// bondingProgress estimates curve completion in percent.
// Tokens not launched on a curve are treated as graduated.
func bondingProgress(mint string, marketCapUSD float64) float64 {
	if !strings.HasSuffix(mint, bondingCurveSuffix) {
		return 100
	}
	return math.Min(marketCapUSD/bondingCurveCapUSD*100, 100)
}

// mostLiquidBySolanaMint keeps, per base mint, the pair with the highest USD liquidity.
// When accept is non-nil, only mints it returns true for are kept.
// The returned order is the order of first appearance.
func mostLiquidBySolanaMint(pairs []dexscreener.Pair, accept func(mint string) bool) []*dexscreener.Pair {
	best := make(map[string]int)
	var out []*dexscreener.Pair

	for i := range pairs {
		p := &pairs[i]
		mint := p.BaseToken.Address
		if p.ChainID != dexscreener.ChainSolana || mint == "" {
			continue
		}
		if accept != nil && !accept(mint) {
			continue
		}
		if idx, ok := best[mint]; ok {
			if p.LiquidityUSD() > out[idx].LiquidityUSD() {
				out[idx] = p
			}
			continue
		}
		best[mint] = len(out)
		out = append(out, p)
	}
	return out
}
