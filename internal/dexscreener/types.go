// Package dexscreener is a small client for the DexScreener public market index.
package dexscreener

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ChainSolana is the chain id used by the index for Solana pairs.
const ChainSolana = "solana"

// Token identifies one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// TxnCount holds buy and sell counts for a window.
type TxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// Windows holds a value per rolling window.
type Windows struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

// Liquidity is the pool depth of a pair.
type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// PairInfo carries optional presentation data.
type PairInfo struct {
	ImageURL string `json:"imageUrl"`
}

// Pair is one trading pair as returned by the pair and search endpoints.
// Prices are decimal strings.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   Token  `json:"baseToken"`
	QuoteToken  Token  `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Txns        struct {
		M5  TxnCount `json:"m5"`
		H1  TxnCount `json:"h1"`
		H6  TxnCount `json:"h6"`
		H24 TxnCount `json:"h24"`
	} `json:"txns"`
	Volume        Windows    `json:"volume"`
	PriceChange   Windows    `json:"priceChange"`
	Liquidity     *Liquidity `json:"liquidity"`
	FDV           float64    `json:"fdv"`
	MarketCap     float64    `json:"marketCap"`
	PairCreatedAt int64      `json:"pairCreatedAt"`
	Info          *PairInfo  `json:"info"`
}

// wrappedSOL is the mint the index reports as quote for SOL pairs.
const wrappedSOL = "So11111111111111111111111111111111111111112"

// QuotedInSOL reports whether the quote side of the pair is SOL.
func (p *Pair) QuotedInSOL() bool {
	return p.QuoteToken.Address == wrappedSOL || strings.EqualFold(p.QuoteToken.Symbol, "SOL")
}

// PriceUSDFloat parses PriceUSD; unparsable or missing prices are 0.
func (p *Pair) PriceUSDFloat() float64 {
	return parseDecimal(p.PriceUSD)
}

// PriceNativeFloat parses PriceNative; unparsable or missing prices are 0.
func (p *Pair) PriceNativeFloat() float64 {
	return parseDecimal(p.PriceNative)
}

// LiquidityUSD returns the pool depth in USD, 0 when unknown.
func (p *Pair) LiquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// ImageURL returns the pair image, if any.
func (p *Pair) ImageURL() string {
	if p.Info == nil {
		return ""
	}
	return p.Info.ImageURL
}

func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
