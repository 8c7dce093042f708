package source

import (
	"context"
	"errors"
	"slices"
	"sync"

	"solana-round-selector/internal/dexscreener"
	"solana-round-selector/internal/solana"
)

var errUpstream = errors.New("upstream unavailable")

const wsol = "So11111111111111111111111111111111111111112"

// solPair builds a SOL-quoted pair where 1 token = 0.001 SOL = 0.15 USD.
func solPair(mint string, liquidityUSD float64) dexscreener.Pair {
	p := dexscreener.Pair{
		ChainID:     dexscreener.ChainSolana,
		DexID:       "raydium",
		PairAddress: "pair-" + mint,
		BaseToken:   dexscreener.Token{Address: mint, Symbol: "T" + mint[:1], Name: "Token " + mint},
		QuoteToken:  dexscreener.Token{Address: wsol, Symbol: "SOL"},
		PriceNative: "0.001",
		PriceUSD:    "0.15",
		Volume:      dexscreener.Windows{M5: 1500, H1: 6000},
		PriceChange: dexscreener.Windows{M5: -20},
		Liquidity:   &dexscreener.Liquidity{USD: liquidityUSD},
		MarketCap:   34500,
	}
	p.Txns.M5 = dexscreener.TxnCount{Buys: 9, Sells: 4}
	p.PairCreatedAt = 1700000000000
	return p
}

type fakeIndex struct {
	mu sync.Mutex

	profiles   []string
	boosts     []string
	profileErr error
	boostErr   error

	pairs     map[string][]dexscreener.Pair
	pairsErr  error
	failBatch string // any batch containing this mint fails
	batches   [][]string

	search    map[string][]dexscreener.Pair
	searchErr map[string]error
}

func (f *fakeIndex) LatestProfileMints(ctx context.Context, chain string, limit int) ([]string, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return truncate(f.profiles, limit), nil
}

func (f *fakeIndex) LatestBoostMints(ctx context.Context, chain string, limit int) ([]string, error) {
	if f.boostErr != nil {
		return nil, f.boostErr
	}
	return truncate(f.boosts, limit), nil
}

func truncate(in []string, limit int) []string {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func (f *fakeIndex) TokenPairs(ctx context.Context, chain string, mints []string) ([]dexscreener.Pair, error) {
	f.mu.Lock()
	f.batches = append(f.batches, slices.Clone(mints))
	f.mu.Unlock()

	if f.pairsErr != nil {
		return nil, f.pairsErr
	}
	if f.failBatch != "" && slices.Contains(mints, f.failBatch) {
		return nil, errUpstream
	}
	var out []dexscreener.Pair
	for _, m := range mints {
		out = append(out, f.pairs[m]...)
	}
	return out, nil
}

func (f *fakeIndex) Search(ctx context.Context, query string) ([]dexscreener.Pair, error) {
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.search[query], nil
}

type fakeRPC struct {
	parsed     map[string]*solana.ParsedAccount
	raw        map[string]*solana.AccountInfo
	txs        map[string]*solana.Transaction
	err        error
	parsedHits int
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raw[pubkey], nil
}

func (f *fakeRPC) GetParsedAccountInfo(ctx context.Context, pubkey string) (*solana.ParsedAccount, error) {
	f.parsedHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.parsed[pubkey], nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txs[signature], nil
}

type fakeWS struct {
	ch     chan solana.LogNotification
	filter solana.LogsFilter
}

func (f *fakeWS) SubscribeLogs(ctx context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.filter = filter
	return f.ch, nil
}

func (f *fakeWS) Close() error { return nil }

type staticMints []string

func (s staticMints) Recent(limit int) []string { return truncate(s, limit) }
