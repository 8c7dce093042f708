package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-round-selector/internal/dexscreener"
	"solana-round-selector/internal/domain"
)

func TestKeywordSource_DedupesAcrossQueries(t *testing.T) {
	foreign := solPair("Eth", 1e6)
	foreign.ChainID = "ethereum"

	index := &fakeIndex{search: map[string][]dexscreener.Pair{
		"pump": {solPair("Aaa", 10), foreign},
		"sol":  {solPair("Aaa", 90), solPair("Bbb", 5)},
		"meme": {solPair("Ccc", 1)},
	}}
	src := NewKeywordSource(index, nil, 0, 0, nil)

	got := src.FetchCandidates(context.Background())

	assert.Equal(t, []string{"Aaa", "Bbb", "Ccc"}, mintsOf(got))
	assert.Equal(t, 90.0, got[0].Liquidity)
	assert.Equal(t, KeywordSourceName, got[0].Source)
	assert.Equal(t, domain.HealthHealthy, src.Health())
}

func TestKeywordSource_PartialFailure(t *testing.T) {
	index := &fakeIndex{
		search:    map[string][]dexscreener.Pair{"b": {solPair("Bbb", 5)}},
		searchErr: map[string]error{"a": errUpstream},
	}
	src := NewKeywordSource(index, []string{"a", "b"}, 0, 0, nil)

	got := src.FetchCandidates(context.Background())

	assert.Equal(t, []string{"Bbb"}, mintsOf(got))
	assert.Equal(t, domain.HealthHealthy, src.Health())
}

func TestKeywordSource_AllQueriesFail(t *testing.T) {
	index := &fakeIndex{searchErr: map[string]error{"a": errUpstream, "b": errUpstream}}
	src := NewKeywordSource(index, []string{"a", "b"}, 0, 0, nil)

	got := src.FetchCandidates(context.Background())

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, domain.HealthDegraded, src.Health())
}
