package selector

import (
	"context"
	"errors"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/storage/memory"
)

var snapshot = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// active returns a candidate that passes the default filters.
func active(mint string, vol float64) *domain.TokenCandidate {
	return &domain.TokenCandidate{
		Mint:            mint,
		Symbol:          mint,
		CreatedAt:       snapshot.Add(-10 * time.Minute),
		Volume5m:        vol,
		Volume1h:        vol * 6,
		Trades5m:        80,
		UniqueTraders5m: 30,
		Volatility5m:    0.1,
	}
}

// quiet returns a candidate that fails the default activity filters.
func quiet(mint string, vol float64) *domain.TokenCandidate {
	c := active(mint, vol)
	c.Trades5m = 1
	return c
}

func newSelector(t *testing.T, cfg Config, opts ...Option) (*Selector, *memory.UsedMintStore) {
	t.Helper()
	used := memory.NewUsedMintStore()
	s, err := New(cfg, used, opts...)
	require.NoError(t, err)
	return s, used
}

type failingStore struct {
	excludedErr error
	recordErr   error
}

func (f *failingStore) Excluded(context.Context, int) (map[string]struct{}, error) {
	return map[string]struct{}{}, f.excludedErr
}

func (f *failingStore) Record(context.Context, string) error {
	return f.recordErr
}

func TestSelectTargetToken_SingleCandidateScenario(t *testing.T) {
	s, used := newSelector(t, DefaultConfig())

	x := &domain.TokenCandidate{
		Mint:            "X",
		Volume5m:        50,
		Trades5m:        80,
		UniqueTraders5m: 30,
		CreatedAt:       snapshot.Add(-10 * time.Minute),
	}

	audit, err := s.SelectTargetToken(context.Background(), "round-x", snapshot, []*domain.TokenCandidate{x})
	require.NoError(t, err)

	assert.Equal(t, []string{"X"}, audit.Eligible)
	assert.Equal(t, 1.0, audit.Weights["X"])
	assert.Equal(t, "X", audit.ChosenMint)
	assert.Equal(t, 1, used.Len())
	assert.Len(t, audit.AuditID, 64)
	assert.Equal(t, EngineVersion, audit.EngineVersion)
	assert.Equal(t, []domain.CandidateRef{{Mint: "X"}}, audit.RawCandidates)
}

func TestSelectTargetToken_WeightsFormSimplex(t *testing.T) {
	rng := mrand.New(mrand.NewPCG(1, 2))

	for round := 0; round < 50; round++ {
		cfg := DefaultConfig()
		cfg.Temperature = 0.05 + rng.Float64()
		cfg.ExclusionWindowRounds = 1
		s, _ := newSelector(t, cfg)

		n := 1 + rng.IntN(40)
		pool := make([]*domain.TokenCandidate, n)
		for i := range pool {
			c := active(fmt.Sprintf("mint-%d", i), 10+rng.Float64()*500)
			c.Volume1h = rng.Float64() * 2000
			c.Trades5m = 50 + rng.IntN(1000)
			c.UniqueTraders5m = 25 + rng.IntN(300)
			c.Volatility5m = rng.Float64()
			pool[i] = c
		}

		audit, err := s.SelectTargetToken(context.Background(), fmt.Sprintf("r%d", round), snapshot, pool)
		require.NoError(t, err)

		var sum float64
		for _, w := range audit.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.Len(t, audit.Weights, len(audit.Eligible))
		assert.Contains(t, audit.Eligible, audit.ChosenMint)
	}
}

func TestSelectTargetToken_UsedMintNeverEligible(t *testing.T) {
	s, _ := newSelector(t, DefaultConfig())
	ctx := context.Background()
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 40), active("C", 30), active("D", 20)}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		audit, err := s.SelectTargetToken(ctx, fmt.Sprintf("r%d", i), snapshot, pool)
		require.NoError(t, err)

		for _, m := range audit.Eligible {
			assert.False(t, seen[m], "previously chosen mint %s is eligible", m)
		}
		seen[audit.ChosenMint] = true
	}

	_, err := s.SelectTargetToken(ctx, "r-final", snapshot, pool)
	assert.ErrorIs(t, err, ErrNoEligibleCandidates)
}

func TestSelectTargetToken_SlidingExclusionWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusionWindowRounds = 1
	s, _ := newSelector(t, cfg)
	ctx := context.Background()
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 40)}

	first, err := s.SelectTargetToken(ctx, "r1", snapshot, pool)
	require.NoError(t, err)

	second, err := s.SelectTargetToken(ctx, "r2", snapshot, pool)
	require.NoError(t, err)
	assert.NotContains(t, second.Eligible, first.ChosenMint)
	assert.NotEqual(t, first.ChosenMint, second.ChosenMint)

	third, err := s.SelectTargetToken(ctx, "r3", snapshot, pool)
	require.NoError(t, err)
	assert.Contains(t, third.Eligible, first.ChosenMint)
	assert.NotContains(t, third.Eligible, second.ChosenMint)
}

func TestSelectTargetToken_RelaxationIffStrictPoolTooSmall(t *testing.T) {
	tests := []struct {
		name         string
		pool         []*domain.TokenCandidate
		wantRelaxed  bool
		wantEligible []string
	}{
		{
			name:         "strict pool large enough",
			pool:         []*domain.TokenCandidate{active("A", 50), active("B", 40), active("C", 30), quiet("Q", 900)},
			wantRelaxed:  false,
			wantEligible: []string{"A", "B", "C"},
		},
		{
			name:         "strict pool too small",
			pool:         []*domain.TokenCandidate{active("A", 50), quiet("Q1", 900), quiet("Q2", 20), quiet("Q3", 900)},
			wantRelaxed:  true,
			wantEligible: []string{"A", "Q1", "Q3", "Q2"},
		},
		{
			name:         "nothing passes strictly",
			pool:         []*domain.TokenCandidate{quiet("Q1", 1), quiet("Q2", 2)},
			wantRelaxed:  true,
			wantEligible: []string{"Q2", "Q1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSelector(t, DefaultConfig(), WithSeeder(FixedSeeder("fixed")))

			audit, err := s.SelectTargetToken(context.Background(), "r", snapshot, tt.pool)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRelaxed, audit.Relaxed())
			assert.Equal(t, tt.wantEligible, audit.Eligible)
			if tt.wantRelaxed {
				assert.Equal(t, []string{RelaxTopNByVolume}, audit.Relaxations)
			}
		})
	}
}

func TestSelectTargetToken_RelaxationRespectsTopNAndExclusion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RelaxTopN = 2
	s, used := newSelector(t, cfg, WithSeeder(FixedSeeder("fixed")))
	require.NoError(t, used.Record(context.Background(), "Q1"))

	pool := []*domain.TokenCandidate{quiet("Q1", 900), quiet("Q2", 800), quiet("Q3", 700), quiet("Q4", 600)}

	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q2", "Q3"}, audit.Eligible)
}

func TestSelectTargetToken_AgeBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPoolSize = 1
	s, _ := newSelector(t, cfg)

	young := active("young", 50)
	young.CreatedAt = snapshot.Add(-time.Minute)
	old := active("old", 50)
	old.CreatedAt = snapshot.Add(-25 * time.Hour)
	unknown := active("unknown", 50)
	unknown.CreatedAt = time.Time{}
	ok := active("ok", 50)

	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot,
		[]*domain.TokenCandidate{young, old, unknown, ok})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, audit.Eligible)
	assert.False(t, audit.Relaxed())
}

func TestSelectTargetToken_EmptyPool(t *testing.T) {
	s, used := newSelector(t, DefaultConfig())

	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot, nil)

	assert.ErrorIs(t, err, ErrNoEligibleCandidates)
	assert.Nil(t, audit)
	assert.Zero(t, used.Len())
}

func TestSelectTargetToken_DuplicateMintsCollapsed(t *testing.T) {
	s, _ := newSelector(t, DefaultConfig())

	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot,
		[]*domain.TokenCandidate{active("A", 50), nil, active("A", 10), active("B", 40), active("C", 30)})
	require.NoError(t, err)

	assert.Len(t, audit.RawCandidates, 3)
	assert.Equal(t, []string{"A", "B", "C"}, audit.Eligible)
}

func TestSelectTargetToken_StoreFailures(t *testing.T) {
	boom := errors.New("store down")

	s, err := New(DefaultConfig(), &failingStore{excludedErr: boom})
	require.NoError(t, err)
	_, err = s.SelectTargetToken(context.Background(), "r", snapshot, []*domain.TokenCandidate{active("A", 50)})
	assert.ErrorIs(t, err, boom)

	s, err = New(DefaultConfig(), &failingStore{recordErr: boom})
	require.NoError(t, err)
	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot, []*domain.TokenCandidate{active("A", 50)})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, audit)
}

func TestSelectTargetToken_SeederError(t *testing.T) {
	boom := errors.New("no entropy")
	s, used := newSelector(t, DefaultConfig(), WithSeeder(SeederFunc(func(string, time.Time) (string, error) {
		return "", boom
	})))

	_, err := s.SelectTargetToken(context.Background(), "r", snapshot, []*domain.TokenCandidate{active("A", 50)})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, used.Len())
}

func TestSelectTargetToken_DeterministicForSeed(t *testing.T) {
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 45), active("C", 40), active("D", 35), active("E", 30)}

	for _, seed := range []string{"s1", "s2", "s3", "s4"} {
		a, _ := newSelector(t, DefaultConfig(), WithSeeder(FixedSeeder(seed)))
		b, _ := newSelector(t, DefaultConfig(), WithSeeder(FixedSeeder(seed)))

		auditA, err := a.SelectTargetToken(context.Background(), "r", snapshot, pool)
		require.NoError(t, err)
		auditB, err := b.SelectTargetToken(context.Background(), "r", snapshot, pool)
		require.NoError(t, err)

		assert.Equal(t, auditA.ChosenMint, auditB.ChosenMint)
		assert.Equal(t, auditA.AuditID, auditB.AuditID)
	}
}

func TestDraw_DoesNotRecordUntilCommit(t *testing.T) {
	s, used := newSelector(t, DefaultConfig())
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 40)}

	audit, err := s.Draw(context.Background(), "round-1", snapshot, pool, nil)
	require.NoError(t, err)
	assert.Zero(t, used.Len())

	require.NoError(t, s.Commit(context.Background(), audit.ChosenMint))
	excluded, err := used.Excluded(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{audit.ChosenMint: {}}, excluded)
}

func TestDraw_SkipAppliesToOneCallOnly(t *testing.T) {
	s, used := newSelector(t, DefaultConfig())
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 40)}

	audit, err := s.Draw(context.Background(), "round-1", snapshot, pool, map[string]struct{}{"A": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, audit.Eligible)
	assert.Equal(t, "B", audit.ChosenMint)

	_, err = s.Draw(context.Background(), "round-1", snapshot, pool, map[string]struct{}{"A": {}, "B": {}})
	assert.ErrorIs(t, err, ErrNoEligibleCandidates)

	audit, err = s.Draw(context.Background(), "round-2", snapshot, pool, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, audit.Eligible)
	assert.Zero(t, used.Len())
}

func TestCommit_StoreFailure(t *testing.T) {
	s, err := New(DefaultConfig(), &failingStore{recordErr: errors.New("down")})
	require.NoError(t, err)

	assert.Error(t, s.Commit(context.Background(), "A"))
}

func TestReplay(t *testing.T) {
	s, _ := newSelector(t, DefaultConfig())
	pool := []*domain.TokenCandidate{active("A", 50), active("B", 45), active("C", 40), active("D", 35)}

	audit, err := s.SelectTargetToken(context.Background(), "r", snapshot, pool)
	require.NoError(t, err)

	got, err := Replay(audit)
	require.NoError(t, err)
	assert.Equal(t, audit.ChosenMint, got)
}

func TestReplay_Malformed(t *testing.T) {
	_, err := Replay(nil)
	assert.ErrorIs(t, err, ErrMalformedAudit)

	_, err = Replay(&domain.SelectionAudit{Eligible: []string{"A"}, Seed: "s", Weights: map[string]float64{}})
	assert.ErrorIs(t, err, ErrMalformedAudit)
}

func TestSelectTargetToken_ConcurrentRoundsSerialize(t *testing.T) {
	s, used := newSelector(t, DefaultConfig())

	pool := make([]*domain.TokenCandidate, 10)
	for i := range pool {
		pool[i] = active(fmt.Sprintf("M%d", i), float64(20+i))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		chosen = map[string]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			audit, err := s.SelectTargetToken(context.Background(), fmt.Sprintf("r%d", i), snapshot, pool)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			chosen[audit.ChosenMint]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, chosen, 10)
	assert.Equal(t, 10, used.Len())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNoUsedMintStore)

	cfg := DefaultConfig()
	cfg.Weights.Volume = 0.9
	_, err = New(cfg, memory.NewUsedMintStore())
	assert.ErrorIs(t, err, ErrWeightsSum)

	cfg = DefaultConfig()
	cfg.Temperature = 0
	_, err = New(cfg, memory.NewUsedMintStore())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Filters.MinAgeMinutes = 2000
	_, err = New(cfg, memory.NewUsedMintStore())
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	assert.Empty(t, Softmax(nil, 1))
	assert.Equal(t, []float64{1}, Softmax([]float64{0.3}, 0.25))

	flat := Softmax([]float64{0.1, 0.9}, 100)
	sharp := Softmax([]float64{0.1, 0.9}, 0.01)
	assert.InDelta(t, 0.5, flat[0], 0.01)
	assert.Greater(t, sharp[1], 0.999)

	huge := Softmax([]float64{1000, 1001, 999}, 0.01)
	var sum float64
	for _, w := range huge {
		assert.False(t, math.IsNaN(w))
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	equal := Softmax([]float64{0.4, 0.4, 0.4, 0.4}, 0.25)
	for _, w := range equal {
		assert.InDelta(t, 0.25, w, 1e-12)
	}
}

func TestPick(t *testing.T) {
	weights := []float64{0.2, 0.3, 0.5}

	assert.Equal(t, 0, pick(weights, 0))
	assert.Equal(t, 0, pick(weights, 0.19))
	assert.Equal(t, 1, pick(weights, 0.2))
	assert.Equal(t, 2, pick(weights, 0.99))

	// Residue from rounding goes to the last mint.
	assert.Equal(t, 2, pick([]float64{0.3, 0.3, 0.3999}, 0.99995))
}

func TestScore(t *testing.T) {
	cfg := DefaultConfig()

	maxed := &domain.TokenCandidate{
		Volume5m:        1000,
		Volume1h:        1000,
		Trades5m:        1000,
		UniqueTraders5m: 1000,
		Volatility5m:    5,
	}
	assert.InDelta(t, 1.0, score(maxed, cfg), 1e-12)

	assert.Zero(t, score(&domain.TokenCandidate{}, cfg))

	// 5m volume equal to the hourly average slice gives acceleration 1.
	c := &domain.TokenCandidate{Volume5m: 10, Volume1h: 120}
	assert.InDelta(t, 1.0, acceleration(c, cfg.WindowRatio), 1e-12)
	assert.Zero(t, acceleration(&domain.TokenCandidate{Volume5m: 10}, cfg.WindowRatio))
}

func TestDrawUniform(t *testing.T) {
	a := drawUniform("seed")
	assert.Equal(t, a, drawUniform("seed"))
	assert.NotEqual(t, a, drawUniform("other"))
	assert.GreaterOrEqual(t, a, 0.0)
	assert.Less(t, a, 1.0)
}

func TestCryptoSeeder(t *testing.T) {
	a, err := CryptoSeeder.Seed("r", snapshot)
	require.NoError(t, err)
	b, err := CryptoSeeder.Seed("r", snapshot)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
