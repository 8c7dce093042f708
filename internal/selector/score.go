package selector

import (
	"math"
	"sort"
	"time"

	"solana-round-selector/internal/domain"
)

// passesFilters reports whether c meets every threshold at snapshot time.
func passesFilters(c *domain.TokenCandidate, f domain.FilterSet, snapshot time.Time) bool {
	ageMinutes := c.AgeAt(snapshot).Minutes()
	if ageMinutes < f.MinAgeMinutes || ageMinutes > f.MaxAgeHours*60 {
		return false
	}
	return c.Volume5m >= f.MinVolume5m &&
		c.Trades5m >= f.MinTrades5m &&
		c.UniqueTraders5m >= f.MinUniqueTraders5m
}

// topByVolume returns up to n candidates ordered by Volume5m desc, mint asc on ties.
func topByVolume(pool []*domain.TokenCandidate, n int) []*domain.TokenCandidate {
	sorted := make([]*domain.TokenCandidate, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Volume5m != sorted[j].Volume5m {
			return sorted[i].Volume5m > sorted[j].Volume5m
		}
		return sorted[i].Mint < sorted[j].Mint
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// acceleration compares the 5m volume with the average 5m slice of the last hour.
func acceleration(c *domain.TokenCandidate, windowRatio float64) float64 {
	if c.Volume1h <= 0 {
		return 0
	}
	return c.Volume5m / (c.Volume1h / windowRatio)
}

// normalize maps x onto [0,1] as min(x/cap, 1).
func normalize(x, limit float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	return math.Min(x/limit, 1)
}

// score is the weighted sum of the five normalized features, in [0,1].
func score(c *domain.TokenCandidate, cfg Config) float64 {
	return cfg.Weights.Volume*normalize(c.Volume5m, cfg.Caps.Volume5m) +
		cfg.Weights.UniqueTraders*normalize(float64(c.UniqueTraders5m), cfg.Caps.UniqueTraders5m) +
		cfg.Weights.Trades*normalize(float64(c.Trades5m), cfg.Caps.Trades5m) +
		cfg.Weights.Acceleration*normalize(acceleration(c, cfg.WindowRatio), cfg.Caps.Acceleration) +
		cfg.Weights.Volatility*normalize(c.Volatility5m, cfg.Caps.Volatility)
}

// Softmax converts scores into a probability simplex at temperature t.
// The maximum is subtracted before exponentiation. A single score gets exactly 1.
func Softmax(scores []float64, t float64) []float64 {
	weights := make([]float64, len(scores))
	switch len(scores) {
	case 0:
		return weights
	case 1:
		weights[0] = 1
		return weights
	}

	hi := scores[0]
	for _, s := range scores[1:] {
		hi = math.Max(hi, s)
	}

	var sum float64
	for i, s := range scores {
		weights[i] = math.Exp((s - hi) / t)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// pick walks the CDF of weights in order and returns the first index whose
// cumulative weight exceeds u. The last index absorbs rounding residue.
func pick(weights []float64, u float64) int {
	var cum float64
	for i, w := range weights {
		cum += w
		if u < cum {
			return i
		}
	}
	return len(weights) - 1
}
