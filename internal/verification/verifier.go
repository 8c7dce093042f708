// Package verification replays selection audits and reports every field that
// does not hold up: the weight simplex, the softmax of the recorded scores,
// eligibility of the chosen mint, the audit id and the seeded draw itself.
package verification

import (
	"math"
	"sort"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/idhash"
	"solana-round-selector/internal/selector"
)

// FloatTolerance bounds float comparisons of weights.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      `json:"field" yaml:"field"`
	Expected interface{} `json:"expected" yaml:"expected"`
	Actual   interface{} `json:"actual" yaml:"actual"`
}

// VerificationResult contains the result of verifying one audit.
type VerificationResult struct {
	RoundID        string            `json:"round_id" yaml:"round_id"`
	AuditID        string            `json:"audit_id" yaml:"audit_id"`
	Match          bool              `json:"match" yaml:"match"`
	Divergences    []FieldDivergence `json:"divergences,omitempty" yaml:"divergences,omitempty"`
	StoredChosen   string            `json:"stored_chosen" yaml:"stored_chosen"`
	ReplayedChosen string            `json:"replayed_chosen" yaml:"replayed_chosen"`
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalAudits     int                  `json:"total_audits" yaml:"total_audits"`
	MatchedAudits   int                  `json:"matched_audits" yaml:"matched_audits"`
	DivergentAudits int                  `json:"divergent_audits" yaml:"divergent_audits"`
	Results         []VerificationResult `json:"results" yaml:"results"`
}

// add appends a result and updates the counters.
func (r *VerificationReport) add(res VerificationResult) {
	r.TotalAudits++
	if res.Match {
		r.MatchedAudits++
	} else {
		r.DivergentAudits++
	}
	r.Results = append(r.Results, res)
}

// VerifyAudit checks an audit against itself and, when engineVersion is not
// empty, against the running engine version.
func VerifyAudit(a *domain.SelectionAudit, engineVersion string) *VerificationResult {
	res := &VerificationResult{
		RoundID:      a.RoundID,
		AuditID:      a.AuditID,
		StoredChosen: a.ChosenMint,
	}
	diverge := func(field string, expected, actual interface{}) {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if engineVersion != "" && a.EngineVersion != engineVersion {
		diverge("EngineVersion", a.EngineVersion, engineVersion)
	}

	if id := idhash.ComputeAuditID(a.RoundID, a.ChosenMint, a.Seed, a.EngineVersion); id != a.AuditID {
		diverge("AuditID", a.AuditID, id)
	}

	if len(a.Eligible) == 0 {
		diverge("Eligible", "non-empty", 0)
	}

	eligible := make(map[string]struct{}, len(a.Eligible))
	for _, m := range a.Eligible {
		if _, dup := eligible[m]; dup {
			diverge("Eligible", "unique mints", m)
		}
		eligible[m] = struct{}{}
	}

	raw := make(map[string]struct{}, len(a.RawCandidates))
	for _, c := range a.RawCandidates {
		raw[c.Mint] = struct{}{}
	}
	for _, m := range a.Eligible {
		if _, ok := raw[m]; !ok {
			diverge("Eligible", "subset of raw candidates", m)
		}
	}

	if !sameKeys(eligible, a.Scores) {
		diverge("Scores", sortedKeys(eligible), sortedKeys(a.Scores))
	}
	if !sameKeys(eligible, a.Weights) {
		diverge("Weights", sortedKeys(eligible), sortedKeys(a.Weights))
	}

	var sum float64
	for m, w := range a.Weights {
		if w < 0 || math.IsNaN(w) {
			diverge("Weights["+m+"]", ">= 0", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > FloatTolerance {
		diverge("WeightSum", 1.0, sum)
	}

	if a.Temperature > 0 && sameKeys(eligible, a.Scores) && sameKeys(eligible, a.Weights) {
		scores := make([]float64, len(a.Eligible))
		for i, m := range a.Eligible {
			scores[i] = a.Scores[m]
		}
		for i, w := range selector.Softmax(scores, a.Temperature) {
			m := a.Eligible[i]
			if !floatEquals(a.Weights[m], w) {
				diverge("Weights["+m+"]", a.Weights[m], w)
			}
		}
	}

	if _, ok := eligible[a.ChosenMint]; !ok {
		diverge("ChosenMint", "member of eligible", a.ChosenMint)
	}

	replayed, err := selector.Replay(a)
	if err != nil {
		diverge("Replay", nil, err.Error())
	} else {
		res.ReplayedChosen = replayed
		if replayed != a.ChosenMint {
			diverge("ChosenMint", a.ChosenMint, replayed)
		}
	}

	res.Match = len(res.Divergences) == 0
	return res
}

func sameKeys(set map[string]struct{}, m map[string]float64) bool {
	if len(set) != len(m) {
		return false
	}
	for k := range m {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
