package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/selector"
	"solana-round-selector/internal/storage/memory"
)

var snapshot = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func candidate(mint string, vol float64) *domain.TokenCandidate {
	return &domain.TokenCandidate{
		Mint:            mint,
		Symbol:          mint,
		CreatedAt:       snapshot.Add(-30 * time.Minute),
		Volume5m:        vol,
		Volume1h:        vol * 8,
		Trades5m:        100,
		UniqueTraders5m: 40,
		Volatility5m:    0.2,
	}
}

// selectedAudit runs a real selection so the audit is internally consistent.
func selectedAudit(t *testing.T, roundID string) *domain.SelectionAudit {
	t.Helper()

	sel, err := selector.New(selector.DefaultConfig(), memory.NewUsedMintStore())
	if err != nil {
		t.Fatalf("New selector failed: %v", err)
	}

	audit, err := sel.SelectTargetToken(context.Background(), roundID, snapshot, []*domain.TokenCandidate{
		candidate("A", 80), candidate("B", 60), candidate("C", 40), candidate("D", 20),
	})
	if err != nil {
		t.Fatalf("SelectTargetToken failed: %v", err)
	}
	return audit
}

func hasDivergence(res *VerificationResult, field string) bool {
	for _, d := range res.Divergences {
		if d.Field == field {
			return true
		}
	}
	return false
}

func TestVerifyAudit_Match(t *testing.T) {
	audit := selectedAudit(t, "round-1")

	res := VerifyAudit(audit, selector.EngineVersion)

	if !res.Match {
		t.Fatalf("expected match, got divergences: %+v", res.Divergences)
	}
	if res.ReplayedChosen != audit.ChosenMint {
		t.Errorf("ReplayedChosen = %s, want %s", res.ReplayedChosen, audit.ChosenMint)
	}
}

func TestVerifyAudit_Divergences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *domain.SelectionAudit)
		field  string
	}{
		{
			name:   "tampered chosen mint",
			mutate: func(a *domain.SelectionAudit) { a.ChosenMint = "Z" },
			field:  "ChosenMint",
		},
		{
			name:   "tampered seed",
			mutate: func(a *domain.SelectionAudit) { a.Seed = "forged" },
			field:  "AuditID",
		},
		{
			name: "weights not a simplex",
			mutate: func(a *domain.SelectionAudit) {
				for m := range a.Weights {
					a.Weights[m] *= 2
				}
			},
			field: "WeightSum",
		},
		{
			name:   "score keys differ from eligible",
			mutate: func(a *domain.SelectionAudit) { a.Scores["ghost"] = 0.5 },
			field:  "Scores",
		},
		{
			name:   "eligible mint not in raw candidates",
			mutate: func(a *domain.SelectionAudit) { a.RawCandidates = a.RawCandidates[:1] },
			field:  "Eligible",
		},
		{
			name:   "temperature changed after the fact",
			mutate: func(a *domain.SelectionAudit) { a.Temperature = 5 },
			field:  "Weights[A]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := selectedAudit(t, "round-1")
			tt.mutate(audit)

			res := VerifyAudit(audit, "")

			if res.Match {
				t.Fatal("expected divergence, got match")
			}
			if !hasDivergence(res, tt.field) {
				t.Errorf("expected divergence on %s, got %+v", tt.field, res.Divergences)
			}
		})
	}
}

func TestVerifyAudit_EngineVersion(t *testing.T) {
	audit := selectedAudit(t, "round-1")

	res := VerifyAudit(audit, "selector/9.9.9")

	if !hasDivergence(res, "EngineVersion") {
		t.Errorf("expected EngineVersion divergence, got %+v", res.Divergences)
	}
}

func TestAuditVerifier_VerifyRound(t *testing.T) {
	store := memory.NewAuditStore()
	ctx := context.Background()
	audit := selectedAudit(t, "round-1")
	if err := store.Insert(ctx, audit); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	v := NewAuditVerifier(store, selector.EngineVersion, nil)

	res, err := v.VerifyRound(ctx, "round-1")
	if err != nil {
		t.Fatalf("VerifyRound failed: %v", err)
	}
	if !res.Match {
		t.Errorf("expected match, got %+v", res.Divergences)
	}

	_, err = v.VerifyRound(ctx, "missing")
	if !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("expected ErrAuditNotFound, got %v", err)
	}
}

func TestAuditVerifier_VerifyRange(t *testing.T) {
	store := memory.NewAuditStore()
	ctx := context.Background()

	good := selectedAudit(t, "round-good")
	bad := selectedAudit(t, "round-bad")
	bad.ChosenMint = "Z"
	for _, a := range []*domain.SelectionAudit{good, bad} {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	v := NewAuditVerifier(store, "", nil)
	report, err := v.VerifyRange(ctx, snapshot.Add(-time.Minute), snapshot.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyRange failed: %v", err)
	}

	if report.TotalAudits != 2 || report.MatchedAudits != 1 || report.DivergentAudits != 1 {
		t.Errorf("unexpected counts: total=%d matched=%d divergent=%d",
			report.TotalAudits, report.MatchedAudits, report.DivergentAudits)
	}
}
