package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/selector"
	"solana-round-selector/internal/storage/memory"
	"solana-round-selector/internal/verification"
)

var snapshot = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func selectedAudit(t *testing.T, roundID string) *domain.SelectionAudit {
	t.Helper()

	sel, err := selector.New(selector.DefaultConfig(), memory.NewUsedMintStore())
	require.NoError(t, err)

	var pool []*domain.TokenCandidate
	for i, mint := range []string{"A", "B", "C"} {
		pool = append(pool, &domain.TokenCandidate{
			Mint:            mint,
			Symbol:          mint,
			CreatedAt:       snapshot.Add(-30 * time.Minute),
			Volume5m:        float64(90 - 20*i),
			Trades5m:        100,
			UniqueTraders5m: 40,
		})
	}

	audit, err := sel.SelectTargetToken(context.Background(), roundID, snapshot, pool)
	require.NoError(t, err)
	return audit
}

func writeFile(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "audits.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadAuditFile_ObjectAndArray(t *testing.T) {
	a := selectedAudit(t, "r1")
	b := selectedAudit(t, "r2")

	one, err := loadAuditFile(writeFile(t, a))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "r1", one[0].RoundID)

	many, err := loadAuditFile(writeFile(t, []*domain.SelectionAudit{a, b}))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, "r2", many[1].RoundID)
}

func TestLoadAuditFile_Errors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err := loadAuditFile(empty)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o600))
	_, err = loadAuditFile(broken)
	assert.Error(t, err)

	_, err = loadAuditFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestAuditFileSurvivesReplay(t *testing.T) {
	loaded, err := loadAuditFile(writeFile(t, selectedAudit(t, "r1")))
	require.NoError(t, err)

	store := memory.NewAuditStore()
	require.NoError(t, store.Insert(context.Background(), loaded[0]))

	res, err := verification.NewAuditVerifier(store, selector.EngineVersion, nil).VerifyRound(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, res.Match, "divergences: %+v", res.Divergences)
	assert.Equal(t, res.StoredChosen, res.ReplayedChosen)
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2026-05-01T00:00:00Z", "2026-05-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = parseRange("2026-05-02T00:00:00Z", "2026-05-01T00:00:00Z")
	assert.Error(t, err)

	_, _, err = parseRange("yesterday", "2026-05-01T00:00:00Z")
	assert.Error(t, err)
}

func TestSingleReport(t *testing.T) {
	ok := singleReport(&verification.VerificationResult{RoundID: "r1", Match: true})
	assert.Equal(t, 1, ok.MatchedAudits)
	assert.Zero(t, ok.DivergentAudits)

	bad := singleReport(&verification.VerificationResult{RoundID: "r1"})
	assert.Equal(t, 1, bad.DivergentAudits)
}

func TestWriteReport(t *testing.T) {
	report := singleReport(&verification.VerificationResult{
		RoundID:        "r1",
		Match:          true,
		StoredChosen:   "A",
		ReplayedChosen: "A",
	})

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, report, false))
	assert.True(t, strings.Contains(buf.String(), "total_audits: 1"))

	var decoded verification.VerificationReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "A", decoded.Results[0].ReplayedChosen)

	buf.Reset()
	require.NoError(t, writeReport(&buf, report, true))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.MatchedAudits)
}
