package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-round-selector/internal/storage"
)

// ErrAuditNotFound is returned when no audit exists for a round.
var ErrAuditNotFound = errors.New("audit not found")

// AuditVerifier verifies audits loaded from an AuditStore.
type AuditVerifier struct {
	store         storage.AuditStore
	engineVersion string
	logger        *zap.Logger
}

// NewAuditVerifier creates a verifier. An empty engineVersion skips the version check.
func NewAuditVerifier(store storage.AuditStore, engineVersion string, logger *zap.Logger) *AuditVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditVerifier{
		store:         store,
		engineVersion: engineVersion,
		logger:        logger.Named("verifier"),
	}
}

// VerifyRound loads and verifies the audit of one round.
func (v *AuditVerifier) VerifyRound(ctx context.Context, roundID string) (*VerificationResult, error) {
	a, err := v.store.GetByRoundID(ctx, roundID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAuditNotFound, roundID)
		}
		return nil, fmt.Errorf("load audit %s: %w", roundID, err)
	}

	res := VerifyAudit(a, v.engineVersion)
	v.log(res)
	return res, nil
}

// VerifyRange verifies every audit with a snapshot time in [start, end].
func (v *AuditVerifier) VerifyRange(ctx context.Context, start, end time.Time) (*VerificationReport, error) {
	audits, err := v.store.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load audits: %w", err)
	}

	report := &VerificationReport{Results: make([]VerificationResult, 0, len(audits))}
	for _, a := range audits {
		res := VerifyAudit(a, v.engineVersion)
		v.log(res)
		report.add(*res)
	}

	v.logger.Info("verified audits",
		zap.Int("total", report.TotalAudits),
		zap.Int("matched", report.MatchedAudits),
		zap.Int("divergent", report.DivergentAudits))
	return report, nil
}

func (v *AuditVerifier) log(res *VerificationResult) {
	if res.Match {
		v.logger.Debug("audit verified", zap.String("round_id", res.RoundID))
		return
	}
	fields := make([]string, len(res.Divergences))
	for i, d := range res.Divergences {
		fields[i] = d.Field
	}
	v.logger.Warn("audit diverges",
		zap.String("round_id", res.RoundID),
		zap.String("stored_chosen", res.StoredChosen),
		zap.String("replayed_chosen", res.ReplayedChosen),
		zap.Strings("fields", fields))
}
