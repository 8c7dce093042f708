package storage

import (
	"context"
	"time"

	"solana-round-selector/internal/domain"
)

// AuditStore provides access to selection_audits storage.
type AuditStore interface {
	// Insert adds a new audit. Returns ErrDuplicateKey if round_id exists.
	Insert(ctx context.Context, a *domain.SelectionAudit) error

	// GetByRoundID retrieves the audit of a round. Returns ErrNotFound if not exists.
	GetByRoundID(ctx context.Context, roundID string) (*domain.SelectionAudit, error)

	// GetByTimeRange retrieves audits with snapshot time within [start, end] (inclusive),
	// ordered by snapshot time ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.SelectionAudit, error)
}

// SnapshotStore provides access to candidate_snapshots storage.
type SnapshotStore interface {
	// InsertBulk adds the candidate rows of one or more rounds.
	// Fails the entire batch on duplicate (round_id, mint).
	InsertBulk(ctx context.Context, rows []*domain.CandidateSnapshot) error

	// GetByRoundID retrieves all rows of a round, ordered by mint ASC.
	GetByRoundID(ctx context.Context, roundID string) ([]*domain.CandidateSnapshot, error)
}

// UsedMintStore holds the history of chosen mints that drives the exclusion window.
type UsedMintStore interface {
	// Excluded returns the mints that may not be chosen again.
	// window <= 0 returns every mint ever recorded, otherwise the mints of the
	// last window recordings.
	Excluded(ctx context.Context, window int) (map[string]struct{}, error)

	// Record appends a chosen mint to the history.
	Record(ctx context.Context, mint string) error
}
