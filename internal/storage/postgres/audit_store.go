package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/storage"
)

// AuditStore implements storage.AuditStore using PostgreSQL.
// Collections of the audit are stored as JSONB columns.
type AuditStore struct {
	pool *Pool
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(pool *Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

const auditColumns = `
	round_id, audit_id, snapshot_time, raw_candidates, filters, exclusion_window,
	eligible, scores, weights, temperature, chosen_mint, seed, engine_version,
	relaxations, created_at
`

// Insert adds a new audit. Returns ErrDuplicateKey if round_id exists.
func (s *AuditStore) Insert(ctx context.Context, a *domain.SelectionAudit) error {
	if a == nil || a.RoundID == "" || a.ChosenMint == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()

	rawCandidates, err := json.Marshal(nonNil(a.RawCandidates))
	if err != nil {
		return fmt.Errorf("marshal raw candidates: %w", err)
	}
	filters, err := json.Marshal(a.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	eligible, err := json.Marshal(nonNil(a.Eligible))
	if err != nil {
		return fmt.Errorf("marshal eligible: %w", err)
	}
	scores, err := json.Marshal(a.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	weights, err := json.Marshal(a.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	relaxations, err := json.Marshal(nonNil(a.Relaxations))
	if err != nil {
		return fmt.Errorf("marshal relaxations: %w", err)
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO selection_audits (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.pool.Exec(ctx, query,
		a.RoundID,
		a.AuditID,
		a.SnapshotTime,
		rawCandidates,
		filters,
		a.ExclusionWindow,
		eligible,
		scores,
		weights,
		a.Temperature,
		a.ChosenMint,
		a.Seed,
		a.EngineVersion,
		relaxations,
		createdAt,
	)
	observability.RecordDBQuery("postgres", "insert_audit", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// GetByRoundID retrieves the audit of a round. Returns ErrNotFound if not exists.
func (s *AuditStore) GetByRoundID(ctx context.Context, roundID string) (*domain.SelectionAudit, error) {
	start := time.Now()
	query := `SELECT ` + auditColumns + ` FROM selection_audits WHERE round_id = $1`

	a, err := scanAudit(s.pool.QueryRow(ctx, query, roundID))
	observability.RecordDBQuery("postgres", "get_audit", time.Since(start).Seconds(), ignoreNotFound(err))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get audit by round id: %w", err)
	}
	return a, nil
}

// GetByTimeRange retrieves audits with snapshot time within [start, end], ordered by snapshot time ASC.
func (s *AuditStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.SelectionAudit, error) {
	began := time.Now()
	query := `
		SELECT ` + auditColumns + `
		FROM selection_audits
		WHERE snapshot_time >= $1 AND snapshot_time <= $2
		ORDER BY snapshot_time ASC, round_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		observability.RecordDBQuery("postgres", "list_audits", time.Since(began).Seconds(), err)
		return nil, fmt.Errorf("get audits by time range: %w", err)
	}
	defer rows.Close()

	var audits []*domain.SelectionAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	observability.RecordDBQuery("postgres", "list_audits", time.Since(began).Seconds(), nil)
	return audits, nil
}

// scanAudit scans a single row into a SelectionAudit.
func scanAudit(row pgx.Row) (*domain.SelectionAudit, error) {
	var a domain.SelectionAudit
	var rawCandidates, filters, eligible, scores, weights, relaxations []byte

	err := row.Scan(
		&a.RoundID,
		&a.AuditID,
		&a.SnapshotTime,
		&rawCandidates,
		&filters,
		&a.ExclusionWindow,
		&eligible,
		&scores,
		&weights,
		&a.Temperature,
		&a.ChosenMint,
		&a.Seed,
		&a.EngineVersion,
		&relaxations,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"raw_candidates", rawCandidates, &a.RawCandidates},
		{"filters", filters, &a.Filters},
		{"eligible", eligible, &a.Eligible},
		{"scores", scores, &a.Scores},
		{"weights", weights, &a.Weights},
		{"relaxations", relaxations, &a.Relaxations},
	} {
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}

	a.SnapshotTime = a.SnapshotTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// nonNil turns a nil slice into an empty one so JSONB columns hold [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func ignoreNotFound(err error) error {
	if isNotFoundError(err) {
		return nil
	}
	return err
}
