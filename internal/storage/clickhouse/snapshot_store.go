package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk adds rows in one batch. Fails the entire batch on duplicate (round_id, mint).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *SnapshotStore) InsertBulk(ctx context.Context, rows []*domain.CandidateSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	type key struct {
		roundID string
		mint    string
	}
	seen := make(map[key]struct{}, len(rows))
	rounds := make(map[string]struct{})
	for _, r := range rows {
		if r == nil || r.RoundID == "" || r.Mint == "" {
			return storage.ErrInvalidInput
		}
		k := key{r.RoundID, r.Mint}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		rounds[r.RoundID] = struct{}{}
	}

	for roundID := range rounds {
		existing, err := s.mintsOfRound(ctx, roundID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, mint := range existing {
			if _, dup := seen[key{roundID, mint}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candidate_snapshots (
			round_id, snapshot_time_ms, mint, symbol, source,
			volume_5m, volume_1h, trades_5m, unique_traders_5m, volatility_5m,
			market_cap, liquidity, price_usd, eligible, score, weight, chosen
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.RoundID, r.SnapshotTime.UnixMilli(), r.Mint, r.Symbol, r.Source,
			r.Volume5m, r.Volume1h, uint32(r.Trades5m), uint32(r.UniqueTraders5m), r.Volatility5m,
			r.MarketCap, r.Liquidity, r.PriceUSD, boolToUInt8(r.Eligible), r.Score, r.Weight, boolToUInt8(r.Chosen),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRoundID retrieves all rows of a round, ordered by mint ASC.
func (s *SnapshotStore) GetByRoundID(ctx context.Context, roundID string) ([]*domain.CandidateSnapshot, error) {
	start := time.Now()
	query := `
		SELECT round_id, snapshot_time_ms, mint, symbol, source,
			volume_5m, volume_1h, trades_5m, unique_traders_5m, volatility_5m,
			market_cap, liquidity, price_usd, eligible, score, weight, chosen
		FROM candidate_snapshots
		WHERE round_id = ?
		ORDER BY mint ASC
	`

	rows, err := s.conn.Query(ctx, query, roundID)
	observability.RecordDBQuery("clickhouse", "get_snapshots", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by round id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *SnapshotStore) mintsOfRound(ctx context.Context, roundID string) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT mint FROM candidate_snapshots WHERE round_id = ?`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		mints = append(mints, m)
	}
	return mints, rows.Err()
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.CandidateSnapshot, error) {
	var result []*domain.CandidateSnapshot

	for rows.Next() {
		var r domain.CandidateSnapshot
		var snapshotMs int64
		var trades, traders uint32
		var eligible, chosen uint8

		err := rows.Scan(
			&r.RoundID, &snapshotMs, &r.Mint, &r.Symbol, &r.Source,
			&r.Volume5m, &r.Volume1h, &trades, &traders, &r.Volatility5m,
			&r.MarketCap, &r.Liquidity, &r.PriceUSD, &eligible, &r.Score, &r.Weight, &chosen,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r.SnapshotTime = time.UnixMilli(snapshotMs).UTC()
		r.Trades5m = int(trades)
		r.UniqueTraders5m = int(traders)
		r.Eligible = eligible == 1
		r.Chosen = chosen == 1
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
