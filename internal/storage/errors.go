package storage

import "errors"

// Sentinel errors shared by every AuditStore, SnapshotStore and UsedMintStore.
var (
	// ErrNotFound is returned when no audit exists for a round.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a round's audit or a (round, mint) snapshot row
	// is written twice. Audits and snapshots are immutable once stored.
	ErrDuplicateKey = errors.New("duplicate key: records are immutable")

	// ErrInvalidInput is returned for nil records or records missing their identity fields.
	ErrInvalidInput = errors.New("invalid input")
)
