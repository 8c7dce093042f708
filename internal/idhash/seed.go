package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSelectionSeed computes a selection seed using SHA256.
// Formula: SHA256(round_id|snapshot_ms|nonce)
// Returns hex-encoded hash (64 characters).
func ComputeSelectionSeed(roundID string, snapshotMs int64, nonce string) string {
	data := fmt.Sprintf("%s|%d|%s", roundID, snapshotMs, nonce)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SeedKey derives the 32-byte generator key for a seed string.
// The same seed always yields the same key, which makes draws replayable.
func SeedKey(seed string) [32]byte {
	return sha256.Sum256([]byte("draw|" + seed))
}
