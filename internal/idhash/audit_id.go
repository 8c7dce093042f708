package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAuditID computes a deterministic audit_id using SHA256.
// Formula: SHA256(round_id|chosen_mint|seed|engine_version)
// Returns hex-encoded hash (64 characters).
func ComputeAuditID(
	roundID string,
	chosenMint string,
	seed string,
	engineVersion string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		roundID,
		chosenMint,
		seed,
		engineVersion,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
