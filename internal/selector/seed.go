package selector

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"solana-round-selector/internal/idhash"
)

// Seeder produces the seed string a round's draw is derived from.
type Seeder interface {
	Seed(roundID string, snapshot time.Time) (string, error)
}

// SeederFunc adapts a function to Seeder.
type SeederFunc func(roundID string, snapshot time.Time) (string, error)

// Seed calls f(roundID, snapshot).
func (f SeederFunc) Seed(roundID string, snapshot time.Time) (string, error) {
	return f(roundID, snapshot)
}

// nonceBytes is the amount of fresh entropy mixed into every default seed.
const nonceBytes = 16

// CryptoSeeder hashes the round id, the snapshot time and a crypto/rand nonce.
// Seeds are unpredictable before the round and replayable after it.
var CryptoSeeder Seeder = SeederFunc(func(roundID string, snapshot time.Time) (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read seed nonce: %w", err)
	}
	return idhash.ComputeSelectionSeed(roundID, snapshot.UnixMilli(), hex.EncodeToString(nonce)), nil
})

// FixedSeeder always returns seed. Use it for tests and replays.
func FixedSeeder(seed string) Seeder {
	return SeederFunc(func(string, time.Time) (string, error) {
		return seed, nil
	})
}

// drawUniform derives the single uniform draw u in [0,1) from a seed.
func drawUniform(seed string) float64 {
	rng := mrand.New(mrand.NewChaCha8(idhash.SeedKey(seed)))
	return rng.Float64()
}
