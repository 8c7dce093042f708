package solana

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// MetaplexProgramID is the Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const pdaMarker = "ProgramDerivedAddress"

// FindProgramAddress searches bumps from 255 down for the first off-curve
// address derived from seeds and programID.
func FindProgramAddress(seeds [][]byte, programID []byte) (string, byte, error) {
	if len(programID) != PublicKeyLength {
		return "", 0, fmt.Errorf("%w: program id %d bytes", ErrInvalidAddress, len(programID))
	}

	var buf []byte
	for bump := 255; bump >= 0; bump-- {
		buf = buf[:0]
		for _, seed := range seeds {
			buf = append(buf, seed...)
		}
		buf = append(buf, byte(bump))
		buf = append(buf, programID...)
		buf = append(buf, pdaMarker...)

		hash := sha256.Sum256(buf)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), byte(bump), nil
		}
	}
	return "", 0, errors.New("no viable bump seed")
}

func isOnCurve(point []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// MetadataAddress returns the Metaplex metadata account of a mint.
// Seeds: ["metadata", program id, mint].
func MetadataAddress(mint string) (string, error) {
	mintKey, err := DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	programKey, err := base58.Decode(MetaplexProgramID)
	if err != nil {
		return "", err
	}

	addr, _, err := FindProgramAddress([][]byte{[]byte("metadata"), programKey, mintKey}, programKey)
	return addr, err
}

// TokenMetadata is the name and symbol stored in a Metaplex metadata account.
type TokenMetadata struct {
	Name   string
	Symbol string
}

const (
	metadataKeyV1     = 4
	metadataHeaderLen = 1 + 32 + 32 // key, update authority, mint
	maxNameLen        = 32
	maxSymbolLen      = 10
)

// ParseMetadataAccount decodes name and symbol from base64 account data.
// Borsh strings are padded with NULs, which are trimmed.
func ParseMetadataAccount(data string) (*TokenMetadata, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(raw) < metadataHeaderLen || raw[0] != metadataKeyV1 {
		return nil, errors.New("not a metadata v1 account")
	}

	offset := metadataHeaderLen
	name, offset, err := readBorshString(raw, offset, maxNameLen)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	symbol, _, err := readBorshString(raw, offset, maxSymbolLen)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}

	return &TokenMetadata{
		Name:   strings.TrimRight(name, "\x00"),
		Symbol: strings.TrimRight(symbol, "\x00"),
	}, nil
}

func readBorshString(raw []byte, offset, max int) (string, int, error) {
	if offset+4 > len(raw) {
		return "", offset, errors.New("truncated length")
	}
	n := int(binary.LittleEndian.Uint32(raw[offset:]))
	offset += 4
	// Metaplex pads fixed-width fields; allow padding up to 4 bytes per char.
	if n > max*4 || offset+n > len(raw) {
		return "", offset, fmt.Errorf("bad length %d", n)
	}
	return string(raw[offset : offset+n]), offset + n, nil
}
