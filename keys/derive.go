package keys

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"lukechampine.com/blake3"
)

// SeedSize is the length of a randomness seed.
const SeedSize = 32

const deriveContext = "privatefs/keys/derive-random/v1"

// ParseSeedHex decodes a hex seed, with or without a 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

// DeriveRandom returns an endless deterministic byte stream for seed and
// purpose. Feeding it to node creation makes INumbers and ratchets
// reproducible, which is what test vectors need; interactive use should
// read from crypto/rand instead.
func DeriveRandom(seed []byte, purpose string) (io.Reader, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", SeedSize)
	}
	if err := CheckName("purpose", purpose); err != nil {
		return nil, err
	}
	var key [32]byte
	blake3.DeriveKey(key[:], deriveContext, seed)
	h := blake3.New(32, key[:])
	_, _ = h.Write([]byte(purpose))
	return h.XOF(), nil
}
