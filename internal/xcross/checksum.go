package xcross

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"lukechampine.com/blake3"
)

// HashAlgo names the digest a descriptor checksum is computed with.
type HashAlgo string

const (
	HashSHA256 HashAlgo = "sha256"
	HashBLAKE3 HashAlgo = "blake3"
)

func newHasher(algo HashAlgo) (hash.Hash, error) {
	switch algo {
	case HashSHA256:
		return sha256.New(), nil
	case HashBLAKE3:
		// 32-byte output, no key
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// checksumMatches compares a computed digest with the expected hex string.
// Expected values may be upper or lower case.
func checksumMatches(sum []byte, want string) bool {
	return hex.EncodeToString(sum) == strings.ToLower(want)
}
