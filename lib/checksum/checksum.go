package checksum

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex encoded blake3 hash of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data hashes to the given hex digest.
func Verify(data []byte, digest string) bool {
	return Digest(data) == digest
}
