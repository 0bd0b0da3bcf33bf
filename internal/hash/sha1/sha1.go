// Package sha1 provides SHA-1 hashing used to derive result identifiers.
package sha1

import (
	"crypto/sha1" //nolint:gosec // identifiers only, not a security boundary
	"encoding/hex"
)

// Hasher hashes request keys into hex digests.
type Hasher struct{}

// New returns a SHA-1 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a lowercase hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
