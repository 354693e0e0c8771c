// Package hash computes deterministic digests of script content used for
// owner-scoped deduplication and as idempotency keys.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Content returns the lowercase hex sha256 digest of the given bytes.
// Identical bytes always produce identical digests.
func Content(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentString is a convenience wrapper for string input.
func ContentString(s string) string {
	return Content([]byte(s))
}
