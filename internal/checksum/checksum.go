// Package checksum fingerprints raw file contents and derives stable short
// ids from them.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the length of ids returned by Short.
const ShortLen = 8

// String returns the hex-encoded SHA-256 digest of s.
func String(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Short returns the first ShortLen hex characters of the digest of s. Equal
// inputs always yield equal ids, so rendered output is reproducible.
func Short(s string) string {
	return String(s)[:ShortLen]
}
