package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the hex sha256 of raw document bytes. It is the
// document identity used for re-import dedup, independent of filename.
func Checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
