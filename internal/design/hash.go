package design

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash8 fingerprints a raw design description: the first 8 hex chars
// of its SHA-256, matching the parser's hash8 field.
func ContentHash8(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:8]
}
