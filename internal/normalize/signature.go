package normalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// Signature derives a stable 128-bit content signature from normalized text,
// the changed field and the new value. It is a pure function used for exact
// duplicate detection only; near-duplicate grouping is the similarity
// package's job, so two similar-but-different texts must (and do) hash to
// different signatures.
func Signature(normalizedText, field, newValue string) string {
	h := sha256.New()
	h.Write([]byte(normalizedText))
	h.Write([]byte{0})
	h.Write([]byte(field))
	h.Write([]byte{0})
	h.Write([]byte(newValue))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
