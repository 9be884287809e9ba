// Package checksum computes content digests for package change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Package digests a document package from its text bytes and the names and
// sizes of its attachments. Attachment content is not read; a rewrite that
// keeps name and size is not detected.
func Package(text []byte, attachments map[string]int64) string {
	h := sha256.New()
	h.Write(text)
	names := make([]string, 0, len(attachments))
	for n := range attachments {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		h.Write([]byte{0})
		h.Write([]byte(n))
		var size [8]byte
		for i, v := 0, attachments[n]; i < 8; i++ {
			size[i] = byte(v >> (8 * i))
		}
		h.Write(size[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
