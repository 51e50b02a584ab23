package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of a chart document.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Match reports whether ifMatch is empty or equals the digest of data.
func Match(data []byte, ifMatch string) bool {
	return ifMatch == "" || ifMatch == Sum(data)
}
