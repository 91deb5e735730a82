package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StorageKey maps a URL to a fixed-length provider key under prefix.
// URLs can be long and carry characters some stores dislike; the first
// 16 bytes of the SHA-256 are plenty to tell entries apart.
func StorageKey(prefix, url string) string {
	sum := sha256.Sum256([]byte(url))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}
