// Package bucket maps identifiers to reproducible buckets in [0, 100).
package bucket

import (
	"crypto/sha256"
	"encoding/binary"
	"unicode/utf16"
)

// Resolution is the number of discrete buckets. Values have two decimal
// places, so a bucket is always one of 0.00, 0.01, ... 99.99.
const Resolution = 10000

// Bucket returns the bucket for id using a 32-bit polynomial rolling hash
// over the UTF-16 code units of id. The result is stable across processes.
//
// The hash is not uniform. Sequential ids cluster, so callers that need an
// unbiased draw should use Uniform instead.
func Bucket(id string) float64 {
	var h int32
	for _, c := range utf16.Encode([]rune(id)) {
		h = (h << 5) - h + int32(c)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return float64(v%Resolution) / 100
}

// Uniform returns a bucket derived from the first 8 bytes of the SHA-256
// digest of key.
func Uniform(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	return float64(binary.BigEndian.Uint64(sum[:8])%Resolution) / 100
}

// Key scopes a user id to an experiment.
func Key(experimentID, userID string) string {
	return experimentID + ":" + userID
}
