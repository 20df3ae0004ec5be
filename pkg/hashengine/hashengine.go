// Package hashengine is the hot loop: double-SHA-256 over an 80-byte
// header with the nonce field overwritten, and target comparison. It is
// the only package on the per-hash critical path, so it takes its SHA-256
// implementation from sha256-simd rather than the stdlib, matching the
// hot-path hashing pairing the rest of the corpus's miners use.
package hashengine

import (
	"github.com/minio/sha256-simd"

	"github.com/jadaela-ara/biomining-go/pkg/header"
)

// HashCandidate overwrites the last four bytes of headerBytes with nonce
// (little-endian) and returns the double-SHA-256 digest. headerBytes is
// mutated in place so repeated calls across a scan window allocate nothing.
func HashCandidate(headerBytes *[header.Size]byte, nonce uint32) [32]byte {
	headerBytes[76] = byte(nonce)
	headerBytes[77] = byte(nonce >> 8)
	headerBytes[78] = byte(nonce >> 16)
	headerBytes[79] = byte(nonce >> 24)

	first := sha256.Sum256(headerBytes[:])
	second := sha256.Sum256(first[:])
	return second
}

// MeetsTarget reports whether digest, interpreted as an unsigned 256-bit
// little-endian integer, compares less than target.
func MeetsTarget(digest [32]byte, target *header.Target) bool {
	return target.Less(digest)
}
