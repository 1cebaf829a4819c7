// Package fingerprint derives stable content digests used for
// duplicate detection in the catalog. The digest is a similarity
// heuristic, not a cryptographic hash: collisions across unrelated
// content are tolerated by callers.
package fingerprint

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Digest computes a deterministic digest over raw content bytes.
// It is pure and total: the same input always yields the same
// base-36 string, and empty input yields the digest of zero bytes.
func Digest(raw []byte) string {
	hasher := fnv.New64a()
	_, _ = hasher.Write(raw)
	return strconv.FormatUint(hasher.Sum64(), 36)
}

// DigestText computes the digest of a text surrogate.
func DigestText(surrogate string) string {
	return Digest([]byte(surrogate))
}

// TextSurrogate builds the normalized text stand-in used for uploads
// whose bytes are not fingerprinted directly (PDF and other document
// types). Publish-time and check-time callers must use this same
// construction or duplicate detection is void.
func TextSurrogate(title, filename string) string {
	return "Note Analysis. Title: " + strings.TrimSpace(title) + ". Filename: " + strings.TrimSpace(filename)
}
