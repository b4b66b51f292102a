// Package digest computes the content digests used to key documents in the
// archive, following the directory protocol's own conventions: lower-case
// hex SHA-1 for server/extra-info descriptors, upper-case hex SHA-1 over a
// signed prefix for votes, and lower-case hex SHA-256 for microdescriptors.
// Modeled on the
// Type-enum-plus-hasher shape of rclone's fs/hash package (hash_test.go).
package digest

import (
	"crypto/sha1" //nolint:gosec // digest convention mandated by the directory protocol, not used for security
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Type identifies which hash algorithm produced a digest.
type Type int

const (
	// SHA1 is used for server/extra-info descriptors and votes.
	SHA1 Type = iota
	// SHA256 is used for microdescriptors.
	SHA256
)

// Lower returns the lower-case hex SHA-1 digest of b.
func Lower(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

// Upper returns the upper-case hex SHA-1 digest of b, as used inside vote
// filenames.
func Upper(b []byte) string {
	return strings.ToUpper(Lower(b))
}

// SHA256Lower returns the lower-case hex SHA-256 digest of b, as used for
// microdescriptors.
func SHA256Lower(b []byte) string {
	sum := sha256.Sum256(b)
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

// VotePrefix is the byte sequence that bounds the signed portion of a vote:
// the digest is computed over everything up to and including this marker.
const VotePrefix = "\ndirectory-signature "

// VoteDigest computes the upper-case hex SHA-1 digest of raw up to and
// including the first occurrence of VotePrefix, per the directory
// protocol's vote digest convention.
func VoteDigest(raw []byte) (string, bool) {
	idx := strings.Index(string(raw), VotePrefix)
	if idx < 0 {
		return "", false
	}
	end := idx + len(VotePrefix)
	return Upper(raw[:end]), true
}
