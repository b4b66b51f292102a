package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerUpper(t *testing.T) {
	lower := Lower([]byte("hello"))
	upper := Upper([]byte("hello"))
	assert.Equal(t, lower, strings.ToLower(upper))
	assert.Len(t, lower, 40)
}

func TestSHA256Lower(t *testing.T) {
	assert.Len(t, SHA256Lower([]byte("hello")), 64)
}

func TestVoteDigest(t *testing.T) {
	prefix := "network-status-version 3\nvote-status vote\n..."
	signed := prefix + VotePrefix
	raw := []byte(signed + "sha256 ABCD EFAB\n-----BEGIN SIGNATURE-----\nAA==\n-----END SIGNATURE-----\n")
	d, ok := VoteDigest(raw)
	assert.True(t, ok)
	assert.Len(t, d, 40)
	assert.Equal(t, Upper([]byte(signed)), d)
}

func TestVoteDigestMissingMarker(t *testing.T) {
	_, ok := VoteDigest([]byte("no marker here"))
	assert.False(t, ok)
}
