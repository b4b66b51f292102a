package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDescriptorPathSortsAndJoins(t *testing.T) {
	got := serverDescriptorPath([]string{"bbbb", "aaaa"})
	assert.Equal(t, "/tor/server/d/AAAA+BBBB", got)
}

func TestMicrodescriptorPathHyphenatesBase64(t *testing.T) {
	got, err := microdescriptorPath([]string{
		"0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "/tor/micro/d/")
	assert.Contains(t, got, "-")
	assert.NotContains(t, got, "=")
}

func TestConsensusPathFlavors(t *testing.T) {
	assert.Equal(t, "/tor/status-vote/current/consensus", consensusPath(false))
	assert.Equal(t, "/tor/status-vote/current/consensus-microdesc", consensusPath(true))
}

func TestVotePathByDigestAndOwn(t *testing.T) {
	assert.Equal(t, "/tor/status-vote/current/d/ABCD", votePath("abcd"))
	assert.Equal(t, "/tor/status-vote/current/authority", votePath(""))
}

func TestBatchesSplitsAtSize(t *testing.T) {
	digests := []string{"a", "b", "c", "d", "e"}
	got := batches(digests, 2)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b"}, got[0])
	assert.Equal(t, []string{"e"}, got[2])
}
