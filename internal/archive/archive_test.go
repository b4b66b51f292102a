package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/irl/bushel/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreThenGetServerDescriptorRoundTrips(t *testing.T) {
	a := New(t.TempDir(), 0)
	published := time.Date(2018, 11, 19, 15, 1, 2, 0, time.UTC)
	d := &document.Document{
		Kind: document.RelayServerDescriptor,
		Meta: document.Metadata{PublishedOrValidAfter: published, Digest: "a94a07b2000000000000000000000000000389"},
		Raw:  []byte("router example 1.2.3.4 9001 0 9030\n"),
	}
	require.NoError(t, a.Store(context.Background(), d))

	got, err := a.GetServerDescriptor(d.Meta.Digest, published)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.Raw, got.Raw)
	assert.Equal(t, document.RelayServerDescriptor, got.Kind)
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	a := New(t.TempDir(), 0)
	got, err := a.GetServerDescriptor("0000000000000000000000000000000000000a", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreThenGetConsensusRoundTrips(t *testing.T) {
	a := New(t.TempDir(), 0)
	validAfter := time.Date(2018, 11, 19, 15, 0, 0, 0, time.UTC)
	d := &document.Document{
		Kind: document.RelayConsensusNS,
		Meta: document.Metadata{PublishedOrValidAfter: validAfter},
		Raw:  []byte("network-status-version 3\n"),
	}
	require.NoError(t, a.Store(context.Background(), d))

	got, err := a.GetConsensus(validAfter)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.Raw, got.Raw)
}

func TestGetVoteWildcardReturnsLexicographicallyFirstMatch(t *testing.T) {
	a := New(t.TempDir(), 0)
	validAfter := time.Date(2018, 11, 19, 15, 0, 0, 0, time.UTC)
	v3ident := "D586D18309DED4CD6D57C18FDB97EFA96D330566"

	for _, digest := range []string{"BBBB000000000000000000000000000000000000000000000000000000BB", "AAAA000000000000000000000000000000000000000000000000000000AA"} {
		d := &document.Document{
			Kind: document.Vote,
			Meta: document.Metadata{PublishedOrValidAfter: validAfter, V3Ident: v3ident, Digest: digest},
			Raw: []byte("network-status-version 3\nvote-status vote\nvote-digest-for " + digest + "\n" +
				"directory-signature " + v3ident + " ABCD\n"),
		}
		require.NoError(t, a.Store(context.Background(), d))
	}

	got, err := a.GetVote(v3ident, "*", validAfter)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, string(got.Raw), "AAAA000000000000000000000000000000000000000000000000000000AA")
}

func TestGetConsensusRestoresReferencesOnRead(t *testing.T) {
	a := New(t.TempDir(), 0)
	validAfter := time.Date(2018, 11, 19, 15, 0, 0, 0, time.UTC)
	d := &document.Document{
		Kind: document.RelayConsensusNS,
		Meta: document.Metadata{PublishedOrValidAfter: validAfter},
		Raw: []byte("network-status-version 3\n" +
			"valid-after 2018-11-19 15:00:00\n" +
			"r caerSidi AAAAAAAAAAAAAAAAAAAAAAAAAAA= qUoHsgAAAAAAAAAAAAAAAAAAA4k 2018-11-19 15:00:00 1.2.3.4 9001 9030\n"),
	}
	require.NoError(t, a.Store(context.Background(), d))

	got, err := a.GetConsensus(validAfter)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Refs.ServerDescriptorDigests, 1,
		"a consensus read back from disk must carry the same references as a fetched one")
	assert.Equal(t, validAfter, got.Meta.PublishedOrValidAfter)
}

func TestPathForComputesWithoutTouchingDisk(t *testing.T) {
	a := New(t.TempDir(), 0)
	published := time.Date(2018, 11, 19, 15, 1, 2, 0, time.UTC)
	d := &document.Document{
		Kind: document.RelayServerDescriptor,
		Meta: document.Metadata{PublishedOrValidAfter: published, Digest: "a94a07b2000000000000000000000000000389"},
	}
	p, err := a.PathFor(d)
	require.NoError(t, err)
	assert.Contains(t, p, "relay-descriptors")
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestGetVoteWildcardNoMatchesReturnsNilNil(t *testing.T) {
	a := New(t.TempDir(), 0)
	got, err := a.GetVote("D586D18309DED4CD6D57C18FDB97EFA96D330566", "*", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}
