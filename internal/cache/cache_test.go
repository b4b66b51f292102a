package cache

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/irl/bushel/internal/archive"
	"github.com/irl/bushel/internal/digest"
	"github.com/irl/bushel/internal/dirdoc"
	"github.com/irl/bushel/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(t *testing.T, handler http.HandlerFunc) *fetcher.Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	f := fetcher.New(fetcher.ModeTesting, 4, time.Second)
	f.SetEndpoints([]fetcher.Endpoint{{Host: host, Port: port}})
	return f
}

func TestCacheConsensusArchivesOnFirstFetchThenServesFromArchive(t *testing.T) {
	var hits int32
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("network-status-version 3\n"))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	validAfter := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	d1, err := c.Consensus(context.Background(), dirdoc.FlavorNS, validAfter)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	c2 := New(a, f)
	d2, err := c2.Consensus(context.Background(), dirdoc.FlavorNS, validAfter)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second cache should have found it in the archive, not refetched")
}

func TestCacheConsensusConcurrentCallersCoalesce(t *testing.T) {
	var hits int32
	block := make(chan struct{})
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-block
		w.Write([]byte("network-status-version 3\n"))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	validAfter := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Consensus(context.Background(), dirdoc.FlavorNS, validAfter)
			assert.NoError(t, err)
			assert.NotNil(t, d)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "concurrent callers for the same consensus should coalesce into one fetch")
}

func TestCacheServerDescriptorsSplitsMemoryArchiveAndFetch(t *testing.T) {
	var hits int32
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("router a 1.2.3.4 9001 0 9030\nbandwidth 1 2 3\n"))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	published := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	docs, err := c.ServerDescriptors(context.Background(), []string{"deadbeef"}, published)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	docs2, err := c.ServerDescriptors(context.Background(), []string{docs[0].Meta.Digest}, published)
	require.NoError(t, err)
	require.Len(t, docs2, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second lookup by the real digest should hit memory, not refetch")
}

func TestCacheServerDescriptorsConcurrentCallersCoalesce(t *testing.T) {
	body := "router a 1.2.3.4 9001 0 9030\nbandwidth 1 2 3\n"
	wantDigest := digest.Lower([]byte(body))

	var hits int32
	block := make(chan struct{})
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-block
		w.Write([]byte(body))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	published := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, err := c.ServerDescriptors(context.Background(), []string{wantDigest}, published)
			assert.NoError(t, err)
			assert.Len(t, docs, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "concurrent batch callers for the same digest should coalesce into one fetch")
}

func TestCacheClearDropsMemoizedDocumentsButNotTheArchive(t *testing.T) {
	var hits int32
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("network-status-version 3\n"))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	validAfter := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	_, err := c.Consensus(context.Background(), dirdoc.FlavorNS, validAfter)
	require.NoError(t, err)

	c.Clear()
	assert.Empty(t, c.memory)

	d, err := c.Consensus(context.Background(), dirdoc.FlavorNS, validAfter)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "after Clear the document should come back from the archive, not a refetch")
}

func TestCacheVoteWildcardFetchesWhenArchiveEmpty(t *testing.T) {
	f := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("network-status-version 3\nvote-status vote\n" +
			"directory-signature D586D18309DED4CD6D57C18FDB97EFA96D330566 ABCD\n"))
	})
	a := archive.New(t.TempDir(), 10)
	c := New(a, f)

	validAfter := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	d, err := c.Vote(context.Background(), "ABCDEF0123456789ABCDEF0123456789ABCDEF01", "*", validAfter)
	require.NoError(t, err)
	require.NotNil(t, d)
}
