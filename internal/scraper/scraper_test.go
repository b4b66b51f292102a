package scraper

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/irl/bushel/internal/archive"
	"github.com/irl/bushel/internal/cache"
	"github.com/irl/bushel/internal/document"
	"github.com/irl/bushel/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64Hex(hexDigest string) string {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		panic(err)
	}
	return base64.RawStdEncoding.EncodeToString(raw)
}

const (
	serverDigestHex    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	extraInfoDigestHex = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	microHashHex       = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	v3ident            = "D586D18309DED4CD6D57C18FDB97EFA96D330566"
	voteDigest         = "663B3BB0000000000000000000000000000000"
)

var (
	nsConsensusRaw = []byte("network-status-version 3\n" +
		"valid-after 2018-11-19 15:00:00\n" +
		"dir-source moria1 " + v3ident + " moria.example 1.2.3.4 80 443\n" +
		"contact foo\n" +
		"vote-digest " + voteDigest + "\n" +
		"r caerSidi AAAAAAAAAAAAAAAAAAAAAAAAAAA= " + b64Hex(serverDigestHex) + " 2018-11-19 15:00:00 1.2.3.4 9001 9030\n")

	mdConsensusRaw = []byte("network-status-version 3\n" +
		"valid-after 2018-11-19 15:00:00\n" +
		"r caerSidi AAAAAAAAAAAAAAAAAAAAAAAAAAA= 2018-11-19 15:00:00 1.2.3.4 9001 9030\n" +
		"m " + b64Hex(microHashHex) + "\n")

	voteRaw = []byte("network-status-version 3\nvote-status vote\n" +
		"valid-after 2018-11-19 15:00:00\n" +
		"directory-signature " + v3ident + " ABCD\n" +
		"-----BEGIN SIGNATURE-----\n" + base64.StdEncoding.EncodeToString([]byte("sig-bytes")) + "\n-----END SIGNATURE-----\n")

	serverDescRaw = []byte("router caerSidi 1.2.3.4 9001 0 9030\n" +
		"published 2018-11-19 15:00:00\n" +
		"extra-info-digest " + extraInfoDigestHex + "\n")

	extraInfoRaw = []byte("extra-info bushel 1.2.3.4\npublished 2018-11-19 15:00:00\n")

	microRaw = []byte("onion-key\n-----BEGIN RSA PUBLIC KEY-----\n" +
		base64.StdEncoding.EncodeToString([]byte("key-bytes")) + "\n-----END RSA PUBLIC KEY-----\n")
)

func testEndpoint(t *testing.T, srv *httptest.Server) fetcher.Endpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return fetcher.Endpoint{Host: host, Port: port}
}

func newTestScraper(t *testing.T) *Scraper {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tor/status-vote/current/consensus":
			w.Write(nsConsensusRaw)
		case r.URL.Path == "/tor/status-vote/current/consensus-microdesc":
			w.Write(mdConsensusRaw)
		case strings.HasPrefix(r.URL.Path, "/tor/status-vote/current/d/"), r.URL.Path == "/tor/status-vote/current/authority":
			w.Write(voteRaw)
		case strings.HasPrefix(r.URL.Path, "/tor/server/d/"):
			w.Write(serverDescRaw)
		case strings.HasPrefix(r.URL.Path, "/tor/extra/d/"):
			w.Write(extraInfoRaw)
		case strings.HasPrefix(r.URL.Path, "/tor/micro/d/"):
			w.Write(microRaw)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.ModeTesting, 4, time.Second)
	f.SetEndpoints([]fetcher.Endpoint{testEndpoint(t, srv)})
	a := archive.New(t.TempDir(), 20)
	c := cache.New(a, f)
	return New(c, ModeFollowReferences)
}

func TestScraperRunFullCycleResolvesEveryReference(t *testing.T) {
	s := newTestScraper(t)
	cyc, err := s.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, cyc.Consensus)
	require.NotNil(t, cyc.MicrodescConsensus)
	require.Len(t, cyc.Votes, 1)
	require.Len(t, cyc.ServerDescriptors, 1)
	require.Len(t, cyc.ExtraInfoDescriptors, 1)
	require.Len(t, cyc.Microdescriptors, 1)

	assert.Equal(t, 4, cyc.Requested)
	assert.Equal(t, 4, cyc.Archived)
	assert.Equal(t, 0, cyc.Missing)
}

func TestPartitionServerDescriptorDigests(t *testing.T) {
	consensus := &document.Document{Kind: document.RelayConsensusNS}
	consensus.Refs.ServerDescriptorDigests = []string{"aa", "bb"}

	vote := &document.Document{Kind: document.Vote, Meta: document.Metadata{V3Ident: v3ident}}
	vote.Refs.ServerDescriptorDigests = []string{"bb", "cc"}

	general, byAuthority := partitionServerDescriptorDigests(consensus, []*document.Document{vote})
	assert.Equal(t, []string{"aa", "bb"}, general)
	require.Len(t, byAuthority, 1)
	assert.Equal(t, []string{"cc"}, byAuthority[v3ident],
		"a digest the consensus already references stays in the general pool")
}

func TestScraperRunEnumeratesAuthoritiesWhenConfigured(t *testing.T) {
	s := newTestScraper(t)
	s.mode = ModeEnumerateAuthorities
	cyc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cyc.Votes, "enumerate-authorities mode should fetch a vote per known authority")
}
