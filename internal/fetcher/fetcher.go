// Package fetcher retrieves directory-protocol documents over HTTP from a
// pool of endpoints, failing over between them and retrying transient
// errors. Grounded on backend/b2/b2.go's pattern of wrapping every HTTP
// call in f.pacer.Call(fn) with a shouldRetry predicate, and on
// backend/b2/upload.go's errgroup-based concurrent fan-out for
// independent batches.
package fetcher

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/irl/bushel/internal/authority"
	"github.com/irl/bushel/internal/blog"
	"github.com/irl/bushel/internal/bushelerr"
	"github.com/irl/bushel/internal/digest"
	"github.com/irl/bushel/internal/dirdoc"
	"github.com/irl/bushel/internal/document"
	"github.com/irl/bushel/internal/pacer"
	"github.com/irl/bushel/internal/resthttp"
	"github.com/irl/bushel/internal/tokens"
	"golang.org/x/sync/errgroup"
)

// Mode selects how the Fetcher's endpoint pool is populated.
type Mode int

const (
	// ModeClient uses directory caches discovered from the latest
	// consensus.
	ModeClient Mode = iota
	// ModeDirectoryCache uses the hard-coded directory authorities.
	ModeDirectoryCache
	// ModeTesting uses a single local cache.
	ModeTesting
)

// Endpoint is one directory server the Fetcher may query.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) rootURL() string {
	return "http://" + e.Host + ":" + strconv.Itoa(e.Port) + "/"
}

// DefaultConcurrency is the default number of simultaneously outstanding
// HTTP requests.
const DefaultConcurrency = 9

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 5 * time.Second

// TestingEndpoint is the single local cache ModeTesting seeds the pool
// with.
var TestingEndpoint = Endpoint{Host: "127.0.0.1", Port: 9030}

// Fetcher issues directory-protocol queries against Mode's endpoint pool.
type Fetcher struct {
	mode               Mode
	endpoints          []Endpoint
	extraInfoEndpoints []Endpoint
	timeout            time.Duration
	retries            int
	sem                *tokens.Dispenser
	pacer              *pacer.Pacer
}

// New creates a Fetcher in the given mode. concurrency and timeout fall
// back to DefaultConcurrency/DefaultTimeout when <= 0.
func New(mode Mode, concurrency int, timeout time.Duration) *Fetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		mode:    mode,
		timeout: timeout,
		retries: pacer.Retries,
		sem:     tokens.NewDispenser(concurrency),
		pacer:   pacer.New(nil, pacer.Retries),
	}
}

// SetRetries overrides the pacer's low-level retry budget, mirroring
// rclone's --low-level-retries flag (fs/pacer_test.go).
func (f *Fetcher) SetRetries(retries int) {
	if retries <= 0 {
		retries = pacer.Retries
	}
	f.retries = retries
	f.pacer = pacer.New(nil, f.retries)
}

// SetMode switches the endpoint-selection mode. Switching clears the
// per-endpoint request history accumulated under the previous mode, along
// with any restricted extra-info pool; ModeTesting re-seeds the pool with
// the single local cache.
func (f *Fetcher) SetMode(mode Mode) {
	f.mode = mode
	f.extraInfoEndpoints = nil
	f.pacer = pacer.New(nil, f.retries)
	if mode == ModeTesting {
		f.endpoints = []Endpoint{TestingEndpoint}
	}
}

// SetEndpoints replaces the Fetcher's endpoint pool. Switching modes is
// expected to be followed by a call to SetEndpoints with the new mode's
// discovered or configured endpoints; this also clears any per-endpoint
// request history the pacer held.
func (f *Fetcher) SetEndpoints(eps []Endpoint) {
	f.endpoints = eps
	f.pacer = pacer.New(nil, f.retries)
}

// SetExtraInfoEndpoints restricts extra-info queries to eps, for client
// mode where only some directory caches advertise caching extra-info
// descriptors. An empty list falls back to the main pool.
func (f *Fetcher) SetExtraInfoEndpoints(eps []Endpoint) {
	f.extraInfoEndpoints = eps
}

func shuffled(eps []Endpoint) []Endpoint {
	out := make([]Endpoint, len(eps))
	copy(out, eps)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (f *Fetcher) shuffledEndpoints() []Endpoint {
	return shuffled(f.endpoints)
}

func (f *Fetcher) extraInfoPool() []Endpoint {
	if len(f.extraInfoEndpoints) > 0 {
		return shuffled(f.extraInfoEndpoints)
	}
	return f.shuffledEndpoints()
}

// preferringAuthority returns the shuffled pool reordered so the named
// authority's own directory endpoint is tried first, when it is part of
// the pool. Used to bias descriptor requests referenced by a vote toward
// the authority that cast it.
func (f *Fetcher) preferringAuthority(v3ident string) []Endpoint {
	eps := f.shuffledEndpoints()
	a, ok := authority.ByV3Ident(v3ident)
	if !ok {
		return eps
	}
	for i, ep := range eps {
		if ep.Host == a.DirAddr && ep.Port == a.DirPort {
			eps[0], eps[i] = eps[i], eps[0]
			break
		}
	}
	return eps
}

// query performs one failover-and-retry cycle across the shuffled
// endpoint pool for a single path+parameters, returning the response body
// of the first endpoint that answers successfully. (nil, nil) means an
// endpoint reported NotFound (the first 404 ends the query; the remaining
// endpoints are not asked) or the attempt budget was exhausted, a soft
// failure the caller treats as "missing".
func (f *Fetcher) query(ctx context.Context, path string, parameters url.Values) ([]byte, error) {
	return f.queryEndpoints(ctx, f.shuffledEndpoints(), path, parameters)
}

// queryEndpoints is query's implementation over an explicit endpoint list,
// letting callers that must reach one specific directory server (e.g.
// Vote under DIRECTORY_CACHE mode) bypass the Fetcher's own pool without
// mutating shared state.
func (f *Fetcher) queryEndpoints(ctx context.Context, eps []Endpoint, path string, parameters url.Values) ([]byte, error) {
	if len(eps) == 0 {
		return nil, bushelerr.BadArgument("fetcher has no endpoints configured")
	}

	var body []byte
	var notFound bool
	attempt := 0
	err := f.pacer.Call(ctx, func() (bool, error) {
		ep := eps[attempt%len(eps)]
		attempt++

		f.sem.Get()
		defer f.sem.Put()

		client, cerr := resthttp.NewClient(ep.rootURL(), f.timeout)
		if cerr != nil {
			return false, bushelerr.BadArgument("invalid endpoint %s: %v", ep.Host, cerr)
		}

		b, status, rerr := client.CallBytes(ctx, resthttp.Opts{Path: path, Parameters: parameters})
		retry, classified := classify(status, rerr, attempt, len(eps))
		if classified == nil {
			body = b
			return false, nil
		}
		if bushelerr.Is(classified, bushelerr.KindNotFound) {
			notFound = true
			return false, nil
		}
		return retry, classified
	})

	if notFound || (err == nil && body == nil) {
		return nil, nil
	}
	if err != nil {
		blog.Errorf(nil, "fetcher: all endpoints exhausted for %s: %v", path, err)
		return nil, nil
	}
	return body, nil
}

// classify turns an HTTP status/transport error into the taxonomy
// shouldRetry decision: 404 is NotFound (no retry, not an error); 5xx and
// transport errors are Transient (retry until endpoints/budget exhausted);
// anything else is surfaced as-is.
func classify(status int, transportErr error, attempt, numEndpoints int) (retry bool, err error) {
	if transportErr != nil {
		return attempt < numEndpoints*2, bushelerr.Transient(transportErr, "request failed")
	}
	switch {
	case status == http.StatusNotFound:
		return false, bushelerr.NotFound("404")
	case status >= 500:
		return attempt < numEndpoints*2, bushelerr.Transient(nil, "server error %d", status)
	case status >= 200 && status < 300:
		return false, nil
	default:
		return false, bushelerr.New(bushelerr.KindParseError, "unexpected status %d", status)
	}
}

// Consensus fetches the current consensus of the given flavor.
func (f *Fetcher) Consensus(ctx context.Context, flavor dirdoc.ConsensusFlavor) (*document.Document, error) {
	body, err := f.query(ctx, consensusPath(flavor == dirdoc.FlavorMicrodesc), nil)
	if err != nil || body == nil {
		return nil, err
	}
	return dirdoc.ParseConsensus(body, flavor)
}

// Vote fetches an authority's vote by digest, or its current vote when
// digestOrWildcard is "*". validAfter is accepted for API symmetry with
// Archive.GetVote but doesn't affect the query path, since a vote is
// identified by digest, not by time. In DIRECTORY_CACHE mode, when v3ident
// names one of the known directory authorities whose endpoint is in the
// pool, the query targets that authority's endpoint specifically (only the authority itself serves its own current vote at
// "/tor/status-vote/current/authority"); otherwise the Fetcher's whole
// endpoint pool is tried.
func (f *Fetcher) Vote(ctx context.Context, v3ident, digestOrWildcard string, validAfter time.Time) (*document.Document, error) {
	path := votePath(digestOrWildcard)
	if digestOrWildcard == "*" {
		path = votePath("")
	}

	var body []byte
	var err error
	if ep, ok := f.endpointForAuthority(v3ident); ok {
		body, err = f.queryEndpoints(ctx, []Endpoint{ep}, path, nil)
	} else {
		body, err = f.query(ctx, path, nil)
	}
	if err != nil || body == nil {
		return nil, err
	}
	return dirdoc.ParseVote(body)
}

// endpointForAuthority resolves v3ident to one of the Fetcher's endpoints
// for DIRECTORY_CACHE mode, where endpoints line up one-to-one with
// directory authorities.
func (f *Fetcher) endpointForAuthority(v3ident string) (Endpoint, bool) {
	if v3ident == "" || f.mode != ModeDirectoryCache {
		return Endpoint{}, false
	}
	a, ok := authority.ByV3Ident(v3ident)
	if !ok {
		return Endpoint{}, false
	}
	for _, ep := range f.endpoints {
		if ep.Host == a.DirAddr && ep.Port == a.DirPort {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// ServerDescriptors fetches relay server descriptors by digest, batching
// at most MaxFingerprints per request and running batches concurrently.
func (f *Fetcher) ServerDescriptors(ctx context.Context, digests []string) ([]*document.Document, error) {
	return f.fetchDescriptorBatches(ctx, f.shuffledEndpoints(), digests, MaxFingerprints, serverDescriptorPath, "router", document.RelayServerDescriptor)
}

// ServerDescriptorsPreferring fetches relay server descriptors by digest,
// trying the named authority's own directory endpoint before failing over
// to the rest of the pool.
func (f *Fetcher) ServerDescriptorsPreferring(ctx context.Context, v3ident string, digests []string) ([]*document.Document, error) {
	return f.fetchDescriptorBatches(ctx, f.preferringAuthority(v3ident), digests, MaxFingerprints, serverDescriptorPath, "router", document.RelayServerDescriptor)
}

// ExtraInfoDescriptors fetches relay extra-info descriptors by digest,
// restricted to the extra-info cache pool when one has been discovered.
func (f *Fetcher) ExtraInfoDescriptors(ctx context.Context, digests []string) ([]*document.Document, error) {
	return f.fetchDescriptorBatches(ctx, f.extraInfoPool(), digests, MaxFingerprints, extraInfoPath, "extra-info", document.RelayExtraInfoDescriptor)
}

func (f *Fetcher) fetchDescriptorBatches(ctx context.Context, eps []Endpoint, digests []string, batchSize int, pathFn func([]string) string, splitKeyword string, kind document.Kind) ([]*document.Document, error) {
	groups := batches(digests, batchSize)
	results := make([][]*document.Document, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			body, err := f.queryEndpoints(gctx, eps, pathFn(group), nil)
			if err != nil {
				return err
			}
			if body == nil {
				return nil
			}
			for _, chunk := range splitOnLeadingKeyword(body, splitKeyword) {
				raw := chunk
				results[i] = append(results[i], &document.Document{
					Kind: kind,
					Raw:  raw,
					Meta: document.Metadata{Digest: digest.Lower(raw)},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*document.Document
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// CacheEndpoints returns the directory-cache endpoints a consensus
// advertises: every router flagged V2Dir with a reachable directory port.
// This is the pool a client-mode Fetcher should switch to once a consensus
// is held.
func CacheEndpoints(consensus *document.Document) []Endpoint {
	var eps []Endpoint
	if consensus == nil {
		return eps
	}
	for _, dc := range consensus.Refs.DirectoryCaches {
		if dc.V2Dir && dc.DirPort > 0 {
			eps = append(eps, Endpoint{Host: dc.Address, Port: dc.DirPort})
		}
	}
	return eps
}

// ExtraInfoCacheEndpoints returns the endpoints of caches that advertise
// caching extra-info descriptors, drawn from parsed server descriptors.
func ExtraInfoCacheEndpoints(descs []*document.Document) []Endpoint {
	var eps []Endpoint
	for _, d := range descs {
		if d == nil {
			continue
		}
		for _, dc := range d.Refs.DirectoryCaches {
			if dc.ExtraInfoCache && dc.DirPort > 0 {
				eps = append(eps, Endpoint{Host: dc.Address, Port: dc.DirPort})
			}
		}
	}
	return eps
}

// Microdescriptors fetches microdescriptors by SHA-256 hash.
func (f *Fetcher) Microdescriptors(ctx context.Context, hashesLowerHex []string) ([]*document.Document, error) {
	groups := batches(hashesLowerHex, MaxMicrodescriptorHashes)
	results := make([][]*document.Document, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			path, perr := microdescriptorPath(group)
			if perr != nil {
				return bushelerr.BadArgument("invalid microdescriptor hash: %v", perr)
			}
			body, err := f.query(gctx, path, nil)
			if err != nil {
				return err
			}
			if body == nil {
				return nil
			}
			for _, chunk := range splitOnLeadingKeyword(body, "onion-key") {
				raw := chunk
				results[i] = append(results[i], &document.Document{
					Kind: document.RelayMicrodescriptor,
					Raw:  raw,
					Meta: document.Metadata{Digest: digest.SHA256Lower(raw)},
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*document.Document
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
