// Package cache implements the read-through layer the Scraper queries
// instead of talking to the Archive or Fetcher directly: a lookup first
// checks an in-memory map, then the Archive, then falls through to the
// Fetcher and archives whatever it returns. An inflight map lets
// concurrent callers asking for the same digest share one archive read or
// fetch instead of racing duplicate work.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/irl/bushel/internal/archive"
	"github.com/irl/bushel/internal/blog"
	"github.com/irl/bushel/internal/dirdoc"
	"github.com/irl/bushel/internal/document"
	"github.com/irl/bushel/internal/fetcher"
)

// Cache is the read-through combination of an Archive and a Fetcher.
type Cache struct {
	archive *archive.Archive
	fetcher *fetcher.Fetcher

	mu       sync.Mutex
	memory   map[memKey]*document.Document
	inflight map[memKey]*call
}

type memKey struct {
	kind   document.Kind
	digest string
}

// call is a future shared by every concurrent caller asking for the same
// (kind, digest): the first caller to register one does the work, the rest
// block on done and reuse its result.
type call struct {
	done chan struct{}
	doc  *document.Document
	err  error
}

// New creates a Cache fronting archive and fetcher.
func New(a *archive.Archive, f *fetcher.Fetcher) *Cache {
	return &Cache{
		archive:  a,
		fetcher:  f,
		memory:   make(map[memKey]*document.Document),
		inflight: make(map[memKey]*call),
	}
}

// Clear drops every memoized document. Parsed documents are scoped to a
// single crawl cycle; the Scraper calls this at the start of each cycle so
// a long-running process doesn't accrete stale state. Inflight calls are
// left to settle on their own.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.memory = make(map[memKey]*document.Document)
	c.mu.Unlock()
}

// shareOrRegister either returns the *call already inflight for key (caller
// should wait on it), or registers a fresh one and reports that this caller
// owns it (caller should do the work and then Cache.finish it).
func (c *Cache) shareOrRegister(key memKey) (cl *call, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.memory[key]; ok {
		return &call{done: closedChan, doc: d}, false
	}
	if existing, ok := c.inflight[key]; ok {
		return existing, false
	}
	cl = &call{done: make(chan struct{})}
	c.inflight[key] = cl
	return cl, true
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (c *Cache) finish(key memKey, cl *call, doc *document.Document, err error) {
	cl.doc, cl.err = doc, err
	if err == nil && doc != nil {
		c.mu.Lock()
		c.memory[key] = doc
		c.mu.Unlock()
	}
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
}

// get runs the read-through fetch for a single (kind, digest), coalescing
// concurrent callers onto one inflight call.
func (c *Cache) get(ctx context.Context, key memKey, fromArchive func() (*document.Document, error), fromFetcher func() (*document.Document, error)) (*document.Document, error) {
	cl, owner := c.shareOrRegister(key)
	if !owner {
		select {
		case <-cl.done:
			return cl.doc, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	doc, err := fromArchive()
	if err == nil && doc != nil {
		c.finish(key, cl, doc, nil)
		return doc, nil
	}
	if err != nil {
		blog.Errorf(nil, "cache: archive lookup failed for %s %s: %v", key.kind, key.digest, err)
	}

	doc, err = fromFetcher()
	if err != nil {
		c.finish(key, cl, nil, err)
		return nil, err
	}
	if doc == nil {
		c.finish(key, cl, nil, nil)
		return nil, nil
	}
	if storeErr := c.archive.Store(ctx, doc); storeErr != nil {
		blog.Errorf(nil, "cache: failed to archive fetched %s %s: %v", key.kind, key.digest, storeErr)
	}
	c.finish(key, cl, doc, nil)
	return doc, nil
}

// Consensus returns the current consensus of the given flavor, fetching it
// if the Fetcher hasn't already populated the Archive this cycle.
func (c *Cache) Consensus(ctx context.Context, flavor dirdoc.ConsensusFlavor, validAfter time.Time) (*document.Document, error) {
	var fromArchive func() (*document.Document, error)
	if flavor == dirdoc.FlavorMicrodesc {
		fromArchive = func() (*document.Document, error) { return c.archive.GetMicrodescConsensus(validAfter) }
	} else {
		fromArchive = func() (*document.Document, error) { return c.archive.GetConsensus(validAfter) }
	}
	return c.get(ctx, memKey{kind: consensusKind(flavor), digest: validAfter.UTC().Format(time.RFC3339)},
		fromArchive,
		func() (*document.Document, error) {
			doc, err := c.fetcher.Consensus(ctx, flavor)
			if doc != nil && doc.Meta.PublishedOrValidAfter.IsZero() {
				doc.Meta.PublishedOrValidAfter = validAfter
			}
			return doc, err
		})
}

func consensusKind(flavor dirdoc.ConsensusFlavor) document.Kind {
	if flavor == dirdoc.FlavorMicrodesc {
		return document.RelayConsensusMicrodesc
	}
	return document.RelayConsensusNS
}

// Vote returns an authority's vote by digest (or its current vote, when
// digestOrWildcard is "*"), fetching it if not already archived.
func (c *Cache) Vote(ctx context.Context, v3ident, digestOrWildcard string, validAfter time.Time) (*document.Document, error) {
	doc, err := c.get(ctx, memKey{kind: document.Vote, digest: v3ident + "/" + digestOrWildcard},
		func() (*document.Document, error) { return c.archive.GetVote(v3ident, digestOrWildcard, validAfter) },
		func() (*document.Document, error) {
			doc, err := c.fetcher.Vote(ctx, v3ident, digestOrWildcard, validAfter)
			if doc != nil {
				if doc.Meta.PublishedOrValidAfter.IsZero() {
					doc.Meta.PublishedOrValidAfter = validAfter
				}
				// Stamped before get archives the vote: VotePath keys
				// the filename on the authority identity.
				doc.Meta.V3Ident = v3ident
			}
			return doc, err
		})
	if doc != nil && doc.Meta.V3Ident == "" {
		doc.Meta.V3Ident = v3ident
	}
	return doc, err
}

// ServerDescriptors resolves digests through memory, the Archive, and
// finally the Fetcher, archiving anything the Fetcher returns. publishedHint
// is passed through to the Archive's path computation.
func (c *Cache) ServerDescriptors(ctx context.Context, digests []string, publishedHint time.Time) ([]*document.Document, error) {
	return c.batch(ctx, document.RelayServerDescriptor, digests, publishedHint,
		func(d string) (*document.Document, error) { return c.archive.GetServerDescriptor(d, publishedHint) },
		func(missing []string) ([]*document.Document, error) { return c.fetcher.ServerDescriptors(ctx, missing) })
}

// ServerDescriptorsPreferring is ServerDescriptors with the Fetcher biased
// toward the named authority's own directory endpoint, for digests that
// were referenced by that authority's vote.
func (c *Cache) ServerDescriptorsPreferring(ctx context.Context, v3ident string, digests []string, publishedHint time.Time) ([]*document.Document, error) {
	return c.batch(ctx, document.RelayServerDescriptor, digests, publishedHint,
		func(d string) (*document.Document, error) { return c.archive.GetServerDescriptor(d, publishedHint) },
		func(missing []string) ([]*document.Document, error) {
			return c.fetcher.ServerDescriptorsPreferring(ctx, v3ident, missing)
		})
}

// ExtraInfoDescriptors resolves extra-info descriptors the same way
// ServerDescriptors does.
func (c *Cache) ExtraInfoDescriptors(ctx context.Context, digests []string, publishedHint time.Time) ([]*document.Document, error) {
	return c.batch(ctx, document.RelayExtraInfoDescriptor, digests, publishedHint,
		func(d string) (*document.Document, error) { return c.archive.GetExtraInfo(d, publishedHint) },
		func(missing []string) ([]*document.Document, error) {
			return c.fetcher.ExtraInfoDescriptors(ctx, missing)
		})
}

// Microdescriptors resolves microdescriptors by SHA-256 hash the same way.
func (c *Cache) Microdescriptors(ctx context.Context, hashes []string, publishedHint time.Time) ([]*document.Document, error) {
	return c.batch(ctx, document.RelayMicrodescriptor, hashes, publishedHint,
		func(d string) (*document.Document, error) { return c.archive.GetMicrodescriptor(d, publishedHint) },
		func(missing []string) ([]*document.Document, error) { return c.fetcher.Microdescriptors(ctx, missing) })
}

// batch is the multi-digest counterpart of get: it partitions digests into
// those already in memory, those another caller is already resolving,
// those the Archive has, and those that must be fetched, mirroring
// cache.py's three-pass filter (memory, then archive, then downloader)
// over a digest list. Digests inflight elsewhere are not re-dispatched:
// this caller waits on the shared call instead, so concurrent batch
// requests for overlapping digest sets still produce one fetch per
// digest.
func (c *Cache) batch(ctx context.Context, kind document.Kind, digests []string, publishedHint time.Time, fromArchive func(string) (*document.Document, error), fromFetcher func([]string) ([]*document.Document, error)) ([]*document.Document, error) {
	var out []*document.Document
	var owned []string
	var shared []*call
	pending := make(map[string]*call)

	for _, dgst := range digests {
		cl, owner := c.shareOrRegister(memKey{kind: kind, digest: dgst})
		if !owner {
			shared = append(shared, cl)
			continue
		}
		owned = append(owned, dgst)
		pending[dgst] = cl
	}

	var missing []string
	for _, dgst := range owned {
		doc, err := fromArchive(dgst)
		if err != nil {
			blog.Errorf(nil, "cache: archive lookup failed for %s %s: %v", kind, dgst, err)
			missing = append(missing, dgst)
			continue
		}
		if doc == nil {
			missing = append(missing, dgst)
			continue
		}
		c.finish(memKey{kind: kind, digest: dgst}, pending[dgst], doc, nil)
		delete(pending, dgst)
		out = append(out, doc)
	}

	if len(missing) > 0 {
		fetched, err := fromFetcher(missing)
		if err != nil {
			// Settle the registered calls so waiters don't hang.
			for dgst, cl := range pending {
				c.finish(memKey{kind: kind, digest: dgst}, cl, nil, err)
			}
			return nil, err
		}
		for _, doc := range fetched {
			doc.Meta.PublishedOrValidAfter = publishedHint
			if storeErr := c.archive.Store(ctx, doc); storeErr != nil {
				blog.Errorf(nil, "cache: failed to archive fetched %s: %v", kind, storeErr)
			}
			key := memKey{kind: kind, digest: doc.Meta.Digest}
			if cl, ok := pending[doc.Meta.Digest]; ok {
				c.finish(key, cl, doc, nil)
				delete(pending, doc.Meta.Digest)
			} else {
				// A returned descriptor whose recomputed digest doesn't
				// match what was asked for is still worth memoizing
				// under its real digest.
				c.mu.Lock()
				c.memory[key] = doc
				c.mu.Unlock()
			}
			out = append(out, doc)
		}
	}

	// Digests every endpoint came back empty for: settled as missing.
	for dgst, cl := range pending {
		c.finish(memKey{kind: kind, digest: dgst}, cl, nil, nil)
	}

	for _, cl := range shared {
		select {
		case <-cl.done:
			if cl.err != nil {
				return nil, cl.err
			}
			if cl.doc != nil {
				out = append(out, cl.doc)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}
