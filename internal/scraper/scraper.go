// Package scraper implements the top-level orchestration cycle: fetch both
// consensus flavors through the Cache, follow their vote-digest references,
// union the referenced server-descriptor digests, bulk-resolve them and
// their extra-info references, then bulk-resolve the microdesc-flavored
// consensus's microdescriptor hashes, as a sequence of errgroup-driven
// Cache calls.
package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/irl/bushel/internal/authority"
	"github.com/irl/bushel/internal/blog"
	"github.com/irl/bushel/internal/cache"
	"github.com/irl/bushel/internal/dirdoc"
	"github.com/irl/bushel/internal/document"
	"golang.org/x/sync/errgroup"
)

// Mode selects how the Scraper discovers which votes to fetch.
type Mode int

const (
	// ModeFollowReferences fetches votes by the vote-digest references
	// found in an already-held consensus.
	ModeFollowReferences Mode = iota
	// ModeEnumerateAuthorities fetches every known authority's current
	// vote directly, used on a cold start with no held consensus.
	ModeEnumerateAuthorities
)

// Cycle records the outcome of one orchestration run, for the info-level
// summary line printed once a cycle completes.
type Cycle struct {
	Requested int
	Archived  int
	Missing   int

	Consensus            *document.Document
	MicrodescConsensus   *document.Document
	Votes                []*document.Document
	ServerDescriptors    []*document.Document
	ExtraInfoDescriptors []*document.Document
	Microdescriptors     []*document.Document
}

func (c *Cycle) record(requested int, got []*document.Document) {
	c.Requested += requested
	c.Archived += len(got)
	c.Missing += requested - len(got)
}

// Scraper runs orchestration cycles against a Cache.
type Scraper struct {
	cache *cache.Cache
	mode  Mode
}

// New creates a Scraper over cache, discovering votes per mode.
func New(c *cache.Cache, mode Mode) *Scraper {
	return &Scraper{cache: c, mode: mode}
}

// Run executes one full cycle: both consensus flavors, votes, server
// descriptors, extra-info descriptors, microdescriptors. The cycle always
// starts from the current consensuses; its validAfter starts as the zero
// value ("current") and is taken from the ns consensus once that is held.
func (s *Scraper) Run(ctx context.Context) (*Cycle, error) {
	cyc := &Cycle{}
	validAfter := time.Time{}

	// Parsed documents are scoped to a single cycle.
	s.cache.Clear()

	nsConsensus, err := s.cache.Consensus(ctx, dirdoc.FlavorNS, validAfter)
	if err != nil {
		return cyc, err
	}
	cyc.Consensus = nsConsensus
	if nsConsensus != nil && !nsConsensus.Meta.PublishedOrValidAfter.IsZero() {
		validAfter = nsConsensus.Meta.PublishedOrValidAfter
	}

	mdConsensus, err := s.cache.Consensus(ctx, dirdoc.FlavorMicrodesc, validAfter)
	if err != nil {
		return cyc, err
	}
	cyc.MicrodescConsensus = mdConsensus

	votes, err := s.fetchVotes(ctx, nsConsensus, validAfter)
	if err != nil {
		return cyc, err
	}
	cyc.Votes = votes
	cyc.record(len(votes), votes)

	general, byAuthority := partitionServerDescriptorDigests(nsConsensus, votes)
	requested := len(general)
	for _, digests := range byAuthority {
		requested += len(digests)
	}
	if requested > 0 {
		descs, err := s.fetchServerDescriptors(ctx, general, byAuthority, validAfter)
		if err != nil {
			return cyc, err
		}
		cyc.ServerDescriptors = descs
		cyc.record(requested, descs)

		extraInfoDigests, err := extraInfoDigestsFrom(descs)
		if err != nil {
			blog.Errorf(nil, "scraper: failed to parse server descriptors for extra-info refs: %v", err)
		} else if len(extraInfoDigests) > 0 {
			extra, err := s.cache.ExtraInfoDescriptors(ctx, extraInfoDigests, validAfter)
			if err != nil {
				return cyc, err
			}
			cyc.ExtraInfoDescriptors = extra
			cyc.record(len(extraInfoDigests), extra)
		}
	}

	if mdConsensus != nil {
		microHashes := mdConsensus.Refs.MicrodescriptorDigests
		if len(microHashes) > 0 {
			micro, err := s.cache.Microdescriptors(ctx, microHashes, validAfter)
			if err != nil {
				return cyc, err
			}
			cyc.Microdescriptors = micro
			cyc.record(len(microHashes), micro)
		}
	}

	blog.Logf(nil, "cycle complete: requested=%d archived=%d missing=%d", cyc.Requested, cyc.Archived, cyc.Missing)
	return cyc, nil
}

// fetchVotes resolves the set of votes to fetch this cycle, either by
// following the consensus's vote-digest references or, in
// ModeEnumerateAuthorities, by asking every known authority for its
// current vote directly.
func (s *Scraper) fetchVotes(ctx context.Context, consensus *document.Document, validAfter time.Time) ([]*document.Document, error) {
	type want struct {
		v3ident string
		digest  string
	}
	var wants []want

	switch s.mode {
	case ModeEnumerateAuthorities:
		for _, a := range authority.Authorities {
			wants = append(wants, want{v3ident: a.V3Ident, digest: "*"})
		}
	default:
		if consensus == nil {
			return nil, nil
		}
		for v3ident, digest := range consensus.Refs.VoteDigestsByAuthority {
			wants = append(wants, want{v3ident: v3ident, digest: digest})
		}
	}
	if len(wants) == 0 {
		return nil, nil
	}

	votes := make([]*document.Document, len(wants))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range wants {
		i, w := i, w
		g.Go(func() error {
			v, err := s.cache.Vote(gctx, w.v3ident, w.digest, validAfter)
			if err != nil {
				return err
			}
			votes[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*document.Document
	for _, v := range votes {
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// partitionServerDescriptorDigests deduplicates the server-descriptor
// digests referenced by the ns consensus and every fetched vote. Digests
// the consensus references go into the general pool; digests referenced
// only by a vote are grouped under that vote's authority, so the request
// for them can be biased toward the authority that cast the vote.
func partitionServerDescriptorDigests(consensus *document.Document, votes []*document.Document) (general []string, byAuthority map[string][]string) {
	seen := make(map[string]bool)
	if consensus != nil {
		for _, d := range consensus.Refs.ServerDescriptorDigests {
			if !seen[d] {
				seen[d] = true
				general = append(general, d)
			}
		}
	}
	byAuthority = make(map[string][]string)
	for _, v := range votes {
		for _, d := range v.Refs.ServerDescriptorDigests {
			if !seen[d] {
				seen[d] = true
				byAuthority[v.Meta.V3Ident] = append(byAuthority[v.Meta.V3Ident], d)
			}
		}
	}
	return general, byAuthority
}

// fetchServerDescriptors bulk-resolves the partitioned digest groups: the
// general pool in one Cache call, and each vote-only group in a concurrent
// call preferring that vote's authority.
func (s *Scraper) fetchServerDescriptors(ctx context.Context, general []string, byAuthority map[string][]string, validAfter time.Time) ([]*document.Document, error) {
	var mu sync.Mutex
	var out []*document.Document

	g, gctx := errgroup.WithContext(ctx)
	if len(general) > 0 {
		g.Go(func() error {
			descs, err := s.cache.ServerDescriptors(gctx, general, validAfter)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, descs...)
			mu.Unlock()
			return nil
		})
	}
	for v3ident, digests := range byAuthority {
		v3ident, digests := v3ident, digests
		g.Go(func() error {
			descs, err := s.cache.ServerDescriptorsPreferring(gctx, v3ident, digests, validAfter)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, descs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// extraInfoDigestsFrom parses each server descriptor for its
// extra-info-digest reference, deduplicating across the set.
func extraInfoDigestsFrom(descs []*document.Document) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, d := range descs {
		parsed, err := dirdoc.ParseServerDescriptor(d.Raw, d.Kind)
		if err != nil {
			return nil, err
		}
		for _, digest := range parsed.Refs.ExtraInfoDigests {
			if !seen[digest] {
				seen[digest] = true
				out = append(out, digest)
			}
		}
	}
	return out, nil
}
