// Command bushel runs directory-protocol crawl cycles: each cycle resolves
// the current consensuses, follows their references, and archives every
// document it reaches. --cycles sets how many cycles run (0 runs until
// interrupted). Flag parsing here is deliberately minimal, a flat
// set of runtime options rather than a subcommand tree.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/irl/bushel/internal/archive"
	"github.com/irl/bushel/internal/authority"
	"github.com/irl/bushel/internal/blog"
	"github.com/irl/bushel/internal/bushelerr"
	"github.com/irl/bushel/internal/cache"
	"github.com/irl/bushel/internal/config"
	"github.com/irl/bushel/internal/fetcher"
	"github.com/irl/bushel/internal/scraper"
)

func main() {
	var cfg config.Config
	fs := pflag.NewFlagSet("bushel", pflag.ExitOnError)
	config.BindFlags(fs, &cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if cfg.Verbose {
		blog.SetLevel(blog.LevelDebug)
	}

	if err := run(context.Background(), cfg); err != nil {
		blog.Errorf(nil, "bushel: %v", err)
		if bushelerr.Is(err, bushelerr.KindBadArgument) || bushelerr.Is(err, bushelerr.KindDisk) {
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, cfg config.Config) error {
	f := fetcher.New(cfg.EndpointMode, cfg.FetcherConcurrency, cfg.RequestTimeout)
	f.SetRetries(cfg.LowLevelRetries)
	f.SetEndpoints(defaultEndpoints(cfg.EndpointMode))
	return runWithFetcher(ctx, cfg, f)
}

// runWithFetcher runs crawl cycles using a caller-supplied Fetcher, letting
// tests inject a Fetcher pointed at a fake directory server instead of the
// real authorities defaultEndpoints seeds.
func runWithFetcher(ctx context.Context, cfg config.Config, f *fetcher.Fetcher) error {
	a := archive.New(cfg.ArchiveRoot, cfg.ArchiveFDCap)
	c := cache.New(a, f)

	mode := scraper.ModeFollowReferences
	if cfg.EndpointMode == fetcher.ModeDirectoryCache {
		mode = scraper.ModeEnumerateAuthorities
	}
	s := scraper.New(c, mode)

	for i := 0; ; i++ {
		cyc, err := s.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requested=%d archived=%d missing=%d\n", cyc.Requested, cyc.Archived, cyc.Missing)

		if cfg.Cycles > 0 && i+1 >= cfg.Cycles {
			return nil
		}
		refreshClientEndpoints(cfg, f, cyc)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.CycleInterval):
		}
	}
}

// refreshClientEndpoints repoints a client-mode Fetcher at the directory
// caches the just-fetched consensus advertises, so subsequent cycles stop
// leaning on the authorities.
func refreshClientEndpoints(cfg config.Config, f *fetcher.Fetcher, cyc *scraper.Cycle) {
	if cfg.EndpointMode != fetcher.ModeClient || cyc.Consensus == nil {
		return
	}
	if eps := fetcher.CacheEndpoints(cyc.Consensus); len(eps) > 0 {
		f.SetEndpoints(eps)
	}
	if eps := fetcher.ExtraInfoCacheEndpoints(cyc.ServerDescriptors); len(eps) > 0 {
		f.SetExtraInfoEndpoints(eps)
	}
}

// defaultEndpoints seeds the Fetcher's pool: the single local cache under
// testing mode, the well-known directory authorities otherwise. A
// client-mode crawl replaces the authority pool with the directory caches
// discovered from the latest consensus once one is held.
func defaultEndpoints(mode fetcher.Mode) []fetcher.Endpoint {
	if mode == fetcher.ModeTesting {
		return []fetcher.Endpoint{fetcher.TestingEndpoint}
	}
	eps := make([]fetcher.Endpoint, 0, len(authority.Authorities))
	for _, a := range authority.Authorities {
		eps = append(eps, fetcher.Endpoint{Host: a.DirAddr, Port: a.DirPort})
	}
	return eps
}
