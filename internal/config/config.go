// Package config binds the handful of flags cmd/bushel needs onto a
// pflag.FlagSet, the way rclone's cmd/ entrypoints (built on
// github.com/spf13/pflag throughout its cobra-based command tree) bind
// runtime options rather than reading environment variables directly.
// Subcommand dispatch itself is out of scope here; this is a flat flag set
// for the single entrypoint, which runs one or more crawl cycles.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/irl/bushel/internal/fetcher"
)

// Config holds the options a bushel run needs, including how many crawl
// cycles it runs and how long it waits between them.
type Config struct {
	// ArchiveRoot is the filesystem root the Archive reads and writes.
	ArchiveRoot string
	// EndpointMode selects how the Fetcher's endpoint pool is populated.
	EndpointMode fetcher.Mode
	// FetcherConcurrency bounds simultaneous outstanding HTTP requests.
	FetcherConcurrency int
	// ArchiveFDCap bounds simultaneously open archive file descriptors.
	ArchiveFDCap int
	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration
	// LowLevelRetries bounds how many times the pacer retries a single
	// transient failure before giving up, mirroring rclone's
	// --low-level-retries default of 20 (fs/pacer_test.go).
	LowLevelRetries int
	// Cycles is how many crawl cycles to run before exiting; 0 means run
	// until interrupted.
	Cycles int
	// CycleInterval is the pause between consecutive crawl cycles.
	CycleInterval time.Duration
	// Verbose enables debug-level logging.
	Verbose bool
}

// Default returns the Config a fresh crawl should use absent any flags.
func Default() Config {
	return Config{
		ArchiveRoot:        ".",
		EndpointMode:       fetcher.ModeClient,
		FetcherConcurrency: fetcher.DefaultConcurrency,
		ArchiveFDCap:       150,
		RequestTimeout:     fetcher.DefaultTimeout,
		LowLevelRetries:    20,
		Cycles:             1,
		CycleInterval:      time.Hour,
	}
}

// endpointMode is a pflag.Value adapting fetcher.Mode to a named flag
// ("client", "directory-cache", "testing") instead of an opaque integer.
type endpointMode struct {
	mode *fetcher.Mode
}

func (m *endpointMode) String() string {
	switch *m.mode {
	case fetcher.ModeDirectoryCache:
		return "directory-cache"
	case fetcher.ModeTesting:
		return "testing"
	default:
		return "client"
	}
}

func (m *endpointMode) Set(s string) error {
	switch s {
	case "client":
		*m.mode = fetcher.ModeClient
	case "directory-cache":
		*m.mode = fetcher.ModeDirectoryCache
	case "testing":
		*m.mode = fetcher.ModeTesting
	default:
		return fmt.Errorf("unknown endpoint mode %q", s)
	}
	return nil
}

func (m *endpointMode) Type() string { return "mode" }

// BindFlags registers cfg's fields onto fs, defaulting to Default()'s
// values where cfg is the zero value.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	if cfg.FetcherConcurrency == 0 && cfg.ArchiveFDCap == 0 {
		*cfg = Default()
	}
	fs.StringVar(&cfg.ArchiveRoot, "archive-root", cfg.ArchiveRoot, "filesystem root for the document archive")
	fs.Var(&endpointMode{&cfg.EndpointMode}, "endpoint-mode", "endpoint pool: client, directory-cache, or testing")
	fs.IntVar(&cfg.FetcherConcurrency, "fetcher-concurrency", cfg.FetcherConcurrency, "maximum simultaneous outstanding HTTP requests")
	fs.IntVar(&cfg.ArchiveFDCap, "archive-fd-cap", cfg.ArchiveFDCap, "maximum simultaneously open archive file descriptors")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request HTTP timeout")
	fs.IntVar(&cfg.LowLevelRetries, "low-level-retries", cfg.LowLevelRetries, "number of retries for transient fetch failures")
	fs.IntVar(&cfg.Cycles, "cycles", cfg.Cycles, "number of crawl cycles to run, 0 to run until interrupted")
	fs.DurationVar(&cfg.CycleInterval, "cycle-interval", cfg.CycleInterval, "pause between consecutive crawl cycles")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable debug-level logging")
}
