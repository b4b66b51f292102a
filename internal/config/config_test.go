package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irl/bushel/internal/fetcher"
)

func TestBindFlagsAppliesDefaults(t *testing.T) {
	var cfg Config
	fs := pflag.NewFlagSet("bushel", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	assert.Equal(t, ".", cfg.ArchiveRoot)
	assert.Equal(t, fetcher.ModeClient, cfg.EndpointMode)
	assert.Equal(t, fetcher.DefaultConcurrency, cfg.FetcherConcurrency)
	assert.Equal(t, 150, cfg.ArchiveFDCap)
	assert.Equal(t, 20, cfg.LowLevelRetries)
}

func TestBindFlagsParsesOverrides(t *testing.T) {
	var cfg Config
	fs := pflag.NewFlagSet("bushel", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	err := fs.Parse([]string{
		"--archive-root=/tmp/archive",
		"--endpoint-mode=directory-cache",
		"--fetcher-concurrency=16",
		"--request-timeout=10s",
		"-v",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/archive", cfg.ArchiveRoot)
	assert.Equal(t, fetcher.ModeDirectoryCache, cfg.EndpointMode)
	assert.Equal(t, 16, cfg.FetcherConcurrency)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Verbose)
}

func TestBindFlagsRejectsUnknownEndpointMode(t *testing.T) {
	var cfg Config
	fs := pflag.NewFlagSet("bushel", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	err := fs.Parse([]string{"--endpoint-mode=bogus"})
	require.Error(t, err)
}
