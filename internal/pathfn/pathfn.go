// Package pathfn implements the pure, total functions mapping a document's
// kind and metadata to its archive-relative path, matching CollecTor's
// on-disk layout byte for byte. Sharding on the first two hex characters of
// a digest follows the same
// "split the key into a prefix and the rest" idiom as rclone's
// lib/bucket.Split (bucket_test.go), generalized from bucket/path splitting
// to first-byte/second-byte hex splitting.
package pathfn

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/irl/bushel/internal/bushelerr"
	"github.com/irl/bushel/internal/document"
)

func pad2(n int) string {
	return fmt.Sprintf("%02d", n)
}

func ymd(t time.Time) (year, month, day string) {
	return fmt.Sprintf("%04d", t.Year()), pad2(int(t.Month())), pad2(t.Day())
}

func hms(t time.Time) string {
	return fmt.Sprintf("%02d-%02d-%02d", t.Hour(), t.Minute(), t.Second())
}

func shard(digestLower string) (d0, d1 string, err error) {
	if len(digestLower) < 2 {
		return "", "", bushelerr.BadArgument("digest %q too short to shard", digestLower)
	}
	return digestLower[0:1], digestLower[1:2], nil
}

// ServerDescriptorPath returns relay-descriptors/server-descriptor/YYYY/MM/d0/d1/<digest-lower>.
func ServerDescriptorPath(published time.Time, digestLower string) (string, error) {
	return shardedDescriptorPath("relay-descriptors", "server-descriptor", published, digestLower)
}

// ExtraInfoPath returns relay-descriptors/extra-info/YYYY/MM/d0/d1/<digest-lower>.
func ExtraInfoPath(published time.Time, digestLower string) (string, error) {
	return shardedDescriptorPath("relay-descriptors", "extra-info", published, digestLower)
}

// BridgeServerDescriptorPath returns bridge-descriptors/server-descriptor/YYYY/MM/d0/d1/<digest-lower>.
func BridgeServerDescriptorPath(published time.Time, digestLower string) (string, error) {
	return shardedDescriptorPath("bridge-descriptors", "server-descriptor", published, digestLower)
}

// BridgeExtraInfoPath returns bridge-descriptors/extra-info/YYYY/MM/d0/d1/<digest-lower>.
func BridgeExtraInfoPath(published time.Time, digestLower string) (string, error) {
	return shardedDescriptorPath("bridge-descriptors", "extra-info", published, digestLower)
}

func shardedDescriptorPath(root, marker string, published time.Time, digestLower string) (string, error) {
	digestLower = strings.ToLower(digestLower)
	d0, d1, err := shard(digestLower)
	if err != nil {
		return "", err
	}
	year, month, _ := ymd(published)
	return path.Join(root, marker, year, month, d0, d1, digestLower), nil
}

// MicrodescriptorPath returns relay-descriptors/microdesc/YYYY/MM/micro/d0/d1/<sha256-lower>.
func MicrodescriptorPath(published time.Time, sha256Lower string) (string, error) {
	sha256Lower = strings.ToLower(sha256Lower)
	d0, d1, err := shard(sha256Lower)
	if err != nil {
		return "", err
	}
	year, month, _ := ymd(published)
	return path.Join("relay-descriptors", "microdesc", year, month, "micro", d0, d1, sha256Lower), nil
}

// ConsensusPath returns relay-descriptors/consensus/YYYY/MM/DD/YYYY-MM-DD-HH-MM-SS-consensus.
func ConsensusPath(validAfter time.Time) string {
	year, month, day := ymd(validAfter)
	filename := fmt.Sprintf("%s-%s-%s-%s-consensus", year, month, day, hms(validAfter))
	return path.Join("relay-descriptors", "consensus", year, month, day, filename)
}

// MicrodescConsensusPath returns
// relay-descriptors/microdesc/YYYY/MM/consensus-microdesc/DD/YYYY-MM-DD-HH-MM-SS-consensus-microdesc.
func MicrodescConsensusPath(validAfter time.Time) string {
	year, month, day := ymd(validAfter)
	filename := fmt.Sprintf("%s-%s-%s-%s-consensus-microdesc", year, month, day, hms(validAfter))
	return path.Join("relay-descriptors", "microdesc", year, month, "consensus-microdesc", day, filename)
}

// VotePath returns
// relay-descriptors/vote/YYYY/MM/DD/YYYY-MM-DD-HH-MM-SS-vote-<V3IDENT-UPPER>-<DIGEST-UPPER>.
func VotePath(validAfter time.Time, v3ident, digest string) string {
	year, month, day := ymd(validAfter)
	filename := fmt.Sprintf("%s-%s-%s-%s-vote-%s-%s",
		year, month, day, hms(validAfter), strings.ToUpper(v3ident), strings.ToUpper(digest))
	return path.Join("relay-descriptors", "vote", year, month, day, filename)
}

// BridgeStatusPath returns
// bridge-descriptors/statuses/YYYY/MM/DD/YYYYMMDD-HHMMSS-<FINGERPRINT-UPPER>.
func BridgeStatusPath(validAfter time.Time, fingerprint string) string {
	year, month, day := ymd(validAfter)
	filename := fmt.Sprintf("%s%s%s-%02d%02d%02d-%s",
		year, month, day, validAfter.Hour(), validAfter.Minute(), validAfter.Second(), strings.ToUpper(fingerprint))
	return path.Join("bridge-descriptors", "statuses", year, month, day, filename)
}

// PathFor dispatches on d.Kind to compute the archive-relative path for a
// document, failing with bushelerr.BadArgument for an unrecognized kind.
func PathFor(d *document.Document) (string, error) {
	switch d.Kind {
	case document.RelayServerDescriptor:
		return ServerDescriptorPath(d.Meta.PublishedOrValidAfter, d.Meta.Digest)
	case document.RelayExtraInfoDescriptor:
		return ExtraInfoPath(d.Meta.PublishedOrValidAfter, d.Meta.Digest)
	case document.BridgeServerDescriptor:
		return BridgeServerDescriptorPath(d.Meta.PublishedOrValidAfter, d.Meta.Digest)
	case document.BridgeExtraInfoDescriptor:
		return BridgeExtraInfoPath(d.Meta.PublishedOrValidAfter, d.Meta.Digest)
	case document.RelayMicrodescriptor:
		return MicrodescriptorPath(d.Meta.PublishedOrValidAfter, d.Meta.Digest)
	case document.RelayConsensusNS:
		return ConsensusPath(d.Meta.PublishedOrValidAfter), nil
	case document.RelayConsensusMicrodesc:
		return MicrodescConsensusPath(d.Meta.PublishedOrValidAfter), nil
	case document.Vote:
		return VotePath(d.Meta.PublishedOrValidAfter, d.Meta.V3Ident, d.Meta.Digest), nil
	case document.BridgeStatus:
		return BridgeStatusPath(d.Meta.PublishedOrValidAfter, d.Meta.Fingerprint), nil
	default:
		return "", bushelerr.BadArgument("no archive path defined for document kind %s", d.Kind)
	}
}
