// Package document defines the tagged-variant document model shared by every
// bushel component: the closed set of directory-protocol document kinds, the
// metadata each kind carries, and the references a parsed document exposes
// for the Scraper to follow.
package document

import (
	"time"

	"github.com/irl/bushel/internal/bushelerr"
)

// Kind discriminates the closed set of document kinds this system knows how
// to archive and traverse. Per-kind behaviour (path construction, digesting,
// type annotation) dispatches on Kind rather than through a type hierarchy.
type Kind int

const (
	// RelayConsensusNS is the "ns"-flavored relay consensus.
	RelayConsensusNS Kind = iota
	// RelayConsensusMicrodesc is the "microdesc"-flavored relay consensus.
	RelayConsensusMicrodesc
	// Vote is an authority's vote document.
	Vote
	// BridgeStatus is a bridge authority's network status.
	BridgeStatus
	// RelayServerDescriptor is a relay's server descriptor.
	RelayServerDescriptor
	// RelayExtraInfoDescriptor is a relay's extra-info descriptor.
	RelayExtraInfoDescriptor
	// RelayMicrodescriptor is a microdescriptor referenced by a
	// microdesc-flavored consensus.
	RelayMicrodescriptor
	// BridgeServerDescriptor is a bridge's server descriptor.
	BridgeServerDescriptor
	// BridgeExtraInfoDescriptor is a bridge's extra-info descriptor.
	BridgeExtraInfoDescriptor
	// DetachedSignature is a detached-signature document.
	DetachedSignature
	// BandwidthFile is a bandwidth-authority measurement file.
	BandwidthFile
)

func (k Kind) String() string {
	switch k {
	case RelayConsensusNS:
		return "relay-consensus-ns"
	case RelayConsensusMicrodesc:
		return "relay-consensus-microdesc"
	case Vote:
		return "vote"
	case BridgeStatus:
		return "bridge-status"
	case RelayServerDescriptor:
		return "relay-server-descriptor"
	case RelayExtraInfoDescriptor:
		return "relay-extra-info-descriptor"
	case RelayMicrodescriptor:
		return "relay-microdescriptor"
	case BridgeServerDescriptor:
		return "bridge-server-descriptor"
	case BridgeExtraInfoDescriptor:
		return "bridge-extra-info-descriptor"
	case DetachedSignature:
		return "detached-signature"
	case BandwidthFile:
		return "bandwidth-file"
	default:
		return "unknown"
	}
}

// TypeAnnotation returns the "@type <name> <major>.<minor>" value
// recognized by the archive's stored-file format, matching CollecTor's
// own per-kind type/version strings.
func (k Kind) TypeAnnotation() (string, bool) {
	switch k {
	case RelayServerDescriptor:
		return "server-descriptor 1.0", true
	case RelayExtraInfoDescriptor:
		return "extra-info 1.0", true
	case RelayMicrodescriptor:
		return "microdescriptor 1.0", true
	case RelayConsensusNS:
		return "network-status-consensus-3 1.0", true
	case RelayConsensusMicrodesc:
		return "network-status-microdesc-consensus-3 1.0", true
	case Vote:
		return "network-status-vote-3 1.0", true
	case BridgeServerDescriptor:
		return "bridge-server-descriptor 1.2", true
	case BridgeExtraInfoDescriptor:
		return "bridge-extra-info 1.3", true
	case BridgeStatus:
		return "bridge-network-status 1.2", true
	default:
		return "", false
	}
}

// Metadata carries the fields PathFn and the digest conventions need to
// place and key a document. Not every field is meaningful for every Kind;
// see pathfn for which fields each kind requires.
type Metadata struct {
	// PublishedOrValidAfter is the descriptor's publication time, or a
	// status document's valid-after time.
	PublishedOrValidAfter time.Time
	// Digest is the lower-case hex digest for descriptor/microdescriptor
	// kinds, computed per the directory protocol's digest conventions.
	Digest string
	// V3Ident is the 40-hex-digit authority identity, required for Vote.
	V3Ident string
	// Fingerprint is the bridge authority fingerprint, required for
	// BridgeStatus.
	Fingerprint string
}

// DirCache identifies a directory cache a parsed document advertises: a
// consensus router entry flagged V2Dir with a reachable DirPort, or a
// server descriptor publishing a DirPort (and possibly caches-extra-info).
type DirCache struct {
	Address        string
	DirPort        int
	V2Dir          bool
	ExtraInfoCache bool
}

// Refs collects the outbound references a parsed document yields, for the
// Scraper to recursively resolve.
type Refs struct {
	ServerDescriptorDigests []string
	ExtraInfoDigests        []string
	MicrodescriptorDigests  []string
	VoteDigestsByAuthority  map[string]string // v3ident -> digest
	DirectoryCaches         []DirCache
}

// Document is the tagged-variant carrier for every document kind this
// system stores or traverses. Raw is authoritative for storage and
// digesting; Refs is populated only once the document has gone through
// internal/dirdoc (or internal/bwfile).
type Document struct {
	Kind Kind
	Meta Metadata
	Raw  []byte
	Refs Refs
}

// Annotated returns the document's bytes prefixed with its type-annotation
// line, exactly as the archive's stored-file format requires.
func (d *Document) Annotated() ([]byte, error) {
	annotation, ok := d.Kind.TypeAnnotation()
	if !ok {
		return nil, bushelerr.BadArgument("document kind %s has no type annotation", d.Kind)
	}
	out := make([]byte, 0, len(annotation)+7+len(d.Raw))
	out = append(out, '@', 't', 'y', 'p', 'e', ' ')
	out = append(out, annotation...)
	out = append(out, '\n')
	out = append(out, d.Raw...)
	return out, nil
}
