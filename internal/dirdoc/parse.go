package dirdoc

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/irl/bushel/internal/bushelerr"
	"github.com/irl/bushel/internal/digest"
	"github.com/irl/bushel/internal/document"
)

// ConsensusFlavor distinguishes the two router-status flavors a consensus
// document can carry; the "r"/"m" line shapes differ between them.
type ConsensusFlavor int

const (
	// FlavorNS is the classic flavor, where each "r" line carries the
	// full base64 server-descriptor digest.
	FlavorNS ConsensusFlavor = iota
	// FlavorMicrodesc is the microdesc flavor, where descriptor digests
	// are replaced by an "m" line carrying a base64 SHA-256 microdesc
	// hash.
	FlavorMicrodesc
)

// ParseConsensus itemizes raw as a network-status consensus of the given
// flavor, collecting the outbound references the Scraper needs to recurse:
// referenced server-descriptor or microdescriptor digests from the "r"/"m"
// lines, and per-authority vote digests from the "dir-source"/"vote-digest"
// line pairs.
func ParseConsensus(raw []byte, flavor ConsensusFlavor) (*document.Document, error) {
	items, err := NewItemizer(raw, ForgivableWhitespace).Items()
	if err != nil {
		return nil, err
	}

	d := &document.Document{Raw: raw}
	if flavor == FlavorMicrodesc {
		d.Kind = document.RelayConsensusMicrodesc
	} else {
		d.Kind = document.RelayConsensusNS
	}
	d.Refs.VoteDigestsByAuthority = make(map[string]string)

	var pendingV3Ident string
	var pendingCache *document.DirCache
	for _, item := range items {
		switch item.Keyword {
		case "r":
			if flavor == FlavorNS && len(item.Arguments) >= 3 {
				if hexDigest, ok := b64DigestToHex(item.Arguments[2]); ok {
					d.Refs.ServerDescriptorDigests = append(d.Refs.ServerDescriptorDigests, hexDigest)
				}
			}
			pendingCache = routerStatusEndpoint(item.Arguments)
		case "s":
			if pendingCache != nil {
				for _, flag := range item.Arguments {
					if flag == "V2Dir" {
						pendingCache.V2Dir = true
					}
				}
				if pendingCache.V2Dir && pendingCache.DirPort > 0 {
					d.Refs.DirectoryCaches = append(d.Refs.DirectoryCaches, *pendingCache)
				}
				pendingCache = nil
			}
		case "m":
			if flavor == FlavorMicrodesc && len(item.Arguments) >= 1 {
				if hexDigest, ok := b64DigestToHex(item.Arguments[0]); ok {
					d.Refs.MicrodescriptorDigests = append(d.Refs.MicrodescriptorDigests, hexDigest)
				}
			}
		case "dir-source":
			if len(item.Arguments) >= 2 {
				pendingV3Ident = strings.ToUpper(item.Arguments[1])
			}
		case "vote-digest":
			if pendingV3Ident != "" && len(item.Arguments) >= 1 {
				d.Refs.VoteDigestsByAuthority[pendingV3Ident] = strings.ToUpper(item.Arguments[0])
				pendingV3Ident = ""
			}
		case "valid-after":
			if len(item.Arguments) >= 2 {
				if t, ok := parseDirTimestamp(item.Arguments[0], item.Arguments[1]); ok {
					d.Meta.PublishedOrValidAfter = t
				}
			}
		}
	}
	return d, nil
}

// ParseVote itemizes raw as an authority's vote, collecting the same kind
// of descriptor references a consensus does, plus the vote's own digest
// (computed per the directory-signature convention, not from the item
// stream).
func ParseVote(raw []byte) (*document.Document, error) {
	items, err := NewItemizer(raw, ForgivableWhitespace).Items()
	if err != nil {
		return nil, err
	}

	d := &document.Document{Kind: document.Vote, Raw: raw}
	d.Refs.VoteDigestsByAuthority = make(map[string]string)

	voteDigest, ok := digest.VoteDigest(raw)
	if !ok {
		return nil, bushelerr.New(bushelerr.KindParseError, "vote is missing a directory-signature marker")
	}
	d.Meta.Digest = voteDigest

	for _, item := range items {
		switch item.Keyword {
		case "r":
			if len(item.Arguments) >= 3 {
				if hexDigest, ok := b64DigestToHex(item.Arguments[2]); ok {
					d.Refs.ServerDescriptorDigests = append(d.Refs.ServerDescriptorDigests, hexDigest)
				}
			}
		case "valid-after":
			if len(item.Arguments) >= 2 {
				if t, ok := parseDirTimestamp(item.Arguments[0], item.Arguments[1]); ok {
					d.Meta.PublishedOrValidAfter = t
				}
			}
		}
	}
	return d, nil
}

// ParseServerDescriptor itemizes raw as a relay or bridge descriptor,
// computing its digest (the SHA-1 over the whole document) and collecting
// its extra-info-digest reference, if any, for the Scraper to follow. kind
// selects the returned Document's kind; extra-info descriptors share the
// same keyword-line grammar and digest convention, so they go through
// here too with their own kind.
func ParseServerDescriptor(raw []byte, kind document.Kind) (*document.Document, error) {
	items, err := NewItemizer(raw, ForgivableWhitespace).Items()
	if err != nil {
		return nil, err
	}

	d := &document.Document{Kind: kind, Raw: raw}
	d.Meta.Digest = digest.Lower(raw)

	var cache document.DirCache
	for _, item := range items {
		switch item.Keyword {
		case "router":
			// router <nickname> <address> <ORPort> <SOCKSPort> <DirPort>
			if len(item.Arguments) >= 5 {
				cache.Address = item.Arguments[1]
				if port, err := strconv.Atoi(item.Arguments[4]); err == nil {
					cache.DirPort = port
				}
			}
		case "caches-extra-info":
			cache.ExtraInfoCache = true
		case "published":
			if len(item.Arguments) >= 2 {
				if t, ok := parseDirTimestamp(item.Arguments[0], item.Arguments[1]); ok {
					d.Meta.PublishedOrValidAfter = t
				}
			}
		case "extra-info-digest":
			if len(item.Arguments) >= 1 {
				d.Refs.ExtraInfoDigests = append(d.Refs.ExtraInfoDigests, strings.ToLower(item.Arguments[0]))
			}
		}
	}
	if cache.DirPort > 0 {
		d.Refs.DirectoryCaches = append(d.Refs.DirectoryCaches, cache)
	}
	return d, nil
}

// routerStatusEndpoint reads the address and DirPort off a consensus "r"
// line. Both flavors end the line with <IP> <ORPort> <DirPort>; the ns
// flavor carries a descriptor digest before the date that the microdesc
// flavor omits, so fields are taken relative to the end of the line.
func routerStatusEndpoint(args []string) *document.DirCache {
	if len(args) < 7 {
		return nil
	}
	port, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return nil
	}
	return &document.DirCache{Address: args[len(args)-3], DirPort: port}
}

// parseDirTimestamp parses the "YYYY-MM-DD HH:MM:SS" pair the directory
// protocol uses for "published"/"valid-after" arguments.
func parseDirTimestamp(date, clock string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// b64DigestToHex decodes a base64 digest (with or without padding, as used
// interchangeably across "r"/"m" lines) into lower-case hex.
func b64DigestToHex(b64 string) (string, bool) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(b64, "="))
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return "", false
		}
	}
	return strings.ToLower(hex.EncodeToString(raw)), true
}
