// Package archive implements the content-addressed filesystem store:
// Store/Get<Kind>/GetVote retrieve and persist documents at the bit-exact
// paths internal/pathfn computes, under a bounded number of simultaneously
// open file descriptors. Grounded on backend/local/local.go's
// write-then-rename publish discipline (adapted to a *.tmp sibling plus
// os.Rename for atomicity across concurrent readers) and its
// "remove the partially written file on error" recovery path.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/irl/bushel/internal/blog"
	"github.com/irl/bushel/internal/bushelerr"
	"github.com/irl/bushel/internal/digest"
	"github.com/irl/bushel/internal/dirdoc"
	"github.com/irl/bushel/internal/document"
	"github.com/irl/bushel/internal/pathfn"
	"github.com/irl/bushel/internal/tokens"
)

// DefaultFDCap is the default number of simultaneously open file
// descriptors Archive permits.
const DefaultFDCap = 150

// Archive is a content-addressed filesystem store rooted at Root.
type Archive struct {
	Root string
	fds  *tokens.Dispenser
}

// New creates an Archive rooted at root, bounding simultaneous open file
// descriptors to fdCap (DefaultFDCap if fdCap <= 0).
func New(root string, fdCap int) *Archive {
	if fdCap <= 0 {
		fdCap = DefaultFDCap
	}
	return &Archive{Root: root, fds: tokens.NewDispenser(fdCap)}
}

func (a *Archive) String() string {
	return "archive:" + a.Root
}

// PathFor returns the absolute path Store would write d to, without
// touching the disk.
func (a *Archive) PathFor(d *document.Document) (string, error) {
	rel, err := pathfn.PathFor(d)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.Root, filepath.FromSlash(rel)), nil
}

// Store computes d's canonical path, creates any missing parent
// directories, and writes the type-annotated document atomically: a
// concurrent reader either sees the complete file or gets NotFound, never
// a partial write.
func (a *Archive) Store(ctx context.Context, d *document.Document) error {
	rel, err := pathfn.PathFor(d)
	if err != nil {
		return err
	}
	annotated, err := d.Annotated()
	if err != nil {
		return err
	}

	full := filepath.Join(a.Root, filepath.FromSlash(rel))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bushelerr.Disk(err, "creating archive directory %s", dir)
	}

	a.fds.Get()
	defer a.fds.Put()

	tmp, err := os.CreateTemp(dir, ".bushel-*.tmp")
	if err != nil {
		return bushelerr.Disk(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(annotated); err != nil {
		tmp.Close()
		if removeErr := os.Remove(tmpName); removeErr != nil {
			blog.Errorf(a, "failed to remove partially written file %s: %v", tmpName, removeErr)
		}
		return bushelerr.Disk(err, "writing %s", full)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return bushelerr.Disk(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return bushelerr.Disk(err, "publishing %s", full)
	}
	return nil
}

// get opens the file at rel, verifies it carries the expected
// type-annotation line, parses the bytes after it as wantKind, and returns
// the parsed document. It returns (nil, nil) on NotFound, truncation, or a
// parse error (logged, treated as missing), so a caller handles a corrupt
// file the same way as one the Archive has never seen; disk errors other
// than NotFound are returned as bushelerr.Disk.
func (a *Archive) get(rel string, wantKind document.Kind) (*document.Document, error) {
	full := filepath.Join(a.Root, filepath.FromSlash(rel))

	a.fds.Get()
	raw, err := readFile(full)
	a.fds.Put()
	if err != nil || raw == nil {
		return nil, err
	}

	body, ok := stripAnnotation(raw, wantKind)
	if !ok {
		blog.Errorf(a, "archive file %s missing or mismatched type annotation", full)
		return nil, nil
	}
	doc, err := parseAs(wantKind, body)
	if err != nil {
		blog.Errorf(a, "archive file %s failed to parse: %v", full, err)
		return nil, nil
	}
	return doc, nil
}

// readFile reads full in its entirety, mapping a missing file to (nil, nil).
func readFile(full string) ([]byte, error) {
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bushelerr.Disk(err, "opening %s", full)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, bushelerr.Disk(err, "reading %s", full)
	}
	return raw, nil
}

// parseAs runs body through the parser for wantKind, so documents read
// back from the archive carry the same references as freshly fetched ones.
// Kinds without a reference-bearing grammar keep their raw bytes and a
// recomputed digest.
func parseAs(wantKind document.Kind, body []byte) (*document.Document, error) {
	switch wantKind {
	case document.RelayConsensusNS:
		return dirdoc.ParseConsensus(body, dirdoc.FlavorNS)
	case document.RelayConsensusMicrodesc:
		return dirdoc.ParseConsensus(body, dirdoc.FlavorMicrodesc)
	case document.Vote:
		return dirdoc.ParseVote(body)
	case document.RelayServerDescriptor, document.BridgeServerDescriptor,
		document.RelayExtraInfoDescriptor, document.BridgeExtraInfoDescriptor:
		return dirdoc.ParseServerDescriptor(body, wantKind)
	case document.RelayMicrodescriptor:
		return &document.Document{
			Kind: wantKind,
			Raw:  body,
			Meta: document.Metadata{Digest: digest.SHA256Lower(body)},
		}, nil
	default:
		return &document.Document{Kind: wantKind, Raw: body}, nil
	}
}

func stripAnnotation(raw []byte, wantKind document.Kind) ([]byte, bool) {
	wantAnnotation, ok := wantKind.TypeAnnotation()
	if !ok {
		return raw, true
	}
	prefix := "@type " + wantAnnotation + "\n"
	if len(raw) < len(prefix) || string(raw[:len(prefix)]) != prefix {
		return nil, false
	}
	return raw[len(prefix):], true
}

// GetServerDescriptor retrieves a relay server descriptor by digest,
// published at publishedHint.
func (a *Archive) GetServerDescriptor(digest string, publishedHint time.Time) (*document.Document, error) {
	rel, err := pathfn.ServerDescriptorPath(publishedHint, digest)
	if err != nil {
		return nil, err
	}
	return a.get(rel, document.RelayServerDescriptor)
}

// GetExtraInfo retrieves a relay extra-info descriptor by digest.
func (a *Archive) GetExtraInfo(digest string, publishedHint time.Time) (*document.Document, error) {
	rel, err := pathfn.ExtraInfoPath(publishedHint, digest)
	if err != nil {
		return nil, err
	}
	return a.get(rel, document.RelayExtraInfoDescriptor)
}

// GetMicrodescriptor retrieves a microdescriptor by its SHA-256 hash.
func (a *Archive) GetMicrodescriptor(sha256Lower string, publishedHint time.Time) (*document.Document, error) {
	rel, err := pathfn.MicrodescriptorPath(publishedHint, sha256Lower)
	if err != nil {
		return nil, err
	}
	return a.get(rel, document.RelayMicrodescriptor)
}

// GetBridgeServerDescriptor retrieves a bridge server descriptor by digest.
func (a *Archive) GetBridgeServerDescriptor(digest string, publishedHint time.Time) (*document.Document, error) {
	rel, err := pathfn.BridgeServerDescriptorPath(publishedHint, digest)
	if err != nil {
		return nil, err
	}
	return a.get(rel, document.BridgeServerDescriptor)
}

// GetBridgeExtraInfo retrieves a bridge extra-info descriptor by digest.
func (a *Archive) GetBridgeExtraInfo(digest string, publishedHint time.Time) (*document.Document, error) {
	rel, err := pathfn.BridgeExtraInfoPath(publishedHint, digest)
	if err != nil {
		return nil, err
	}
	return a.get(rel, document.BridgeExtraInfoDescriptor)
}

// GetConsensus retrieves the ns-flavored consensus valid at validAfter.
func (a *Archive) GetConsensus(validAfter time.Time) (*document.Document, error) {
	return a.get(pathfn.ConsensusPath(validAfter), document.RelayConsensusNS)
}

// GetMicrodescConsensus retrieves the microdesc-flavored consensus valid at
// validAfter.
func (a *Archive) GetMicrodescConsensus(validAfter time.Time) (*document.Document, error) {
	return a.get(pathfn.MicrodescConsensusPath(validAfter), document.RelayConsensusMicrodesc)
}

// GetBridgeStatus retrieves a bridge authority's network status.
func (a *Archive) GetBridgeStatus(fingerprint string, validAfter time.Time) (*document.Document, error) {
	return a.get(pathfn.BridgeStatusPath(validAfter, fingerprint), document.BridgeStatus)
}

// GetVote retrieves an authority's vote. If digestOrWildcard is "*", the
// vote directory is globbed and the lexicographically first match is
// returned: when more than one vote is archived for the same period,
// this favors determinism over recency.
func (a *Archive) GetVote(v3ident, digestOrWildcard string, validAfter time.Time) (*document.Document, error) {
	if digestOrWildcard != "*" {
		rel := pathfn.VotePath(validAfter, v3ident, digestOrWildcard)
		return a.get(rel, document.Vote)
	}

	pattern := filepath.Join(a.Root, filepath.FromSlash(pathfn.VotePath(validAfter, v3ident, "*")))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, bushelerr.Disk(err, "globbing %s", pattern)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)

	a.fds.Get()
	raw, err := readFile(matches[0])
	a.fds.Put()
	if err != nil || raw == nil {
		return nil, err
	}
	body, ok := stripAnnotation(raw, document.Vote)
	if !ok {
		return nil, nil
	}
	doc, err := dirdoc.ParseVote(body)
	if err != nil {
		blog.Errorf(a, "archive file %s failed to parse: %v", matches[0], err)
		return nil, nil
	}
	return doc, nil
}
