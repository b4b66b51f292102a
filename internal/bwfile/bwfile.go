package bwfile

import (
	"io"
	"strconv"
	"time"

	"github.com/irl/bushel/internal/document"
)

// Parse reads a complete bandwidth file from r, itemizes it permissively
// (both forgivable deviations enabled, matching production generators in
// the wild), and returns it as a document.Document of kind
// document.BandwidthFile with Meta.PublishedOrValidAfter set from the
// leading timestamp.
func Parse(r io.Reader) (*document.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, err := NewLiner(raw, ForgivableShortTerminator, ForgivableHeaderSpace).Lines()
	if err != nil {
		return nil, err
	}

	d := &document.Document{Kind: document.BandwidthFile, Raw: raw}
	if secs, err := strconv.ParseInt(f.Timestamp, 10, 64); err == nil {
		d.Meta.PublishedOrValidAfter = time.Unix(secs, 0).UTC()
	}
	return d, nil
}
