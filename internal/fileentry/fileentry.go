// Package fileentry holds the per-file aggregate the Finalizer and
// Reconciler operate on (orig §3 "File entry").
package fileentry

import (
	"time"

	"github.com/EarthScope/mseedindex/internal/section"
)

// FileEntry describes one input file's extents, digest, and sections.
type FileEntry struct {
	// Path is the possibly-canonicalized path, "-" for stdin, or a URL.
	Path string
	// FileModTime is only meaningful for local paths.
	FileModTime time.Time
	ScanTime    time.Time

	Earliest time.Time
	Latest   time.Time

	// Digest is the file-level SHA-256 hex digest over concatenated raw
	// record bytes.
	Digest string

	// PartialCoverage is true when skip-non-data caused the decoder to
	// omit bytes from the digest, so Digest no longer covers every byte
	// of the file (orig §9, third open question). Non-data bytes skipped
	// after the last decoded record do not set it.
	PartialCoverage bool

	Sections []*section.Section
}
