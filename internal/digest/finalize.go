// Package digest implements the Digest & Extent Finalizer (orig §4.3): once
// a file's sections are complete, it finalizes each section's MD5 digest and
// computes the file-level time extents. The file's SHA-256 digest is not
// produced here; section.Aggregator.FileDigest returns it.
//
// The hash state itself lives in internal/section, which uses crypto/md5 and
// crypto/sha256 because downstream extraction services rely on those exact
// digests (orig §4.5 "hash" column) — see DESIGN.md.
package digest

import (
	"time"

	"github.com/EarthScope/mseedindex/internal/section"
)

// Extents is the file-level min/max time extent computed across sections.
type Extents struct {
	Earliest time.Time
	Latest   time.Time
}

// Finalize finalizes each section's MD5 digest (mutating section.Digest in
// place) and returns the file-level time extents (orig §4.3). It is purely
// computational: no error is possible, matching orig §4.3 "Failure: purely
// computational; no errors expected."
func Finalize(sections []*section.Section) Extents {
	var ext Extents
	for i, s := range sections {
		s.FinalizeDigest()
		if i == 0 || s.Earliest.Before(ext.Earliest) {
			ext.Earliest = s.Earliest
		}
		if i == 0 || s.Latest.After(ext.Latest) {
			ext.Latest = s.Latest
		}
	}
	return ext
}
