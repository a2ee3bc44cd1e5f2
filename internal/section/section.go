// Package section implements the Section Aggregator (orig §4.2): the state
// machine that groups adjacent same-identifier, same-version records into
// maximal contiguous runs and maintains their running aggregates.
package section

import (
	"encoding/hex"
	"hash"
	"time"
)

// TimeIndexEntry is one (time, byte_offset) pair in a section's sub-index.
type TimeIndexEntry struct {
	Time   time.Time
	Offset int64
}

// Span is a maximal run of continuous sample coverage within a section.
type Span struct {
	Start      time.Time
	End        time.Time
	SampleRate float64
}

// Section is a maximal contiguous run of records sharing source identifier
// and publication version (orig §3 "Section").
type Section struct {
	SourceID   string
	PubVersion uint8

	StartOffset int64
	EndOffset   int64

	Earliest time.Time
	Latest   time.Time

	FormatVersion uint8
	NomSampRate   float64
	RateMismatch  bool
	TimeOrder     bool

	// UpdatedAt is initialized to the file's modification time and may be
	// overwritten by the Reconciler's preservation rule (orig §4.4).
	UpdatedAt time.Time

	TimeIndex []TimeIndexEntry
	Spans     []Span

	// Digest is populated by Finalize; empty until then.
	Digest string

	digestState hash.Hash

	// nextIndexTime is internal bookkeeping for the sub-index policy,
	// not part of the public contract.
	nextIndexTime time.Time
}

// FinalizeDigest returns the 32-character lowercase hex MD5 digest over the
// section's raw record bytes (orig §4.3).
func (s *Section) FinalizeDigest() string {
	if s.Digest == "" {
		s.Digest = hex.EncodeToString(s.digestState.Sum(nil))
	}
	return s.Digest
}

// TimeIndexValid reports whether the time index's guard condition holds:
// the first entry's time must equal the section's earliest time, i.e. the
// first record of the section really was the time-earliest record
// (orig §3 invariant, orig §4.5 "timeindex" guard).
func (s *Section) TimeIndexValid() bool {
	if len(s.TimeIndex) == 0 {
		return false
	}
	return s.TimeIndex[0].Time.Equal(s.Earliest)
}
