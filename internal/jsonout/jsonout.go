// Package jsonout builds the single JSON document a scan run emits
// describing per-file metadata and per-section content (orig §4.6).
//
// EDRmount marshals job payloads with the standard encoding/json package
// (internal/jobs/jobs.go); this package upgrades that to
// github.com/segmentio/encoding/json, a drop-in, allocation-lighter
// replacement the wandb gowandb module also depends on — see DESIGN.md.
package jsonout

import (
	"io"
	"time"

	json "github.com/segmentio/encoding/json"

	"github.com/EarthScope/mseedindex/internal/fileentry"
	"github.com/EarthScope/mseedindex/internal/indexstore"
	"github.com/EarthScope/mseedindex/internal/section"
)

// TimeByteOffset is one (time, byte_offset) entry of a section's sub-index,
// carried in the JSON sink's "ts_time_byteoffset" array (orig §4.6).
type TimeByteOffset struct {
	TimeNanos  int64 `json:"time_ns"`
	ByteOffset int64 `json:"byte_offset"`
}

// TimeSpan is one contiguous-coverage span, carried in the JSON sink's
// "ts_timespans" array (orig §4.6 "ts_timespans ... with sample_rate").
type TimeSpan struct {
	StartNanos int64   `json:"start_ns"`
	EndNanos   int64   `json:"end_ns"`
	SampleRate float64 `json:"sample_rate"`
}

// Section is one section's JSON content object (orig §4.6).
type Section struct {
	SourceID        string           `json:"source_id"`
	PubVersion      int              `json:"pub_version"`
	EarliestNanos   int64            `json:"earliest_ns"`
	LatestNanos     int64            `json:"latest_ns"`
	Earliest        string           `json:"earliest"`
	Latest          string           `json:"latest"`
	SampleRate      float64          `json:"sample_rate"`
	RateMismatch    bool             `json:"rate_mismatch"`
	TimeOrder       bool             `json:"time_order"`
	FormatVersion   uint8            `json:"format_version,omitempty"`
	Digest          string           `json:"digest"`
	ByteOffset      int64            `json:"byte_offset"`
	Bytes           int64            `json:"bytes"`
	TimeByteOffsets []TimeByteOffset `json:"ts_time_byteoffset"`
	TimeSpans       []TimeSpan       `json:"ts_timespans"`
}

// File is one input file's JSON metadata object (orig §4.6).
type File struct {
	Path            string    `json:"path"`
	ContentType     string    `json:"content_type"`
	Digest          string    `json:"digest"`
	ContentCoverage string    `json:"content_coverage"`
	PathModTime     string    `json:"path_modtime"`
	PathIndexTime   string    `json:"path_indextime"`
	Sections        []Section `json:"sections"`
}

// Document is the top-level JSON sink object for one run.
type Document struct {
	GeneratedAt string `json:"generated_at"`
	// RunID correlates this document with the scan invocation's log lines;
	// it is not a stored index column (orig §6 "Persisted state layout").
	RunID string `json:"run_id,omitempty"`
	Files []File `json:"files"`
}

// ContentType maps a section's format_version to an FDSN media type (orig
// §4.6): 2 and 3 get explicit version parameters, anything else falls back
// to the bare media type.
func ContentType(formatVersion uint8) string {
	switch formatVersion {
	case 2:
		return "application/vnd.fdsn.mseed;version=2"
	case 3:
		return "application/vnd.fdsn.mseed;version=3"
	default:
		return "application/vnd.fdsn.mseed"
	}
}

// BuildFile converts one FileEntry and its already-serialized Rows into a
// File content object.
func BuildFile(entry *fileentry.FileEntry, rows []indexstore.Row, generatedAt time.Time) File {
	coverage := "complete"
	if entry.PartialCoverage {
		coverage = "partial"
	}

	var formatVersion uint8
	sections := make([]Section, len(entry.Sections))
	for i, s := range entry.Sections {
		if i == 0 {
			formatVersion = s.FormatVersion
		}
		sourceID := rows[i].Network + "_" + rows[i].Station + "_" + rows[i].Location + "_" + rows[i].Channel
		sections[i] = Section{
			SourceID:        sourceID,
			PubVersion:      rows[i].PubVersion,
			EarliestNanos:   s.Earliest.UnixNano(),
			LatestNanos:     s.Latest.UnixNano(),
			Earliest:        s.Earliest.UTC().Format(time.RFC3339Nano),
			Latest:          s.Latest.UTC().Format(time.RFC3339Nano),
			SampleRate:      s.NomSampRate,
			RateMismatch:    s.RateMismatch,
			TimeOrder:       s.TimeOrder,
			FormatVersion:   s.FormatVersion,
			Digest:          s.Digest,
			ByteOffset:      s.StartOffset,
			Bytes:           s.EndOffset - s.StartOffset + 1,
			TimeByteOffsets: timeByteOffsets(s.TimeIndex),
			TimeSpans:       timeSpans(s.Spans),
		}
	}

	return File{
		Path:            entry.Path,
		ContentType:     ContentType(formatVersion),
		Digest:          entry.Digest,
		ContentCoverage: coverage,
		PathModTime:     entry.FileModTime.UTC().Format(time.RFC3339Nano),
		PathIndexTime:   entry.ScanTime.UTC().Format(time.RFC3339Nano),
		Sections:        sections,
	}
}

// timeByteOffsets converts a section's sub-index into its JSON form,
// carrying every (time, byte_offset) pair so the §8 round-trip property can
// reconstruct the summary from the document alone.
func timeByteOffsets(entries []section.TimeIndexEntry) []TimeByteOffset {
	out := make([]TimeByteOffset, len(entries))
	for i, e := range entries {
		out[i] = TimeByteOffset{TimeNanos: e.Time.UnixNano(), ByteOffset: e.Offset}
	}
	return out
}

// timeSpans converts a section's coverage spans into their JSON form,
// including each span's own sample rate (orig §4.6 "ts_timespans ... with
// sample_rate").
func timeSpans(spans []section.Span) []TimeSpan {
	out := make([]TimeSpan, len(spans))
	for i, sp := range spans {
		out[i] = TimeSpan{StartNanos: sp.Start.UnixNano(), EndNanos: sp.End.UnixNano(), SampleRate: sp.SampleRate}
	}
	return out
}

// Write marshals doc to w as indented JSON.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
