// Package mseed adapts the external miniSEED record decoder into the lazy,
// restartable record sequence the rest of the engine consumes (orig §4.1).
// The real decoder is an out-of-scope collaborator (orig §1); StreamDecoder
// below is a minimal, self-contained stand-in that speaks a simplified
// fixed-header framing sufficient to exercise the contract end to end.
package mseed

import "time"

// Record is a single decoded miniSEED record, as handed to the Aggregator.
type Record struct {
	// Offset is the absolute byte offset of the record's first byte.
	Offset int64
	// Length is the record's total byte length, including header and data.
	Length int64

	SourceID    string
	PubVersion  uint8
	Quality     byte
	FormatVersion uint8

	Start        time.Time
	SampleCount  int64
	SampleRate   float64

	// Raw holds the record's bytes, needed for section/file digesting.
	Raw []byte
}

// End derives the record's end time per orig §3: start + (n-1)/rate.
func (r Record) End() time.Time {
	if r.SampleRate == 0 || r.SampleCount <= 1 {
		return r.Start
	}
	durSec := float64(r.SampleCount-1) / r.SampleRate
	return r.Start.Add(time.Duration(durSec * float64(time.Second)))
}
