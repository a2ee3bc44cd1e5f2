package section

import "github.com/EarthScope/mseedindex/internal/mseed"

// Tolerance decides, for a given record, how far apart two adjacent records'
// start times and sample rates may be before they are considered
// discontinuous (orig §4.2 "Span coalescing", design note in orig §9
// "Callback tolerance interface").
type Tolerance interface {
	// TimeTolerance returns the maximum gap, in nanoseconds, between a
	// span's predicted continuation and a new record's start time for the
	// two to be considered contiguous.
	TimeTolerance(r mseed.Record) float64
	// RateTolerance returns the maximum relative sample-rate deviation
	// |1 - r1/r2| that still counts as the same rate.
	RateTolerance(r mseed.Record) float64
}

// DefaultRateTolerance is applied when the caller supplies neither a time
// nor a rate tolerance, per orig §4.2: "|1 − S.nom_samprate / R.samprate| ≥
// 1e-4 (default)".
const DefaultRateTolerance = 1e-4

// DefaultTolerance implements Tolerance using the spec's stated defaults:
// half the sample period for time tolerance, 1e-4 relative rate tolerance.
type DefaultTolerance struct{}

func (DefaultTolerance) TimeTolerance(r mseed.Record) float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	periodNanos := 1e9 / r.SampleRate
	return periodNanos / 2
}

func (DefaultTolerance) RateTolerance(mseed.Record) float64 {
	return DefaultRateTolerance
}
