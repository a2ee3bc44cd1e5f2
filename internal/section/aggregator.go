package section

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"math"
	"time"

	"github.com/EarthScope/mseedindex/internal/mseed"
)

// DefaultSubIndexInterval is the runtime constant orig §4.2 names: a
// consumer can seek within a long section by time without reading it all.
const DefaultSubIndexInterval = time.Hour

// Options configures an Aggregator.
type Options struct {
	// SubIndexInterval is the minimum time gap between time_index entries.
	// Zero means DefaultSubIndexInterval.
	SubIndexInterval time.Duration
	// Tolerance supplies per-record time/rate tolerances for span
	// coalescing and rate-mismatch detection. Nil means DefaultTolerance.
	Tolerance Tolerance
}

func (o Options) withDefaults() Options {
	if o.SubIndexInterval <= 0 {
		o.SubIndexInterval = DefaultSubIndexInterval
	}
	if o.Tolerance == nil {
		o.Tolerance = DefaultTolerance{}
	}
	return o
}

// Aggregator is the Section Aggregator state machine of orig §4.2. It holds
// at most one open section at a time and consumes one file's record stream.
type Aggregator struct {
	opts       Options
	open       *Section
	finalized  []*Section
	fileDigest hash.Hash

	havePrev  bool
	prevStart time.Time
}

// New creates an Aggregator for a single file's record stream.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts:       opts.withDefaults(),
		fileDigest: sha256.New(),
	}
}

// Push feeds one decoded record into the state machine (orig §4.2 steps
// 1–2). fileModTime seeds a newly opened section's UpdatedAt.
func (a *Aggregator) Push(r mseed.Record, fileModTime time.Time) {
	p := r.Offset
	if a.open != nil &&
		r.SourceID == a.open.SourceID &&
		r.PubVersion == a.open.PubVersion &&
		p == a.open.EndOffset+1 {
		a.extend(a.open, r)
	} else {
		a.closeOpen()
		a.open = a.openNew(r, fileModTime)
	}
	a.fileDigest.Write(r.Raw)
	a.prevStart = r.Start
	a.havePrev = true
}

// Close finalizes the last open section (if any) and returns every section
// produced for this file, in file order.
func (a *Aggregator) Close() []*Section {
	a.closeOpen()
	return a.finalized
}

// FileDigest returns the 64-character lowercase hex SHA-256 digest over the
// concatenated raw bytes of every record pushed so far (orig §4.3).
func (a *Aggregator) FileDigest() string {
	return hex.EncodeToString(a.fileDigest.Sum(nil))
}

func (a *Aggregator) closeOpen() {
	if a.open != nil {
		a.finalized = append(a.finalized, a.open)
		a.open = nil
	}
}

func (a *Aggregator) openNew(r mseed.Record, fileModTime time.Time) *Section {
	end := r.End()
	s := &Section{
		SourceID:      r.SourceID,
		PubVersion:    r.PubVersion,
		StartOffset:   r.Offset,
		EndOffset:     r.Offset + r.Length - 1,
		Earliest:      r.Start,
		Latest:        end,
		FormatVersion: r.FormatVersion,
		NomSampRate:   r.SampleRate,
		TimeOrder:     true,
		RateMismatch:  false,
		UpdatedAt:     fileModTime,
		digestState:   md5.New(),
	}
	s.TimeIndex = []TimeIndexEntry{{Time: r.Start, Offset: r.Offset}}
	s.nextIndexTime = advancePast(r.Start.Add(a.opts.SubIndexInterval), end, a.opts.SubIndexInterval)
	if r.SampleRate != 0 {
		s.Spans = []Span{{Start: r.Start, End: end, SampleRate: r.SampleRate}}
	}
	s.digestState.Write(r.Raw)
	return s
}

func (a *Aggregator) extend(s *Section, r mseed.Record) {
	s.EndOffset = r.Offset + r.Length - 1

	if r.Start.Before(s.Earliest) {
		s.Earliest = r.Start
	}
	end := r.End()
	if end.After(s.Latest) {
		s.Latest = end
	}

	if r.SampleRate != 0 && s.NomSampRate != 0 {
		ratio := math.Abs(1 - s.NomSampRate/r.SampleRate)
		if ratio >= a.opts.Tolerance.RateTolerance(r) {
			s.RateMismatch = true
		}
	}

	if s.FormatVersion != r.FormatVersion {
		s.FormatVersion = 0
	}

	if a.havePrev && !r.Start.After(a.prevStart) {
		s.TimeOrder = false
	}

	if end.After(s.nextIndexTime) {
		s.TimeIndex = append(s.TimeIndex, TimeIndexEntry{Time: r.Start, Offset: r.Offset})
		s.nextIndexTime = advancePast(s.nextIndexTime, end, a.opts.SubIndexInterval)
	}

	if r.SampleRate != 0 {
		a.mergeSpan(s, r, end)
	}

	s.digestState.Write(r.Raw)
}

// advancePast walks t forward in whole steps of interval until it strictly
// exceeds end, matching orig §4.2: "advance next_index_time in whole
// sub-index intervals ... until strictly greater than R.end".
func advancePast(t, end time.Time, interval time.Duration) time.Time {
	for !t.After(end) {
		t = t.Add(interval)
	}
	return t
}

// mergeSpan implements orig §4.2's span-coalescing rule: extend the
// trailing span iff the new record's start falls within time tolerance of
// the span's predicted continuation at the span's own sample rate and
// within rate tolerance of it; otherwise start a new span.
func (a *Aggregator) mergeSpan(s *Section, r mseed.Record, end time.Time) {
	if n := len(s.Spans); n > 0 {
		last := &s.Spans[n-1]
		if last.SampleRate != 0 {
			periodNanos := 1e9 / last.SampleRate
			predicted := last.End.Add(time.Duration(periodNanos))
			timeTol := a.opts.Tolerance.TimeTolerance(r)
			rateTol := a.opts.Tolerance.RateTolerance(r)
			gap := math.Abs(float64(r.Start.Sub(predicted)))
			rateOK := math.Abs(1-last.SampleRate/r.SampleRate) < rateTol
			if gap <= timeTol && rateOK {
				if end.After(last.End) {
					last.End = end
				}
				return
			}
		}
	}
	s.Spans = append(s.Spans, Span{Start: r.Start, End: end, SampleRate: r.SampleRate})
}
