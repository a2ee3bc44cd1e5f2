package indexstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EarthScope/mseedindex/internal/fileentry"
	"github.com/EarthScope/mseedindex/internal/section"
	"github.com/EarthScope/mseedindex/internal/sourceid"
)

// softCapBytes is the resource-exhaustion ceiling orig §7 names for
// timeindex/timespans serialization: "exceeding the 8 MiB soft cap" aborts
// the file with a Resource exhaustion error.
const softCapBytes = 8 * 1024 * 1024

// SpanRange is one contiguous-coverage span, serialized as an inclusive
// epoch-second interval (orig §4.5 "timespans").
type SpanRange struct {
	StartEpoch int64
	EndEpoch   int64
}

// Row is one serialized section, ready to hand to a backend (orig §4.5).
type Row struct {
	Network, Station, Location, Channel string
	Quality                             string // always "" — see DESIGN.md Open Question 1
	PubVersion                          int
	StartTime, EndTime                  time.Time
	SampleRate                          float64
	Filename                            string
	ByteOffset                          int64
	Bytes                               int64
	Hash                                string

	// TimeIndexText is the hstore-style "time=>offset" encoding plus a
	// trailing "latest=>0|1" entry, or "" when the guard in orig §4.5 fails
	// (TimeIndexValid reports which).
	TimeIndexText string
	HasTimeIndex  bool

	TimeSpans []SpanRange
	// TimeRates is populated only when the section's RateMismatch is true.
	TimeRates []float64

	FileModTime time.Time
	Updated     time.Time
	Scanned     time.Time
}

// ResourceError reports orig §7's "Resource exhaustion" category.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string { return "indexstore: resource exhaustion: " + e.Reason }

// IntegrityError reports orig §7's "Integrity error" category.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return "indexstore: integrity error: " + e.Reason }

// BuildRows serializes every section of file into a Row, applying orig
// §4.5's rules. A source_id that fails to decompose aborts the whole file,
// per orig §4.4 "Identifier decomposition ... failure aborts the file."
func BuildRows(file *fileentry.FileEntry) ([]Row, error) {
	rows := make([]Row, 0, len(file.Sections))
	for _, s := range file.Sections {
		id, err := sourceid.Parse(s.SourceID)
		if err != nil {
			return nil, &IntegrityError{Reason: err.Error()}
		}
		row := Row{
			Network:     id.Network,
			Station:     id.Station,
			Location:    id.Location,
			Channel:     id.Channel,
			Quality:     "",
			PubVersion:  int(s.PubVersion),
			StartTime:   s.Earliest,
			EndTime:     s.Latest,
			SampleRate:  s.NomSampRate,
			Filename:    file.Path,
			ByteOffset:  s.StartOffset,
			Bytes:       s.EndOffset - s.StartOffset + 1,
			Hash:        s.Digest,
			FileModTime: file.FileModTime,
			Updated:     s.UpdatedAt,
			Scanned:     file.ScanTime,
		}

		if s.TimeIndexValid() {
			text, err := encodeTimeIndex(s.TimeIndex, s.TimeOrder)
			if err != nil {
				return nil, err
			}
			row.TimeIndexText = text
			row.HasTimeIndex = true
		}

		spans := make([]SpanRange, len(s.Spans))
		for i, sp := range s.Spans {
			spans[i] = SpanRange{StartEpoch: sp.Start.Unix(), EndEpoch: sp.End.Unix()}
		}
		row.TimeSpans = spans
		if err := checkSoftCap(spans); err != nil {
			return nil, err
		}

		if s.RateMismatch {
			rates := make([]float64, len(s.Spans))
			for i, sp := range s.Spans {
				rates[i] = sp.SampleRate
			}
			row.TimeRates = rates
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func encodeTimeIndex(entries []section.TimeIndexEntry, timeOrder bool) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `"%d"=>"%d"`, e.Time.UnixNano(), e.Offset)
	}
	if b.Len() > 0 {
		b.WriteString(", ")
	}
	latest := "0"
	if timeOrder {
		latest = "1"
	}
	b.WriteString(`"latest"=>"` + latest + `"`)
	if b.Len() > softCapBytes {
		return "", &ResourceError{Reason: "timeindex serialization exceeds 8 MiB"}
	}
	return b.String(), nil
}

func checkSoftCap(spans []SpanRange) error {
	// 2 int64s per span, encoded generously at up to 24 bytes each.
	if len(spans)*24 > softCapBytes {
		return &ResourceError{Reason: "timespans serialization exceeds 8 MiB"}
	}
	return nil
}

// SplitVersion parses a path's optional "#<numeric>" version suffix (orig
// §4.4 "Filename versioning"). versioned is false when no such suffix is
// present, in which case base equals path unchanged.
func SplitVersion(path string) (base string, versioned bool) {
	i := strings.LastIndexByte(path, '#')
	if i < 0 || i == len(path)-1 {
		return path, false
	}
	suffix := path[i+1:]
	if _, err := strconv.ParseUint(suffix, 10, 64); err != nil {
		return path, false
	}
	return path[:i], true
}
