// Package engine wires the Reader, Aggregator, Finalizer, and Reconciler(s)
// into a single scan operation per orig §5, and owns the error taxonomy
// (orig §7) whose errors the CLI reports as diagnostics with exit status 1.
//
// Options.Validate follows the shape of EDRmount's Config.Validate — one
// method, returning the first violated constraint as a plain error — rather
// than a validation library; see DESIGN.md.
package engine

import (
	"errors"
	"time"

	"github.com/EarthScope/mseedindex/internal/mseed"
	"github.com/EarthScope/mseedindex/internal/section"
)

// Options assembles every flag the CLI layer parses into one value (orig
// §6 "Command-line interface").
type Options struct {
	// SkipNonData enables byte-level resynchronization past non-miniSEED
	// bytes instead of aborting the file.
	SkipNonData bool
	// NoUpdate puts every backend in bulk-load mode: no preservation lookup,
	// no delete phase.
	NoUpdate bool
	// NoSync disables the JSON sink entirely.
	NoSync bool
	// KeepPath disables path canonicalization (symlink resolution,
	// absolute-ification).
	KeepPath bool

	TimeTolerance    time.Duration
	RateTolerance    float64
	SubIndexInterval time.Duration

	Table string

	SQLitePath string

	PGHost, PGPort, PGDatabase, PGUser, PGPassword string
	// PGAppName is the fallback application name reported to the server on
	// connect (orig §6 "Network SQL backend" connection parameters).
	PGAppName string

	JSONPath string

	BusyTimeout time.Duration

	ScanTime time.Time

	// RunID correlates one invocation's log lines and JSON output document
	// with the rows it wrote; it has no stored column since orig §6
	// documents no persisted state beyond the row set itself.
	RunID string
}

// Validate checks Options for internally-consistent values, matching orig
// §6's "at least one backend, or JSON-only with -no-sync absent" rule.
func (o Options) Validate() error {
	if o.SQLitePath == "" && o.PGHost == "" && o.JSONPath == "" {
		return errors.New("engine: at least one of an embedded store path, a PostgreSQL host, or a JSON output path is required")
	}
	if o.SQLitePath == "" && o.PGHost == "" && o.NoSync {
		return errors.New("engine: a JSON-only run cannot set no-sync")
	}
	if o.RateTolerance < 0 {
		return errors.New("engine: rate-tolerance must be >= 0")
	}
	if o.SubIndexInterval < 0 {
		return errors.New("engine: sub-index interval must be >= 0")
	}
	if o.PGHost != "" && (o.PGDatabase == "" || o.PGUser == "") {
		return errors.New("engine: pg-database and pg-user are required when pg-host is set")
	}
	return nil
}

// toleranceFrom builds a section.Tolerance honoring any fixed overrides the
// CLI passed, falling back field-by-field to section.DefaultTolerance's
// per-record half-sample-period/relative-rate behavior so that setting only
// one of -time-tolerance/-rate-tolerance doesn't silently zero the other.
func (o Options) toleranceFrom() section.Tolerance {
	if o.TimeTolerance == 0 && o.RateTolerance == 0 {
		return section.DefaultTolerance{}
	}
	return fixedTolerance{timeTolerance: o.TimeTolerance, rateTolerance: o.RateTolerance}
}

type fixedTolerance struct {
	timeTolerance time.Duration
	rateTolerance float64
}

func (t fixedTolerance) TimeTolerance(r mseed.Record) float64 {
	if t.timeTolerance == 0 {
		return section.DefaultTolerance{}.TimeTolerance(r)
	}
	return float64(t.timeTolerance.Nanoseconds())
}

func (t fixedTolerance) RateTolerance(r mseed.Record) float64 {
	if t.rateTolerance == 0 {
		return section.DefaultRateTolerance
	}
	return t.rateTolerance
}
