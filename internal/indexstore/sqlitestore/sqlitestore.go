// Package sqlitestore implements the Index Reconciler's embedded-database
// backend, targeting the same single-file deployment EDRmount's internal/db
// package favors, adapted for mseedindex's schema and reconciliation rules.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EarthScope/mseedindex/internal/indexstore"
)

// Store is an embedded SQLite-backed indexstore.Store.
type Store struct {
	db    *sql.DB
	table string
}

// Options configures Open.
type Options struct {
	// Path is the database file path. Its parent directory is created if
	// missing.
	Path string
	// Table overrides the default row table name ("mseed_index").
	Table string
	// BusyTimeout bounds how long SQLite waits on a locked database before
	// returning SQLITE_BUSY.
	BusyTimeout time.Duration
}

const defaultTable = "mseed_index"

// Open opens (creating if necessary) an embedded SQLite store and runs its
// schema migration, mirroring EDRmount's Open/migrate split.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlitestore: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}
	busyMillis := opts.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = 10000
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=case_sensitive_like(ON)",
		opts.Path, busyMillis,
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)

	table := opts.Table
	if table == "" {
		table = defaultTable
	}
	s := &Store{db: sqlDB, table: table}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			network TEXT NOT NULL,
			station TEXT NOT NULL,
			location TEXT NOT NULL,
			channel TEXT NOT NULL,
			quality TEXT NOT NULL DEFAULT '',
			pubversion INTEGER NOT NULL,
			starttime INTEGER NOT NULL,
			endtime INTEGER NOT NULL,
			samplerate REAL NOT NULL,
			filename TEXT NOT NULL,
			byteoffset INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			hash TEXT NOT NULL,
			timeindex TEXT,
			timespans TEXT NOT NULL,
			timerates TEXT,
			format TEXT,
			filemodtime INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			scanned INTEGER NOT NULL
		);`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_nslc_time ON %s(network, station, location, channel, starttime, endtime);`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s(filename);`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_updated ON %s(updated);`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			es := err.Error()
			if strings.Contains(es, "duplicate") || strings.Contains(es, "already exists") {
				continue
			}
			return err
		}
	}
	return nil
}

// Reconcile implements indexstore.Store.
func (s *Store) Reconcile(ctx context.Context, filename string, rows []indexstore.Row, opts indexstore.ReconcileOptions) error {
	base, versioned := indexstore.SplitVersion(filename)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if !opts.NoUpdate {
		lo, hi, ok := extentWindow(rows)
		if ok {
			priors, err := s.queryPriors(ctx, tx, base, versioned, lo, hi)
			if err != nil {
				return err
			}
			indexstore.ApplyPreservation(rows, priors)

			matchSQL, args := matchClause(base, versioned)
			query := fmt.Sprintf(`DELETE FROM %s WHERE %s AND starttime <= ? AND endtime >= ?`, s.table, matchSQL)
			args = append(args, hi.UnixNano(), lo.UnixNano())
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (
		network, station, location, channel, quality, pubversion,
		starttime, endtime, samplerate, filename, byteoffset, bytes, hash,
		timeindex, timespans, timerates, format, filemodtime, updated, scanned
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, s.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		timeIndex := sql.NullString{String: r.TimeIndexText, Valid: r.HasTimeIndex}
		spansJSON, err := json.Marshal(r.TimeSpans)
		if err != nil {
			return err
		}
		var ratesJSON sql.NullString
		if r.TimeRates != nil {
			b, err := json.Marshal(r.TimeRates)
			if err != nil {
				return err
			}
			ratesJSON = sql.NullString{String: string(b), Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			r.Network, r.Station, r.Location, r.Channel, r.Quality, r.PubVersion,
			r.StartTime.UnixNano(), r.EndTime.UnixNano(), r.SampleRate, r.Filename,
			r.ByteOffset, r.Bytes, r.Hash,
			timeIndex, string(spansJSON), ratesJSON, nil,
			r.FileModTime.Unix(), r.Updated.Unix(), r.Scanned.Unix(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// extentWindow computes the ±1 day time-narrowing window around rows'
// combined extent (orig §4.4 "Time-range narrowing"). ok is false when rows
// is empty, in which case there is no extent to narrow on.
func extentWindow(rows []indexstore.Row) (lo, hi time.Time, ok bool) {
	if len(rows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	earliest, latest := rows[0].StartTime, rows[0].EndTime
	for _, r := range rows[1:] {
		if r.StartTime.Before(earliest) {
			earliest = r.StartTime
		}
		if r.EndTime.After(latest) {
			latest = r.EndTime
		}
	}
	return earliest.Add(-24 * time.Hour), latest.Add(24 * time.Hour), true
}

// queryPriors fetches the preservation-relevant columns for rows matching
// filename/base, narrowed to the ±1 day window around the new extent (orig
// §4.4 "Time-range narrowing"); the same window is applied to the DELETE in
// Reconcile so only overlapping rows are replaced.
func (s *Store) queryPriors(ctx context.Context, tx *sql.Tx, base string, versioned bool, lo, hi time.Time) ([]indexstore.PriorRow, error) {
	matchSQL, args := matchClause(base, versioned)
	query := fmt.Sprintf(
		`SELECT network, station, location, channel, pubversion, hash, updated
		 FROM %s WHERE %s AND starttime <= ? AND endtime >= ?`,
		s.table, matchSQL,
	)
	args = append(args, hi.UnixNano(), lo.UnixNano())

	result, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var priors []indexstore.PriorRow
	for result.Next() {
		var p indexstore.PriorRow
		var updatedUnix int64
		if err := result.Scan(&p.Network, &p.Station, &p.Location, &p.Channel, &p.PubVersion, &p.Hash, &updatedUnix); err != nil {
			return nil, err
		}
		p.Updated = time.Unix(updatedUnix, 0).UTC()
		priors = append(priors, p)
	}
	return priors, result.Err()
}

// matchClause builds the filename-or-version-prefix predicate (orig §4.4
// "Filename versioning"): an exact match unless the filename carries a
// "#<N>" suffix, in which case every "<base>#*" sibling matches too.
func matchClause(base string, versioned bool) (string, []any) {
	if versioned {
		return "filename LIKE ?", []any{base + "#%"}
	}
	return "filename = ?", []any{base}
}
