// Package pgstore implements the Index Reconciler's networked-database
// backend on top of jackc/pgx/v5, grounded on the pgxpool connect/AfterConnect
// pattern used for bulk timeseries loading elsewhere in the retrieved pack.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EarthScope/mseedindex/internal/indexstore"
)

// Store is a PostgreSQL-backed indexstore.Store.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Options configures Connect.
type Options struct {
	Host, Port, Database, User, Password string
	// Table overrides the default row table name ("mseed_index").
	Table string
	// AppName is the fallback application name reported to the server on
	// connect (orig §6 "Network SQL backend" connection parameters).
	// Empty means "mseedindex".
	AppName string
}

const defaultTable = "mseed_index"
const defaultAppName = "mseedindex"

// Connect opens a pool against the given Postgres server and ensures the
// schema exists, pinning the session timezone to UTC on every new
// connection (orig §4.4 reconciliation compares epoch/nanosecond values, so
// no column is timezone-sensitive, but a stray session timezone would still
// corrupt any display-side formatting downstream).
func Connect(ctx context.Context, opts Options) (*Store, error) {
	appName := opts.AppName
	if appName == "" {
		appName = defaultAppName
	}
	dsn := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s application_name=%s",
		opts.Host, opts.Port, opts.Database, opts.User, opts.Password, appName,
	)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET TIME ZONE 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}

	table := opts.Table
	if table == "" {
		table = defaultTable
	}
	s := &Store{pool: pool, table: table}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { s.pool.Close(); return nil }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		station TEXT NOT NULL,
		location TEXT NOT NULL,
		channel TEXT NOT NULL,
		quality TEXT NOT NULL DEFAULT '',
		pubversion INTEGER NOT NULL,
		starttime TIMESTAMPTZ NOT NULL,
		endtime TIMESTAMPTZ NOT NULL,
		samplerate DOUBLE PRECISION NOT NULL,
		filename TEXT NOT NULL,
		byteoffset BIGINT NOT NULL,
		bytes BIGINT NOT NULL,
		hash TEXT NOT NULL,
		timeindex TEXT,
		timespans JSONB NOT NULL,
		timerates JSONB,
		format TEXT,
		filemodtime TIMESTAMPTZ NOT NULL,
		updated TIMESTAMPTZ NOT NULL,
		scanned TIMESTAMPTZ NOT NULL
	)`, s.table))
	if err != nil {
		return err
	}
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_nslc_time ON %s(network, station, location, channel, starttime, endtime)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s(filename)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_updated ON %s(updated)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile implements indexstore.Store.
func (s *Store) Reconcile(ctx context.Context, filename string, rows []indexstore.Row, opts indexstore.ReconcileOptions) error {
	base, versioned := indexstore.SplitVersion(filename)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if !opts.NoUpdate {
		lo, hi, ok := extentWindow(rows)
		if ok {
			priors, err := s.queryPriors(ctx, tx, base, versioned, lo, hi)
			if err != nil {
				return err
			}
			indexstore.ApplyPreservation(rows, priors)

			matchSQL, args := matchClause(base, versioned)
			query := fmt.Sprintf(`DELETE FROM %s WHERE %s AND starttime <= $%d AND endtime >= $%d`,
				s.table, matchSQL, len(args)+1, len(args)+2)
			args = append(args, hi, lo)
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
	}

	batch := &pgx.Batch{}
	insertSQL := fmt.Sprintf(`INSERT INTO %s (
		network, station, location, channel, quality, pubversion,
		starttime, endtime, samplerate, filename, byteoffset, bytes, hash,
		timeindex, timespans, timerates, format, filemodtime, updated, scanned
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`, s.table)

	for _, r := range rows {
		var timeIndex *string
		if r.HasTimeIndex {
			t := r.TimeIndexText
			timeIndex = &t
		}
		spansJSON, err := json.Marshal(r.TimeSpans)
		if err != nil {
			return err
		}
		var ratesJSON []byte
		if r.TimeRates != nil {
			ratesJSON, err = json.Marshal(r.TimeRates)
			if err != nil {
				return err
			}
		}
		batch.Queue(insertSQL,
			r.Network, r.Station, r.Location, r.Channel, r.Quality, r.PubVersion,
			r.StartTime, r.EndTime, r.SampleRate, r.Filename, r.ByteOffset, r.Bytes, r.Hash,
			timeIndex, spansJSON, ratesJSON, nil,
			r.FileModTime, r.Updated, r.Scanned,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
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
func (s *Store) queryPriors(ctx context.Context, tx pgx.Tx, base string, versioned bool, lo, hi time.Time) ([]indexstore.PriorRow, error) {
	matchSQL, args := matchClause(base, versioned)
	query := fmt.Sprintf(
		`SELECT network, station, location, channel, pubversion, hash, updated
		 FROM %s WHERE %s AND starttime <= $%d AND endtime >= $%d`,
		s.table, matchSQL, len(args)+1, len(args)+2,
	)
	args = append(args, hi, lo)

	result, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var priors []indexstore.PriorRow
	for result.Next() {
		var p indexstore.PriorRow
		if err := result.Scan(&p.Network, &p.Station, &p.Location, &p.Channel, &p.PubVersion, &p.Hash, &p.Updated); err != nil {
			return nil, err
		}
		priors = append(priors, p)
	}
	return priors, result.Err()
}

func matchClause(base string, versioned bool) (string, []any) {
	if versioned {
		return "filename LIKE $1", []any{base + "#%"}
	}
	return "filename = $1", []any{base}
}
