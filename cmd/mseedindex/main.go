// Command mseedindex scans miniSEED files, reconciles their sections against
// an index store, and optionally emits a JSON description of what it found
// (orig §1, §6). Root command wiring follows the cobra root-command style
// the ctrlplanedev cli in the retrieved pack uses.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/EarthScope/mseedindex/internal/engine"
	"github.com/EarthScope/mseedindex/internal/indexstore"
	"github.com/EarthScope/mseedindex/internal/indexstore/pgstore"
	"github.com/EarthScope/mseedindex/internal/indexstore/sqlitestore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	skipNonData      bool
	noUpdate         bool
	noSync           bool
	keepPath         bool
	verbose          bool
	timeTolerance    time.Duration
	rateTolerance    float64
	subIndexInterval time.Duration
	table            string
	sqlitePath       string
	pgHost           string
	pgPort           string
	pgDatabase       string
	pgUser           string
	pgPassword       string
	pgAppName        string
	jsonPath         string
	busyTimeout      time.Duration
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "mseedindex [flags] FILE...",
		Short: "Index miniSEED files into a reconciled SQL store",
		Long: "mseedindex scans miniSEED files, groups their records into contiguous " +
			"sections, and reconciles those sections against a SQLite and/or " +
			"PostgreSQL index, preserving prior record timestamps for unchanged content.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), f, args)
		},
	}

	cmd.Flags().BoolVar(&f.skipNonData, "skip-non-data", false, "resynchronize past non-miniSEED bytes instead of aborting the file")
	cmd.Flags().BoolVar(&f.noUpdate, "no-update", false, "bulk load: skip the preservation lookup and deletion phase")
	cmd.Flags().BoolVar(&f.noSync, "no-sync", false, "skip writing the JSON output document")
	cmd.Flags().BoolVar(&f.keepPath, "keep-path", false, "use input paths as given instead of canonicalizing them")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().DurationVar(&f.timeTolerance, "time-tolerance", 0, "fixed time tolerance override (default: half the sample period)")
	cmd.Flags().Float64Var(&f.rateTolerance, "rate-tolerance", 0, "relative sample-rate tolerance override (default: 1e-4)")
	cmd.Flags().DurationVar(&f.subIndexInterval, "sub-index-interval", time.Hour, "time_index sub-sampling interval")
	cmd.Flags().StringVar(&f.table, "table", "", "row table name override")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite", "", "embedded SQLite database path")
	cmd.Flags().StringVar(&f.pgHost, "pg-host", "", "PostgreSQL host")
	cmd.Flags().StringVar(&f.pgPort, "pg-port", "5432", "PostgreSQL port")
	cmd.Flags().StringVar(&f.pgDatabase, "pg-database", "", "PostgreSQL database name")
	cmd.Flags().StringVar(&f.pgUser, "pg-user", "", "PostgreSQL user")
	cmd.Flags().StringVar(&f.pgPassword, "pg-password", "", "PostgreSQL password")
	cmd.Flags().StringVar(&f.pgAppName, "pg-app-name", "mseedindex", "fallback application name reported to PostgreSQL on connect")
	cmd.Flags().StringVar(&f.jsonPath, "json", "", "JSON output path")
	cmd.Flags().DurationVar(&f.busyTimeout, "busy-timeout", 10*time.Second, "SQLite busy timeout")

	return cmd
}

func runRoot(ctx context.Context, f flags, args []string) error {
	if f.verbose {
		log.SetLevel(log.DebugLevel)
	}

	opts := engine.Options{
		SkipNonData:      f.skipNonData,
		NoUpdate:         f.noUpdate,
		NoSync:           f.noSync,
		KeepPath:         f.keepPath,
		TimeTolerance:    f.timeTolerance,
		RateTolerance:    f.rateTolerance,
		SubIndexInterval: f.subIndexInterval,
		Table:            f.table,
		SQLitePath:       f.sqlitePath,
		PGHost:           f.pgHost,
		PGPort:           f.pgPort,
		PGDatabase:       f.pgDatabase,
		PGUser:           f.pgUser,
		PGPassword:       f.pgPassword,
		PGAppName:        f.pgAppName,
		JSONPath:         f.jsonPath,
		BusyTimeout:      f.busyTimeout,
		ScanTime:         time.Now().UTC(),
		RunID:            uuid.NewString(),
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	inputs, err := engine.LoadInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("mseedindex: no input files given")
	}

	store, closeStore, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	var jsonFile *os.File
	if !opts.NoSync && opts.JSONPath != "" {
		jsonFile, err = os.Create(opts.JSONPath)
		if err != nil {
			return fmt.Errorf("mseedindex: creating json output: %w", err)
		}
		defer jsonFile.Close()
	}

	log.Info("starting scan", "run_id", opts.RunID, "files", len(inputs))
	results, err := engine.Run(ctx, opts, store, inputs, jsonFile)
	if err != nil {
		return err
	}

	var failed int
	var totalBytes int64
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Error("file failed", "path", r.Path, "error", r.Err)
			continue
		}
		for _, row := range r.Rows {
			totalBytes += row.Bytes
		}
		log.Debug("file indexed", "path", r.Path, "sections", len(r.Rows))
	}
	log.Info("scan complete", "files", len(results), "failed", failed, "bytes", humanize.Bytes(uint64(totalBytes)))

	if failed > 0 {
		return fmt.Errorf("mseedindex: %d of %d files failed", failed, len(results))
	}
	return nil
}

// openStore assembles the Store(s) the CLI flags select, fanning out to
// both backends via indexstore.MultiStore when more than one is configured
// (SPEC_FULL.md §3.1).
func openStore(ctx context.Context, opts engine.Options) (indexstore.Store, func(), error) {
	var stores []indexstore.Store

	if opts.SQLitePath != "" {
		s, err := sqlitestore.Open(sqlitestore.Options{Path: opts.SQLitePath, Table: opts.Table, BusyTimeout: opts.BusyTimeout})
		if err != nil {
			return nil, nil, fmt.Errorf("mseedindex: opening sqlite store: %w", err)
		}
		stores = append(stores, s)
	}

	if opts.PGHost != "" {
		s, err := pgstore.Connect(ctx, pgstore.Options{
			Host: opts.PGHost, Port: opts.PGPort, Database: opts.PGDatabase,
			User: opts.PGUser, Password: opts.PGPassword, Table: opts.Table,
			AppName: opts.PGAppName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mseedindex: connecting to postgres: %w", err)
		}
		stores = append(stores, s)
	}

	if len(stores) == 0 {
		return nil, func() {}, nil
	}
	if len(stores) == 1 {
		s := stores[0]
		return s, func() { _ = s.Close() }, nil
	}
	multi := indexstore.NewMultiStore(stores...)
	return multi, func() { _ = multi.Close() }, nil
}
