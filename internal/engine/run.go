package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/EarthScope/mseedindex/internal/digest"
	"github.com/EarthScope/mseedindex/internal/fileentry"
	"github.com/EarthScope/mseedindex/internal/indexstore"
	"github.com/EarthScope/mseedindex/internal/jsonout"
	"github.com/EarthScope/mseedindex/internal/mseed"
	"github.com/EarthScope/mseedindex/internal/section"
)

// FileResult is one input file's outcome: either a finalized entry ready
// for reconciliation, or the FileError that aborted it (orig §7: "failure
// aborts the file," so one bad file never stops the run).
type FileResult struct {
	Path  string
	Entry *fileentry.FileEntry
	Rows  []indexstore.Row
	Err   error
}

// Run scans every path, reconciles each file's rows against store (unless
// store is nil, e.g. a JSON-only run with -no-sync absent), and — unless
// opts.NoSync is set — writes the aggregate JSON document to jsonWriter. It
// returns the per-file results so the caller can report failures without
// losing the files that succeeded.
func Run(ctx context.Context, opts Options, store indexstore.Store, paths []string, jsonWriter io.Writer) ([]FileResult, error) {
	results := make([]FileResult, 0, len(paths))
	var jsonFiles []jsonout.File

	for _, path := range paths {
		canonical, err := CanonicalizePath(path, opts.KeepPath)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: newFileError(path, CategoryArgument, err)})
			continue
		}

		entry, rows, err := processFile(canonical, opts)
		if err != nil {
			results = append(results, FileResult{Path: canonical, Err: err})
			continue
		}

		if store != nil {
			if err := store.Reconcile(ctx, entry.Path, rows, indexstore.ReconcileOptions{
				NoUpdate: opts.NoUpdate,
				ScanTime: entry.ScanTime,
			}); err != nil {
				results = append(results, FileResult{Path: canonical, Err: newFileError(canonical, CategoryStore, err)})
				continue
			}
		}

		if !opts.NoSync {
			jsonFiles = append(jsonFiles, jsonout.BuildFile(entry, rows, entry.ScanTime))
		}

		results = append(results, FileResult{Path: canonical, Entry: entry, Rows: rows})
	}

	if !opts.NoSync && jsonWriter != nil {
		doc := jsonout.Document{GeneratedAt: opts.ScanTime.UTC().Format(time.RFC3339Nano), RunID: opts.RunID, Files: jsonFiles}
		if err := jsonout.Write(jsonWriter, doc); err != nil {
			return results, newFileError("<json output>", CategoryStore, err)
		}
	}

	return results, nil
}

// processFile runs the Reader -> Aggregator -> Finalizer pipeline against
// one path, then serializes its sections into reconciler rows.
func processFile(path string, opts Options) (*fileentry.FileEntry, []indexstore.Row, error) {
	modTime, r, closeFn, err := openInput(path)
	if err != nil {
		return nil, nil, newFileError(path, CategoryArgument, err)
	}
	defer closeFn()

	dec := mseed.NewStreamDecoder(r, mseed.Options{SkipNonData: opts.SkipNonData})
	defer dec.Close()

	agg := section.New(section.Options{
		SubIndexInterval: opts.SubIndexInterval,
		Tolerance:        opts.toleranceFrom(),
	})

	partial := false
	var nextOffset int64
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if opts.SkipNonData {
				partial = true
				break
			}
			return nil, nil, newFileError(path, CategoryDecode, err)
		}
		if rec.Offset != nextOffset {
			// The decoder skipped non-data bytes before this record.
			partial = true
		}
		nextOffset = rec.Offset + rec.Length
		agg.Push(rec, modTime)
	}

	sections := agg.Close()
	ext := digest.Finalize(sections)

	entry := &fileentry.FileEntry{
		Path:            path,
		FileModTime:     modTime,
		ScanTime:        opts.ScanTime,
		Earliest:        ext.Earliest,
		Latest:          ext.Latest,
		Digest:          agg.FileDigest(),
		PartialCoverage: partial,
		Sections:        sections,
	}

	rows, err := indexstore.BuildRows(entry)
	if err != nil {
		var integrity *indexstore.IntegrityError
		var resource *indexstore.ResourceError
		switch {
		case errors.As(err, &integrity):
			return nil, nil, newFileError(path, CategoryIntegrity, err)
		case errors.As(err, &resource):
			return nil, nil, newFileError(path, CategoryResourceExhaustion, err)
		default:
			return nil, nil, newFileError(path, CategoryDecode, err)
		}
	}
	return entry, rows, nil
}

func openInput(path string) (time.Time, io.Reader, func() error, error) {
	if path == "-" {
		return time.Time{}, os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return time.Time{}, nil, nil, err
	}
	return info.ModTime(), f, f.Close, nil
}
