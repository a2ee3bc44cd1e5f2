package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EarthScope/mseedindex/internal/indexstore"
)

// testHeader mirrors internal/mseed's unexported recordHeader layout so
// tests here can synthesize a byte stream without depending on that
// package's internals.
type testHeader struct {
	Magic       [2]byte
	FormatVers  uint8
	PubVersion  uint8
	Quality     uint8
	_           uint8
	SourceIDLen uint16
	_           uint16
	StartNanos  int64
	SampleCount int64
	SampleRate  float64
	DataLen     uint32
}

func encodeTestRecord(t *testing.T, sourceID string, start time.Time, sampleCount int64, rate float64, data []byte) []byte {
	t.Helper()
	idBuf := []byte(sourceID)
	hdr := testHeader{
		Magic:       [2]byte{'M', 'S'},
		FormatVers:  2,
		PubVersion:  1,
		SourceIDLen: uint16(len(idBuf)),
		StartNanos:  start.UnixNano(),
		SampleCount: sampleCount,
		SampleRate:  rate,
		DataLen:     uint32(len(data)),
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, hdr); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	buf.Write(idBuf)
	buf.Write(data)
	return buf.Bytes()
}

type fakeStore struct {
	reconciled []string
}

func (f *fakeStore) Reconcile(ctx context.Context, filename string, rows []indexstore.Row, opts indexstore.ReconcileOptions) error {
	f.reconciled = append(f.reconciled, filename)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestRunProcessesFileAndReconciles(t *testing.T) {
	t0 := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	rec1 := encodeTestRecord(t, "XX_STA1__HHZ", t0, 100, 100.0, make([]byte, 16))
	rec2 := encodeTestRecord(t, "XX_STA1__HHZ", t0.Add(time.Second), 100, 100.0, make([]byte, 16))

	dir := t.TempDir()
	path := filepath.Join(dir, "example.mseed")
	if err := os.WriteFile(path, append(rec1, rec2...), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store := &fakeStore{}
	opts := Options{ScanTime: t0.Add(time.Hour), KeepPath: true}

	var jsonBuf bytes.Buffer
	results, err := Run(context.Background(), opts, store, []string{path}, &jsonBuf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("file error: %v", results[0].Err)
	}
	if len(store.reconciled) != 1 {
		t.Fatalf("reconciled %d files, want 1", len(store.reconciled))
	}
	if jsonBuf.Len() == 0 {
		t.Error("expected non-empty JSON output")
	}
}

func TestRunNoSyncSkipsJSON(t *testing.T) {
	t0 := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := encodeTestRecord(t, "XX_STA1__HHZ", t0, 10, 10.0, make([]byte, 8))
	dir := t.TempDir()
	path := filepath.Join(dir, "one.mseed")
	if err := os.WriteFile(path, rec, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	opts := Options{ScanTime: t0, KeepPath: true, NoSync: true}
	var jsonBuf bytes.Buffer
	results, err := Run(context.Background(), opts, nil, []string{path}, &jsonBuf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("file error: %v", results[0].Err)
	}
	if jsonBuf.Len() != 0 {
		t.Errorf("expected no JSON output, got %d bytes", jsonBuf.Len())
	}
}

func TestRunBadSourceIDAbortsFileOnly(t *testing.T) {
	t0 := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	badRec := encodeTestRecord(t, "not-four-parts", t0, 10, 10.0, make([]byte, 8))
	goodRec := encodeTestRecord(t, "XX_STA1__HHZ", t0, 10, 10.0, make([]byte, 8))

	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.mseed")
	goodPath := filepath.Join(dir, "good.mseed")
	if err := os.WriteFile(badPath, badRec, 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	if err := os.WriteFile(goodPath, goodRec, 0o644); err != nil {
		t.Fatalf("write good file: %v", err)
	}

	store := &fakeStore{}
	opts := Options{ScanTime: t0, KeepPath: true, NoSync: true}
	results, err := Run(context.Background(), opts, store, []string{badPath, goodPath}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("expected bad.mseed to fail")
	}
	if results[1].Err != nil {
		t.Errorf("expected good.mseed to succeed, got %v", results[1].Err)
	}
	if len(store.reconciled) != 1 {
		t.Errorf("reconciled %d files, want 1 (only the good one)", len(store.reconciled))
	}
}
