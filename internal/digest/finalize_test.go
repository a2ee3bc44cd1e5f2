package digest

import (
	"testing"
	"time"

	"github.com/EarthScope/mseedindex/internal/mseed"
	"github.com/EarthScope/mseedindex/internal/section"
)

func TestFinalizeExtentsAndDigests(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a := section.New(section.Options{})
	a.Push(mseed.Record{Offset: 0, Length: 100, SourceID: "A", PubVersion: 1, Start: t0, SampleCount: 10, SampleRate: 1, Raw: make([]byte, 100)}, t0)
	a.Push(mseed.Record{Offset: 200, Length: 100, SourceID: "B", PubVersion: 1, Start: t0.Add(time.Hour), SampleCount: 10, SampleRate: 1, Raw: make([]byte, 100)}, t0)
	secs := a.Close()

	ext := Finalize(secs)
	if !ext.Earliest.Equal(secs[0].Earliest) {
		t.Errorf("earliest = %v, want %v", ext.Earliest, secs[0].Earliest)
	}
	if !ext.Latest.Equal(secs[1].Latest) {
		t.Errorf("latest = %v, want %v", ext.Latest, secs[1].Latest)
	}
	for _, s := range secs {
		if len(s.Digest) != 32 {
			t.Errorf("section digest %q, want 32 hex chars", s.Digest)
		}
	}
	if fd := a.FileDigest(); len(fd) != 64 {
		t.Errorf("file digest %q, want 64 hex chars", fd)
	}
}

func TestFinalizeDeterministic(t *testing.T) {
	build := func() (string, []string) {
		t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		a := section.New(section.Options{})
		a.Push(mseed.Record{Offset: 0, Length: 50, SourceID: "A", PubVersion: 1, Start: t0, SampleCount: 5, SampleRate: 1, Raw: make([]byte, 50)}, t0)
		secs := a.Close()
		Finalize(secs)
		digs := make([]string, len(secs))
		for i, s := range secs {
			digs[i] = s.Digest
		}
		return a.FileDigest(), digs
	}
	fd1, d1 := build()
	fd2, d2 := build()
	if fd1 != fd2 {
		t.Errorf("file digest not deterministic: %q vs %q", fd1, fd2)
	}
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Errorf("section digest not deterministic: %q vs %q", d1[i], d2[i])
		}
	}
}
