package mseed

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func encodeRecord(t *testing.T, sourceID string, pubVersion uint8, start time.Time, sampleCount int64, rate float64, data []byte) []byte {
	t.Helper()
	idBuf := []byte(sourceID)
	hdr := recordHeader{
		Magic:       magicBytes,
		FormatVers:  2,
		PubVersion:  pubVersion,
		Quality:     0,
		SourceIDLen: uint16(len(idBuf)),
		StartNanos:  start.UnixNano(),
		SampleCount: sampleCount,
		SampleRate:  rate,
		DataLen:     uint32(len(data)),
	}
	return rebuildRaw(hdr, idBuf, data)
}

func TestStreamDecoderBasic(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec1 := encodeRecord(t, "IU_ANMO_00_BHZ", 1, t0, 100, 100.0, make([]byte, 8))
	rec2 := encodeRecord(t, "IU_ANMO_00_BHZ", 1, t0.Add(time.Second), 100, 100.0, make([]byte, 8))

	buf := bytes.NewBuffer(nil)
	buf.Write(rec1)
	buf.Write(rec2)

	dec := NewStreamDecoder(buf, Options{})
	defer dec.Close()

	r1, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if r1.Offset != 0 {
		t.Errorf("r1.Offset = %d, want 0", r1.Offset)
	}
	if r1.SourceID != "IU_ANMO_00_BHZ" {
		t.Errorf("r1.SourceID = %q", r1.SourceID)
	}
	if len(r1.Raw) != int(r1.Length) {
		t.Errorf("len(Raw)=%d != Length=%d", len(r1.Raw), r1.Length)
	}

	r2, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if r2.Offset != r1.Length {
		t.Errorf("r2.Offset = %d, want %d", r2.Offset, r1.Length)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestStreamDecoderSkipNonData(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec1 := encodeRecord(t, "IU_ANMO_00_BHZ", 1, t0, 100, 100.0, make([]byte, 8))
	rec2 := encodeRecord(t, "IU_ANMO_00_BHZ", 1, t0.Add(time.Second), 100, 100.0, make([]byte, 8))

	buf := bytes.NewBuffer(nil)
	buf.Write(rec1)
	buf.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01, 0x02, 0x03})
	buf.Write(rec2)

	dec := NewStreamDecoder(buf, Options{SkipNonData: true})
	defer dec.Close()

	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	r2, err := dec.Next()
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}
	if r2.Offset != int64(len(rec1))+8 {
		t.Errorf("r2.Offset = %d, want %d", r2.Offset, int64(len(rec1))+8)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestStreamDecoderFatalWithoutSkip(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01, 0x02, 0x03, 0x00, 0x00})
	dec := NewStreamDecoder(buf, Options{})
	defer dec.Close()

	_, err := dec.Next()
	if err == nil {
		t.Fatal("expected decode error")
	}
	var derr *ErrDecode
	if !errors.As(err, &derr) {
		t.Errorf("expected *ErrDecode, got %T: %v", err, err)
	}
}
