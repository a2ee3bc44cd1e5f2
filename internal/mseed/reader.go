package mseed

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrDecode wraps a decode error for the current file (orig §7 "Decode
// error"). Without SkipNonData the engine aborts the file on one and the
// Reconciler does not run for it; with SkipNonData the engine stops reading
// the file there and reconciles the records decoded before it.
type ErrDecode struct {
	Offset int64
	Err    error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("mseed: decode error at offset %d: %v", e.Offset, e.Err)
}

func (e *ErrDecode) Unwrap() error { return e.Err }

// recordHeader is the fixed-size framing this stand-in decoder reads before
// the variable-length source id and payload. It is not a real miniSEED
// header; it exists only to exercise the Reader/Aggregator contract the way
// the real external decoder would (orig §1, §6).
type recordHeader struct {
	Magic       [2]byte // "MS"
	FormatVers  uint8
	PubVersion  uint8
	Quality     uint8
	_           uint8 // padding
	SourceIDLen uint16
	_           uint16 // padding
	StartNanos  int64
	SampleCount int64
	SampleRate  float64
	DataLen     uint32
}

const headerSize = 2 + 1 + 1 + 1 + 1 + 2 + 2 + 8 + 8 + 8 + 4

var magicBytes = [2]byte{'M', 'S'}

// Decoder is the contract the Aggregator consumes: a lazy sequence of
// records with absolute byte positions (orig §4.1).
type Decoder interface {
	// Next returns the next decoded record, or io.EOF at end of stream, or
	// an *ErrDecode on malformed input.
	Next() (Record, error)
	// Close releases any reader state; safe to call more than once.
	Close() error
}

// Options configures a StreamDecoder.
type Options struct {
	// SkipNonData, when true, silently skips bytes that do not begin a
	// valid record instead of treating them as a fatal decode error
	// (orig §4.1 "skip non-data").
	SkipNonData bool
}

// StreamDecoder is the stand-in Record Stream Reader implementation.
type StreamDecoder struct {
	r      *bufio.Reader
	closer io.Closer
	opts   Options
	offset int64
	closed bool
}

// NewStreamDecoder wraps r (a local file, stdin, or an already-opened URL
// body) as a Decoder. If r also implements io.Closer, Close releases it.
func NewStreamDecoder(r io.Reader, opts Options) *StreamDecoder {
	d := &StreamDecoder{r: bufio.NewReader(r), opts: opts}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

func (d *StreamDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Next implements Decoder.
func (d *StreamDecoder) Next() (Record, error) {
	if d.opts.SkipNonData {
		if err := d.resync(); err != nil {
			return Record{}, err
		}
	}

	start := d.offset
	var hdr recordHeader
	if err := d.readHeader(&hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, &ErrDecode{Offset: start, Err: err}
	}

	idBuf := make([]byte, hdr.SourceIDLen)
	if _, err := io.ReadFull(d.r, idBuf); err != nil {
		return Record{}, &ErrDecode{Offset: start, Err: err}
	}
	d.offset += int64(len(idBuf))

	data := make([]byte, hdr.DataLen)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return Record{}, &ErrDecode{Offset: start, Err: err}
	}
	d.offset += int64(len(data))

	total := int64(headerSize) + int64(len(idBuf)) + int64(len(data))
	raw := rebuildRaw(hdr, idBuf, data)

	rec := Record{
		Offset:        start,
		Length:        total,
		SourceID:      strings.TrimRight(string(idBuf), "\x00"),
		PubVersion:    hdr.PubVersion,
		Quality:       hdr.Quality,
		FormatVersion: hdr.FormatVers,
		Start:         time.Unix(0, hdr.StartNanos).UTC(),
		SampleCount:   hdr.SampleCount,
		SampleRate:    hdr.SampleRate,
		Raw:           raw,
	}
	return rec, nil
}

// resync advances past bytes that do not begin a valid record, stopping as
// soon as a magic-byte match is found at the current position or the
// underlying reader is exhausted. Used when SkipNonData is set (orig §4.1).
func (d *StreamDecoder) resync() error {
	for {
		peek, err := d.r.Peek(len(magicBytes))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // let Next's header read surface the real EOF
			}
			return err
		}
		if peek[0] == magicBytes[0] && peek[1] == magicBytes[1] {
			return nil
		}
		if _, err := d.r.Discard(1); err != nil {
			return err
		}
		d.offset++
	}
}

func (d *StreamDecoder) readHeader(hdr *recordHeader) error {
	if err := binary.Read(d.r, binary.BigEndian, hdr); err != nil {
		return err
	}
	d.offset += int64(headerSize)
	if hdr.Magic != magicBytes {
		return fmt.Errorf("bad record magic %q", hdr.Magic[:])
	}
	return nil
}

func rebuildRaw(hdr recordHeader, idBuf, data []byte) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize + len(idBuf) + len(data))
	_ = binary.Write(buf, binary.BigEndian, hdr)
	buf.Write(idBuf)
	buf.Write(data)
	return buf.Bytes()
}
