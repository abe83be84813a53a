// Package frame implements the eventstream-style wire framing shared by the
// core bus and the IPC gateway: a 12-byte prelude (total length, headers
// length, prelude CRC), a sequence of typed headers, a payload, and a
// trailing message CRC. The core bus carries gobj.Object-encoded payloads
// under this framing; the gateway carries JSON payloads under the same
// framing. Grounded on spec.md §3 (Frame, Header) and §4.2 (codec
// contract); no C source in _examples/original_source implements this layer
// since eventstream is AWS's separate IoT SDK wire protocol, not part of the
// ggipcd C sources, so this package is written directly from the
// specification rather than ported from original_source.
package frame

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/edgerun/ipcbus/internal/ggerr"
)

// DefaultMaxSize is the compile-time frame size bound named in spec §3.
const DefaultMaxSize = 10000

// preludeSize is the fixed 12-byte prelude: 4 (total len) + 4 (headers len)
// + 4 (prelude CRC).
const preludeSize = 12

// Frame is one decoded eventstream message: an ordered header list plus an
// opaque payload.
type Frame struct {
	Headers []Header
	Payload []byte
}

// Get returns the first header value with the given name.
func (f Frame) Get(name string) (Value, bool) {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return Value{}, false
}

// crcTable is the standard IEEE polynomial table used for both the prelude
// and message CRCs, matching the real eventstream wire protocol this
// subsystem's gateway is modeled on.
var crcTable = crc32.MakeTable(crc32.IEEE)

// Encode serializes f into a complete frame (prelude + headers + payload +
// message CRC), failing with NoMem if the result would exceed maxSize.
func Encode(f Frame, maxSize int) ([]byte, error) {
	headerBytes, err := encodeHeaders(f.Headers)
	if err != nil {
		return nil, err
	}
	total := preludeSize + len(headerBytes) + len(f.Payload) + 4
	if maxSize > 0 && total > maxSize {
		return nil, ggerr.Newf(ggerr.NoMem, "frame of %d bytes exceeds max %d", total, maxSize)
	}

	buf := make([]byte, 0, total)
	var lenBuf [4]byte

	binary.BigEndian.PutUint32(lenBuf[:], uint32(total))
	buf = append(buf, lenBuf[:]...)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))
	buf = append(buf, lenBuf[:]...)

	preludeCRC := crc32.Checksum(buf[:8], crcTable)
	binary.BigEndian.PutUint32(lenBuf[:], preludeCRC)
	buf = append(buf, lenBuf[:]...)

	buf = append(buf, headerBytes...)
	buf = append(buf, f.Payload...)

	msgCRC := crc32.Checksum(buf, crcTable)
	binary.BigEndian.PutUint32(lenBuf[:], msgCRC)
	buf = append(buf, lenBuf[:]...)

	return buf, nil
}

// Write encodes f and writes it to w in one call.
func Write(w io.Writer, f Frame, maxSize int) error {
	buf, err := Encode(f, maxSize)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Prelude is the validated (total_len, headers_len) pair extracted from the
// first 12 bytes of a frame.
type Prelude struct {
	TotalLen   uint32
	HeadersLen uint32
}

// ReadPrelude reads exactly 12 bytes from r and validates the prelude CRC.
// It is the decision point for the NoMem boundary behavior: callers check
// TotalLen against their own maxSize before calling ReadBody, so a frame
// that is too large is rejected without reading past the prelude.
func ReadPrelude(r io.Reader) (Prelude, error) {
	var raw [preludeSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Prelude{}, ggerr.Wrap(ggerr.Parse, "short read on frame prelude", err)
	}
	gotCRC := binary.BigEndian.Uint32(raw[8:12])
	wantCRC := crc32.Checksum(raw[:8], crcTable)
	if gotCRC != wantCRC {
		return Prelude{}, ggerr.New(ggerr.Parse, "prelude CRC mismatch")
	}
	return Prelude{
		TotalLen:   binary.BigEndian.Uint32(raw[0:4]),
		HeadersLen: binary.BigEndian.Uint32(raw[4:8]),
	}, nil
}

// ReadBody reads the remainder of a frame following a validated Prelude,
// validates the trailing message CRC, parses exactly HeadersLen bytes of
// headers and returns the rest as payload.
func ReadBody(r io.Reader, p Prelude) (Frame, error) {
	if p.TotalLen < preludeSize+4 || uint32(p.HeadersLen) > p.TotalLen-preludeSize-4 {
		return Frame{}, ggerr.New(ggerr.Parse, "prelude lengths out of range")
	}

	bodyLen := p.TotalLen - preludeSize
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, ggerr.Wrap(ggerr.Parse, "short read on frame body", err)
	}

	msgCRC := binary.BigEndian.Uint32(body[len(body)-4:])
	var preludeRaw [preludeSize]byte
	binary.BigEndian.PutUint32(preludeRaw[0:4], p.TotalLen)
	binary.BigEndian.PutUint32(preludeRaw[4:8], p.HeadersLen)
	// The prelude CRC occupying bytes 8:12 was already validated by
	// ReadPrelude and is part of the message CRC's input; recompute it here
	// since ReadPrelude only returns the parsed fields, not the raw bytes.
	binary.BigEndian.PutUint32(preludeRaw[8:12], crc32.Checksum(preludeRaw[:8], crcTable))

	full := append(append([]byte(nil), preludeRaw[:]...), body[:len(body)-4]...)
	wantCRC := crc32.Checksum(full, crcTable)
	if msgCRC != wantCRC {
		return Frame{}, ggerr.New(ggerr.Parse, "message CRC mismatch")
	}

	headerBytes := body[:p.HeadersLen]
	headers, err := decodeHeaders(headerBytes)
	if err != nil {
		return Frame{}, err
	}
	payload := body[p.HeadersLen : len(body)-4]

	return Frame{Headers: headers, Payload: payload}, nil
}

// Read reads one complete frame from r, rejecting frames whose declared
// total length exceeds maxSize without attempting to read the body.
func Read(r io.Reader, maxSize int) (Frame, error) {
	p, err := ReadPrelude(r)
	if err != nil {
		return Frame{}, err
	}
	if maxSize > 0 && int(p.TotalLen) > maxSize {
		return Frame{}, ggerr.Newf(ggerr.NoMem, "frame of %d bytes exceeds max %d", p.TotalLen, maxSize)
	}
	return ReadBody(r, p)
}

// Decode parses a single complete frame already held in memory (used by
// tests and by callers that already have the full datagram).
func Decode(buf []byte) (Frame, error) {
	if len(buf) < preludeSize {
		return Frame{}, ggerr.New(ggerr.Parse, "buffer shorter than prelude")
	}
	p, err := ReadPrelude(sliceReader(buf[:preludeSize]))
	if err != nil {
		return Frame{}, err
	}
	if uint32(len(buf)) != p.TotalLen {
		return Frame{}, ggerr.Newf(ggerr.Parse, "declared length %d does not match buffer length %d", p.TotalLen, len(buf))
	}
	return ReadBody(sliceReader(buf[preludeSize:]), p)
}

func sliceReader(b []byte) io.Reader { return &byteReader{b: b} }

type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
