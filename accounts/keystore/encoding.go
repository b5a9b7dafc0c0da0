package keystore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// byteEncoder/byteDecoder duplicate core/types' canonical-encoding shape
// (u32-length-prefixed byte fields, little-endian fixed integers) for the
// keystore's own plaintext envelope. The two packages deliberately don't
// share an internal encoding helper: core/types' encoding is part of the
// consensus wire format and must never move for keystore convenience.
type byteEncoder struct {
	buf bytes.Buffer
}

func (e *byteEncoder) putU8(v uint8) { e.buf.WriteByte(v) }
func (e *byteEncoder) putU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}
func (e *byteEncoder) putBytes(b []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	e.buf.Write(l[:])
	e.buf.Write(b)
}
func (e *byteEncoder) bytes() []byte { return e.buf.Bytes() }

type byteDecoder struct {
	r *bytes.Reader
}

func newByteDecoder(b []byte) *byteDecoder { return &byteDecoder{r: bytes.NewReader(b)} }

func (d *byteDecoder) u8() (uint8, error) { return d.r.ReadByte() }

func (d *byteDecoder) u64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (d *byteDecoder) bytes() ([]byte, error) {
	var l [4]byte
	if _, err := io.ReadFull(d.r, l[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(l[:])
	if n > 1<<20 {
		return nil, errors.New("keystore entry field exceeds sanity limit")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
