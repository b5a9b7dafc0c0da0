// Package types implements numi-core's C2 component: the canonical binary
// encoding, Merkle root, and hash/signature binding for blocks and
// transactions (spec.md §3, §4.2). The encoding is a fixed-width,
// declaration-order little-endian layout — not RLP, which the teacher's
// blockchain/types package used; see DESIGN.md for why RLP was dropped.
package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/numi-chain/numi-core/common"
)

// encoder accumulates a canonical encoding. Every Put* method appends in
// declaration order with fixed-width little-endian integers, matching
// spec.md §6 "canonical little-endian binary, structs concatenated in
// declaration order".
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) PutU8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) PutU32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) PutU64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }

// PutBytes writes a u32 length prefix followed by the raw bytes (spec.md §6
// "variable-length byte arrays prefixed with a u32 length").
func (e *encoder) PutBytes(b []byte) {
	e.PutU32(uint32(len(b)))
	e.buf.Write(b)
}

// PutOptionalString writes a 1-byte presence tag followed by the length
// prefixed string if present (spec.md §4.2 "Optional fields are prefixed
// with a 1-byte presence tag").
func (e *encoder) PutOptionalString(s *string) {
	if s == nil {
		e.PutU8(0)
		return
	}
	e.PutU8(1)
	e.PutBytes([]byte(*s))
}

func (e *encoder) Bytes() []byte { return e.buf.Bytes() }

// decoder mirrors encoder for the read side.
type decoder struct {
	r *bytes.Reader
}

func newDecoder(b []byte) *decoder { return &decoder{r: bytes.NewReader(b)} }

func (d *decoder) U8() (uint8, error) { return d.r.ReadByte() }

func (d *decoder) U32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *decoder) U64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (d *decoder) Bytes() ([]byte, error) {
	n, err := d.U32()
	if err != nil {
		return nil, err
	}
	if n > 64<<20 {
		return nil, errors.New("encoded byte field exceeds sanity limit")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *decoder) OptionalString() (*string, error) {
	tag, err := d.U8()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	b, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func (d *decoder) Remaining() int { return d.r.Len() }

// readHash reads exactly common.HashLength raw bytes into h — used for the
// fixed-width hash fields of BlockMetadata/ChainState/Checkpoint, which are
// not length-prefixed since their size is a compile-time constant.
func (d *decoder) readHash(h *common.Hash) error {
	buf := make([]byte, common.HashLength)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return err
	}
	copy(h[:], buf)
	return nil
}
