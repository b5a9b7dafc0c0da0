package types

import "testing"

func TestEncodeDecodeBytesRoundTrip(t *testing.T) {
	e := &encoder{}
	e.PutU8(7)
	e.PutU32(1000)
	e.PutU64(1 << 40)
	e.PutBytes([]byte("hello"))

	d := newDecoder(e.Bytes())
	u8, err := d.U8()
	if err != nil || u8 != 7 {
		t.Fatalf("u8 mismatch: %v %v", u8, err)
	}
	u32, err := d.U32()
	if err != nil || u32 != 1000 {
		t.Fatalf("u32 mismatch: %v %v", u32, err)
	}
	u64, err := d.U64()
	if err != nil || u64 != 1<<40 {
		t.Fatalf("u64 mismatch: %v %v", u64, err)
	}
	b, err := d.Bytes()
	if err != nil || string(b) != "hello" {
		t.Fatalf("bytes mismatch: %v %v", b, err)
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", d.Remaining())
	}
}

func TestOptionalStringRoundTrip(t *testing.T) {
	e := &encoder{}
	s := "memo"
	e.PutOptionalString(&s)
	e.PutOptionalString(nil)

	d := newDecoder(e.Bytes())
	got, err := d.OptionalString()
	if err != nil || got == nil || *got != "memo" {
		t.Fatalf("expected memo, got %v %v", got, err)
	}
	none, err := d.OptionalString()
	if err != nil || none != nil {
		t.Fatalf("expected nil, got %v %v", none, err)
	}
}

func TestDecodeBytesRejectsOversizedLength(t *testing.T) {
	e := &encoder{}
	e.PutU32(1 << 28)
	if _, err := newDecoder(e.Bytes()).Bytes(); err == nil {
		t.Fatal("expected sanity-cap rejection")
	}
}
