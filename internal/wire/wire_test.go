package wire

import (
	"bytes"
	"testing"
	"time"
)

func testKey(s string) Key {
	var k Key
	copy(k[:], s)
	return k
}

func testPayload(s string) [PayloadSize]byte {
	var p [PayloadSize]byte
	copy(p[:], s)
	return p
}

func TestDecodeFrameFields(t *testing.T) {
	var buf [FrameSize]byte
	buf[0] = OpInsert
	copy(buf[1:], "alpha")
	copy(buf[1+KeySize:], "payload")
	buf[FrameSize-2] = 0x01
	buf[FrameSize-1] = 0x2c

	f := DecodeFrame(buf[:])

	if f.Op != OpInsert {
		t.Fatalf("op = %q, want %q", f.Op, OpInsert)
	}
	if f.Key != testKey("alpha") {
		t.Fatalf("key = %q", f.Key[:])
	}
	if got := f.Value.ExpireSeconds(); got != 300 {
		t.Fatalf("expire seconds = %d, want 300", got)
	}
	if !bytes.HasPrefix(f.Value[:], []byte("payload")) {
		t.Fatalf("value = %q", f.Value[:])
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{
		Op:    OpGet,
		Key:   testKey("round-trip-key"),
		Value: EncodeValue(testPayload("round-trip-value"), 1700000000, 60),
	}

	got := DecodeFrame(encodeToSlice(f))
	if got != f {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, f)
	}
}

func encodeToSlice(f Frame) []byte {
	buf := EncodeFrame(f)
	return buf[:]
}

func TestKeyIsZero(t *testing.T) {
	var zero Key
	if !zero.IsZero() {
		t.Fatal("all-zero key should be zero")
	}
	k := zero
	k[KeySize-1] = 1
	if k.IsZero() {
		t.Fatal("key with trailing byte set should not be zero")
	}
}

func TestEncodeValueFields(t *testing.T) {
	v := EncodeValue(testPayload("hello"), 1700000000, 300)

	if got := v.CreatedAt(); got != 1700000000 {
		t.Fatalf("created at = %d, want 1700000000", got)
	}
	if got := v.ExpireSeconds(); got != 300 {
		t.Fatalf("expire seconds = %d, want 300", got)
	}
	p := v.Payload()
	if !bytes.HasPrefix(p[:], []byte("hello")) {
		t.Fatalf("payload = %q", p[:])
	}
}

func TestWithCreatedAt(t *testing.T) {
	v := EncodeValue(testPayload("body"), 1, 120)
	v2 := v.WithCreatedAt(1700000000)

	if got := v2.CreatedAt(); got != 1700000000 {
		t.Fatalf("created at = %d, want 1700000000", got)
	}
	if v2.Payload() != v.Payload() {
		t.Fatal("payload changed")
	}
	if v2.ExpireSeconds() != v.ExpireSeconds() {
		t.Fatal("expire seconds changed")
	}
}

func TestDecodeValueExpiry(t *testing.T) {
	e := DecodeValue(EncodeValue(testPayload("x"), 1000, 60))

	if e.CreatedAt != 1000 {
		t.Fatalf("created at = %d, want 1000", e.CreatedAt)
	}
	if e.ExpiresAt != 1060 {
		t.Fatalf("expires at = %d, want 1060", e.ExpiresAt)
	}
	if e.Expired(1059) {
		t.Fatal("expired one second early")
	}
	if !e.Expired(1060) {
		t.Fatal("not expired at the expiry second")
	}
}

func TestDecodeValueNoExpiry(t *testing.T) {
	e := DecodeValue(EncodeValue(testPayload("x"), 1000, 0))

	if e.ExpiresAt != 0 {
		t.Fatalf("expires at = %d, want 0", e.ExpiresAt)
	}
	if e.Expired(1<<62) {
		t.Fatal("zero offset must never expire")
	}
}

func TestDecodeValueImplausibleCreatedAt(t *testing.T) {
	// All six timestamp bytes set: far past year 9999. The decoder falls
	// back to the current time rather than trusting the field.
	var v RawValue
	for i := PayloadSize; i < PayloadSize+6; i++ {
		v[i] = 0xff
	}

	before := time.Now().Unix()
	e := DecodeValue(v)
	after := time.Now().Unix()

	if e.CreatedAt < before || e.CreatedAt > after {
		t.Fatalf("created at = %d, want within [%d, %d]", e.CreatedAt, before, after)
	}
}
