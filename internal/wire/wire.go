package wire

import (
	"encoding/binary"
	"time"
)

// Sizes of the fixed wire structures. A command frame is exactly FrameSize
// bytes: one opcode byte, a KeySize-byte key and a ValueSize-byte value.
const (
	FrameSize   = 128
	KeySize     = 63
	ValueSize   = 64
	PayloadSize = 56
)

// RecordSize is one persisted pair: the key bytes followed by the raw value
// bytes, no separator.
const RecordSize = KeySize + ValueSize

// Opcodes understood by the dispatcher. Any other opcode byte is consumed
// without output or state change.
const (
	OpGet    byte = 'G'
	OpInsert byte = 'I'
	OpRemove byte = 'R'
	OpHalt   byte = 'H'
)

// Response records written per processed frame. A get hit instead writes
// the stored PayloadSize-byte payload followed by '\n'.
const (
	RespMiss     = "G\n"
	RespInserted = "I\n"
	RespRemoved  = "R\n"
	RespEmptyKey = "E\n"
)

// maxCreatedAt is the newest creation timestamp taken at face value
// (9999-12-31T23:59:59Z). The 48-bit wire field can carry larger values;
// those decode as the current time.
const maxCreatedAt = 253402300799

// Key is an opaque fixed-size key compared byte for byte, trailing zero
// padding included. The all-zero key is reserved and never stored.
type Key [KeySize]byte

// IsZero reports whether k is the reserved all-zero key.
func (k Key) IsZero() bool { return k == Key{} }

// RawValue is a stored value as carried on the wire and on disk: bytes
// [0,56) are the opaque payload, [56,62) the big-endian 48-bit creation
// timestamp in Unix seconds, [62,64) the big-endian expiration offset in
// seconds.
type RawValue [ValueSize]byte

// Payload returns the opaque payload portion.
func (v RawValue) Payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	copy(p[:], v[:PayloadSize])
	return p
}

// CreatedAt returns the creation timestamp field in Unix seconds.
func (v RawValue) CreatedAt() int64 {
	var buf [8]byte
	copy(buf[2:], v[PayloadSize:PayloadSize+6])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// ExpireSeconds returns the expiration offset field. 0 means no expiration.
func (v RawValue) ExpireSeconds() uint16 {
	return binary.BigEndian.Uint16(v[ValueSize-2:])
}

// WithCreatedAt returns a copy of v with the creation timestamp field
// replaced. Only the low 48 bits of ts fit on the wire.
func (v RawValue) WithCreatedAt(ts int64) RawValue {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	copy(v[PayloadSize:PayloadSize+6], buf[2:])
	return v
}

// EncodeValue packs a payload and its metadata into wire form.
func EncodeValue(payload [PayloadSize]byte, createdAt int64, expireSeconds uint16) RawValue {
	var v RawValue
	copy(v[:PayloadSize], payload[:])
	v = v.WithCreatedAt(createdAt)
	binary.BigEndian.PutUint16(v[ValueSize-2:], expireSeconds)
	return v
}

// Entry is the decoded in-memory projection of a RawValue, kept beside the
// raw bytes so expiration checks never re-decode the metadata tail.
type Entry struct {
	Payload   [PayloadSize]byte
	CreatedAt int64

	// ExpiresAt is Unix seconds. 0 means no expiration.
	ExpiresAt int64
}

// Expired reports whether the entry's expiry has passed at now.
func (e Entry) Expired(now int64) bool {
	return e.ExpiresAt > 0 && e.ExpiresAt <= now
}

// DecodeValue projects a raw value into an Entry. An implausible creation
// timestamp decodes as the current time so a hostile frame cannot break the
// sweep; the expiration offset applies to whichever base survives.
func DecodeValue(v RawValue) Entry {
	createdAt := v.CreatedAt()
	if createdAt > maxCreatedAt {
		createdAt = time.Now().Unix()
	}
	e := Entry{Payload: v.Payload(), CreatedAt: createdAt}
	if off := v.ExpireSeconds(); off > 0 {
		e.ExpiresAt = createdAt + int64(off)
	}
	return e
}

// Frame is one decoded command.
type Frame struct {
	Op    byte
	Key   Key
	Value RawValue
}

// DecodeFrame splits the first FrameSize bytes of buf into its fixed
// fields. It is total: every 128-byte input is structurally valid, the
// semantics are resolved by the dispatcher. The value field is meaningful
// only for insert frames and ignored otherwise.
func DecodeFrame(buf []byte) Frame {
	var f Frame
	f.Op = buf[0]
	copy(f.Key[:], buf[1:1+KeySize])
	copy(f.Value[:], buf[1+KeySize:FrameSize])
	return f
}

// EncodeFrame packs a frame into its wire form.
func EncodeFrame(f Frame) [FrameSize]byte {
	var buf [FrameSize]byte
	buf[0] = f.Op
	copy(buf[1:], f.Key[:])
	copy(buf[1+KeySize:], f.Value[:])
	return buf
}
