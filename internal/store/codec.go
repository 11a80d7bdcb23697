package store

import (
	"encoding/binary"
	"unicode/utf8"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// Integers are big-endian. VInt/VLong store seven bits per byte, low-order
// group first, with the high bit set on every byte but the last. Strings are
// a VInt byte count followed by UTF-8.

type byteReader interface {
	ReadByte() (byte, error)
	ReadBytes(p []byte) error
}

// sizedReader knows how many bytes are left, so decoded lengths can be
// checked before anything is allocated for them.
type sizedReader interface {
	byteReader
	Length() int64
	FilePointer() int64
}

type byteWriter interface {
	WriteByte(b byte) error
	WriteBytes(p []byte) error
}

func readInt(r byteReader) (int32, error) {
	var b [4]byte
	if err := r.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func readLong(r byteReader) (int64, error) {
	var b [8]byte
	if err := r.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readVInt(r byteReader) (int32, error) {
	v, err := readVarint(r, 5)
	return int32(uint32(v)), err
}

func readVLong(r byteReader) (int64, error) {
	v, err := readVarint(r, 10)
	return int64(v), err
}

func readVarint(r byteReader, maxBytes int) (uint64, error) {
	var v uint64
	for i, shift := 0, uint(0); i < maxBytes; i, shift = i+1, shift+7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, serrors.New(serrors.ErrCorruptIndex, "read varint", "", "variable-length integer is too long")
}

func readString(r sizedReader) (string, error) {
	n, err := readVInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", serrors.Newf(serrors.ErrCorruptIndex, "read string", "", "negative string length %d", n)
	}
	if n == 0 {
		return "", nil
	}
	if left := r.Length() - r.FilePointer(); int64(n) > left {
		return "", serrors.Newf(serrors.ErrCorruptIndex, "read string", "", "string length %d exceeds the %d bytes left", n, left)
	}
	b := make([]byte, n)
	if err := r.ReadBytes(b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", serrors.New(serrors.ErrCorruptIndex, "read string", "", "invalid UTF-8")
	}
	return string(b), nil
}

func writeInt(w byteWriter, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return w.WriteBytes(b[:])
}

func writeLong(w byteWriter, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return w.WriteBytes(b[:])
}

func writeVarint(w byteWriter, v uint64) error {
	var b [10]byte
	n := 0
	for v >= 0x80 {
		b[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	b[n] = byte(v)
	return w.WriteBytes(b[:n+1])
}

func writeString(w byteWriter, s string) error {
	if err := writeVarint(w, uint64(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return w.WriteBytes([]byte(s))
}
