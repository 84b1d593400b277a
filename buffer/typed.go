package buffer

import (
	"encoding/binary"
	"math"

	"github.com/flashrecord/flashrecord/errs"
)

// Scalar is the set of fixed-width types ReadTyped/PeekTyped/WriteTyped
// know how to encode, all little-endian on the wire regardless of host
// byte order (spec.md §4.4, §4.6).
type Scalar interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~bool
}

func sizeOf[T Scalar]() int {
	var zero T
	switch any(zero).(type) {
	case uint8, int8, bool:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32, float32:
		return 4
	case uint64, int64:
		return 8
	default:
		return 0
	}
}

func decode[T Scalar](raw []byte) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(raw[0]).(T)
	case int8:
		return any(int8(raw[0])).(T)
	case bool:
		return any(raw[0] != 0).(T)
	case uint16:
		return any(binary.LittleEndian.Uint16(raw)).(T)
	case int16:
		return any(int16(binary.LittleEndian.Uint16(raw))).(T)
	case uint32:
		return any(binary.LittleEndian.Uint32(raw)).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(raw))).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(raw))).(T)
	case uint64:
		return any(binary.LittleEndian.Uint64(raw)).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(raw))).(T)
	default:
		panic("buffer: unsupported scalar type")
	}
}

func encode[T Scalar](v T, dst []byte) {
	switch x := any(v).(type) {
	case uint8:
		dst[0] = x
	case int8:
		dst[0] = byte(x)
	case bool:
		if x {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case uint16:
		binary.LittleEndian.PutUint16(dst, x)
	case int16:
		binary.LittleEndian.PutUint16(dst, uint16(x))
	case uint32:
		binary.LittleEndian.PutUint32(dst, x)
	case int32:
		binary.LittleEndian.PutUint32(dst, uint32(x))
	case float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
	case uint64:
		binary.LittleEndian.PutUint64(dst, x)
	case int64:
		binary.LittleEndian.PutUint64(dst, uint64(x))
	default:
		panic("buffer: unsupported scalar type")
	}
}

// PeekTyped reads a fixed-width scalar at the cursor without advancing it.
func PeekTyped[T Scalar](b *Buffer) (T, error) {
	var zero T
	n := sizeOf[T]()
	raw, err := b.Peek(n)
	if err != nil {
		return zero, err
	}
	return decode[T](raw), nil
}

// ReadTyped reads a fixed-width scalar at the cursor and advances past it.
func ReadTyped[T Scalar](b *Buffer) (T, error) {
	v, err := PeekTyped[T](b)
	if err != nil {
		return v, err
	}
	b.pos += sizeOf[T]()
	return v, nil
}

// WriteTyped writes a fixed-width scalar at the cursor, growing the buffer
// if necessary, and advances the cursor past it.
func WriteTyped[T Scalar](b *Buffer, v T) error {
	n := sizeOf[T]()
	raw := make([]byte, n)
	encode(v, raw)
	return b.Write(raw)
}

// PutTypedAt overwrites a fixed-width scalar already occupying n bytes at
// an absolute offset, without touching the cursor. Used by the update
// engine's same-type fast path (spec.md §4.9).
func PutTypedAt[T Scalar](b *Buffer, at int, v T) error {
	n := sizeOf[T]()
	if at < 0 || at+n > len(b.buf) {
		return errs.New(errs.OutOfBounds, "PutTypedAt out of range")
	}
	encode(v, b.buf[at:at+n])
	return nil
}
