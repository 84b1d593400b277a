// Package varint implements the unsigned LEB128-style variable-length
// integer codec used throughout the record format for element counts,
// capacity reservations, and length prefixes (spec.md §4.2).
//
// Encoding: seven value bits per byte, low-to-high, with the MSB of each
// byte set on every byte except the last (continuation bit).
package varint

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
)

// maxBytes bounds a 64-bit varint: ceil(64/7) = 10 bytes.
const maxBytes = 10

// Size returns the number of bytes v encodes to.
func Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendEncode appends the LEB128 encoding of v to dst and returns the
// extended slice.
func AppendEncode(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// DecodeBytes decodes a varint starting at the front of data, returning the
// value and the number of bytes it occupied.
func DecodeBytes(data []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(data) && i < maxBytes; i++ {
		b := data[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errs.New(errs.Corrupted, "varint truncated or overlong")
}

// Write encodes v and writes it at the buffer's cursor, advancing past it.
func Write(b *buffer.Buffer, v uint64) error {
	return b.Write(AppendEncode(nil, v))
}

// Peek decodes the varint at the cursor without advancing it, returning
// the value and its encoded byte length.
func Peek(b *buffer.Buffer) (uint64, int, error) {
	raw, err := b.Peek(maxBytes)
	if err != nil {
		// fewer than maxBytes remain; fall back to whatever's left.
		raw, err = b.Peek(b.Len() - b.Tell())
		if err != nil {
			return 0, 0, err
		}
	}
	return DecodeBytes(raw)
}

// Read decodes the varint at the cursor and advances past it.
func Read(b *buffer.Buffer) (uint64, error) {
	v, n, err := Peek(b)
	if err != nil {
		return 0, err
	}
	if err := b.Skip(n); err != nil {
		return 0, err
	}
	return v, nil
}

// Update rewrites the varint at absolute offset `at` to encode newValue,
// shifting the buffer tail if the new encoding occupies a different number
// of bytes than the old one. It returns the signed byte-length delta
// (spec.md §4.2) so the caller can fix up its own saved offsets past `at`.
//
// Updating a varint to the same value is a no-op shift of 0 bytes
// (spec.md §8 property 7): Replace's delta==0 path leaves every byte past
// `at` untouched.
func Update(b *buffer.Buffer, at int, newValue uint64) (int, error) {
	savedPos := b.Tell()
	if err := b.Seek(at); err != nil {
		return 0, err
	}
	_, oldLen, err := Peek(b)
	if err != nil {
		_ = b.Seek(savedPos)
		return 0, err
	}
	newEnc := AppendEncode(nil, newValue)
	delta, err := b.Replace(at, oldLen, newEnc)
	if err != nil {
		_ = b.Seek(savedPos)
		return 0, err
	}
	switch {
	case savedPos >= at+oldLen:
		savedPos += delta
	case savedPos > at:
		savedPos = at + len(newEnc)
	}
	_ = b.Seek(savedPos)
	return delta, nil
}
