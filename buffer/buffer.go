// Package buffer implements the growable byte buffer every other package
// in this module reads and writes through: a single contiguous slice with
// a caller-visible cursor, amortized-doubling growth, and a LIFO stack of
// saved cursor positions.
//
// Nothing here relocates the backing slice out from under a caller that
// holds an absolute offset into it: grow only ever extends or reslices
// the same underlying array when it has room, and copies into a larger,
// newly allocated array when it doesn't. Callers that keep an offset across a Grow must still
// re-resolve it against Bytes(), since a reallocation changes the address
// the offset resolves against, not the offset itself.
package buffer

import "github.com/flashrecord/flashrecord/errs"

const defaultInitialCapacity = 64

// maxBufferSize caps how far GrowTo will extend a buffer. A grow past it
// fails with Capacity rather than OutOfBounds: the request is well-formed,
// the buffer just refuses to get that big (spec.md §4.9).
const maxBufferSize = 1 << 30

// Option configures a Buffer at construction, in the teacher's functional-
// options idiom (see segmentmanager.DiskSegmentManagerOption).
type Option func(*Buffer)

// WithInitialCapacity pre-sizes the buffer's backing array.
func WithInitialCapacity(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.buf = make([]byte, 0, n)
		}
	}
}

// Buffer is a growable byte buffer with a caller-visible cursor.
type Buffer struct {
	buf   []byte
	pos   int
	saved []int
}

// New returns an empty buffer ready for writing.
func New(opts ...Option) *Buffer {
	b := &Buffer{buf: make([]byte, 0, defaultInitialCapacity)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open wraps an existing byte slice as a buffer, cursor at offset 0. The
// slice is taken by reference, not copied.
func Open(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// Bytes returns the live backing slice. Callers must not retain it across
// a mutating call on b.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of bytes currently in the buffer.
func (b *Buffer) Len() int { return len(b.buf) }

// Tell returns the current cursor position.
func (b *Buffer) Tell() int { return b.pos }

// Seek moves the cursor to an absolute offset.
func (b *Buffer) Seek(abs int) error {
	if abs < 0 || abs > len(b.buf) {
		return errs.New(errs.OutOfBounds, "seek out of range")
	}
	b.pos = abs
	return nil
}

// SeekFromHere moves the cursor by delta relative to its current position.
func (b *Buffer) SeekFromHere(delta int) error {
	return b.Seek(b.pos + delta)
}

// SavePosition pushes the current cursor onto a LIFO stack.
func (b *Buffer) SavePosition() {
	b.saved = append(b.saved, b.pos)
}

// RestorePosition pops the most recently saved cursor and moves there. It
// returns Internal if the stack is empty; save/restore must nest.
func (b *Buffer) RestorePosition() error {
	if len(b.saved) == 0 {
		return errs.New(errs.Internal, "restore_position without matching save_position")
	}
	n := len(b.saved) - 1
	pos := b.saved[n]
	b.saved = b.saved[:n]
	return b.Seek(pos)
}

// ReadByte reads one byte at the cursor and advances it.
func (b *Buffer) ReadByte() (byte, error) {
	v, err := b.PeekByte()
	if err != nil {
		return 0, err
	}
	b.pos++
	return v, nil
}

// PeekByte reads one byte at the cursor without advancing it.
func (b *Buffer) PeekByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, errs.New(errs.OutOfBounds, "read past end of buffer")
	}
	return b.buf[b.pos], nil
}

// Skip advances the cursor by n bytes without reading them.
func (b *Buffer) Skip(n int) error {
	return b.Seek(b.pos + n)
}

// Peek returns a view of the next n bytes at the cursor without advancing.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n < 0 || b.pos+n > len(b.buf) {
		return nil, errs.New(errs.OutOfBounds, "peek past end of buffer")
	}
	return b.buf[b.pos : b.pos+n], nil
}

// Read returns a view of the next n bytes at the cursor and advances past them.
func (b *Buffer) Read(n int) ([]byte, error) {
	v, err := b.Peek(n)
	if err != nil {
		return nil, err
	}
	b.pos += n
	return v, nil
}

// WriteByte writes one byte at the cursor, growing the buffer if needed,
// and advances the cursor.
func (b *Buffer) WriteByte(v byte) error {
	return b.Write([]byte{v})
}

// Write writes data at the cursor, overwriting in place if the cursor is
// before the end of the buffer, or appending (after growing) if it is at
// or past the end. The cursor advances past the written bytes.
func (b *Buffer) Write(data []byte) error {
	end := b.pos + len(data)
	if end > len(b.buf) {
		if err := b.GrowTo(end); err != nil {
			return err
		}
	}
	copy(b.buf[b.pos:end], data)
	b.pos = end
	return nil
}

// Replace overwrites the oldLen bytes at offset `at` with newData, growing
// or shrinking the buffer as the length delta requires and shifting
// everything after the replaced span. It is the single primitive every
// variable-width rewrite in this module funnels through: varint.Update,
// field removal, field re-insertion, and update-in-place on a
// differently-sized payload all reduce to a Replace call.
//
// The buffer's own cursor is adjusted by the delta if it sits at or past
// `at+oldLen`, clamped to `at` if it falls inside the replaced span, and
// left alone if it precedes `at`. Replace returns the signed shift
// (len(newData) - oldLen) so callers can propagate it to any offsets of
// their own they're holding past `at`.
func (b *Buffer) Replace(at, oldLen int, newData []byte) (int, error) {
	if at < 0 || oldLen < 0 || at+oldLen > len(b.buf) {
		return 0, errs.New(errs.OutOfBounds, "replace out of range")
	}
	newLen := len(newData)
	delta := newLen - oldLen

	switch {
	case delta > 0:
		if err := b.GrowTo(len(b.buf) + delta); err != nil {
			return 0, err
		}
		copy(b.buf[at+newLen:], b.buf[at+oldLen:len(b.buf)-delta])
	case delta < 0:
		copy(b.buf[at+newLen:], b.buf[at+oldLen:])
		b.buf = b.buf[:len(b.buf)+delta]
	}
	copy(b.buf[at:at+newLen], newData)

	switch {
	case b.pos >= at+oldLen:
		b.pos += delta
	case b.pos > at:
		b.pos = at
	}
	return delta, nil
}

// InsertAt shifts the tail at offset `at` right by len(data) and writes
// data into the gap. It returns the shift amount applied to offsets at or
// after `at` (always +len(data)).
func (b *Buffer) InsertAt(at int, data []byte) (int, error) {
	if at < 0 || at > len(b.buf) {
		return 0, errs.New(errs.OutOfBounds, "insert out of range")
	}
	return b.Replace(at, 0, data)
}

// DeleteAt shifts the tail starting at `at+length` left by length, shrinking
// the buffer by length bytes. It returns the (negative) shift applied to
// offsets at or after `at`.
func (b *Buffer) DeleteAt(at, length int) (int, error) {
	if at < 0 || length < 0 || at+length > len(b.buf) {
		return 0, errs.New(errs.OutOfBounds, "delete out of range")
	}
	return b.Replace(at, length, nil)
}

// MoveWithin copies length bytes from src to dst inside the existing
// buffer without changing its length. Overlapping ranges are fine (copy
// has memmove semantics). The cursor is untouched.
func (b *Buffer) MoveWithin(src, dst, length int) error {
	if src < 0 || dst < 0 || length < 0 || src+length > len(b.buf) || dst+length > len(b.buf) {
		return errs.New(errs.OutOfBounds, "move out of range")
	}
	copy(b.buf[dst:dst+length], b.buf[src:src+length])
	return nil
}

// PutAt overwrites len(data) bytes at an absolute offset without touching
// the cursor or the buffer's length.
func (b *Buffer) PutAt(at int, data []byte) error {
	if at < 0 || at+len(data) > len(b.buf) {
		return errs.New(errs.OutOfBounds, "put out of range")
	}
	copy(b.buf[at:], data)
	return nil
}

// FillZero zeroes length bytes at an absolute offset without touching the
// cursor.
func (b *Buffer) FillZero(at, length int) error {
	if at < 0 || length < 0 || at+length > len(b.buf) {
		return errs.New(errs.OutOfBounds, "fill out of range")
	}
	for i := at; i < at+length; i++ {
		b.buf[i] = 0
	}
	return nil
}

// GrowTo ensures the buffer's length is at least n bytes, amortized-doubling
// the backing array's capacity as needed. Existing bytes are preserved;
// newly exposed bytes are zeroed.
func (b *Buffer) GrowTo(n int) error {
	if n <= len(b.buf) {
		return nil
	}
	if n > maxBufferSize {
		return errs.New(errs.Capacity, "grow exceeds maximum buffer size")
	}
	if n > cap(b.buf) {
		newCap := cap(b.buf)
		if newCap == 0 {
			newCap = defaultInitialCapacity
		}
		for newCap < n {
			newCap *= 2
		}
		grown := make([]byte, len(b.buf), newCap)
		copy(grown, b.buf)
		b.buf = grown
	}
	b.buf = b.buf[:n]
	return nil
}

// ShrinkToFit trims the backing array's capacity down to its current
// length.
func (b *Buffer) ShrinkToFit() {
	if cap(b.buf) == len(b.buf) {
		return
	}
	trimmed := make([]byte, len(b.buf))
	copy(trimmed, b.buf)
	b.buf = trimmed
}
