// Package record implements the on-buffer record layout of spec.md §3-§4:
// the key and commit-hash prologue, container framing, scalar codecs,
// read/write cursors, and the insertion and update/remove engines that
// operate on them. A Record owns its buffer; every Cursor and Builder
// borrows it for the scope described in spec.md §3.4.
package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// Key identifies a record, per spec.md §3.2/§4.4. Only the field matching
// Kind is meaningful.
type Key struct {
	Kind     types.KeyKind
	Unsigned uint64 // KeyAutoUnsigned, KeyUserUnsigned
	Signed   int64  // KeyUserSigned
	Str      string // KeyUserString
}

// Record is a single well-formed buffer: key block, 8-byte commit hash,
// root array. It owns its buffer; see spec.md §3.4 for the borrowing rules
// that govern Cursor and Builder.
type Record struct {
	buf *buffer.Buffer
}

// New creates an empty record (an empty root array) carrying key.
func New(key Key) (*Record, error) {
	buf := buffer.New()
	if err := encodeKey(buf, key); err != nil {
		return nil, err
	}
	if err := buffer.WriteTyped[uint64](buf, 0); err != nil { // commit hash placeholder
		return nil, err
	}
	if err := writeEmptyContainer(buf, types.ArrayBegin); err != nil {
		return nil, err
	}
	return &Record{buf: buf}, nil
}

// Open wraps raw bytes as a record without validating them; use Validate
// to check well-formedness (spec.md §3.3).
func Open(data []byte) *Record {
	return &Record{buf: buffer.Open(data)}
}

// Clone duplicates the record's buffer into a new, independent Record.
// Used by the revision controller to edit a copy (spec.md §4.10).
func (r *Record) Clone() *Record {
	src := r.buf.Bytes()
	dup := make([]byte, len(src))
	copy(dup, src)
	return &Record{buf: buffer.Open(dup)}
}

// Buffer exposes the underlying buffer for lower-level access (cursors,
// the insertion/update engine, the path index builder).
func (r *Record) Buffer() *buffer.Buffer { return r.buf }

// Bytes returns the record's raw wire bytes.
func (r *Record) Bytes() []byte { return r.buf.Bytes() }

// Key decodes the key block at offset 0.
func (r *Record) Key() (Key, error) {
	k, _, err := decodeKey(r.buf, 0)
	return k, err
}

// commitHashOffset returns the offset of the 8-byte commit hash field,
// which immediately follows the key payload.
func (r *Record) commitHashOffset() (int, error) {
	_, end, err := decodeKey(r.buf, 0)
	return end, err
}

// CommitHash returns the record's 64-bit commit hash.
func (r *Record) CommitHash() (uint64, error) {
	off, err := r.commitHashOffset()
	if err != nil {
		return 0, err
	}
	saved := r.buf.Tell()
	defer func() { _ = r.buf.Seek(saved) }()
	if err := r.buf.Seek(off); err != nil {
		return 0, err
	}
	return buffer.ReadTyped[uint64](r.buf)
}

// SetCommitHash overwrites the commit hash in place (fixed 8-byte field;
// no varint shift is ever needed here).
func (r *Record) SetCommitHash(h uint64) error {
	off, err := r.commitHashOffset()
	if err != nil {
		return err
	}
	return buffer.PutTypedAt[uint64](r.buf, off, h)
}

// RootOffset returns the offset of the root array's begin marker.
func (r *Record) RootOffset() (int, error) {
	off, err := r.commitHashOffset()
	if err != nil {
		return 0, err
	}
	return off + 8, nil
}

// EncodeKey writes a key block to buf at its current cursor. Exported for
// the path index builder, which serializes its own copy of the key block
// ahead of the node tree.
func EncodeKey(buf *buffer.Buffer, key Key) error { return encodeKey(buf, key) }

// DecodeKeyAt decodes a key block starting at `at`, returning the key and
// the offset immediately following it. Exported for the path index
// builder.
func DecodeKeyAt(buf *buffer.Buffer, at int) (Key, int, error) { return decodeKey(buf, at) }

// encodeKey writes a key block at the buffer's current cursor (expected
// to be offset 0 for a fresh record).
func encodeKey(buf *buffer.Buffer, key Key) error {
	if err := buf.WriteByte(byte(key.Kind)); err != nil {
		return err
	}
	switch key.Kind {
	case types.KeyNone:
		return nil
	case types.KeyAutoUnsigned, types.KeyUserUnsigned:
		return buffer.WriteTyped[uint64](buf, key.Unsigned)
	case types.KeyUserSigned:
		return buffer.WriteTyped[int64](buf, key.Signed)
	case types.KeyUserString:
		raw := []byte(key.Str)
		if err := varint.Write(buf, uint64(len(raw))); err != nil {
			return err
		}
		return buf.Write(raw)
	default:
		return errs.New(errs.Corrupted, "unknown key kind")
	}
}

// decodeKey reads a key block starting at `at`, returning the key and the
// offset immediately following the key payload (where the commit hash
// begins).
func decodeKey(buf *buffer.Buffer, at int) (Key, int, error) {
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()

	if err := buf.Seek(at); err != nil {
		return Key{}, 0, err
	}
	kb, err := buf.ReadByte()
	if err != nil {
		return Key{}, 0, err
	}
	kind := types.KeyKind(kb)

	var key Key
	key.Kind = kind

	switch kind {
	case types.KeyNone:
	case types.KeyAutoUnsigned, types.KeyUserUnsigned:
		v, err := buffer.ReadTyped[uint64](buf)
		if err != nil {
			return Key{}, 0, err
		}
		key.Unsigned = v
	case types.KeyUserSigned:
		v, err := buffer.ReadTyped[int64](buf)
		if err != nil {
			return Key{}, 0, err
		}
		key.Signed = v
	case types.KeyUserString:
		l, err := varint.Read(buf)
		if err != nil {
			return Key{}, 0, err
		}
		raw, err := buf.Read(int(l))
		if err != nil {
			return Key{}, 0, err
		}
		key.Str = string(raw)
	default:
		return Key{}, 0, errs.New(errs.Corrupted, "unrecognized key kind marker")
	}
	return key, buf.Tell(), nil
}

// UpdateStringKey rewrites a user-string key's value in place, the only
// key mutation supported (spec.md §4.4). The length prefix goes through
// the varint-update primitive, so a key whose new length needs a wider or
// narrower varint shifts everything after it, commit hash and root array
// included.
func (r *Record) UpdateStringKey(s string) error {
	key, _, err := decodeKey(r.buf, 0)
	if err != nil {
		return err
	}
	if key.Kind != types.KeyUserString {
		return errs.New(errs.TypeMismatch, "record key is not a user string")
	}
	raw := []byte(s)
	if _, err := varint.Update(r.buf, 1, uint64(len(raw))); err != nil {
		return err
	}
	strStart := 1 + varint.Size(uint64(len(raw)))
	_, err = r.buf.Replace(strStart, len(key.Str), raw)
	return err
}

// Equal reports whether two keys have the same kind and value.
func (k Key) Equal(other Key) bool {
	if k.Kind != other.Kind {
		return false
	}
	switch k.Kind {
	case types.KeyNone:
		return true
	case types.KeyAutoUnsigned, types.KeyUserUnsigned:
		return k.Unsigned == other.Unsigned
	case types.KeyUserSigned:
		return k.Signed == other.Signed
	case types.KeyUserString:
		return k.Str == other.Str
	default:
		return false
	}
}
