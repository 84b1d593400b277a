package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// maxCursorHistory bounds the bread-crumb stack a cursor keeps of offsets
// it has visited, per spec.md §4.7. Exceeding it is a caller error, not a
// corrupt-data error.
const maxCursorHistory = 256

// Cursor is a uniform field-access abstraction over an array, object, or
// column container (spec.md §4.7). A cursor starts positioned before the
// first element; Next advances it onto the next field.
//
// Once a cursor call returns an error, the cursor is latched into that
// error state: every subsequent call returns the same error, and Next no
// longer advances. Callers must construct a fresh cursor to recover.
type Cursor struct {
	buf     *buffer.Buffer
	header  containerHeader
	index   int // index of the field the cursor currently sits on, -1 before first Next
	fieldAt int // offset of the current field's marker (array/object) or element (column)
	fieldTo int // offset just past the current field's payload
	keyAt   int // object only: offset of the current pair's key length varint
	keyLen  int // object only: length of the current pair's key bytes

	err    error
	child  *Cursor // nested cursor opened via AsArray/AsObject/AsColumn, auto-closed on the next Next
	parent *Cursor // cursor this one was descended from, nil at the root

	history []int
}

// applyChildDelta widens this cursor's container capacity by a byte delta
// that landed at editAt inside the container, propagating the compounded
// delta up the descent chain. The cursor's current-field span only grows
// when the edit sits inside it (a sibling inserted past fieldTo leaves it
// alone). It returns the total shift the capacity rewrites applied at
// positions past this container's header.
func (c *Cursor) applyChildDelta(editAt, delta int) (int, error) {
	if editAt < c.fieldTo {
		c.fieldTo += delta
	}
	newCap := c.header.capacity + delta
	s, err := varint.Update(c.buf, c.header.capOffset, uint64(newCap))
	if err != nil {
		return 0, err
	}
	c.header.capacity = newCap
	c.header.elemsOffset += s
	c.fieldAt += s
	c.fieldTo += s
	c.keyAt += s
	total := s
	if c.parent != nil {
		ps, err := c.parent.applyChildDelta(editAt, delta+s)
		if err != nil {
			return total, err
		}
		// Enclosing capacity varints sit before this container, so their
		// widening moves every offset this cursor holds.
		c.header.shift(ps)
		c.fieldAt += ps
		c.fieldTo += ps
		c.keyAt += ps
		total += ps
	}
	return total, nil
}

// propagate reports the byte growth since lenBefore up the descent chain
// and absorbs any shift the chain's capacity rewrites caused on this
// cursor's own offsets.
func (c *Cursor) propagate(lenBefore int) (int, error) {
	delta := c.buf.Len() - lenBefore
	if c.parent == nil || delta == 0 {
		return 0, nil
	}
	s, err := c.parent.applyChildDelta(c.header.headerOffset, delta)
	if err != nil {
		return 0, err
	}
	c.header.shift(s)
	c.fieldAt += s
	c.fieldTo += s
	c.keyAt += s
	return s, nil
}

// newCursorAt opens a cursor over the container whose begin-marker sits at
// `at`.
func newCursorAt(buf *buffer.Buffer, at int) (*Cursor, error) {
	h, err := readContainerHeader(buf, at)
	if err != nil {
		return nil, err
	}
	return &Cursor{buf: buf, header: h, index: -1}, nil
}

// OpenRoot opens a cursor over the record's root array.
func (r *Record) OpenRoot() (*Cursor, error) {
	off, err := r.RootOffset()
	if err != nil {
		return nil, err
	}
	return newCursorAt(r.buf, off)
}

// OpenContainerAt opens a cursor over the container whose begin-marker
// sits at an already-known offset `at`. A path index node that is itself
// a container (spec.md §4.12) stores exactly this offset, letting a bound
// Lookup descend straight to it instead of walking Next() from an
// ancestor cursor.
func (r *Record) OpenContainerAt(at int) (*Cursor, error) {
	return newCursorAt(r.buf, at)
}

// OpenFieldAt opens a single-field pseudo-cursor pre-positioned on the
// scalar field at `at`, so a caller can use the As*/ValueIsNull accessors
// directly without walking Next() from the enclosing container's start.
// Pass colMarker/colWidth non-zero only for a column element read via a
// path-index ColumnIndex leaf node (whose offset points straight at the
// packed value, with no marker byte of its own); pass 0/0 for every other
// field. The returned cursor must not be advanced with Next.
func (r *Record) OpenFieldAt(at int, colMarker types.Marker, colWidth int) (*Cursor, error) {
	return newFieldCursor(r.buf, at, colMarker, colWidth)
}

// newFieldCursor builds the single-field pseudo-cursor OpenFieldAt
// returns: a one-element "container" whose header is only ever consulted
// by the read accessors (FieldType, valueOffset, readScalar, As*), never
// by Next.
func newFieldCursor(buf *buffer.Buffer, at int, colMarker types.Marker, colWidth int) (*Cursor, error) {
	if colMarker != 0 {
		return &Cursor{
			buf:   buf,
			index: 0,
			header: containerHeader{
				kind:        types.KindColumn,
				beginMarker: colMarker,
				colWidth:    colWidth,
				count:       1,
			},
			fieldAt: at,
			fieldTo: at + colWidth,
		}, nil
	}
	end, err := valueByteLength(buf, at)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		buf:     buf,
		index:   0,
		header:  containerHeader{kind: types.KindScalar, count: 1},
		fieldAt: at,
		fieldTo: at + end,
	}, nil
}

// Err returns the cursor's latched error, if any.
func (c *Cursor) Err() error { return c.err }

// fail latches the cursor into an error state and returns it.
func (c *Cursor) fail(err error) error {
	c.err = err
	return err
}

// closeChild auto-closes any nested cursor opened by a previous AsArray/
// AsObject/AsColumn call (spec.md §4.7: nested cursors close when the
// parent advances).
func (c *Cursor) closeChild() {
	c.child = nil
}

// Next advances the cursor onto the next field, or returns errs.NotFound
// once the container is exhausted. Calling Next after it has already
// returned errs.NotFound re-returns the same error.
func (c *Cursor) Next() error {
	if c.err != nil {
		return c.err
	}
	c.closeChild()

	nextIndex := c.index + 1
	if nextIndex >= c.header.count {
		return c.fail(errs.New(errs.NotFound, "cursor exhausted"))
	}

	var at int
	if c.index < 0 {
		at = c.header.elemsOffset
	} else {
		at = c.fieldTo
	}

	if c.header.kind == types.KindColumn {
		c.fieldAt = at
		c.fieldTo = at + c.header.colWidth
	} else {
		if c.header.kind == types.KindObject {
			c.keyAt = at
			if err := c.buf.Seek(at); err != nil {
				return c.fail(err)
			}
			klen, err := varint.Read(c.buf)
			if err != nil {
				return c.fail(err)
			}
			c.keyLen = int(klen)
			at = c.buf.Tell() + int(klen)
		}
		c.fieldAt = at
		end, err := valueByteLength(c.buf, at)
		if err != nil {
			return c.fail(err)
		}
		c.fieldTo = at + end
	}

	c.index = nextIndex
	return nil
}

// FieldType returns the type marker of the field the cursor sits on.
// Column containers report their pre-committed element marker without
// reading the slot (so a null sentinel still reports the column's type).
func (c *Cursor) FieldType() (types.Marker, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.index < 0 {
		return 0, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return c.header.beginMarker, nil
	}
	saved := c.buf.Tell()
	defer func() { _ = c.buf.Seek(saved) }()
	if err := c.buf.Seek(c.fieldAt); err != nil {
		return 0, c.fail(err)
	}
	mb, err := c.buf.PeekByte()
	if err != nil {
		return 0, c.fail(err)
	}
	return types.Marker(mb), nil
}

// Tell returns the absolute offset of the current field.
func (c *Cursor) Tell() (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.index < 0 {
		return 0, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	return c.fieldAt, nil
}

// Index reports which element/pair index the cursor currently sits on.
func (c *Cursor) Index() int { return c.index }

// Len reports the container's element count.
func (c *Cursor) Len() int { return c.header.count }

// KeyName returns the current pair's key (object containers only).
func (c *Cursor) KeyName() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.header.kind != types.KindObject {
		return "", c.fail(errs.New(errs.TypeMismatch, "cursor is not over an object"))
	}
	if c.index < 0 {
		return "", c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	saved := c.buf.Tell()
	defer func() { _ = c.buf.Seek(saved) }()
	if err := c.buf.Seek(c.keyAt); err != nil {
		return "", c.fail(err)
	}
	if _, err := varint.Read(c.buf); err != nil {
		return "", c.fail(err)
	}
	raw, err := c.buf.Read(c.keyLen)
	if err != nil {
		return "", c.fail(err)
	}
	return string(raw), nil
}

// KeyOffset returns the absolute offset of the current pair's key-length
// varint (object containers only). Exported for the path index builder,
// which stores it on Prop nodes.
func (c *Cursor) KeyOffset() (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.header.kind != types.KindObject {
		return 0, c.fail(errs.New(errs.TypeMismatch, "cursor is not over an object"))
	}
	if c.index < 0 {
		return 0, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	return c.keyAt, nil
}

// valueOffset returns the offset of the scalar payload (right after the
// marker byte) for the current non-column field.
func (c *Cursor) valueOffset() (int, error) {
	if c.header.kind == types.KindColumn {
		return c.fieldAt, nil
	}
	return c.fieldAt + 1, nil
}

func readScalar[T buffer.Scalar](c *Cursor, want types.Marker) (T, error) {
	var zero T
	if c.err != nil {
		return zero, c.err
	}
	if c.index < 0 {
		return zero, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind != types.KindColumn {
		mb, err := c.FieldType()
		if err != nil {
			return zero, err
		}
		if mb != want {
			return zero, c.fail(errs.New(errs.TypeMismatch, "field is not "+want.String()))
		}
	} else if c.header.beginMarker != want {
		// Typed accessors pass the scalar marker (AsU8 passes U8); accept
		// it when it matches the column's element kind.
		sm, ok := types.ColumnScalarMarker(c.header.beginMarker)
		if !ok || sm != want {
			return zero, c.fail(errs.New(errs.TypeMismatch, "column is not "+want.String()))
		}
	}
	off, err := c.valueOffset()
	if err != nil {
		return zero, err
	}
	saved := c.buf.Tell()
	defer func() { _ = c.buf.Seek(saved) }()
	if err := c.buf.Seek(off); err != nil {
		return zero, c.fail(err)
	}
	v, err := buffer.PeekTyped[T](c.buf)
	if err != nil {
		return zero, c.fail(err)
	}
	return v, nil
}

// AsU8/AsU16/AsU32/AsU64/AsI8/AsI16/AsI32/AsI64/AsFloat/AsBool decode the
// current field as the named scalar type, failing with TypeMismatch if the
// field (or, for a column cursor, the column itself) is a different type.
func (c *Cursor) AsU8() (uint8, error)   { return readScalar[uint8](c, types.U8) }
func (c *Cursor) AsU16() (uint16, error) { return readScalar[uint16](c, types.U16) }
func (c *Cursor) AsU32() (uint32, error) { return readScalar[uint32](c, types.U32) }
func (c *Cursor) AsU64() (uint64, error) { return readScalar[uint64](c, types.U64) }
func (c *Cursor) AsI8() (int8, error)    { return readScalar[int8](c, types.I8) }
func (c *Cursor) AsI16() (int16, error)  { return readScalar[int16](c, types.I16) }
func (c *Cursor) AsI32() (int32, error)  { return readScalar[int32](c, types.I32) }
func (c *Cursor) AsI64() (int64, error)  { return readScalar[int64](c, types.I64) }
func (c *Cursor) AsFloat() (float32, error) {
	return readScalar[float32](c, types.Float)
}

// AsBool decodes a column-bool element or a scalar True/False marker.
func (c *Cursor) AsBool() (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.index < 0 {
		return false, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		if c.header.beginMarker != types.ColumnBoolBegin {
			return false, c.fail(errs.New(errs.TypeMismatch, "column is not bool"))
		}
		b, err := readScalar[uint8](c, types.ColumnBoolBegin)
		if err != nil {
			return false, err
		}
		return b == types.BoolTrue, nil
	}
	mb, err := c.FieldType()
	if err != nil {
		return false, err
	}
	switch mb {
	case types.True:
		return true, nil
	case types.False:
		return false, nil
	default:
		return false, c.fail(errs.New(errs.TypeMismatch, "field is not a bool"))
	}
}

// ValueIsNull reports whether the current field is the scalar null marker,
// or (for a column cursor) the column's null sentinel.
func (c *Cursor) ValueIsNull() (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.index < 0 {
		return false, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return c.columnSlotIsNull()
	}
	mb, err := c.FieldType()
	if err != nil {
		return false, err
	}
	return mb == types.Null, nil
}

func (c *Cursor) columnSlotIsNull() (bool, error) {
	switch c.header.beginMarker {
	case types.ColumnU8Begin, types.ColumnI8Begin:
		v, err := readScalar[uint8](c, c.header.beginMarker)
		return err == nil && v == types.NullSentinel8, err
	case types.ColumnU16Begin, types.ColumnI16Begin:
		v, err := readScalar[uint16](c, c.header.beginMarker)
		return err == nil && v == types.NullSentinel16, err
	case types.ColumnU32Begin, types.ColumnI32Begin:
		v, err := readScalar[uint32](c, c.header.beginMarker)
		return err == nil && v == types.NullSentinel32, err
	case types.ColumnU64Begin, types.ColumnI64Begin:
		v, err := readScalar[uint64](c, c.header.beginMarker)
		return err == nil && v == types.NullSentinel64, err
	case types.ColumnFloatBegin:
		v, err := readScalar[uint32](c, types.ColumnFloatBegin)
		return err == nil && v == types.NullSentinel32, err
	case types.ColumnBoolBegin:
		v, err := readScalar[uint8](c, types.ColumnBoolBegin)
		return err == nil && v == types.BoolNull, err
	default:
		return false, c.fail(errs.New(errs.Internal, "unrecognized column kind"))
	}
}

// AsString decodes the current field as a string.
func (c *Cursor) AsString() (string, error) {
	raw, _, err := c.asVariableLength(types.String)
	return string(raw), err
}

// AsBinaryStandard decodes the current field as MIME-tagged binary,
// returning the payload and the MIME tag id.
func (c *Cursor) AsBinaryStandard() ([]byte, uint64, error) {
	raw, tag, err := c.asVariableLength(types.Binary)
	if err != nil {
		return nil, 0, err
	}
	return raw, tag.(uint64), nil
}

// AsBinaryUser decodes the current field as user-tagged binary, returning
// the payload and the user tag string.
func (c *Cursor) AsBinaryUser() ([]byte, string, error) {
	raw, tag, err := c.asVariableLength(types.BinaryUser)
	if err != nil {
		return nil, "", err
	}
	return raw, tag.(string), nil
}

// asVariableLength implements the shared decode path for string/binary
// fields. tag is nil for String, a uint64 MIME id for Binary, and a string
// user-tag for BinaryUser.
func (c *Cursor) asVariableLength(want types.Marker) ([]byte, interface{}, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	if c.index < 0 {
		return nil, nil, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	mb, err := c.FieldType()
	if err != nil {
		return nil, nil, err
	}
	if mb != want {
		return nil, nil, c.fail(errs.New(errs.TypeMismatch, "field is not "+want.String()))
	}
	off, err := c.valueOffset()
	if err != nil {
		return nil, nil, err
	}
	saved := c.buf.Tell()
	defer func() { _ = c.buf.Seek(saved) }()
	if err := c.buf.Seek(off); err != nil {
		return nil, nil, c.fail(err)
	}

	switch want {
	case types.String:
		l, err := varint.Read(c.buf)
		if err != nil {
			return nil, nil, c.fail(err)
		}
		raw, err := c.buf.Read(int(l))
		if err != nil {
			return nil, nil, c.fail(err)
		}
		return raw, nil, nil
	case types.Binary:
		mimeTag, err := varint.Read(c.buf)
		if err != nil {
			return nil, nil, c.fail(err)
		}
		l, err := varint.Read(c.buf)
		if err != nil {
			return nil, nil, c.fail(err)
		}
		raw, err := c.buf.Read(int(l))
		if err != nil {
			return nil, nil, c.fail(err)
		}
		return raw, mimeTag, nil
	case types.BinaryUser:
		tagLen, err := varint.Read(c.buf)
		if err != nil {
			return nil, nil, c.fail(err)
		}
		tagRaw, err := c.buf.Read(int(tagLen))
		if err != nil {
			return nil, nil, c.fail(err)
		}
		l, err := varint.Read(c.buf)
		if err != nil {
			return nil, nil, c.fail(err)
		}
		raw, err := c.buf.Read(int(l))
		if err != nil {
			return nil, nil, c.fail(err)
		}
		return raw, string(tagRaw), nil
	default:
		return nil, nil, c.fail(errs.New(errs.Internal, "not a variable-length marker"))
	}
}

// openNested opens a cursor over the current field, expected to be
// `want`'s kind, and tracks it as this cursor's child so it auto-closes on
// the parent's next Next call.
func (c *Cursor) openNested(want types.Kind) (*Cursor, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.index < 0 {
		return nil, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return nil, c.fail(errs.New(errs.TypeMismatch, "column elements are not containers"))
	}
	mb, err := c.FieldType()
	if err != nil {
		return nil, err
	}
	if !types.IsContainer(mb) || types.KindOf(mb) != want {
		return nil, c.fail(errs.New(errs.TypeMismatch, "field is not the requested container kind"))
	}
	child, err := newCursorAt(c.buf, c.fieldAt)
	if err != nil {
		return nil, c.fail(err)
	}
	child.parent = c
	c.child = child
	return child, nil
}

// AsArray opens a nested cursor over the current field, which must be an
// array (or one of its derived kinds: sorted-set, sorted-multiset,
// unsorted-multiset).
func (c *Cursor) AsArray() (*Cursor, error) { return c.openNested(types.KindArray) }

// AsObject opens a nested cursor over the current field, which must be an object.
func (c *Cursor) AsObject() (*Cursor, error) { return c.openNested(types.KindObject) }

// AsColumn opens a nested cursor over the current field, which must be a column.
func (c *Cursor) AsColumn() (*Cursor, error) { return c.openNested(types.KindColumn) }

// PushHistory records the cursor's current field offset so a later
// PopHistory can return to it. The stack is bounded; exceeding it is a
// caller error (spec.md §4.7).
func (c *Cursor) PushHistory() error {
	if len(c.history) >= maxCursorHistory {
		return errs.New(errs.Capacity, "cursor history exceeds bound")
	}
	c.history = append(c.history, c.fieldAt)
	return nil
}

// PopHistory restores the cursor to the offset most recently pushed.
func (c *Cursor) PopHistory() error {
	if len(c.history) == 0 {
		return errs.New(errs.Internal, "pop_history without matching push_history")
	}
	n := len(c.history) - 1
	at := c.history[n]
	c.history = c.history[:n]

	end, err := valueByteLength(c.buf, at)
	if err != nil {
		return c.fail(err)
	}
	c.fieldAt = at
	c.fieldTo = at + end
	return nil
}

// Close releases the cursor's nested child, if any. Cursors hold no other
// resources; Close exists for symmetry with PushHistory/PopHistory nesting
// and so callers can defer it uniformly.
func (c *Cursor) Close() {
	c.closeChild()
}

// ValuesInfo reports the container kind and element count the cursor was
// opened over, without requiring a prior Next call.
func (c *Cursor) ValuesInfo() (types.Kind, int) {
	return c.header.kind, c.header.count
}

// ContainerMarker returns the begin-marker of the container this cursor
// iterates, without requiring a prior Next call. Exported for the path
// index builder, which records a container node's own field type.
func (c *Cursor) ContainerMarker() types.Marker { return c.header.beginMarker }

// ColumnValues reads every element of a column cursor into a freshly
// allocated slice, in one pass, for bulk access (spec.md §4.7).
func ColumnValues[T buffer.Scalar](c *Cursor) ([]T, error) {
	if c.header.kind != types.KindColumn {
		return nil, errs.New(errs.TypeMismatch, "cursor is not over a column")
	}
	out := make([]T, 0, c.header.count)
	fresh, err := newCursorAt(c.buf, c.header.headerOffset)
	if err != nil {
		return nil, err
	}
	for {
		if err := fresh.Next(); err != nil {
			if errs.Is(err, errs.NotFound) {
				break
			}
			return nil, err
		}
		off, err := fresh.valueOffset()
		if err != nil {
			return nil, err
		}
		saved := fresh.buf.Tell()
		if err := fresh.buf.Seek(off); err != nil {
			return nil, err
		}
		v, err := buffer.PeekTyped[T](fresh.buf)
		if err != nil {
			return nil, err
		}
		_ = fresh.buf.Seek(saved)
		out = append(out, v)
	}
	return out, nil
}
