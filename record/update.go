package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
)

// SetAt overwrites the field the cursor currently sits on with a new
// scalar value of type T. If the field already carries marker `want`, it
// rewrites the payload in place (same-type fast path, no tail shift). If
// the field is a different marker, it removes the old field and
// re-inserts the new one at the same slot (spec.md §4.9).
func SetAt[T buffer.Scalar](c *Cursor, want types.Marker, v T) error {
	if c.err != nil {
		return c.err
	}
	if c.index < 0 {
		return c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return setColumnSlot(c, want, v)
	}

	mb, err := c.FieldType()
	if err != nil {
		return err
	}
	if mb == want {
		off, err := c.valueOffset()
		if err != nil {
			return err
		}
		return buffer.PutTypedAt[T](c.buf, off, v)
	}

	field := encodeScalarField(want, v)
	return c.replaceField(field)
}

// setColumnSlot overwrites a single column element in place; columns are
// fixed-width, so this is always an in-place PutTypedAt and never a
// remove+reinsert, regardless of `want` versus the column's own marker
// (which must already match, or the column itself has the wrong type).
func setColumnSlot[T buffer.Scalar](c *Cursor, want types.Marker, v T) error {
	if c.header.beginMarker != want {
		sm, ok := types.ColumnScalarMarker(c.header.beginMarker)
		if !ok || sm != want {
			return c.fail(errs.New(errs.TypeMismatch, "column is not "+want.String()))
		}
	}
	return buffer.PutTypedAt[T](c.buf, c.fieldAt, v)
}

// SetBool overwrites the current field with a scalar true/false, or a
// column-bool element.
func SetBool(c *Cursor, v bool) error {
	if c.err != nil {
		return c.err
	}
	if c.index < 0 {
		return c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		raw := uint8(types.BoolFalse)
		if v {
			raw = types.BoolTrue
		}
		return setColumnSlot(c, types.ColumnBoolBegin, raw)
	}
	want := types.False
	if v {
		want = types.True
	}
	mb, err := c.FieldType()
	if err != nil {
		return err
	}
	if mb == want {
		return nil // same boolean value already in place, no wire change
	}
	return c.replaceField([]byte{byte(want)})
}

// SetNull overwrites the current field with the scalar null marker, or
// the column's null sentinel.
func (c *Cursor) SetNull() error {
	if c.err != nil {
		return c.err
	}
	if c.index < 0 {
		return c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return c.nullifyColumnSlot()
	}
	mb, err := c.FieldType()
	if err != nil {
		return err
	}
	if mb == types.Null {
		return nil
	}
	return c.replaceField([]byte{byte(types.Null)})
}

func (c *Cursor) nullifyColumnSlot() error {
	switch c.header.beginMarker {
	case types.ColumnU8Begin, types.ColumnI8Begin:
		return buffer.PutTypedAt[uint8](c.buf, c.fieldAt, types.NullSentinel8)
	case types.ColumnU16Begin, types.ColumnI16Begin:
		return buffer.PutTypedAt[uint16](c.buf, c.fieldAt, types.NullSentinel16)
	case types.ColumnU32Begin, types.ColumnI32Begin:
		return buffer.PutTypedAt[uint32](c.buf, c.fieldAt, types.NullSentinel32)
	case types.ColumnU64Begin, types.ColumnI64Begin:
		return buffer.PutTypedAt[uint64](c.buf, c.fieldAt, types.NullSentinel64)
	case types.ColumnFloatBegin:
		return buffer.PutTypedAt[uint32](c.buf, c.fieldAt, types.NullSentinel32)
	case types.ColumnBoolBegin:
		return buffer.PutTypedAt[uint8](c.buf, c.fieldAt, types.BoolNull)
	default:
		return c.fail(errs.New(errs.Internal, "unrecognized column kind"))
	}
}

// SetString overwrites the current field with a string value. A string is
// variable-length, so this always goes through replaceField even when the
// field was already a string; the replacement length rarely matches the
// old one exactly.
func (c *Cursor) SetString(s string) error {
	if c.err != nil {
		return c.err
	}
	if c.header.kind == types.KindColumn {
		return c.fail(errs.New(errs.TypeMismatch, "columns hold fixed-width scalars only"))
	}
	return c.replaceField(encodeStringField(s))
}

// replaceField swaps the field the cursor sits on for newField's bytes
// and keeps the cursor positioned on the (possibly resized) field it just
// wrote (spec.md §4.9: a type-mismatched Set is a remove followed by a
// re-insert at the same slot). A growing replacement consumes the
// container's reserved slack when it covers the delta and widens the
// region when it doesn't; a shrinking one slides the later elements left
// and leaves the freed bytes as slack.
func (c *Cursor) replaceField(newField []byte) error {
	if c.header.kind == types.KindScalar {
		// single-field pseudo-cursor (OpenFieldAt): no enclosing framing to
		// maintain, so resizing writes are off the table
		return c.fail(errs.New(errs.InvalidCursor, "field cursor does not support resizing writes"))
	}
	lenBefore := c.buf.Len()
	oldLen := c.fieldTo - c.fieldAt
	delta := len(newField) - oldLen

	occupied, err := occupiedBytes(c.buf, &c.header)
	if err != nil {
		return c.fail(err)
	}
	switch {
	case delta > 0:
		if delta > c.header.regionBytes()-occupied {
			preElems := c.header.elemsOffset
			if err := growRegionTo(c.buf, &c.header, occupied+delta); err != nil {
				return c.fail(err)
			}
			s := c.header.elemsOffset - preElems
			c.fieldAt += s
			c.fieldTo += s
			c.keyAt += s
		}
		tail := c.header.elemsOffset + occupied
		if err := c.buf.MoveWithin(c.fieldTo, c.fieldTo+delta, tail-c.fieldTo); err != nil {
			return c.fail(err)
		}
		if err := c.buf.PutAt(c.fieldAt, newField); err != nil {
			return c.fail(err)
		}
	case delta < 0:
		tail := c.header.elemsOffset + occupied
		if err := c.buf.PutAt(c.fieldAt, newField); err != nil {
			return c.fail(err)
		}
		if err := c.buf.MoveWithin(c.fieldTo, c.fieldAt+len(newField), tail-c.fieldTo); err != nil {
			return c.fail(err)
		}
		if err := c.buf.FillZero(tail+delta, -delta); err != nil {
			return c.fail(err)
		}
	default:
		if err := c.buf.PutAt(c.fieldAt, newField); err != nil {
			return c.fail(err)
		}
	}
	c.fieldTo = c.fieldAt + len(newField)
	if _, err := c.propagate(lenBefore); err != nil {
		return c.fail(err)
	}
	return nil
}

// Remove deletes the field the cursor currently sits on.
//
// Array and object removal slides the later elements left immediately and
// decrements the count; the freed bytes stay behind as zero-filled slack
// in the container's reservation until ShrinkToFit reclaims them
// (spec.md §4.5, §4.9).
//
// Column removal never moves bytes: it writes the column's null sentinel
// into the slot and leaves compaction to ShrinkToFit.
func (c *Cursor) Remove() error {
	if c.err != nil {
		return c.err
	}
	if c.index < 0 {
		return c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	if c.header.kind == types.KindColumn {
		return c.nullifyColumnSlot()
	}

	lenBefore := c.buf.Len()
	start := c.fieldAt
	if c.header.kind == types.KindObject {
		start = c.keyAt
	}
	length := c.fieldTo - start
	if err := removeElement(c.buf, &c.header, start, length); err != nil {
		return c.fail(err)
	}
	before := c.header.elemsOffset
	if err := bumpCount(c.buf, &c.header, -1); err != nil {
		return c.fail(err)
	}
	start += c.header.elemsOffset - before
	s, err := c.propagate(lenBefore)
	if err != nil {
		return c.fail(err)
	}
	start += s

	// The removed field's slot is gone; rewind the cursor so the next Next
	// lands on what is now the element at this same index.
	c.index--
	c.fieldAt = start
	c.fieldTo = start
	return nil
}
