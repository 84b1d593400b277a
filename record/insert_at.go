package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// Insertion at a cursor (spec.md §4.8): the new field lands immediately
// after the field the cursor currently sits on and the enclosing
// container's count varint is bumped. The cursor stays on the field it
// was on; the next Next lands on the inserted one.

// insertRawAfter splices field in right after the current field, into
// reserved slack when it covers the length and widening the region when
// it does not, then bumps the container count, propagates the growth up the
// descent chain, and returns the absolute offset the field ended up at.
func (c *Cursor) insertRawAfter(field []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.index < 0 {
		return 0, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	lenBefore := c.buf.Len()

	preElems := c.header.elemsOffset
	at, err := insertElement(c.buf, &c.header, c.fieldTo, field, 0)
	if err != nil {
		return 0, c.fail(err)
	}
	gshift := c.header.elemsOffset - preElems
	c.fieldAt += gshift
	c.fieldTo += gshift
	c.keyAt += gshift

	preElems = c.header.elemsOffset
	if err := bumpCount(c.buf, &c.header, 1); err != nil {
		return 0, c.fail(err)
	}
	cshift := c.header.elemsOffset - preElems
	c.fieldAt += cshift
	c.fieldTo += cshift
	c.keyAt += cshift
	at += cshift

	s, err := c.propagate(lenBefore)
	if err != nil {
		return 0, c.fail(err)
	}
	return at + s, nil
}

func (c *Cursor) requireKind(want types.Kind, why string) error {
	if c.err != nil {
		return c.err
	}
	if c.header.kind != want {
		return c.fail(errs.New(errs.TypeMismatch, why))
	}
	return nil
}

// InsertAfter inserts a scalar field of type T right after the cursor's
// current element (array cursors only; object pairs go through
// InsertPropAfter, column slots through InsertColumnValueAfter).
func InsertAfter[T buffer.Scalar](c *Cursor, marker types.Marker, v T) error {
	if err := c.requireKind(types.KindArray, "keyless insert needs an array cursor"); err != nil {
		return err
	}
	_, err := c.insertRawAfter(encodeScalarField(marker, v))
	return err
}

// InsertNullAfter inserts a null field after the current element.
func (c *Cursor) InsertNullAfter() error {
	if err := c.requireKind(types.KindArray, "keyless insert needs an array cursor"); err != nil {
		return err
	}
	_, err := c.insertRawAfter([]byte{byte(types.Null)})
	return err
}

// InsertBoolAfter inserts a true/false field after the current element.
func (c *Cursor) InsertBoolAfter(v bool) error {
	if err := c.requireKind(types.KindArray, "keyless insert needs an array cursor"); err != nil {
		return err
	}
	marker := types.False
	if v {
		marker = types.True
	}
	_, err := c.insertRawAfter([]byte{byte(marker)})
	return err
}

// InsertStringAfter inserts a string field after the current element.
func (c *Cursor) InsertStringAfter(s string) error {
	if err := c.requireKind(types.KindArray, "keyless insert needs an array cursor"); err != nil {
		return err
	}
	_, err := c.insertRawAfter(encodeStringField(s))
	return err
}

// InsertContainerAfter inserts an empty container after the current
// element and returns a Builder over it, mirroring AppendContainer.
func (c *Cursor) InsertContainerAfter(beginMarker types.Marker) (*Builder, error) {
	if err := c.requireKind(types.KindArray, "keyless insert needs an array cursor"); err != nil {
		return nil, err
	}
	if !types.IsContainer(beginMarker) {
		return nil, errs.New(errs.Internal, "not a container begin marker")
	}
	scratch := buffer.New()
	if err := writeEmptyContainer(scratch, beginMarker); err != nil {
		return nil, err
	}
	at, err := c.insertRawAfter(scratch.Bytes())
	if err != nil {
		return nil, err
	}
	h, err := readContainerHeader(c.buf, at)
	if err != nil {
		return nil, c.fail(err)
	}
	return &Builder{buf: c.buf, header: h, up: c}, nil
}

// InsertPropAfter inserts a (key, scalar value) pair right after the
// cursor's current pair (object cursors only).
func InsertPropAfter[T buffer.Scalar](c *Cursor, key string, marker types.Marker, v T) error {
	if err := c.requireKind(types.KindObject, "keyed insert needs an object cursor"); err != nil {
		return err
	}
	_, err := c.insertRawAfter(encodePropField(key, encodeScalarField(marker, v)))
	return err
}

// InsertPropStringAfter inserts a (key, string value) pair after the
// current pair.
func (c *Cursor) InsertPropStringAfter(key, s string) error {
	if err := c.requireKind(types.KindObject, "keyed insert needs an object cursor"); err != nil {
		return err
	}
	_, err := c.insertRawAfter(encodePropField(key, encodeStringField(s)))
	return err
}

// InsertColumnValueAfter inserts a raw packed element after the current
// slot (column cursors only); the caller encodes sentinels itself, exactly
// as with Builder.AppendColumnValue.
func (c *Cursor) InsertColumnValueAfter(raw []byte) error {
	if err := c.requireKind(types.KindColumn, "raw slot insert needs a column cursor"); err != nil {
		return err
	}
	if len(raw) != c.header.colWidth {
		return c.fail(errs.New(errs.TypeMismatch, "column element width mismatch"))
	}
	_, err := c.insertRawAfter(raw)
	return err
}

// encodeStringField returns the wire bytes of a string field: marker,
// varint length, payload.
func encodeStringField(s string) []byte {
	scratch := buffer.New()
	_ = scratch.WriteByte(byte(types.String))
	raw := []byte(s)
	_ = varint.Write(scratch, uint64(len(raw)))
	_ = scratch.Write(raw)
	return scratch.Bytes()
}

// encodePropField prefixes an encoded value field with an object pair's
// key bytes (varint length + UTF-8, no marker: context implies string).
func encodePropField(key string, valueField []byte) []byte {
	scratch := buffer.New()
	raw := []byte(key)
	_ = varint.Write(scratch, uint64(len(raw)))
	_ = scratch.Write(raw)
	_ = scratch.Write(valueField)
	return scratch.Bytes()
}
