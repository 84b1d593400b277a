package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// Builder appends or inserts fields into a container that already exists
// on the buffer (spec.md §4.8). It operates directly on the owning
// Record's buffer; it does not duplicate it. Use revision.Begin to get a
// scratch copy before mutating a record you need to preserve on failure.
//
// A Builder over a nested container (AppendContainer, BuilderFor) holds a
// link to its enclosing state; every byte the nested build adds widens
// the enclosing containers' capacity varints on the way up (spec.md §4.8).
type Builder struct {
	buf    *buffer.Buffer
	header containerHeader
	up     enclosingState

	// pendingKeyLen is the byte length of a key just written by AppendKeyed
	// that has not yet been bumped into the pair count; the next value
	// append must land right after it, not at the container's old tail.
	pendingKeyLen int
}

// applyChildDelta widens this builder's capacity varint by a byte delta
// that landed inside one of its elements, then propagates the compounded
// delta to its own enclosing state. It returns the total shift the varint
// rewrites applied at positions past this container's header, so the
// originating state can fix its own offsets.
func (bld *Builder) applyChildDelta(editAt, delta int) (int, error) {
	newCap := bld.header.capacity + delta
	s, err := varint.Update(bld.buf, bld.header.capOffset, uint64(newCap))
	if err != nil {
		return 0, err
	}
	bld.header.capacity = newCap
	bld.header.elemsOffset += s
	total := s
	if bld.up != nil {
		ps, err := bld.up.applyChildDelta(editAt, delta+s)
		if err != nil {
			return total, err
		}
		// Enclosing capacity varints sit before this container, so their
		// widening moves every offset this builder holds.
		bld.header.shift(ps)
		total += ps
	}
	return total, nil
}

// propagate reports the byte growth since lenBefore to the enclosing
// state chain and absorbs any shift the chain's varint rewrites caused.
func (bld *Builder) propagate(lenBefore int) (int, error) {
	delta := bld.buf.Len() - lenBefore
	if bld.up == nil || delta == 0 {
		return 0, nil
	}
	s, err := bld.up.applyChildDelta(bld.header.headerOffset, delta)
	if err != nil {
		return 0, err
	}
	bld.header.shift(s)
	return s, nil
}

// NewBuilder opens a builder over the container whose begin-marker sits
// at the record's root offset.
func (r *Record) NewBuilder() (*Builder, error) {
	off, err := r.RootOffset()
	if err != nil {
		return nil, err
	}
	return r.builderAt(off)
}

func (r *Record) builderAt(at int) (*Builder, error) {
	h, err := readContainerHeader(r.buf, at)
	if err != nil {
		return nil, err
	}
	return &Builder{buf: r.buf, header: h}, nil
}

// BuilderFor opens a builder over the container this cursor iterates, for
// inserting without re-walking from the root. The builder inherits the
// cursor's enclosing-state chain; the cursor itself should be considered
// invalidated once the builder mutates (spec.md §5).
func (c *Cursor) BuilderFor() (*Builder, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.index < 0 {
		return nil, c.fail(errs.New(errs.InvalidCursor, "cursor has not been advanced"))
	}
	bld := &Builder{buf: c.buf, header: c.header}
	if c.parent != nil {
		bld.up = c.parent
	}
	return bld, nil
}

// tailOffset returns the offset right after the container's last element
// (i.e. the start of its reserved slack), recomputed fresh each call
// since prior inserts may have shifted it.
func (bld *Builder) tailOffset() (int, error) {
	return containerTail(bld.buf, &bld.header)
}

// nextValueOffset returns where the next value field belongs: the
// container's current tail, plus any key bytes a prior AppendKeyed call
// already spliced in ahead of it.
func (bld *Builder) nextValueOffset() (int, error) {
	at, err := bld.tailOffset()
	if err != nil {
		return 0, err
	}
	return at + bld.pendingKeyLen, nil
}

// insertFieldBytes splices field data in at `at`, consuming reserved
// slack when it covers the length and growing the region when it does
// not, bumps the container's element count, clears any pending key, and
// reports the growth up the enclosing-state chain. It returns the
// absolute offset the field finally landed at.
func (bld *Builder) insertFieldBytes(at int, field []byte) (int, error) {
	lenBefore := bld.buf.Len()
	newAt, err := insertElement(bld.buf, &bld.header, at, field, bld.pendingKeyLen)
	if err != nil {
		return 0, err
	}
	bld.pendingKeyLen = 0
	preElems := bld.header.elemsOffset
	if err := bumpCount(bld.buf, &bld.header, 1); err != nil {
		return 0, err
	}
	newAt += bld.header.elemsOffset - preElems
	s, err := bld.propagate(lenBefore)
	if err != nil {
		return 0, err
	}
	return newAt + s, nil
}

// encodeScalarField returns the wire bytes for a scalar marker+payload
// pair, used by every Append*/Insert* method below.
func encodeScalarField[T buffer.Scalar](marker types.Marker, v T) []byte {
	scratch := buffer.New()
	_ = scratch.WriteByte(byte(marker))
	_ = buffer.WriteTyped[T](scratch, v)
	return scratch.Bytes()
}

// AppendU8/AppendU16/.../AppendFloat append a scalar field to an array or
// object's value stream (object keys are supplied via AppendKeyed).
func (bld *Builder) AppendU8(v uint8) error   { return appendScalarField(bld, types.U8, v) }
func (bld *Builder) AppendU16(v uint16) error { return appendScalarField(bld, types.U16, v) }
func (bld *Builder) AppendU32(v uint32) error { return appendScalarField(bld, types.U32, v) }
func (bld *Builder) AppendU64(v uint64) error { return appendScalarField(bld, types.U64, v) }
func (bld *Builder) AppendI8(v int8) error    { return appendScalarField(bld, types.I8, v) }
func (bld *Builder) AppendI16(v int16) error  { return appendScalarField(bld, types.I16, v) }
func (bld *Builder) AppendI32(v int32) error  { return appendScalarField(bld, types.I32, v) }
func (bld *Builder) AppendI64(v int64) error  { return appendScalarField(bld, types.I64, v) }
func (bld *Builder) AppendFloat(v float32) error {
	return appendScalarField(bld, types.Float, v)
}

// appendScalarField is a free function, not a method, because Go methods
// cannot carry their own type parameters.
func appendScalarField[T buffer.Scalar](bld *Builder, marker types.Marker, v T) error {
	return bld.appendFieldBytes(encodeScalarField(marker, v))
}

// appendFieldBytes appends one marker-tagged field at the container's
// tail. Column builders take raw slots through AppendColumnValue instead.
func (bld *Builder) appendFieldBytes(field []byte) error {
	if bld.header.kind == types.KindColumn {
		return errs.New(errs.TypeMismatch, "column elements are raw slots, use AppendColumnValue")
	}
	at, err := bld.nextValueOffset()
	if err != nil {
		return err
	}
	_, err = bld.insertFieldBytes(at, field)
	return err
}

// AppendBool appends a scalar true/false field.
func (bld *Builder) AppendBool(v bool) error {
	marker := types.False
	if v {
		marker = types.True
	}
	return bld.appendFieldBytes([]byte{byte(marker)})
}

// AppendNull appends a scalar null field.
func (bld *Builder) AppendNull() error {
	return bld.appendFieldBytes([]byte{byte(types.Null)})
}

// AppendString appends a UTF-8 string field.
func (bld *Builder) AppendString(s string) error {
	return bld.appendFieldBytes(encodeStringField(s))
}

// AppendBinaryStandard appends a MIME-tagged binary field.
func (bld *Builder) AppendBinaryStandard(mimeTag uint64, payload []byte) error {
	scratch := buffer.New()
	_ = scratch.WriteByte(byte(types.Binary))
	_ = varint.Write(scratch, mimeTag)
	_ = varint.Write(scratch, uint64(len(payload)))
	_ = scratch.Write(payload)
	return bld.appendFieldBytes(scratch.Bytes())
}

// AppendBinaryUser appends a user-tagged binary field.
func (bld *Builder) AppendBinaryUser(userTag string, payload []byte) error {
	scratch := buffer.New()
	_ = scratch.WriteByte(byte(types.BinaryUser))
	tagRaw := []byte(userTag)
	_ = varint.Write(scratch, uint64(len(tagRaw)))
	_ = scratch.Write(tagRaw)
	_ = varint.Write(scratch, uint64(len(payload)))
	_ = scratch.Write(payload)
	return bld.appendFieldBytes(scratch.Bytes())
}

// AppendContainer appends an empty nested array/object/column and returns
// a Builder over it, so the caller can fill it in. beginMarker must be an
// array, object, or column begin-marker. The nested Builder links back to
// this one, so bytes the nested build adds widen this container's
// capacity as they land.
func (bld *Builder) AppendContainer(beginMarker types.Marker) (*Builder, error) {
	if bld.header.kind == types.KindColumn {
		return nil, errs.New(errs.TypeMismatch, "columns hold fixed-width scalars only")
	}
	if !types.IsContainer(beginMarker) {
		return nil, errs.New(errs.Internal, "not a container begin marker")
	}
	at, err := bld.nextValueOffset()
	if err != nil {
		return nil, err
	}
	scratch := buffer.New()
	if err := writeEmptyContainer(scratch, beginMarker); err != nil {
		return nil, err
	}
	at, err = bld.insertFieldBytes(at, scratch.Bytes())
	if err != nil {
		return nil, err
	}
	h, err := readContainerHeader(bld.buf, at)
	if err != nil {
		return nil, err
	}
	return &Builder{buf: bld.buf, header: h, up: bld}, nil
}

// AppendKeyed writes a key length-prefix ahead of the next value append
// (object containers only). Call it once immediately before the matching
// Append* call for the paired value.
func (bld *Builder) AppendKeyed(key string) error {
	if bld.header.kind != types.KindObject {
		return errs.New(errs.TypeMismatch, "builder is not over an object")
	}
	if bld.pendingKeyLen != 0 {
		return errs.New(errs.InvalidState, "AppendKeyed called twice without an intervening value append")
	}
	at, err := bld.tailOffset()
	if err != nil {
		return err
	}
	scratch := buffer.New()
	raw := []byte(key)
	_ = varint.Write(scratch, uint64(len(raw)))
	_ = scratch.Write(raw)
	// The key is not itself a counted element; splice it in without
	// bumping count, since AppendKeyed is always immediately followed by
	// the value append that does bump count for the pair.
	lenBefore := bld.buf.Len()
	if _, err := insertElement(bld.buf, &bld.header, at, scratch.Bytes(), 0); err != nil {
		return err
	}
	if _, err := bld.propagate(lenBefore); err != nil {
		return err
	}
	bld.pendingKeyLen = scratch.Len()
	return nil
}

// AppendColumnValue appends a raw little-endian element to a column
// builder; the caller encodes the sentinel value itself for a null slot
// (spec.md §4.5, §4.8).
func (bld *Builder) AppendColumnValue(raw []byte) error {
	if bld.header.kind != types.KindColumn {
		return errs.New(errs.TypeMismatch, "builder is not over a column")
	}
	if len(raw) != bld.header.colWidth {
		return errs.New(errs.TypeMismatch, "column element width mismatch")
	}
	at, err := bld.nextValueOffset()
	if err != nil {
		return err
	}
	_, err = bld.insertFieldBytes(at, raw)
	return err
}

// EnsureCapacity physically reserves room for n units ahead of a batch of
// inserts (bytes for an array/object, values for a column) so each
// individual insert lands in slack instead of shifting the buffer tail
// (spec.md §4.5).
func (bld *Builder) EnsureCapacity(n int) error {
	needBytes := n
	if bld.header.kind == types.KindColumn {
		needBytes = n * bld.header.colWidth
	}
	lenBefore := bld.buf.Len()
	if err := growRegionTo(bld.buf, &bld.header, needBytes); err != nil {
		return err
	}
	_, err := bld.propagate(lenBefore)
	return err
}

// Len reports how many elements the builder's container currently holds.
func (bld *Builder) Len() int { return bld.header.count }
