package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// defaultCapacityHint is the reserved-ahead byte/value count a freshly
// created container starts with when the caller supplies no hint
// (spec.md §4.5/§4.8).
const defaultCapacityHint = 0

// containerHeader is the decoded framing of a container: its begin/end
// markers and the offsets of its count and capacity varints. It is shared
// by the read cursor and the insertion/update engine so both walk the
// exact same layout.
//
// The capacity varint is the total size of the element region in bytes
// (array/object) or values (column). Elements occupy a prefix of the
// region; the rest is zero-filled reserved slack, and the end marker sits
// immediately after the region. Inserts that fit in the slack never shift
// the buffer tail; inserts that don't widen the region first (spec.md
// §4.5).
type containerHeader struct {
	kind         types.Kind
	beginMarker  types.Marker
	endMarker    types.Marker
	headerOffset int // offset of the begin-marker byte
	countOffset  int // offset of the nelems/npairs/nvalues varint
	count        int
	capOffset    int // offset of the capacity varint
	capacity     int // region size: byte count (array/object) or value count (column)
	elemsOffset  int // offset right after the capacity varint
	colWidth     int // column kind only: fixed per-element width
}

// regionBytes returns the element region's size in bytes.
func (h *containerHeader) regionBytes() int {
	if h.kind == types.KindColumn {
		return h.capacity * h.colWidth
	}
	return h.capacity
}

// shift moves every offset the header holds by s, after an enclosing
// container's varint rewrite slid this container within the buffer.
func (h *containerHeader) shift(s int) {
	h.headerOffset += s
	h.countOffset += s
	h.capOffset += s
	h.elemsOffset += s
}

// readContainerHeader decodes the framing of the container whose
// begin-marker sits at `headerOffset`. It does not restore the buffer's
// cursor; callers manage their own position.
func readContainerHeader(buf *buffer.Buffer, headerOffset int) (containerHeader, error) {
	if err := buf.Seek(headerOffset); err != nil {
		return containerHeader{}, err
	}
	mb, err := buf.ReadByte()
	if err != nil {
		return containerHeader{}, err
	}
	marker := types.Marker(mb)
	if !types.IsContainer(marker) {
		return containerHeader{}, errs.New(errs.Corrupted, "expected a container begin marker")
	}
	endMarker, _ := types.EndMarkerFor(marker)
	kind := types.KindOf(marker)

	countOffset := buf.Tell()
	count, err := varint.Read(buf)
	if err != nil {
		return containerHeader{}, err
	}
	capOffset := buf.Tell()
	capv, err := varint.Read(buf)
	if err != nil {
		return containerHeader{}, err
	}

	h := containerHeader{
		kind:         kind,
		beginMarker:  marker,
		endMarker:    endMarker,
		headerOffset: headerOffset,
		countOffset:  countOffset,
		count:        int(count),
		capOffset:    capOffset,
		capacity:     int(capv),
		elemsOffset:  buf.Tell(),
	}
	if kind == types.KindColumn {
		w, _ := types.ColumnElementWidth(marker)
		h.colWidth = w
	}
	return h, nil
}

// writeEmptyContainer writes a zero-element container of beginMarker's
// kind at the buffer's current cursor.
func writeEmptyContainer(buf *buffer.Buffer, beginMarker types.Marker) error {
	endMarker, ok := types.EndMarkerFor(beginMarker)
	if !ok {
		return errs.New(errs.Internal, "not a container begin marker")
	}
	if err := buf.WriteByte(byte(beginMarker)); err != nil {
		return err
	}
	if err := varint.Write(buf, 0); err != nil { // nelems/npairs/nvalues
		return err
	}
	if err := varint.Write(buf, defaultCapacityHint); err != nil { // capacity
		return err
	}
	return buf.WriteByte(byte(endMarker))
}

// skipValue reads the type marker at the buffer's cursor and advances past
// its entire payload (recursing into nested containers), returning the
// marker and the offset the value started at.
func skipValue(buf *buffer.Buffer) (types.Marker, int, error) {
	start := buf.Tell()
	mb, err := buf.ReadByte()
	if err != nil {
		return 0, start, err
	}
	marker := types.Marker(mb)
	if !types.Valid(marker) {
		return 0, start, errs.New(errs.Corrupted, "unrecognized field type marker")
	}

	switch {
	case types.IsContainer(marker):
		if err := skipContainerBody(buf, marker); err != nil {
			return 0, start, err
		}
	case types.IsVariableLength(marker):
		if err := skipVariableLengthPayload(buf, marker); err != nil {
			return 0, start, err
		}
	default:
		size, ok := types.FixedSize(marker)
		if !ok {
			return 0, start, errs.New(errs.Corrupted, "marker has no fixed payload size")
		}
		if err := buf.Skip(size); err != nil {
			return 0, start, err
		}
	}
	return marker, start, nil
}

// skipContainerBody advances the cursor past a container's count/capacity
// varints, its elements, any reserved slack, and its end-marker. The
// cursor must sit right after the begin-marker byte.
func skipContainerBody(buf *buffer.Buffer, beginMarker types.Marker) error {
	kind := types.KindOf(beginMarker)

	count, err := varint.Read(buf)
	if err != nil {
		return err
	}
	capacity, err := varint.Read(buf)
	if err != nil {
		return err
	}
	elemsStart := buf.Tell()

	if kind == types.KindColumn {
		if count > capacity {
			return errs.New(errs.Corrupted, "column count exceeds its capacity")
		}
		width, _ := types.ColumnElementWidth(beginMarker)
		if err := buf.Skip(int(capacity) * width); err != nil {
			return err
		}
	} else {
		for i := uint64(0); i < count; i++ {
			if kind == types.KindObject {
				klen, err := varint.Read(buf)
				if err != nil {
					return err
				}
				if err := buf.Skip(int(klen)); err != nil {
					return err
				}
			}
			if _, _, err := skipValue(buf); err != nil {
				return err
			}
		}
		slack := elemsStart + int(capacity) - buf.Tell()
		if slack < 0 {
			return errs.New(errs.Corrupted, "container elements overrun its capacity")
		}
		if err := buf.Skip(slack); err != nil {
			return err
		}
	}

	endMarker, _ := types.EndMarkerFor(beginMarker)
	eb, err := buf.ReadByte()
	if err != nil {
		return err
	}
	if types.Marker(eb) != endMarker {
		return errs.New(errs.Corrupted, "missing or mismatched container end marker")
	}
	return nil
}

// skipVariableLengthPayload advances the cursor past a string/binary
// payload (spec.md §4.6). The cursor must sit right after the type
// marker byte.
func skipVariableLengthPayload(buf *buffer.Buffer, marker types.Marker) error {
	switch marker {
	case types.String:
		l, err := varint.Read(buf)
		if err != nil {
			return err
		}
		return buf.Skip(int(l))
	case types.Binary:
		if _, err := varint.Read(buf); err != nil { // MIME tag id
			return err
		}
		l, err := varint.Read(buf)
		if err != nil {
			return err
		}
		return buf.Skip(int(l))
	case types.BinaryUser:
		tagLen, err := varint.Read(buf)
		if err != nil {
			return err
		}
		if err := buf.Skip(int(tagLen)); err != nil {
			return err
		}
		l, err := varint.Read(buf)
		if err != nil {
			return err
		}
		return buf.Skip(int(l))
	default:
		return errs.New(errs.Internal, "marker is not variable-length")
	}
}

// valueByteLength returns the total on-wire length (marker byte included)
// of the value starting at `at`, without permanently moving the buffer's
// cursor.
func valueByteLength(buf *buffer.Buffer, at int) (int, error) {
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()
	if err := buf.Seek(at); err != nil {
		return 0, err
	}
	_, _, err := skipValue(buf)
	if err != nil {
		return 0, err
	}
	return buf.Tell() - at, nil
}

// bumpCount rewrites a container's element-count varint by delta (+1 on
// insert, -1 on remove), using the varint-update primitive so the whole
// container (and anything after it) shifts if the new count's encoding
// changes width.
func bumpCount(buf *buffer.Buffer, h *containerHeader, delta int) error {
	newCount := h.count + delta
	if newCount < 0 {
		return errs.New(errs.Internal, "container element count underflow")
	}
	shift, err := varint.Update(buf, h.countOffset, uint64(newCount))
	if err != nil {
		return err
	}
	h.count = newCount
	h.capOffset += shift
	h.elemsOffset += shift
	return nil
}

// containerTail returns the offset right past h's last element (the start
// of its reserved slack), recomputed fresh by walking the live bytes.
func containerTail(buf *buffer.Buffer, h *containerHeader) (int, error) {
	if h.kind == types.KindColumn {
		return h.elemsOffset + h.count*h.colWidth, nil
	}
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()
	if err := buf.Seek(h.elemsOffset); err != nil {
		return 0, err
	}
	for i := 0; i < h.count; i++ {
		if h.kind == types.KindObject {
			klen, err := varint.Read(buf)
			if err != nil {
				return 0, err
			}
			if err := buf.Skip(int(klen)); err != nil {
				return 0, err
			}
		}
		if _, _, err := skipValue(buf); err != nil {
			return 0, err
		}
	}
	return buf.Tell(), nil
}

// growRegionTo widens h's element region so it can hold at least
// needBytes of element bytes: zero slack is spliced in just before the
// end marker and the capacity varint is rewritten (whose own widening, if
// any, is folded into h's offsets). No-op when the region already covers
// needBytes.
func growRegionTo(buf *buffer.Buffer, h *containerHeader, needBytes int) error {
	newCapacity := needBytes
	if h.kind == types.KindColumn {
		newCapacity = needBytes / h.colWidth
	}
	if newCapacity <= h.capacity {
		return nil
	}
	regionEnd := h.elemsOffset + h.regionBytes()
	extra := needBytes - h.regionBytes()
	if _, err := buf.InsertAt(regionEnd, make([]byte, extra)); err != nil {
		return err
	}
	shift, err := varint.Update(buf, h.capOffset, uint64(newCapacity))
	if err != nil {
		return err
	}
	h.capacity = newCapacity
	h.elemsOffset += shift
	return nil
}

// insertElement splices data into h's element region at `at`, consuming
// reserved slack when it covers the length and growing the region first
// when it does not. The count varint is not touched; callers bump it
// separately. pendingBytes covers region bytes past the counted elements
// that are already spoken for (an object key spliced in ahead of its
// value by Builder.AppendKeyed) so they are neither overwritten nor
// mistaken for slack. Returns the absolute offset data landed at, which
// differs from `at` if growing widened the capacity varint.
func insertElement(buf *buffer.Buffer, h *containerHeader, at int, data []byte, pendingBytes int) (int, error) {
	occupied, err := occupiedBytes(buf, h)
	if err != nil {
		return 0, err
	}
	occupied += pendingBytes
	if len(data) > h.regionBytes()-occupied {
		preElems := h.elemsOffset
		if err := growRegionTo(buf, h, occupied+len(data)); err != nil {
			return 0, err
		}
		at += h.elemsOffset - preElems
	}
	tail := h.elemsOffset + occupied
	if err := buf.MoveWithin(at, at+len(data), tail-at); err != nil {
		return 0, err
	}
	if err := buf.PutAt(at, data); err != nil {
		return 0, err
	}
	return at, nil
}

// removeElement deletes the length bytes at `at` inside h's element
// region, sliding the later elements left and zero-filling the freed
// bytes, which become reserved slack. The count varint is not touched,
// and the reservation stays for reuse until a shrink reclaims it.
func removeElement(buf *buffer.Buffer, h *containerHeader, at, length int) error {
	occupied, err := occupiedBytes(buf, h)
	if err != nil {
		return err
	}
	tail := h.elemsOffset + occupied
	if err := buf.MoveWithin(at+length, at, tail-(at+length)); err != nil {
		return err
	}
	return buf.FillZero(tail-length, length)
}

// occupiedBytes returns how many bytes of h's region its elements
// currently use.
func occupiedBytes(buf *buffer.Buffer, h *containerHeader) (int, error) {
	tail, err := containerTail(buf, h)
	if err != nil {
		return 0, err
	}
	return tail - h.elemsOffset, nil
}

// enclosingState is the upward link a nested mutation's byte-length delta
// propagates through (spec.md §4.8): the enclosing container's live state
// widens its own capacity varint by the delta and passes the compounded
// delta further up. Builder and Cursor both implement it. editAt is where
// the delta landed, so a cursor in the chain can tell whether its current
// field contains the edit or precedes it.
type enclosingState interface {
	applyChildDelta(editAt, delta int) (int, error)
}
