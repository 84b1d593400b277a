package record

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// ShrinkToFit compacts every container reachable from the root: columns
// drop their null-sentinel tombstones, and every container's reserved
// slack is reclaimed so its capacity lands exactly on the bytes its
// elements occupy. It then trims the buffer's backing array to its final
// length (spec.md §4.5: "true compaction occurs on shrink_to_fit";
// "compaction rewrites the element count and reclaims space in the
// capacity").
func (r *Record) ShrinkToFit() error {
	off, err := r.RootOffset()
	if err != nil {
		return err
	}
	if _, err := compactContainer(r.buf, off); err != nil {
		return err
	}
	r.buf.ShrinkToFit()
	return nil
}

// compactContainer compacts the container at `at` and everything below
// it, depth first, and returns the net byte delta it applied at or after
// `at` (zero or negative).
func compactContainer(buf *buffer.Buffer, at int) (int, error) {
	h, err := readContainerHeader(buf, at)
	if err != nil {
		return 0, err
	}
	if h.kind == types.KindColumn {
		return compactColumn(buf, &h)
	}

	childDelta := 0
	pos := h.elemsOffset
	for i := 0; i < h.count; i++ {
		if h.kind == types.KindObject {
			if err := buf.Seek(pos); err != nil {
				return 0, err
			}
			klen, err := varint.Read(buf)
			if err != nil {
				return 0, err
			}
			pos = buf.Tell() + int(klen)
		}
		if err := buf.Seek(pos); err != nil {
			return 0, err
		}
		mb, err := buf.PeekByte()
		if err != nil {
			return 0, err
		}
		if types.IsContainer(types.Marker(mb)) {
			d, err := compactContainer(buf, pos)
			if err != nil {
				return 0, err
			}
			childDelta += d
		}
		end, err := valueByteLength(buf, pos)
		if err != nil {
			return 0, err
		}
		pos += end
	}

	// Children may have shrunk inside this region; the end marker now
	// sits childDelta bytes earlier than the stale capacity says.
	tail := pos
	regionEnd := h.elemsOffset + h.capacity + childDelta
	slack := regionEnd - tail
	if slack < 0 {
		return 0, errs.New(errs.Internal, "container elements overran the reserved region")
	}
	if slack > 0 {
		if _, err := buf.DeleteAt(tail, slack); err != nil {
			return 0, err
		}
	}
	s, err := varint.Update(buf, h.capOffset, uint64(tail-h.elemsOffset))
	if err != nil {
		return 0, err
	}
	return childDelta - slack + s, nil
}

// compactColumn drops every null-sentinel slot and every reserved slack
// slot from the column whose header is h, rewriting its count and
// capacity varints to the survivor count. A bitset marks tombstoned slots
// in a single pass before the surviving elements are packed down.
func compactColumn(buf *buffer.Buffer, h *containerHeader) (int, error) {
	tomb := bitset.New(uint(h.count))
	nulls := 0
	for i := 0; i < h.count; i++ {
		off := h.elemsOffset + i*h.colWidth
		isNull, err := slotIsNull(buf, h.beginMarker, off)
		if err != nil {
			return 0, err
		}
		if isNull {
			tomb.Set(uint(i))
			nulls++
		}
	}
	survivors := h.count - nulls
	if survivors == h.count && h.capacity == h.count {
		return 0, nil
	}

	compacted := make([]byte, 0, survivors*h.colWidth)
	for i := 0; i < h.count; i++ {
		if tomb.Test(uint(i)) {
			continue
		}
		off := h.elemsOffset + i*h.colWidth
		raw, err := peekRawAt(buf, off, h.colWidth)
		if err != nil {
			return 0, err
		}
		compacted = append(compacted, raw...)
	}

	dRegion, err := buf.Replace(h.elemsOffset, h.regionBytes(), compacted)
	if err != nil {
		return 0, err
	}
	s1, err := varint.Update(buf, h.countOffset, uint64(survivors))
	if err != nil {
		return 0, err
	}
	h.capOffset += s1
	s2, err := varint.Update(buf, h.capOffset, uint64(survivors))
	if err != nil {
		return 0, err
	}
	return dRegion + s1 + s2, nil
}

func peekRawAt(buf *buffer.Buffer, at, n int) ([]byte, error) {
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()
	if err := buf.Seek(at); err != nil {
		return nil, err
	}
	raw, err := buf.Peek(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

func slotIsNull(buf *buffer.Buffer, beginMarker types.Marker, off int) (bool, error) {
	switch beginMarker {
	case types.ColumnU8Begin, types.ColumnI8Begin:
		v, err := peekTypedAt[uint8](buf, off)
		return err == nil && v == types.NullSentinel8, err
	case types.ColumnU16Begin, types.ColumnI16Begin:
		v, err := peekTypedAt[uint16](buf, off)
		return err == nil && v == types.NullSentinel16, err
	case types.ColumnU32Begin, types.ColumnI32Begin:
		v, err := peekTypedAt[uint32](buf, off)
		return err == nil && v == types.NullSentinel32, err
	case types.ColumnU64Begin, types.ColumnI64Begin:
		v, err := peekTypedAt[uint64](buf, off)
		return err == nil && v == types.NullSentinel64, err
	case types.ColumnFloatBegin:
		v, err := peekTypedAt[uint32](buf, off)
		return err == nil && v == types.NullSentinel32, err
	case types.ColumnBoolBegin:
		v, err := peekTypedAt[uint8](buf, off)
		return err == nil && v == types.BoolNull, err
	default:
		return false, errs.New(errs.Internal, "unrecognized column kind")
	}
}

func peekTypedAt[T buffer.Scalar](buf *buffer.Buffer, at int) (T, error) {
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()
	var zero T
	if err := buf.Seek(at); err != nil {
		return zero, err
	}
	return buffer.PeekTyped[T](buf)
}
