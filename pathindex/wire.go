package pathindex

import (
	"bytes"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/types"
	"github.com/flashrecord/flashrecord/varint"
)

// newFlattenBuffer returns a fresh buffer for Flatten to assemble into.
func newFlattenBuffer() *buffer.Buffer { return buffer.New() }

// writeKeyAndHash writes the key block and 8-byte commit hash that precede
// the node tree on the wire, mirroring the record's own prologue layout
// (record.New) so the two formats stay visually consistent.
func writeKeyAndHash(buf *buffer.Buffer, key record.Key, hash uint64) error {
	if err := record.EncodeKey(buf, key); err != nil {
		return err
	}
	return buffer.WriteTyped[uint64](buf, hash)
}

// readKeyAndHash is writeKeyAndHash's inverse, used by Load.
func readKeyAndHash(buf *buffer.Buffer) (record.Key, uint64, int, error) {
	key, after, err := record.DecodeKeyAt(buf, 0)
	if err != nil {
		return record.Key{}, 0, 0, err
	}
	if err := buf.Seek(after); err != nil {
		return record.Key{}, 0, 0, err
	}
	hash, err := buffer.ReadTyped[uint64](buf)
	if err != nil {
		return record.Key{}, 0, 0, err
	}
	return key, hash, after + 8, nil
}

// Load decodes a Flatten-produced byte slice back into an Index. Children
// are decoded by walking the buffer sequentially rather than by honoring
// the stored relative-offset table: since every node is written
// immediately followed by its children, sequential decoding reconstructs
// the same tree shape Build produced without needing random
// access into the blob. Key names are not part of the wire form: Prop
// nodes come back with their key offsets only, and Bind reads the names
// from the record. The offset table still round-trips on the wire
// (and is validated for length) so the format itself supports direct
// jumps for a future reader that wants them.
func Load(data []byte, opts ...Option) (*Index, error) {
	cfg := buildConfig{bloomThreshold: defaultBloomThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	buf := buffer.Open(data)
	key, hash, rootStart, err := readKeyAndHash(buf)
	if err != nil {
		return nil, err
	}
	root, _, err := decodeNode(data[rootStart:])
	if err != nil {
		return nil, err
	}
	return &Index{key: key, commitHash: hash, root: root, bloomThreshold: cfg.bloomThreshold}, nil
}

// wireIsContainer reports whether a decoded node carries the container
// section (child count, offset table, bloom flag, children). A column
// element leaf shares its column's begin-marker as its field type, so the
// field type alone cannot tell it apart from the column's own framing
// node; the kind byte can, since ColumnIndex is only ever used for
// elements, never for the container itself (its framing node takes the
// ArrayIndex or Prop kind of its slot in the parent).
func wireIsContainer(kind NodeKind, fieldType types.Marker) bool {
	return types.IsContainer(fieldType) && kind != KindColumnIndex
}

// decodeNode parses one node (and, recursively, its children) from the
// start of blob, mirroring renderNode's layout, and returns the node plus
// the number of bytes it consumed.
func decodeNode(blob []byte) (*Node, int, error) {
	buf := buffer.Open(blob)

	kb, err := buf.ReadByte()
	if err != nil {
		return nil, 0, err
	}
	fb, err := buf.ReadByte()
	if err != nil {
		return nil, 0, err
	}
	n := &Node{kind: NodeKind(kb), fieldType: types.Marker(fb)}

	if n.fieldType != types.Null && n.fieldType != types.True && n.fieldType != types.False {
		off, err := varint.Read(buf)
		if err != nil {
			return nil, 0, err
		}
		n.recordOffset = int(off)
		n.hasOffset = true
	}
	if n.kind == KindProp {
		off, err := varint.Read(buf)
		if err != nil {
			return nil, 0, err
		}
		n.keyOffset = int(off)
	}

	if !wireIsContainer(n.kind, n.fieldType) {
		return n, buf.Tell(), nil
	}

	count, err := varint.Read(buf)
	if err != nil {
		return nil, 0, err
	}
	childOffsets := make([]int, count)
	for i := range childOffsets {
		off, err := varint.Read(buf)
		if err != nil {
			return nil, 0, err
		}
		childOffsets[i] = int(off)
	}
	hasBloom, err := buf.ReadByte()
	if err != nil {
		return nil, 0, err
	}
	if hasBloom != 0 {
		bloomLen, err := varint.Read(buf)
		if err != nil {
			return nil, 0, err
		}
		raw, err := buf.Read(int(bloomLen))
		if err != nil {
			return nil, 0, err
		}
		filter := &bloom.BloomFilter{}
		if _, err := filter.ReadFrom(bytes.NewReader(raw)); err != nil {
			return nil, 0, err
		}
		n.bloomFilter = filter
	}

	pos := buf.Tell()
	n.children = make([]*Node, 0, count)
	for i := 0; i < int(count); i++ {
		child, consumed, err := decodeNode(blob[pos:])
		if err != nil {
			return nil, 0, err
		}
		if child.kind != KindProp {
			child.position = i
		}
		n.children = append(n.children, child)
		pos += consumed
	}
	_ = childOffsets // round-tripped for wire compatibility; children are walked sequentially (see Load's doc comment)
	return n, pos, nil
}

// renderNode serializes n (and, recursively, its children) into a
// self-contained byte slice per spec.md §4.12: kind byte, field-type
// byte, an optional value-offset varint, an optional key-offset varint
// for Prop nodes, and for container nodes a child count, a table of
// child start offsets, an optional bloom-filter section, then the
// children themselves.
//
// Child offsets are relative to the start of THIS node's own encoding
// rather than the final index buffer's absolute position. That makes
// every node's byte layout computable bottom-up from its children's
// already-known lengths, so Flatten needs no live shift-propagation pass
// across sibling or ancestor frames the way a single shared absolute-offset
// buffer would (see DESIGN.md).
func renderNode(n *Node) ([]byte, error) {
	scratch := buffer.New()
	if err := scratch.WriteByte(byte(n.kind)); err != nil {
		return nil, err
	}
	if err := scratch.WriteByte(byte(n.fieldType)); err != nil {
		return nil, err
	}
	if n.hasOffset {
		if err := varint.Write(scratch, uint64(n.recordOffset)); err != nil {
			return nil, err
		}
	}
	if n.kind == KindProp {
		if err := varint.Write(scratch, uint64(n.keyOffset)); err != nil {
			return nil, err
		}
	}

	if !n.IsContainer() {
		return scratch.Bytes(), nil
	}

	childBlobs := make([][]byte, len(n.children))
	for i, c := range n.children {
		blob, err := renderNode(c)
		if err != nil {
			return nil, err
		}
		childBlobs[i] = blob
	}

	var bloomBlob []byte
	writeBloom := n.bloomFilter != nil
	if writeBloom {
		var bb bytes.Buffer
		if _, err := n.bloomFilter.WriteTo(&bb); err != nil {
			return nil, err
		}
		bloomBlob = bb.Bytes()
	}

	if err := varint.Write(scratch, uint64(len(n.children))); err != nil {
		return nil, err
	}

	offsets, err := layoutChildOffsets(scratch.Len(), childBlobs, writeBloom, len(bloomBlob))
	if err != nil {
		return nil, err
	}
	for _, off := range offsets {
		if err := varint.Write(scratch, uint64(off)); err != nil {
			return nil, err
		}
	}

	var boolByte byte
	if writeBloom {
		boolByte = 1
	}
	if err := scratch.WriteByte(boolByte); err != nil {
		return nil, err
	}
	if writeBloom {
		if err := varint.Write(scratch, uint64(len(bloomBlob))); err != nil {
			return nil, err
		}
		if err := scratch.Write(bloomBlob); err != nil {
			return nil, err
		}
	}
	for _, blob := range childBlobs {
		if err := scratch.Write(blob); err != nil {
			return nil, err
		}
	}
	return scratch.Bytes(), nil
}

// layoutChildOffsets computes, for each child blob, its byte offset
// relative to the start of the enclosing node's encoding. The offset
// table's own width depends on the magnitude of the offsets it holds, so
// this fixed-points over a few rounds until the varint sizes stop
// changing (bounded: offset magnitudes only grow as blobs accumulate, so
// convergence is monotone and fast).
func layoutChildOffsets(headerSoFar int, childBlobs [][]byte, writeBloom bool, bloomLen int) ([]int, error) {
	n := len(childBlobs)
	offsets := make([]int, n)
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = 1
	}

	bloomHeader := 1 // presence flag byte
	if writeBloom {
		bloomHeader += varint.Size(uint64(bloomLen)) + bloomLen
	}

	for iter := 0; iter < 8; iter++ {
		offsetsTableLen := 0
		for _, s := range sizes {
			offsetsTableLen += s
		}
		cursor := headerSoFar + offsetsTableLen + bloomHeader
		changed := false
		for i, blob := range childBlobs {
			offsets[i] = cursor
			want := varint.Size(uint64(cursor))
			if want != sizes[i] {
				sizes[i] = want
				changed = true
			}
			cursor += len(blob)
		}
		if !changed {
			return offsets, nil
		}
	}
	return nil, errs.New(errs.Internal, "path index child offset layout did not converge")
}
