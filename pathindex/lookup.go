package pathindex

import (
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/path"
	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/types"
)

// Lookup walks idx's node tree following p and returns the terminal node,
// giving O(depth) navigation instead of path.Evaluate's linear property
// scans and element-counted Next() walk against the live record (spec.md
// §4.12: "the index can be walked like a cursor... without linear
// property scans"). An object node with a bloom accelerator rejects a
// missing key without scanning its Prop children at all; array/column
// nodes index straight into their children slice. Lookup fails with
// errs.NotResolvable on the same mismatches path.Evaluate reports: a
// segment kind that doesn't match the node's container kind, an
// out-of-range index, or a missing key.
//
// idx must have been Bind-verified against the record the caller intends
// to read through the returned node; Lookup itself does not re-check
// that, since it never touches the record.
func Lookup(idx *Index, p path.Path) (*Node, error) {
	if len(p) == 0 {
		return nil, errs.New(errs.NotResolvable, "empty path")
	}
	n := idx.root
	for _, seg := range p {
		var err error
		n, err = descendNode(n, seg)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func descendNode(n *Node, seg path.Segment) (*Node, error) {
	if !n.IsContainer() {
		return nil, errs.New(errs.NotResolvable, "path continues past a scalar field")
	}
	kind := types.KindOf(n.fieldType)
	if seg.IsKey() {
		if kind != types.KindObject {
			return nil, errs.New(errs.NotResolvable, "segment expects an object")
		}
		return lookupKey(n, seg.KeyName())
	}
	if kind != types.KindArray && kind != types.KindColumn {
		return nil, errs.New(errs.NotResolvable, "segment expects an array or column")
	}
	i := seg.IndexValue()
	if i < 0 || i >= len(n.children) {
		return nil, errs.New(errs.NotResolvable, "index out of range")
	}
	return n.children[i], nil
}

// lookupKey resolves a Key segment against an object node's Prop
// children. A definite bloom-filter miss short-circuits straight to
// NotResolvable; otherwise it falls back to the first exact-match Prop,
// mirroring path.Evaluate's duplicate-key rule (spec.md §8-S5).
func lookupKey(n *Node, name string) (*Node, error) {
	if n.bloomFilter != nil && !n.bloomFilter.Test([]byte(name)) {
		return nil, errs.New(errs.NotResolvable, "key not found: "+name)
	}
	for _, c := range n.children {
		if c.keyName == name {
			return c, nil
		}
	}
	return nil, errs.New(errs.NotResolvable, "key not found: "+name)
}

// OpenCursor returns a record.Cursor positioned at n's field against rec,
// without walking Next() from an ancestor: a container node opens
// straight onto its own framing (ready for Next/AsArray/AsObject/
// AsColumn), and a scalar or column-element leaf opens a single-field
// pseudo-cursor ready for its As*/ValueIsNull accessors. It fails with
// errs.NotFound for a null/true/false leaf, whose marker alone is both
// its type and its value; read n.FieldType() directly for those instead.
func (n *Node) OpenCursor(rec *record.Record) (*record.Cursor, error) {
	if !n.hasOffset {
		return nil, errs.New(errs.NotFound, "node has no stored offset (null/true/false leaf)")
	}
	if n.IsContainer() {
		return rec.OpenContainerAt(n.recordOffset)
	}
	if n.kind == KindColumnIndex {
		width, ok := types.ColumnElementWidth(n.fieldType)
		if !ok {
			return nil, errs.New(errs.Internal, "column node has no element width")
		}
		return rec.OpenFieldAt(n.recordOffset, n.fieldType, width)
	}
	return rec.OpenFieldAt(n.recordOffset, 0, 0)
}
