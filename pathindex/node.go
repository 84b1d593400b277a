// Package pathindex implements the secondary, offset-addressed index that
// mirrors a record's tree (spec.md §4.12): a depth-first node tree built
// once, flattened to its own buffer, and later bound back to a record for
// O(depth) dot-path navigation without linear property scans.
package pathindex

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/types"
)

// NodeKind is the closed set of path-index node kinds, one per spec.md
// §4.12 wire kind-marker.
type NodeKind byte

const (
	KindProp        NodeKind = 'P'
	KindArrayIndex  NodeKind = 'a'
	KindColumnIndex NodeKind = 'A'
)

// Node is one entry in the in-memory tree Build produces, before Flatten
// serializes it.
type Node struct {
	kind      NodeKind
	fieldType types.Marker

	// recordOffset is the value's byte offset in the source record. It is
	// absent (hasOffset == false) for null/true/false fields, whose type
	// alone is the complete value (spec.md §4.12).
	recordOffset int
	hasOffset    bool

	keyName      string // Prop only
	keyOffset    int    // Prop only: offset of the key-length varint in the record
	position     int    // ArrayIndex/ColumnIndex only

	children []*Node // populated for container-valued nodes; nil for leaves

	// bloomFilter accelerates a Key-segment Lookup over a wide object: a
	// definite Test() miss lets Lookup skip the linear scan entirely. It is
	// never consulted by Bind and degrades to a plain scan if nil (too few
	// properties, threshold disabled, or a Load that found no filter
	// bytes).
	bloomFilter *bloom.BloomFilter
}

// Kind reports the node's wire kind.
func (n *Node) Kind() NodeKind { return n.kind }

// FieldType reports the field type the node describes.
func (n *Node) FieldType() types.Marker { return n.fieldType }

// Offset returns the node's byte offset into the bound record, and false
// if the node is a null/true/false leaf that carries no stored offset.
func (n *Node) Offset() (int, bool) { return n.recordOffset, n.hasOffset }

// KeyName returns a Prop node's property name.
func (n *Node) KeyName() string { return n.keyName }

// Position returns an ArrayIndex/ColumnIndex node's position within its
// container.
func (n *Node) Position() int { return n.position }

// Children returns the node's children, or nil for a leaf.
func (n *Node) Children() []*Node { return n.children }

// IsContainer reports whether the node is itself a container's framing
// node (as opposed to a scalar leaf, or a single element within a
// column). A column's per-element ColumnIndex nodes carry the same
// fieldType as the column's own container node (spec.md §4.3 gives a
// column only one marker, for both), so fieldType alone cannot tell them
// apart; children being non-nil can, since only the container's own node
// is ever built with a children slice (possibly empty).
func (n *Node) IsContainer() bool { return n.children != nil }

// BuildTree walks rec depth-first and returns the root node of its
// path-index tree (the root array itself), per spec.md §4.12. Most
// callers want Build instead, which also captures the key and commit hash
// an Index needs for later Bind verification.
func BuildTree(rec *record.Record) (*Node, error) {
	off, err := rec.RootOffset()
	if err != nil {
		return nil, err
	}
	cur, err := rec.OpenRoot()
	if err != nil {
		return nil, err
	}
	return buildArrayLikeNode(cur, off)
}

// buildArrayLikeNode builds the node for an array or column cursor's
// container together with its children. For a nested array/column the
// caller then overwrites the container node's kind (and position) to
// match its slot in the parent.
func buildArrayLikeNode(cur *record.Cursor, containerOffset int) (*Node, error) {
	kind, count := cur.ValuesInfo()
	self := &Node{
		kind:         containerNodeKind(kind),
		fieldType:    cur.ContainerMarker(),
		recordOffset: containerOffset,
		hasOffset:    true,
		children:     make([]*Node, 0, count),
	}
	for i := 0; i < count; i++ {
		if err := cur.Next(); err != nil {
			return nil, err
		}
		var child *Node
		var err error
		if kind == types.KindColumn {
			child, err = buildColumnLeaf(cur, i)
		} else {
			child, err = buildValueNode(cur)
			if err == nil {
				child.kind = KindArrayIndex
				child.position = i
			}
		}
		if err != nil {
			return nil, err
		}
		self.children = append(self.children, child)
	}
	return self, nil
}

// AttachBloomFilters walks root and builds a bloom filter of key names for
// every object node with at least threshold properties. A threshold of 0
// (or a negative value) disables bloom filters entirely, leaving every
// node's bloomFilter nil.
func AttachBloomFilters(root *Node, threshold int) {
	if threshold <= 0 {
		return
	}
	Walk(root, Visitor{
		VisitObjectBegin: func(n *Node) {
			if len(n.children) < threshold {
				return
			}
			f := bloom.NewWithEstimates(uint(len(n.children)), 0.01)
			for _, c := range n.children {
				f.Add([]byte(c.keyName))
			}
			n.bloomFilter = f
		},
	})
}

func containerNodeKind(k types.Kind) NodeKind {
	if k == types.KindColumn {
		return KindColumnIndex
	}
	return KindArrayIndex
}

// buildObjectNode builds the Prop children of an object cursor.
func buildObjectNode(cur *record.Cursor, containerOffset int) (*Node, error) {
	_, count := cur.ValuesInfo()
	self := &Node{
		kind:         KindProp, // placeholder overwritten by caller for the container itself
		fieldType:    cur.ContainerMarker(),
		recordOffset: containerOffset,
		hasOffset:    true,
		children:     make([]*Node, 0, count),
	}
	for i := 0; i < count; i++ {
		if err := cur.Next(); err != nil {
			return nil, err
		}
		keyName, err := cur.KeyName()
		if err != nil {
			return nil, err
		}
		keyOff, err := cur.KeyOffset()
		if err != nil {
			return nil, err
		}
		child, err := buildValueNode(cur)
		if err != nil {
			return nil, err
		}
		child.kind = KindProp
		child.keyName = keyName
		child.keyOffset = keyOff
		self.children = append(self.children, child)
	}
	return self, nil
}

func buildColumnLeaf(cur *record.Cursor, position int) (*Node, error) {
	off, err := cur.Tell()
	if err != nil {
		return nil, err
	}
	return &Node{
		kind:         KindColumnIndex,
		fieldType:    cur.ContainerMarker(),
		recordOffset: off,
		hasOffset:    true,
		position:     position,
	}, nil
}

// buildValueNode builds the node for the field cur currently sits on,
// recursing into a fresh nested cursor if it is a container. The
// returned node's kind is left at its zero value; callers (buildObjectNode
// for Prop, buildArrayLikeNode for ArrayIndex) set it appropriately.
func buildValueNode(cur *record.Cursor) (*Node, error) {
	mb, err := cur.FieldType()
	if err != nil {
		return nil, err
	}
	off, err := cur.Tell()
	if err != nil {
		return nil, err
	}

	if !types.IsContainer(mb) {
		n := &Node{fieldType: mb}
		if mb != types.Null && mb != types.True && mb != types.False {
			n.recordOffset = off
			n.hasOffset = true
		}
		return n, nil
	}

	switch types.KindOf(mb) {
	case types.KindObject:
		nested, err := cur.AsObject()
		if err != nil {
			return nil, err
		}
		return buildObjectNode(nested, off)
	case types.KindColumn:
		nested, err := cur.AsColumn()
		if err != nil {
			return nil, err
		}
		return buildArrayLikeNode(nested, off)
	default:
		nested, err := cur.AsArray()
		if err != nil {
			return nil, err
		}
		return buildArrayLikeNode(nested, off)
	}
}
