package pathindex

import "github.com/flashrecord/flashrecord/types"

// Visitor receives callbacks during a depth-first Walk of a Node tree.
// Any method may be left nil; Walk skips nil callbacks.
type Visitor struct {
	VisitProp        func(n *Node)
	VisitArrayIndex  func(n *Node)
	VisitColumnIndex func(n *Node)
	VisitObjectBegin func(n *Node)
	VisitObjectEnd   func(n *Node)
	VisitArrayBegin  func(n *Node)
	VisitArrayEnd    func(n *Node)
}

// Walk traverses root depth-first, invoking v's callbacks in document
// order. Object and array/column containers fire their Begin callback
// before descending into children and their End callback after, so a
// Visitor can track nesting depth or build a parallel structure. The root
// occupies no slot in a parent, so it fires only its Begin/End callbacks,
// never VisitProp/VisitArrayIndex/VisitColumnIndex.
func Walk(root *Node, v Visitor) {
	walkNode(root, v, true)
}

func walkNode(n *Node, v Visitor, isRoot bool) {
	if n == nil {
		return
	}

	kind := n.kind
	if isRoot {
		kind = 0
	}
	switch kind {
	case KindProp:
		if v.VisitProp != nil {
			v.VisitProp(n)
		}
	case KindArrayIndex:
		if v.VisitArrayIndex != nil {
			v.VisitArrayIndex(n)
		}
	case KindColumnIndex:
		if v.VisitColumnIndex != nil {
			v.VisitColumnIndex(n)
		}
	}

	if !n.IsContainer() {
		return
	}

	// Determined from the node's own field type, not its children, so an
	// empty object still fires VisitObjectBegin/End rather than being
	// mistaken for an empty array.
	isObject := types.KindOf(n.fieldType) == types.KindObject
	if isObject {
		if v.VisitObjectBegin != nil {
			v.VisitObjectBegin(n)
		}
	} else {
		if v.VisitArrayBegin != nil {
			v.VisitArrayBegin(n)
		}
	}

	for _, child := range n.children {
		walkNode(child, v, false)
	}

	if isObject {
		if v.VisitObjectEnd != nil {
			v.VisitObjectEnd(n)
		}
	} else {
		if v.VisitArrayEnd != nil {
			v.VisitArrayEnd(n)
		}
	}
}
