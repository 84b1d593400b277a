// Package path implements the dot-path evaluator (spec.md §4.11): a
// compiled path is an ordered sequence of Key/Index segments, evaluated
// against a record's root array by opening a cursor and walking it one
// segment at a time.
package path

import (
	"strconv"
	"strings"

	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/types"
)

// Segment is one step of a compiled dot-path: either a Key(name) into an
// object or an Index(i) into an array/column.
type Segment struct {
	isKey bool
	key   string
	index int
}

// Key builds a property-name segment.
func Key(name string) Segment { return Segment{isKey: true, key: name} }

// Index builds a positional segment.
func Index(i int) Segment { return Segment{isKey: false, index: i} }

// IsKey reports whether s is a Key segment (as opposed to an Index one).
func (s Segment) IsKey() bool { return s.isKey }

// KeyName returns a Key segment's property name; meaningless on an Index
// segment.
func (s Segment) KeyName() string { return s.key }

// IndexValue returns an Index segment's position; meaningless on a Key
// segment.
func (s Segment) IndexValue() int { return s.index }

func (s Segment) String() string {
	if s.isKey {
		return s.key
	}
	return strconv.Itoa(s.index)
}

// Path is a compiled, ordered sequence of segments.
type Path []Segment

// Parse compiles a dot-separated path string ("a.0.b") into a Path. Each
// component is treated as an Index if it parses as a non-negative base-10
// integer, and as a Key otherwise. This module specifies what a compiled
// path looks like, not how it is compiled (spec.md §1); Parse is a
// convenience on top of that contract, not the contract itself; callers
// that build paths programmatically should prefer Key/Index directly.
func Parse(dotted string) Path {
	if dotted == "" {
		return nil
	}
	parts := strings.Split(dotted, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			p = append(p, Index(n))
			continue
		}
		p = append(p, Key(part))
	}
	return p
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.String()
	}
	return strings.Join(parts, ".")
}

// Evaluate walks p against rec's root array, returning the cursor
// positioned at the terminal field (the enclosing container cursor, for a
// mutating caller, is the cursor this terminal one was descended from via
// AsArray/AsObject/AsColumn, spec.md §4.11). It fails with
// errs.NotResolvable as soon as a segment's container kind doesn't match
// the segment kind, an index is out of range, or a key is missing.
func Evaluate(rec *record.Record, p Path) (*record.Cursor, error) {
	if len(p) == 0 {
		return nil, errs.New(errs.NotResolvable, "empty path")
	}
	cur, err := rec.OpenRoot()
	if err != nil {
		return nil, err
	}
	for i, seg := range p {
		if err := moveToSegment(cur, seg); err != nil {
			return nil, err
		}
		if i == len(p)-1 {
			return cur, nil
		}
		cur, err = descend(cur)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// moveToSegment advances cur, already open over a container, onto the
// field matching seg.
func moveToSegment(cur *record.Cursor, seg Segment) error {
	kind, _ := cur.ValuesInfo()
	if seg.isKey {
		if kind != types.KindObject {
			return errs.New(errs.NotResolvable, "segment expects an object")
		}
		return scanForKey(cur, seg.key)
	}
	if kind != types.KindArray && kind != types.KindColumn {
		return errs.New(errs.NotResolvable, "segment expects an array or column")
	}
	return scanForIndex(cur, seg.index)
}

// scanForKey linearly scans an object's properties for the first
// exact-byte-compare key match (spec.md §4.11, §8-S5: duplicate keys
// resolve to the first occurrence).
func scanForKey(cur *record.Cursor, name string) error {
	for {
		if err := cur.Next(); err != nil {
			return errs.New(errs.NotResolvable, "key not found: "+name)
		}
		k, err := cur.KeyName()
		if err != nil {
			return errs.Wrap(errs.NotResolvable, "reading key name", err)
		}
		if k == name {
			return nil
		}
	}
}

// scanForIndex advances an array/column cursor directly to position i.
func scanForIndex(cur *record.Cursor, i int) error {
	if i < 0 {
		return errs.New(errs.NotResolvable, "negative index")
	}
	for step := 0; step <= i; step++ {
		if err := cur.Next(); err != nil {
			return errs.New(errs.NotResolvable, "index out of range")
		}
	}
	return nil
}

// descend opens a nested cursor over the field cur currently sits on,
// dispatching to AsArray/AsObject/AsColumn by the field's actual kind.
func descend(cur *record.Cursor) (*record.Cursor, error) {
	mb, err := cur.FieldType()
	if err != nil {
		return nil, err
	}
	if !types.IsContainer(mb) {
		return nil, errs.New(errs.NotResolvable, "path continues past a scalar field")
	}
	switch types.KindOf(mb) {
	case types.KindObject:
		return cur.AsObject()
	case types.KindColumn:
		return cur.AsColumn()
	default:
		return cur.AsArray()
	}
}
