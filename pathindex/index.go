package pathindex

import (
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/varint"
)

// defaultBloomThreshold is the property count at or above which an object's Prop
// children get a bloom-filter accelerator alongside them (spec.md §4.12
// SUPPLEMENTED FEATURES). 32 mirrors the point the teacher's sst index
// switches from linear block scans to a sparse index.
const defaultBloomThreshold = 32

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	bloomThreshold int
}

// WithBloomThreshold overrides the property count that triggers a bloom
// accelerator for an object node. A threshold of 0 disables bloom filters
// entirely.
func WithBloomThreshold(n int) Option {
	return func(c *buildConfig) { c.bloomThreshold = n }
}

// Index is a path index built against one record at one point in time. It
// must be Bind-verified against a record before use: a record that has
// been edited since the index was built will fail the key/commit-hash
// check in Bind, because the index's offsets no longer describe it.
type Index struct {
	key            record.Key
	commitHash     uint64
	root           *Node
	bloomThreshold int
}

// Build walks rec and captures its key and commit hash, producing an
// Index that Bind can later verify against a (possibly different) record.
func Build(rec *record.Record, opts ...Option) (*Index, error) {
	cfg := buildConfig{bloomThreshold: defaultBloomThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	key, err := rec.Key()
	if err != nil {
		return nil, err
	}
	hash, err := rec.CommitHash()
	if err != nil {
		return nil, err
	}
	root, err := BuildTree(rec)
	if err != nil {
		return nil, err
	}
	AttachBloomFilters(root, cfg.bloomThreshold)
	return &Index{key: key, commitHash: hash, root: root, bloomThreshold: cfg.bloomThreshold}, nil
}

// Root returns the index's root node (the record's root array).
func (idx *Index) Root() *Node { return idx.root }

// Flatten serializes the index to its wire form: the key block, the
// 8-byte commit hash, then the node tree (spec.md §4.12).
func (idx *Index) Flatten() ([]byte, error) {
	buf := newFlattenBuffer()
	if err := writeKeyAndHash(buf, idx.key, idx.commitHash); err != nil {
		return nil, err
	}
	rootBlob, err := renderNode(idx.root)
	if err != nil {
		return nil, err
	}
	if err := buf.Write(rootBlob); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Bind verifies idx was built from rec's current contents (matching key
// and commit hash) before trusting its offsets. A bloom accelerator, if
// present, is never part of this check: it is only ever a fast-reject
// hint for Lookup, degrading to a full scan if missing or wrong.
//
// On success Bind also reads every Prop node's key name from rec at the
// node's stored key offset: the flattened wire form carries key offsets
// only, so an Index returned by Load has no key names until it is bound.
func Bind(idx *Index, rec *record.Record) error {
	key, err := rec.Key()
	if err != nil {
		return err
	}
	if !idx.key.Equal(key) {
		return errs.New(errs.NotIndexed, "path index key does not match record")
	}
	hash, err := rec.CommitHash()
	if err != nil {
		return err
	}
	if idx.commitHash != hash {
		return errs.New(errs.NotIndexed, "path index commit hash does not match record: record was edited after the index was built")
	}
	data := rec.Bytes()
	var bad error
	Walk(idx.root, Visitor{VisitProp: func(n *Node) {
		if bad != nil {
			return
		}
		if n.keyOffset < 0 || n.keyOffset >= len(data) {
			bad = errs.New(errs.Corrupted, "path index key offset lies outside the record")
			return
		}
		l, w, err := varint.DecodeBytes(data[n.keyOffset:])
		if err != nil || n.keyOffset+w+int(l) > len(data) {
			bad = errs.New(errs.Corrupted, "path index key offset does not point at a key")
			return
		}
		n.keyName = string(data[n.keyOffset+w : n.keyOffset+w+int(l)])
	}})
	return bad
}
