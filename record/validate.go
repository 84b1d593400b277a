package record

import (
	"github.com/flashrecord/flashrecord/buffer"
	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
)

// Validate checks the record's well-formedness (spec.md §3.3): a parse
// from offset 0 must yield a key block, an 8-byte commit hash, and a root
// array whose framing ends exactly at end-of-buffer. Any decode failure
// along the way, a non-array root, or trailing bytes past the root's end
// marker all report Corrupted.
func (r *Record) Validate() error {
	buf := r.buf
	saved := buf.Tell()
	defer func() { _ = buf.Seek(saved) }()

	_, hashOff, err := decodeKey(buf, 0)
	if err != nil {
		return errs.Wrap(errs.Corrupted, "malformed key block", err)
	}
	if err := buf.Seek(hashOff); err != nil {
		return errs.Wrap(errs.Corrupted, "key block overruns buffer", err)
	}
	if _, err := buffer.ReadTyped[uint64](buf); err != nil {
		return errs.Wrap(errs.Corrupted, "truncated commit hash", err)
	}

	mb, err := buf.PeekByte()
	if err != nil {
		return errs.Wrap(errs.Corrupted, "missing root array", err)
	}
	root := types.Marker(mb)
	if !types.IsContainer(root) || types.KindOf(root) != types.KindArray {
		return errs.New(errs.Corrupted, "root container is not an array")
	}
	if _, _, err := skipValue(buf); err != nil {
		return errs.Wrap(errs.Corrupted, "malformed root array", err)
	}
	if buf.Tell() != buf.Len() {
		return errs.New(errs.Corrupted, "trailing bytes after root array end marker")
	}
	return nil
}
