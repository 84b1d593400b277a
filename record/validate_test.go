package record

import (
	"testing"

	"github.com/flashrecord/flashrecord/errs"
	"github.com/flashrecord/flashrecord/types"
)

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	rec := buildNumbersRecord(t)
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate() = %v on a well-formed record", err)
	}
}

func TestValidateRejectsTruncatedBuffer(t *testing.T) {
	rec := buildNumbersRecord(t)
	raw := rec.Bytes()
	truncated := Open(raw[:len(raw)-1])
	if err := truncated.Validate(); err == nil {
		t.Fatal("Validate() accepted a buffer missing its root end marker")
	}
}

func TestValidateRejectsNonArrayRoot(t *testing.T) {
	rec := buildNumbersRecord(t)
	raw := make([]byte, len(rec.Bytes()))
	copy(raw, rec.Bytes())
	raw[17] = 0xEE // clobber the root array begin marker
	bad := Open(raw)
	err := bad.Validate()
	if err == nil {
		t.Fatal("Validate() accepted a record whose root is not an array")
	}
	if !errs.Is(err, errs.Corrupted) {
		t.Fatalf("Validate() error code = %v, want Corrupted", errs.CodeOf(err))
	}
}

func TestValidateRejectsTrailingBytes(t *testing.T) {
	rec := buildNumbersRecord(t)
	raw := append(append([]byte{}, rec.Bytes()...), 0x00)
	if err := Open(raw).Validate(); err == nil {
		t.Fatal("Validate() accepted trailing bytes after the root array")
	}
}

// Every fresh parse after a mutation burst must still land exactly at
// end-of-buffer.
func TestValidateHoldsAcrossMutationSequence(t *testing.T) {
	rec := buildNumbersRecord(t)

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if err := InsertAfter[uint16](c, types.U16, 300); err != nil {
		t.Fatal(err)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("after insert: %v", err)
	}

	c, err = rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetString("a considerably longer replacement value"); err != nil {
		t.Fatal(err)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("after type-changing update: %v", err)
	}

	c, err = rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("after remove: %v", err)
	}

	if err := rec.ShrinkToFit(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("after shrink: %v", err)
	}
}

func TestUpdateStringKeyRewritesInPlace(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyUserString, Str: "short"})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendU8(7); err != nil {
		t.Fatal(err)
	}

	if err := rec.UpdateStringKey("a-substantially-longer-record-key"); err != nil {
		t.Fatal(err)
	}
	key, err := rec.Key()
	if err != nil {
		t.Fatal(err)
	}
	if key.Str != "a-substantially-longer-record-key" {
		t.Fatalf("Key().Str = %q after update", key.Str)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("record malformed after key update: %v", err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if v, err := c.AsU8(); err != nil || v != 7 {
		t.Fatalf("element survived key update as (%d, %v), want (7, nil)", v, err)
	}
}

func TestUpdateStringKeyRejectsOtherKeyKinds(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyAutoUnsigned, Unsigned: 1})
	if err != nil {
		t.Fatal(err)
	}
	err = rec.UpdateStringKey("nope")
	if err == nil {
		t.Fatal("UpdateStringKey accepted a non-string key")
	}
	if !errs.Is(err, errs.TypeMismatch) {
		t.Fatalf("error code = %v, want TypeMismatch", errs.CodeOf(err))
	}
}
