package record

import (
	"testing"

	"github.com/flashrecord/flashrecord/types"
)

func TestEnsureCapacityMakesAppendsShiftFree(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bld.EnsureCapacity(64); err != nil {
		t.Fatal(err)
	}
	lenReserved := rec.Buffer().Len()

	if err := bld.AppendU8(1); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendString("inside the reservation"); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendNull(); err != nil {
		t.Fatal(err)
	}
	if got := rec.Buffer().Len(); got != lenReserved {
		t.Fatalf("appends inside reserved capacity shifted the buffer: len %d -> %d", lenReserved, got)
	}
	if err := rec.Validate(); err != nil {
		t.Fatal(err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if v, err := c.AsU8(); err != nil || v != 1 {
		t.Fatalf("AsU8() = (%d, %v), want (1, nil)", v, err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if s, err := c.AsString(); err != nil || s != "inside the reservation" {
		t.Fatalf("AsString() = (%q, %v)", s, err)
	}
}

func TestShrinkReclaimsReservedSlack(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bld.EnsureCapacity(128); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendU8(7); err != nil {
		t.Fatal(err)
	}
	bloated := rec.Buffer().Len()

	if err := rec.ShrinkToFit(); err != nil {
		t.Fatal(err)
	}
	if got := rec.Buffer().Len(); got >= bloated {
		t.Fatalf("ShrinkToFit did not reclaim reserved slack: len %d, was %d", got, bloated)
	}
	if err := rec.Validate(); err != nil {
		t.Fatal(err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	if v, err := c.AsU8(); err != nil || v != 7 {
		t.Fatalf("AsU8() = (%d, %v), want (7, nil)", v, err)
	}
}

// Growth inside a nested container must widen every enclosing capacity
// varint, or a fresh parse would find the enclosing frame shorter than
// its contents.
func TestNestedGrowthWidensEnclosingCapacities(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	outer, err := bld.AppendContainer(types.ObjectBegin)
	if err != nil {
		t.Fatal(err)
	}
	if err := outer.AppendKeyed("items"); err != nil {
		t.Fatal(err)
	}
	inner, err := outer.AppendContainer(types.ArrayBegin)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		if err := inner.AppendU32(uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("nested growth broke an enclosing frame: %v", err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	obj, err := c.AsObject()
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.Next(); err != nil {
		t.Fatal(err)
	}
	arr, err := obj.AsArray()
	if err != nil {
		t.Fatal(err)
	}
	if _, n := arr.ValuesInfo(); n != 40 {
		t.Fatalf("inner array length = %d, want 40", n)
	}
	for i := 0; i < 40; i++ {
		if err := arr.Next(); err != nil {
			t.Fatal(err)
		}
		if v, err := arr.AsU32(); err != nil || v != uint32(i) {
			t.Fatalf("element %d = (%d, %v)", i, v, err)
		}
	}
}
