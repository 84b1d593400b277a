package record

import (
	"bytes"
	"testing"

	"github.com/flashrecord/flashrecord/types"
)

// buildNumbersRecord builds a record keyed by user-unsigned 42 holding
// [1(u8), "hi", null, true].
func buildNumbersRecord(t *testing.T) *Record {
	t.Helper()
	rec, err := New(Key{Kind: types.KeyUserUnsigned, Unsigned: 42})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendU8(1); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendString("hi"); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendNull(); err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendBool(true); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestWireLayoutOfSmallMixedArray(t *testing.T) {
	rec := buildNumbersRecord(t)
	want := []byte{
		0x02,                                           // user-unsigned key marker
		0x2a, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // key payload 42
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // commit hash placeholder
		'[', 0x04, 0x08, // root array: count 4, capacity = the 8 bytes its elements occupy
		byte(types.U8), 0x01,
		byte(types.String), 0x02, 'h', 'i',
		byte(types.Null),
		byte(types.True),
		']',
	}
	if !bytes.Equal(rec.Bytes(), want) {
		t.Fatalf("wire bytes mismatch:\n got %x\nwant %x", rec.Bytes(), want)
	}
}

func TestInsertAfterFirstElementShiftsTailAndBumpsCount(t *testing.T) {
	rec := buildNumbersRecord(t)

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	mb, err := c.FieldType()
	if err != nil || mb != types.U8 {
		t.Fatalf("FieldType() = (%v, %v), want (U8, nil)", mb, err)
	}
	if err := InsertAfter[uint16](c, types.U16, 300); err != nil {
		t.Fatal(err)
	}

	raw := rec.Bytes()
	if raw[18] != 0x05 {
		t.Fatalf("root count varint = %#x, want 0x05", raw[18])
	}
	if raw[22] != byte(types.U16) || raw[23] != 0x2c || raw[24] != 0x01 {
		t.Fatalf("inserted field bytes = %x, want %x 2c 01", raw[22:25], byte(types.U16))
	}

	fresh, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.Next(); err != nil {
		t.Fatal(err)
	}
	if v, err := fresh.AsU8(); err != nil || v != 1 {
		t.Fatalf("element 0 = (%d, %v), want (1, nil)", v, err)
	}
	if err := fresh.Next(); err != nil {
		t.Fatal(err)
	}
	if v, err := fresh.AsU16(); err != nil || v != 300 {
		t.Fatalf("element 1 = (%d, %v), want (300, nil)", v, err)
	}
	if err := fresh.Next(); err != nil {
		t.Fatal(err)
	}
	if s, err := fresh.AsString(); err != nil || s != "hi" {
		t.Fatalf("element 2 = (%q, %v), want (\"hi\", nil)", s, err)
	}
}

func TestUpdateNullToFloatShiftsTailRight(t *testing.T) {
	rec := buildNumbersRecord(t)
	lenBefore := rec.Buffer().Len()

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ { // lands on the null at index 2
		if err := c.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if err := SetAt[float32](c, types.Float, 3.5); err != nil {
		t.Fatal(err)
	}
	if got := rec.Buffer().Len(); got != lenBefore+4 {
		t.Fatalf("buffer length = %d, want %d (marker stays, payload adds 4)", got, lenBefore+4)
	}
	if v, err := c.AsFloat(); err != nil || v != 3.5 {
		t.Fatalf("AsFloat() = (%v, %v), want (3.5, nil)", v, err)
	}

	fresh, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if _, n := fresh.ValuesInfo(); n != 4 {
		t.Fatalf("element count changed on update: %d, want 4", n)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("record no longer well-formed after update: %v", err)
	}
}

func TestInsertPropAfterKeepsPairOrder(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	obj, err := bld.AppendContainer(types.ObjectBegin)
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendKeyed("a"); err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendU8(1); err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendKeyed("c"); err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendU8(3); err != nil {
		t.Fatal(err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	nested, err := c.AsObject()
	if err != nil {
		t.Fatal(err)
	}
	if err := nested.Next(); err != nil { // on pair "a"
		t.Fatal(err)
	}
	if err := InsertPropAfter[uint8](nested, "b", types.U8, 2); err != nil {
		t.Fatal(err)
	}

	wantKeys := []string{"a", "b", "c"}
	wantVals := []uint8{1, 2, 3}
	fresh, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.Next(); err != nil {
		t.Fatal(err)
	}
	pairs, err := fresh.AsObject()
	if err != nil {
		t.Fatal(err)
	}
	for i := range wantKeys {
		if err := pairs.Next(); err != nil {
			t.Fatal(err)
		}
		k, err := pairs.KeyName()
		if err != nil || k != wantKeys[i] {
			t.Fatalf("pair %d key = (%q, %v), want (%q, nil)", i, k, err, wantKeys[i])
		}
		v, err := pairs.AsU8()
		if err != nil || v != wantVals[i] {
			t.Fatalf("pair %d value = (%d, %v), want (%d, nil)", i, v, err, wantVals[i])
		}
	}
}

func TestInsertColumnValueAfterKeepsDensity(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	col, err := bld.AppendContainer(types.ColumnU16Begin)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []uint16{10, 30} {
		if err := col.AppendColumnValue([]byte{byte(v), byte(v >> 8)}); err != nil {
			t.Fatal(err)
		}
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	colCursor, err := c.AsColumn()
	if err != nil {
		t.Fatal(err)
	}
	if err := colCursor.Next(); err != nil { // on slot 0
		t.Fatal(err)
	}
	if err := colCursor.InsertColumnValueAfter([]byte{20, 0}); err != nil {
		t.Fatal(err)
	}

	after, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := after.Next(); err != nil {
		t.Fatal(err)
	}
	afterCol, err := after.AsColumn()
	if err != nil {
		t.Fatal(err)
	}
	vals, err := ColumnValues[uint16](afterCol)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[0] != 10 || vals[1] != 20 || vals[2] != 30 {
		t.Fatalf("ColumnValues() = %v, want [10 20 30]", vals)
	}
}

func TestColumnPayloadIsExactlyCountTimesWidth(t *testing.T) {
	build := func(values []byte) int {
		rec, err := New(Key{Kind: types.KeyNone})
		if err != nil {
			t.Fatal(err)
		}
		bld, err := rec.NewBuilder()
		if err != nil {
			t.Fatal(err)
		}
		col, err := bld.AppendContainer(types.ColumnU8Begin)
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range values {
			if err := col.AppendColumnValue([]byte{v}); err != nil {
				t.Fatal(err)
			}
		}
		return rec.Buffer().Len()
	}

	empty := build(nil)
	full := build([]byte{10, 20, types.NullSentinel8, 40})
	if full-empty != 4 {
		t.Fatalf("4 one-byte column values grew the buffer by %d bytes, want 4 (no per-element markers)", full-empty)
	}
}

func TestInsertAfterRejectsWrongContainerKind(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	bld, err := rec.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	obj, err := bld.AppendContainer(types.ObjectBegin)
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendKeyed("a"); err != nil {
		t.Fatal(err)
	}
	if err := obj.AppendU8(1); err != nil {
		t.Fatal(err)
	}

	c, err := rec.OpenRoot()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Next(); err != nil {
		t.Fatal(err)
	}
	nested, err := c.AsObject()
	if err != nil {
		t.Fatal(err)
	}
	if err := nested.Next(); err != nil {
		t.Fatal(err)
	}
	if err := InsertAfter[uint8](nested, types.U8, 9); err == nil {
		t.Fatal("keyless insert into an object cursor should fail with TypeMismatch")
	}
}
