package record

import (
	"testing"

	"github.com/flashrecord/flashrecord/types"
)

func TestNewRecordHasEmptyRootArray(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	off, err := rec.RootOffset()
	if err != nil {
		t.Fatal(err)
	}
	c, err := newCursorAt(rec.Buffer(), off)
	if err != nil {
		t.Fatal(err)
	}
	if kind, n := c.ValuesInfo(); kind != types.KindArray || n != 0 {
		t.Fatalf("ValuesInfo() = (%v, %d), want (KindArray, 0)", kind, n)
	}
}

func TestKeyRoundTripEveryKind(t *testing.T) {
	tests := []Key{
		{Kind: types.KeyNone},
		{Kind: types.KeyAutoUnsigned, Unsigned: 42},
		{Kind: types.KeyUserUnsigned, Unsigned: 7},
		{Kind: types.KeyUserSigned, Signed: -9},
		{Kind: types.KeyUserString, Str: "widget-1"},
	}
	for _, want := range tests {
		rec, err := New(want)
		if err != nil {
			t.Fatalf("New(%+v): %v", want, err)
		}
		got, err := rec.Key()
		if err != nil {
			t.Fatalf("Key(): %v", err)
		}
		if !got.Equal(want) {
			t.Errorf("Key() = %+v, want %+v", got, want)
		}
	}
}

func TestCommitHashRoundTrip(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyAutoUnsigned, Unsigned: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.SetCommitHash(0xDEADBEEFCAFEBABE); err != nil {
		t.Fatal(err)
	}
	got, err := rec.CommitHash()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xDEADBEEFCAFEBABE {
		t.Fatalf("CommitHash() = %x, want %x", got, uint64(0xDEADBEEFCAFEBABE))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rec, err := New(Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	clone := rec.Clone()
	if err := clone.SetCommitHash(123); err != nil {
		t.Fatal(err)
	}
	origHash, err := rec.CommitHash()
	if err != nil {
		t.Fatal(err)
	}
	if origHash == 123 {
		t.Fatal("mutating the clone's commit hash leaked back to the original")
	}
}
