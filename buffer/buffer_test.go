package buffer

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	b := New()
	if err := b.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if b.Tell() != 5 {
		t.Fatalf("Tell() = %d, want 5", b.Tell())
	}
	if err := b.Seek(0); err != nil {
		t.Fatal(err)
	}
	got, err := b.Read(5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read() = %q, want %q", got, "hello")
	}
}

func TestSaveRestorePositionNests(t *testing.T) {
	b := New()
	_ = b.Write([]byte("0123456789"))
	_ = b.Seek(2)
	b.SavePosition()
	_ = b.Seek(7)
	b.SavePosition()
	_ = b.Seek(9)

	if err := b.RestorePosition(); err != nil {
		t.Fatal(err)
	}
	if b.Tell() != 7 {
		t.Fatalf("Tell() = %d, want 7", b.Tell())
	}

	if err := b.RestorePosition(); err != nil {
		t.Fatal(err)
	}
	if b.Tell() != 2 {
		t.Fatalf("Tell() = %d, want 2", b.Tell())
	}

	if err := b.RestorePosition(); err == nil {
		t.Fatal("RestorePosition on empty stack should fail")
	}
}

func TestReadPastEndFailsOutOfBounds(t *testing.T) {
	b := New()
	_ = b.Write([]byte("ab"))
	_ = b.Seek(0)
	if _, err := b.Read(10); err == nil {
		t.Fatal("expected OutOfBounds reading past end")
	}
}

func TestInsertAtShiftsTailAndCursor(t *testing.T) {
	b := New()
	_ = b.Write([]byte("ACE"))
	_ = b.Seek(3)

	if _, err := b.InsertAt(1, []byte("BD")); err != nil {
		t.Fatal(err)
	}
	if string(b.Bytes()) != "ABDCE" {
		t.Fatalf("Bytes() = %q, want %q", b.Bytes(), "ABDCE")
	}
	if b.Tell() != 5 {
		t.Fatalf("cursor after insert = %d, want 5 (shifted by 2)", b.Tell())
	}
}

func TestDeleteAtShrinksBuffer(t *testing.T) {
	b := New()
	_ = b.Write([]byte("ABDCE"))

	if _, err := b.DeleteAt(1, 2); err != nil {
		t.Fatal(err)
	}
	if string(b.Bytes()) != "ACE" {
		t.Fatalf("Bytes() = %q, want %q", b.Bytes(), "ACE")
	}
}

func TestTypedRoundTrip(t *testing.T) {
	b := New()
	if err := WriteTyped[uint64](b, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	_ = b.Seek(0)
	v, err := ReadTyped[uint64](b)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("ReadTyped = %x, want deadbeef", v)
	}
}

func TestGrowToPreservesBytes(t *testing.T) {
	b := New(WithInitialCapacity(2))
	_ = b.Write([]byte("abcdefgh"))
	if string(b.Bytes()) != "abcdefgh" {
		t.Fatalf("Bytes() = %q after growth", b.Bytes())
	}
}

func TestGrowPastMaxSizeFailsCapacity(t *testing.T) {
	b := New()
	if err := b.GrowTo(maxBufferSize + 1); err == nil {
		t.Fatal("expected Capacity error growing past the maximum buffer size")
	}
}

func TestShrinkToFit(t *testing.T) {
	b := New(WithInitialCapacity(256))
	_ = b.Write([]byte("x"))
	b.ShrinkToFit()
	if cap(b.Bytes()) != 1 {
		t.Fatalf("cap() = %d after ShrinkToFit, want 1", cap(b.Bytes()))
	}
}
