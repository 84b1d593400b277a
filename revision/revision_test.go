package revision

import (
	"testing"

	"github.com/flashrecord/flashrecord/record"
	"github.com/flashrecord/flashrecord/types"
)

func TestBeginLeavesBaseUntouchedOnAbandon(t *testing.T) {
	base, err := record.New(record.Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	if err := base.SetCommitHash(111); err != nil {
		t.Fatal(err)
	}

	rev, err := Begin(base)
	if err != nil {
		t.Fatal(err)
	}
	work, err := rev.Record()
	if err != nil {
		t.Fatal(err)
	}
	if err := work.SetCommitHash(999); err != nil {
		t.Fatal(err)
	}
	rev.Abandon()

	got, err := base.CommitHash()
	if err != nil {
		t.Fatal(err)
	}
	if got != 111 {
		t.Fatalf("base commit hash changed after Abandon: got %d, want 111", got)
	}
}

func TestEndRecomputesCommitHashAndVerifies(t *testing.T) {
	base, err := record.New(record.Key{Kind: types.KeyAutoUnsigned, Unsigned: 1})
	if err != nil {
		t.Fatal(err)
	}

	rev, err := Begin(base)
	if err != nil {
		t.Fatal(err)
	}
	work, err := rev.Record()
	if err != nil {
		t.Fatal(err)
	}
	bld, err := work.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bld.AppendString("hi"); err != nil {
		t.Fatal(err)
	}

	final, err := rev.End()
	if err != nil {
		t.Fatal(err)
	}
	if rev.State() != Committed {
		t.Fatalf("State() = %v, want Committed", rev.State())
	}

	ok, err := Verify(final)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Verify() = false after End recomputed the commit hash")
	}
}

func TestSameEditSequenceYieldsSameCommitHash(t *testing.T) {
	build := func() uint64 {
		base, err := record.New(record.Key{Kind: types.KeyUserUnsigned, Unsigned: 9})
		if err != nil {
			t.Fatal(err)
		}
		rev, err := Begin(base)
		if err != nil {
			t.Fatal(err)
		}
		work, err := rev.Record()
		if err != nil {
			t.Fatal(err)
		}
		bld, err := work.NewBuilder()
		if err != nil {
			t.Fatal(err)
		}
		if err := bld.AppendU8(1); err != nil {
			t.Fatal(err)
		}
		if err := bld.AppendString("same"); err != nil {
			t.Fatal(err)
		}
		c, err := work.OpenRoot()
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Next(); err != nil {
			t.Fatal(err)
		}
		if err := c.Remove(); err != nil {
			t.Fatal(err)
		}
		final, err := rev.End()
		if err != nil {
			t.Fatal(err)
		}
		h, err := final.CommitHash()
		if err != nil {
			t.Fatal(err)
		}
		return h
	}

	if a, b := build(), build(); !HashesEqual(a, b) {
		t.Fatalf("identical edit sequences diverged: %x vs %x", a, b)
	}
}

func TestRecordFailsOutsideEditingState(t *testing.T) {
	base, err := record.New(record.Key{Kind: types.KeyNone})
	if err != nil {
		t.Fatal(err)
	}
	rev, err := Begin(base)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rev.End(); err != nil {
		t.Fatal(err)
	}
	if _, err := rev.Record(); err == nil {
		t.Fatal("expected Record() to fail once the revision is committed")
	}
}
