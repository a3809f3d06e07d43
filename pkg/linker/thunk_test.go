package linker

import "testing"

func TestThunkSectionGetOrCreateDedups(t *testing.T) {
	th := NewThunkSection()
	target := NewSymbol("far_away")

	addr1 := th.GetOrCreate(target)
	addr2 := th.GetOrCreate(target)
	if addr1 != addr2 {
		t.Errorf("GetOrCreate returned different addresses for the same target: %d != %d", addr1, addr2)
	}
	if len(th.entries) != 1 {
		t.Errorf("expected a single thunk entry, got %d", len(th.entries))
	}
}

func TestThunkSectionGetOrCreateDistinctTargets(t *testing.T) {
	th := NewThunkSection()
	a := NewSymbol("a")
	b := NewSymbol("b")

	addrA := th.GetOrCreate(a)
	addrB := th.GetOrCreate(b)
	if addrA == addrB {
		t.Errorf("distinct targets got the same thunk address")
	}
	if len(th.entries) != 2 {
		t.Errorf("expected two thunk entries, got %d", len(th.entries))
	}
}

func TestThunkSectionUpdateShdr(t *testing.T) {
	th := NewThunkSection()
	th.GetOrCreate(NewSymbol("a"))
	th.GetOrCreate(NewSymbol("b"))
	th.UpdateShdr(nil)
	if th.Shdr.Size != 2*thunkEntrySize {
		t.Errorf("Shdr.Size = %d, want %d", th.Shdr.Size, 2*thunkEntrySize)
	}
}
