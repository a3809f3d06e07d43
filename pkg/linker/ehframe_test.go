package linker

import "testing"

func TestEhFrameSectionAddCieDedups(t *testing.T) {
	e := NewEhFrameSection()
	c1 := e.AddCie([]byte{1, 2, 3}, "")
	c2 := e.AddCie([]byte{1, 2, 3}, "")
	if c1 != c2 {
		t.Error("identical CIE contents/personality should dedup to the same record")
	}
	if len(e.cies) != 1 {
		t.Errorf("expected 1 deduped CIE, got %d", len(e.cies))
	}
}

func TestEhFrameSectionAddCieDistinctPersonality(t *testing.T) {
	e := NewEhFrameSection()
	e.AddCie([]byte{1, 2, 3}, "")
	e.AddCie([]byte{1, 2, 3}, "__gxx_personality_v0")
	if len(e.cies) != 2 {
		t.Errorf("distinct personality routines should not dedup, got %d cies", len(e.cies))
	}
}

func TestEhFrameSectionSortedFdes(t *testing.T) {
	e := NewEhFrameSection()
	cie := e.AddCie([]byte{1}, "")
	e.AddFde(cie, nil, 300)
	e.AddFde(cie, nil, 100)
	e.AddFde(cie, nil, 200)

	sorted := e.SortedFdes()
	if len(sorted) != 3 {
		t.Fatalf("expected 3 fdes, got %d", len(sorted))
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].pc < sorted[i-1].pc {
			t.Fatalf("SortedFdes not sorted: %v", []uint64{sorted[0].pc, sorted[1].pc, sorted[2].pc})
		}
	}
	if sorted[0].pc != 100 || sorted[2].pc != 300 {
		t.Errorf("unexpected sort order: %v", []uint64{sorted[0].pc, sorted[1].pc, sorted[2].pc})
	}
}
