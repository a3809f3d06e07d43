package utils

import "testing"

func TestAlignTo(t *testing.T) {
	cases := []struct {
		val, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{5, 1, 5},
		{5, 0, 5},
	}

	for _, c := range cases {
		if got := AlignTo(c.val, c.align); got != c.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", c.val, c.align, got, c.want)
		}
	}
}

func TestSignExtend(t *testing.T) {
	if got := SignExtend(0xfff, 11); got != 0xffffffffffffffff {
		t.Errorf("SignExtend(0xfff, 11) = %#x, want -1", got)
	}
	if got := SignExtend(0x7ff, 11); got != 0x7ff {
		t.Errorf("SignExtend(0x7ff, 11) = %#x, want 0x7ff", got)
	}
}

func TestRemoveIf(t *testing.T) {
	elems := []int{1, 2, 3, 4, 5, 6}
	got := RemoveIf(elems, func(v int) bool { return v%2 == 0 })
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("RemoveIf = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RemoveIf = %v, want %v", got, want)
		}
	}
}

func TestMapSet(t *testing.T) {
	s := NewMapSet[string]()
	if s.Has("a") {
		t.Fatal("empty set should not contain a")
	}
	s.Add("a")
	if !s.Has("a") || s.Len() != 1 {
		t.Fatal("set should contain a after Add")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	Write[uint64](buf, 0x1122334455667788)
	if got := Read[uint64](buf); got != 0x1122334455667788 {
		t.Errorf("round trip = %#x", got)
	}
}
