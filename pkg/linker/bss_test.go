package linker

import "testing"

func TestCommonSectionAdd(t *testing.T) {
	c := NewCommonSection(".bss")
	sym1 := NewSymbol("a")
	sym2 := NewSymbol("b")

	off1 := c.Add(sym1, 4, 4)
	if off1 != 0 {
		t.Errorf("first Add offset = %d, want 0", off1)
	}

	off2 := c.Add(sym2, 8, 8)
	if off2 != 8 {
		t.Errorf("second Add offset = %d, want 8 (aligned up from 4)", off2)
	}

	if c.Shdr.Size != 16 {
		t.Errorf("Shdr.Size = %d, want 16", c.Shdr.Size)
	}
	if c.Shdr.AddrAlign != 8 {
		t.Errorf("Shdr.AddrAlign = %d, want 8", c.Shdr.AddrAlign)
	}
}

func TestCommonSectionIsEmpty(t *testing.T) {
	c := NewCommonSection(".tbss")
	if !c.IsEmpty() {
		t.Fatal("fresh CommonSection should be empty")
	}
	c.Add(NewSymbol("x"), 1, 1)
	if c.IsEmpty() {
		t.Fatal("CommonSection with a reserved symbol should not be empty")
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, align, want uint64 }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{5, 0, 5},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.align); got != c.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.v, c.align, got, c.want)
		}
	}
}
