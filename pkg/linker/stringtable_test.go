package linker

import "testing"

func TestStrtabSectionAdd(t *testing.T) {
	s := NewStrtabSection(".strtab")
	off1 := s.Add("foo")
	off2 := s.Add("foo")
	if off1 == off2 {
		t.Fatalf("Add should not dedup: got same offset %d twice", off1)
	}
	if off1 != 1 {
		t.Errorf("first Add offset = %d, want 1 (after leading NUL)", off1)
	}
}

func TestStrtabSectionAddDedup(t *testing.T) {
	s := NewStrtabSection(".dynstr")
	off1 := s.AddDedup("libc.so.6")
	off2 := s.AddDedup("libc.so.6")
	if off1 != off2 {
		t.Errorf("AddDedup returned different offsets for the same string: %d != %d", off1, off2)
	}
	off3 := s.AddDedup("libm.so.6")
	if off3 == off1 {
		t.Errorf("AddDedup collapsed distinct strings to the same offset")
	}
}
