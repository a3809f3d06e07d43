package linker

import "debug/elf"

// CommonSection is the allocator for SHN_COMMON (tentative-definition)
// symbols: every common symbol that wins symbol resolution is assigned a
// slot in this zero-initialized, uninitialized-data block, st_size bytes
// long and aligned to the symbol's own alignment requirement (spec.md §4.17
// "BSS/common-symbol allocator").
type CommonSection struct {
	Chunk
	syms []*Symbol
}

func NewCommonSection(name string) *CommonSection {
	c := &CommonSection{Chunk: NewChunk()}
	c.Name = name
	c.Shdr.Type = uint32(elf.SHT_NOBITS)
	c.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	c.Shdr.AddrAlign = 1
	return c
}

// Add reserves size bytes aligned to align for sym, returning the
// symbol's assigned offset within the section.
func (c *CommonSection) Add(sym *Symbol, size, align uint64) uint64 {
	if align > c.Shdr.AddrAlign {
		c.Shdr.AddrAlign = align
	}
	offset := alignUp(c.Shdr.Size, align)
	c.Shdr.Size = offset + size
	c.syms = append(c.syms, sym)
	return offset
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func (c *CommonSection) IsEmpty() bool { return c.Shdr.Size == 0 }

// NOBITS sections never contribute file bytes; UpdateShdr/CopyBuf stay
// the Chunk defaults (size already tracked incrementally by Add, and
// CopyBuf is a no-op inherited from Chunk).
