package linker

import (
	"debug/elf"
	"math"
)

// capRelocEntry mirrors __cap_relocs as CHERI-MIPS128 clang emits it:
// five 64-bit little-endian fields regardless of the target's overall
// big-endian convention, since the compiler writes this table itself
// before the linker ever sees it (spec.md §4.14, original_source's
// CheriCapRelocsSection).
type capRelocEntry struct {
	Loc        uint64
	Obj        uint64
	Offset     uint64
	Size       uint64
	Permissions uint64
}

const capRelocUndefinedWeakFallback = ^uint64(0) // all-ones sentinel, see DESIGN.md Open Question

// CapRelocsSection re-emits __cap_relocs after resolving each entry
// against its input relocations: Loc and Obj come from the relocated
// symbols' addresses and Offset/Size/Permissions are derived from the
// target symbol (see ParseAndValidate). Fields without a relocation are
// copied from the raw input bytes.
type CapRelocsSection struct {
	Chunk
	entries []capRelocEntry
}

func NewCapRelocsSection() *CapRelocsSection {
	c := &CapRelocsSection{Chunk: NewChunk()}
	c.Name = "__cap_relocs"
	c.Shdr.Type = uint32(elf.SHT_PROGBITS)
	c.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	c.Shdr.AddrAlign = 16
	return c
}

// ParseAndValidate processes one "__cap_relocs" input section (spec.md
// §4.13): each fixed-size entry's location and target fields arrive as a
// pair of 64-bit absolute relocations exactly 8 bytes apart rather than
// as literal bytes, so the location/target VAs are resolved from isec's
// relocation list instead of the raw contents. The entry's
// offset/size/permissions words are derived per symbol: size falls back
// to the enclosing section's size when the symbol itself carries none,
// and UINT64_MAX when neither is known; permissions sets bit 63 iff the
// target is a function.
func (c *CapRelocsSection) ParseAndValidate(ctx *Context, isec *InputSection) {
	raw := isec.Contents
	rels := isec.GetRels()

	relAt := func(fieldOff uint64) (Rela, bool) {
		for _, r := range rels {
			if r.Offset == fieldOff {
				return r, true
			}
		}
		return Rela{}, false
	}

	for off := 0; off+CapRelocEntrySize <= len(raw); off += CapRelocEntrySize {
		locOff := uint64(off)
		objOff := uint64(off + 8)

		e := capRelocEntry{}

		if r, ok := relAt(locOff); ok {
			sym := isec.File.Symbols[r.Sym]
			if sym.File != nil {
				e.Loc = sym.GetAddr() + uint64(r.Addend)
			}
		} else {
			e.Loc = le64(raw[off:])
		}

		if r, ok := relAt(objOff); ok {
			sym := isec.File.Symbols[r.Sym]
			if sym.File == nil {
				if ctx.Args.CapRelocsUndefinedWeak {
					e.Obj = capRelocUndefinedWeakFallback
				} else {
					continue
				}
			} else {
				e.Obj = sym.GetAddr()
				e.Offset = uint64(r.Addend)
				e.Size = capRelocTargetSize(sym)
				e.Permissions = capRelocPermissions(sym)
			}
		} else {
			e.Obj = le64(raw[off+8:])
			e.Offset = le64(raw[off+16:])
			e.Size = le64(raw[off+24:])
			e.Permissions = le64(raw[off+32:])
		}

		c.entries = append(c.entries, e)
	}
}

// capRelocTargetSize implements the size fallback chain from spec.md
// §4.13: the symbol's own size, else the enclosing section's size minus
// the symbol's offset into it, else the UINT64_MAX sentinel.
func capRelocTargetSize(sym *Symbol) uint64 {
	if sz := sym.ElfSym().Size; sz != 0 {
		return sz
	}
	if sym.InputSection != nil {
		if rem := uint64(sym.InputSection.ShSize) - sym.Value; rem > 0 && rem < math.MaxUint64 {
			return rem
		}
	}
	return capRelocUndefinedWeakFallback
}

func capRelocPermissions(sym *Symbol) uint64 {
	if sym.ElfSym().Type() == uint8(elf.STT_FUNC) {
		return uint64(1) << 63
	}
	return 0
}

func (c *CapRelocsSection) IsEmpty() bool { return len(c.entries) == 0 }

func (c *CapRelocsSection) UpdateShdr(ctx *Context) {
	c.Shdr.Size = uint64(len(c.entries)) * CapRelocEntrySize
}

func (c *CapRelocsSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[c.Shdr.Offset:]
	for i, e := range c.entries {
		off := i * CapRelocEntrySize
		putLe64(buf[off:], e.Loc)
		putLe64(buf[off+8:], e.Obj)
		putLe64(buf[off+16:], e.Offset)
		putLe64(buf[off+24:], e.Size)
		putLe64(buf[off+32:], e.Permissions)
	}
}

func putLe64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
