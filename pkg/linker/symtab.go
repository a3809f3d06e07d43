package linker

import "debug/elf"

// SymtabSection is the static symbol table, ".symtab" (spec.md §4.9):
// every retained local then global symbol, locals-first so Shdr.Info
// can record the boundary the way SysV requires. Always emitted: the -s
// option is accepted and ignored, so local symbols are never stripped,
// matching the teacher's existing behavior.
type SymtabSection struct {
	Chunk
	strtab *StrtabSection
	locals []*Symbol
	globals []*Symbol
}

func NewSymtabSection(strtab *StrtabSection) *SymtabSection {
	s := &SymtabSection{Chunk: NewChunk(), strtab: strtab}
	s.Name = ".symtab"
	s.Shdr.Type = uint32(elf.SHT_SYMTAB)
	s.Shdr.EntSize = SymSize
	s.Shdr.AddrAlign = 8
	return s
}

func (s *SymtabSection) AddLocal(sym *Symbol)  { s.locals = append(s.locals, sym) }
func (s *SymtabSection) AddGlobal(sym *Symbol) { s.globals = append(s.globals, sym) }

func (s *SymtabSection) UpdateShdr(ctx *Context) {
	n := 1 + len(s.locals) + len(s.globals) // +1 for the null entry
	s.Shdr.Size = uint64(n) * SymSize
	s.Shdr.Link = uint32(s.strtab.Shndx)
	s.Shdr.Info = uint32(1 + len(s.locals))
}

func (s *SymtabSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[s.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	write := func(i int, sym *Symbol, esym *Sym) {
		off := i * SymSize
		name := s.strtab.Add(sym.Name)
		order.PutUint32(buf[off:], name)
		buf[off+4] = esym.Info
		buf[off+5] = esym.Other
		order.PutUint16(buf[off+6:], esym.Shndx)
		order.PutUint64(buf[off+8:], sym.GetAddr())
		order.PutUint64(buf[off+16:], esym.Size)
	}
	i := 1
	for _, sym := range s.locals {
		write(i, sym, sym.ElfSym())
		i++
	}
	for _, sym := range s.globals {
		write(i, sym, sym.ElfSym())
		i++
	}
}

// DynsymSection is the dynamic symbol table, ".dynsym" (spec.md §4.9):
// exported/imported symbols only, ordered by GNU hash bucket when a
// .gnu.hash is emitted (HashOrder), or insertion order otherwise. Index
// 0 is always the null entry.
type DynsymSection struct {
	Chunk
	strtab  *StrtabSection
	syms    []*Symbol
	hashOrder bool
}

func NewDynsymSection(strtab *StrtabSection) *DynsymSection {
	d := &DynsymSection{Chunk: NewChunk(), strtab: strtab}
	d.Name = ".dynsym"
	d.Shdr.Type = uint32(elf.SHT_DYNSYM)
	d.Shdr.Flags = uint64(elf.SHF_ALLOC)
	d.Shdr.EntSize = SymSize
	d.Shdr.AddrAlign = 8
	return d
}

func (d *DynsymSection) AddSymbol(ctx *Context, sym *Symbol) {
	if sym.DynsymIdx(ctx) >= 0 {
		return
	}
	sym.SetDynsymIdx(ctx, int32(1+len(d.syms)))
	d.syms = append(d.syms, sym)
}

func (d *DynsymSection) Symbols() []*Symbol { return d.syms }

// ApplyHashOrder permutes the dynsym table so exported (hashed) names
// occupy a contiguous suffix in the bucket order .gnu.hash expects
// (spec.md §4.8 "symbols must be partitioned: un-hashed prefix, hashed
// suffix sorted by bucket").
func (d *DynsymSection) ApplyHashOrder(ctx *Context, order []int32) {
	reordered := make([]*Symbol, len(d.syms))
	base := len(d.syms) - len(order)
	for newIdx, oldIdx := range order {
		sym := d.syms[oldIdx]
		reordered[base+newIdx] = sym
		sym.SetDynsymIdx(ctx, int32(1+base+newIdx))
	}
	j := 0
	for i, sym := range d.syms {
		if contains(order, int32(i)) {
			continue
		}
		reordered[j] = sym
		sym.SetDynsymIdx(ctx, int32(1+j))
		j++
	}
	d.syms = reordered
	d.hashOrder = true
}

func contains(s []int32, v int32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func (d *DynsymSection) UpdateShdr(ctx *Context) {
	d.Shdr.Size = uint64(1+len(d.syms)) * SymSize
	d.Shdr.Link = uint32(d.strtab.Shndx)
	d.Shdr.Info = 1 // conventionally the first global; this engine exports no locals
}

func (d *DynsymSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[d.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for i, sym := range d.syms {
		esym := sym.ElfSym()
		off := (i + 1) * SymSize
		name := d.strtab.Add(sym.Name)
		order.PutUint32(buf[off:], name)
		buf[off+4] = esym.Info
		buf[off+5] = esym.Other
		order.PutUint16(buf[off+6:], esym.Shndx)
		order.PutUint64(buf[off+8:], sym.GetAddr())
		order.PutUint64(buf[off+16:], esym.Size)
	}
}
