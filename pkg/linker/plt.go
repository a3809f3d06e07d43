package linker

import "debug/elf"

// PltSection is the Procedure Linkage Table (spec.md §4.4): one
// trampoline per PLT-needing symbol, each pointing through the matching
// .got.plt slot. The PLT content itself never changes after link time;
// each .got.plt slot is resolved at load time through the R_*_JUMP_SLOT
// relocation AddEntry records.
type PltSection struct {
	Chunk
	syms   []*Symbol
	gotplt *GotPltSection
}

func NewPltSection(gotplt *GotPltSection) *PltSection {
	p := &PltSection{Chunk: NewChunk(), gotplt: gotplt}
	p.Name = ".plt"
	p.Shdr.Type = uint32(elf.SHT_PROGBITS)
	p.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	p.Shdr.AddrAlign = 16
	return p
}

func (p *PltSection) AddEntry(ctx *Context, sym *Symbol) {
	if sym.PltIdx(ctx) >= 0 {
		return
	}
	sym.SetPltIdx(ctx, int32(len(p.syms)))
	p.syms = append(p.syms, sym)
	p.gotplt.Add(ctx, sym)
	ctx.RelPlt.Add(ctx, sym, ctx.Target.JumpSlotRel, int64(sym.GetGotPltAddr(ctx)), 0)
}

func (p *PltSection) IsEmpty() bool { return len(p.syms) == 0 }

func (p *PltSection) UpdateShdr(ctx *Context) {
	if len(p.syms) == 0 {
		p.Shdr.Size = 0
		return
	}
	p.Shdr.Size = ctx.Target.PltHeaderSize() + uint64(len(p.syms))*ctx.Target.PltEntrySize()
}

func (p *PltSection) CopyBuf(ctx *Context) {
	if len(p.syms) == 0 {
		return
	}
	buf := ctx.Buf[p.Shdr.Offset:p.Shdr.Offset+p.Shdr.Size]
	if ctx.Target.WritePltHeader != nil {
		ctx.Target.WritePltHeader(buf, ctx)
	}
	hdr := ctx.Target.PltHeaderSize()
	entry := ctx.Target.PltEntrySize()
	for i, sym := range p.syms {
		entryBuf := buf[hdr+uint64(i)*entry:]
		pltAddr := p.Shdr.Addr + hdr + uint64(i)*entry
		if ctx.Target.WritePltEntry != nil {
			ctx.Target.WritePltEntry(entryBuf, ctx, sym.GetGotPltAddr(ctx), pltAddr)
		}
	}
}

// IpltSection is the STT_GNU_IFUNC counterpart of .plt; entries here are
// resolved eagerly via .igot.plt rather than .got.plt and are placed in
// a separate, non-PIC-relocated table the way original_source's LLD
// lineage keeps .iplt physically apart from .plt.
type IpltSection struct {
	Chunk
	syms  []*Symbol
	igot  *IgotPltSection
}

func NewIpltSection(igot *IgotPltSection) *IpltSection {
	p := &IpltSection{Chunk: NewChunk(), igot: igot}
	p.Name = ".iplt"
	p.Shdr.Type = uint32(elf.SHT_PROGBITS)
	p.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	p.Shdr.AddrAlign = 16
	return p
}

func (p *IpltSection) AddEntry(ctx *Context, sym *Symbol) {
	if sym.IpltIdx(ctx) >= 0 {
		return
	}
	sym.IsInIplt = true
	sym.IsInIgot = true
	sym.SetIpltIdx(ctx, int32(len(p.syms)))
	p.syms = append(p.syms, sym)
	p.igot.Add(ctx, sym)
	ctx.RelIplt.Add(ctx, sym, ctx.Target.IrelativeRel, int64(sym.GetAddr()), 0)
}

func (p *IpltSection) IsEmpty() bool { return len(p.syms) == 0 }

func (p *IpltSection) UpdateShdr(ctx *Context) {
	p.Shdr.Size = uint64(len(p.syms)) * ctx.Target.PltEntrySize()
}

func (p *IpltSection) CopyBuf(ctx *Context) {
	entry := ctx.Target.PltEntrySize()
	for i, sym := range p.syms {
		buf := ctx.Buf[p.Shdr.Offset+uint64(i)*entry:]
		pltAddr := p.Shdr.Addr + uint64(i)*entry
		igotAddr := p.igot.Shdr.Addr + uint64(sym.GotPltIdx(ctx))*uint64(ctx.Format.WordSize())
		if ctx.Target.WritePltEntry != nil {
			ctx.Target.WritePltEntry(buf, ctx, igotAddr, pltAddr)
		}
	}
}
