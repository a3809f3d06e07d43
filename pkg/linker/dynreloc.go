package linker

import (
	"debug/elf"
	"sort"
)

// DynRelSection is a dynamic relocation table, ".rela.dyn" or
// ".rela.plt"/".rela.iplt" depending on which Context field it's bound
// to (spec.md §4.5). Entries are appended as synthetic sections scan
// symbols that need a load-time fixup; RELATIVE entries are sorted to
// the front so the loader's "no symbol lookup" fast path can stop early
// once it sees a non-RELATIVE tag.
type DynRelSection struct {
	Chunk
	entries  []Rela
	relCount int
}

func NewDynRelSection(name string) *DynRelSection {
	d := &DynRelSection{Chunk: NewChunk()}
	d.Name = name
	d.Shdr.Type = uint32(elf.SHT_RELA)
	d.Shdr.Flags = uint64(elf.SHF_ALLOC)
	d.Shdr.EntSize = RelaSize
	d.Shdr.AddrAlign = 8
	return d
}

// Add appends a relocation; sym may be nil for a pure RELATIVE entry
// with no symbol table reference.
func (d *DynRelSection) Add(ctx *Context, sym *Symbol, typ uint32, offset, addend int64) {
	r := Rela{Offset: uint64(offset), Type: typ, Addend: addend}
	if sym != nil && typ != ctx.Target.RelativeRel {
		r.Sym = uint32(sym.DynsymIdx(ctx))
	}
	d.entries = append(d.entries, r)
}

// AddRelative is the common case of a plain base-relocation: load-time
// fixup is "add the image's load bias", no symbol lookup needed.
func (d *DynRelSection) AddRelative(ctx *Context, offset int64, addend int64) {
	d.entries = append(d.entries, Rela{
		Offset: uint64(offset),
		Type:   ctx.Target.RelativeRel,
		Addend: addend,
	})
}

// ScanGot walks the generic GOT's preemptible entries and appends the
// GLOB_DAT / TLS relocations the loader needs to fill them in, and the
// RELATIVE entries for entries this link resolved itself. Called once
// the GOT's membership is frozen, at the end of ScanRelocations.
func (d *DynRelSection) ScanGot(ctx *Context) {
	for _, sym := range ctx.Got.GetGotSyms() {
		addr := sym.GetGotAddr(ctx)
		if sym.IsPreemptible(ctx) {
			d.Add(ctx, sym, ctx.Target.GlobDatRel, int64(addr), 0)
		} else {
			d.AddRelative(ctx, int64(addr), int64(sym.GetAddr()))
		}
	}
	for _, sym := range ctx.Got.GetTlsGdSyms() {
		if !sym.IsPreemptible(ctx) {
			continue
		}
		idx := int64(sym.GlobalDynIdx(ctx))
		base := ctx.Got.Shdr.Addr + uint64(idx)*uint64(ctx.Format.WordSize())
		d.Add(ctx, sym, ctx.Target.TlsDtpmodRel, int64(base), 0)
		d.Add(ctx, sym, ctx.Target.TlsDtprelRel, int64(base)+int64(ctx.Format.WordSize()), 0)
	}
}

// sortRelative moves RELATIVE-tagged entries to the front, the ordering
// DT_RELACOUNT promises to dynamic loaders that skip symbol resolution
// for the counted prefix.
func (d *DynRelSection) sortRelative(ctx *Context) {
	sort.SliceStable(d.entries, func(i, j int) bool {
		iRel := d.entries[i].Type == ctx.Target.RelativeRel
		jRel := d.entries[j].Type == ctx.Target.RelativeRel
		return iRel && !jRel
	})
	n := 0
	for _, r := range d.entries {
		if r.Type == ctx.Target.RelativeRel {
			n++
		} else {
			break
		}
	}
	d.relCount = n
}

func (d *DynRelSection) RelativeCount() int { return d.relCount }

func (d *DynRelSection) IsEmpty() bool { return len(d.entries) == 0 }

func (d *DynRelSection) UpdateShdr(ctx *Context) {
	d.sortRelative(ctx)
	d.Shdr.Size = uint64(len(d.entries)) * RelaSize
	d.Shdr.Link = uint32(ctx.Dynsym.Shndx)
}

func (d *DynRelSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[d.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for i, r := range d.entries {
		off := i * RelaSize
		order.PutUint64(buf[off:], r.Offset)
		info := uint64(r.Sym)<<32 | uint64(r.Type)
		order.PutUint64(buf[off+8:], info)
		order.PutUint64(buf[off+16:], uint64(r.Addend))
	}
}
