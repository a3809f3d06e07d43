package linker

import (
	"debug/elf"

	"github.com/ksco/rvld/pkg/utils"
)

// GotSection is the generic Global Offset Table (spec.md §4.3 "Generic
// GOT"): a flat, append-only array of word-sized slots handed out to
// symbols that need an indirection cell (GOT, GOT-TP, dyn-TLS pair).
// Generalizes the teacher's original single-purpose TLS-only GOT to the
// three entry kinds the spec names.
type GotSection struct {
	Chunk

	gotSyms   []*Symbol
	gotTpSyms []*Symbol
	tlsGdSyms []*Symbol // dynamic-TLS (module-index, offset) pairs

	hasTlsLd bool
	tlsLdIdx int64
}

func NewGotSection() *GotSection {
	g := &GotSection{Chunk: NewChunk()}
	g.Name = ".got"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	return g
}

func (g *GotSection) numSlots() int {
	n := len(g.gotSyms) + len(g.gotTpSyms) + len(g.tlsGdSyms)*2
	if g.hasTlsLd {
		n += 2
	}
	return n
}

func (g *GotSection) AddGotTpSymbol(ctx *Context, sym *Symbol) {
	if sym.GotTpIdx(ctx) >= 0 {
		return
	}
	sym.SetGotTpIdx(ctx, int32(g.numSlots()))
	g.gotTpSyms = append(g.gotTpSyms, sym)
}

func (g *GotSection) AddGotSymbol(ctx *Context, sym *Symbol) {
	if sym.GotIdx(ctx) >= 0 {
		return
	}
	sym.SetGotIdx(ctx, int32(g.numSlots()))
	g.gotSyms = append(g.gotSyms, sym)
}

// AddDynTlsSymbol reserves a two-word (module-index, offset) pair used
// by the general-dynamic TLS model (spec.md §4.3).
func (g *GotSection) AddDynTlsSymbol(ctx *Context, sym *Symbol) {
	if sym.GlobalDynIdx(ctx) >= 0 {
		return
	}
	sym.SetGlobalDynIdx(ctx, int32(g.numSlots()))
	g.tlsGdSyms = append(g.tlsGdSyms, sym)
}

// AddTlsLdIndex reserves the module-index slot used by the local-dynamic
// TLS model; there is at most one per output, shared by every
// local-dynamic reference in the link.
func (g *GotSection) AddTlsLdIndex(ctx *Context) int64 {
	if !g.hasTlsLd {
		g.tlsLdIdx = int64(g.numSlots())
		g.hasTlsLd = true
	}
	return g.tlsLdIdx
}

func (g *GotSection) UpdateShdr(ctx *Context) {
	g.Shdr.Size = uint64(g.numSlots()) * uint64(ctx.Format.WordSize())
}

func (g *GotSection) CopyBuf(ctx *Context) {
	base := ctx.Buf[g.Shdr.Offset:]
	ws := ctx.Format.WordSize()
	order := ctx.Format.ByteOrder()

	put := func(idx int, v uint64) {
		if ws == 8 {
			order.PutUint64(base[idx*ws:], v)
		} else {
			order.PutUint32(base[idx*ws:], uint32(v))
		}
	}

	for _, sym := range g.gotSyms {
		put(int(sym.GotIdx(ctx)), sym.GetAddr())
	}
	for _, sym := range g.gotTpSyms {
		put(int(sym.GotTpIdx(ctx)), sym.GetAddr()-ctx.TpAddr)
	}
	for _, sym := range g.tlsGdSyms {
		idx := int(sym.GlobalDynIdx(ctx))
		if sym.IsPreemptible(ctx) {
			// module index and offset are resolved by R_*_DTPMOD64 /
			// R_*_DTPREL64 dynamic relocations; the static slots stay
			// zero until relocated by the runtime loader.
			continue
		}
		put(idx, 1)                         // local module index
		put(idx+1, sym.GetAddr()-ctx.TpAddr) // offset within the TLS block
	}
	if g.hasTlsLd {
		put(int(g.tlsLdIdx), 1)
	}
}

// GetTlsGdSyms exposes the dyn-TLS symbol list so DynReloc can emit the
// module-index/offset relocation pair for preemptible entries.
func (g *GotSection) GetTlsGdSyms() []*Symbol { return g.tlsGdSyms }

// GetGotSyms exposes the plain GOT symbol list so DynReloc can emit
// R_*_GLOB_DAT / R_*_RELATIVE relocations for each entry.
func (g *GotSection) GetGotSyms() []*Symbol { return g.gotSyms }

// GotPltSection backs the PLT's indirection slots (spec.md §4.3
// ".got.plt"): header reserved for the loader's own use (3 words on
// most ABIs), followed by one slot per PLT stub. Every slot is
// pre-filled with its PLT stub's own address and is resolved at load
// time through the R_*_JUMP_SLOT relocation PltSection.AddEntry records.
type GotPltSection struct {
	Chunk
	headerEntries int
	syms          []*Symbol
}

func NewGotPltSection(headerEntries int) *GotPltSection {
	g := &GotPltSection{Chunk: NewChunk(), headerEntries: headerEntries}
	g.Name = ".got.plt"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	return g
}

func (g *GotPltSection) Add(ctx *Context, sym *Symbol) {
	if sym.GotPltIdx(ctx) >= 0 {
		return
	}
	sym.SetGotPltIdx(ctx, int32(g.headerEntries+len(g.syms)))
	g.syms = append(g.syms, sym)
}

func (g *GotPltSection) UpdateShdr(ctx *Context) {
	g.Shdr.Size = uint64(g.headerEntries+len(g.syms)) * uint64(ctx.Format.WordSize())
}

func (g *GotPltSection) CopyBuf(ctx *Context) {
	base := ctx.Buf[g.Shdr.Offset:]
	ws := ctx.Format.WordSize()
	order := ctx.Format.ByteOrder()
	for _, sym := range g.syms {
		idx := int(sym.GotPltIdx(ctx))
		if ws == 8 {
			order.PutUint64(base[idx*ws:], sym.GetPltAddr(ctx))
		} else {
			order.PutUint32(base[idx*ws:], uint32(sym.GetPltAddr(ctx)))
		}
	}
}

// IgotPltSection is ".igot.plt", the STT_GNU_IFUNC counterpart of
// .got.plt: entries here are resolved eagerly at load time by calling
// the resolver once, never lazily, so they carry no PLT stub address
// and always live in a RELATIVE-style relocation set (spec.md §4.3).
// passes.go creates it as a separate ".igot.plt" section on every
// target, ARM included.
type IgotPltSection struct {
	Chunk
	syms []*Symbol
}

func NewIgotPltSection(name string) *IgotPltSection {
	g := &IgotPltSection{Chunk: NewChunk()}
	g.Name = name
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	return g
}

func (g *IgotPltSection) Add(ctx *Context, sym *Symbol) {
	utils.Assert(sym.IsInIgot)
	sym.SetGotPltIdx(ctx, int32(len(g.syms)))
	g.syms = append(g.syms, sym)
}

func (g *IgotPltSection) UpdateShdr(ctx *Context) {
	g.Shdr.Size = uint64(len(g.syms)) * uint64(ctx.Format.WordSize())
}

func (g *IgotPltSection) CopyBuf(ctx *Context) {
	base := ctx.Buf[g.Shdr.Offset:]
	ws := ctx.Format.WordSize()
	order := ctx.Format.ByteOrder()
	for i, sym := range g.syms {
		// The resolver's own address; R_*_IRELATIVE relocations at load
		// time replace this with the resolved function pointer.
		if ws == 8 {
			order.PutUint64(base[i*ws:], sym.GetAddr())
		} else {
			order.PutUint32(base[i*ws:], uint32(sym.GetAddr()))
		}
	}
}
