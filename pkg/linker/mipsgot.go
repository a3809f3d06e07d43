package linker

import "debug/elf"

// MIPS GOT entries from every input file go into one shared table,
// checked against an addressing budget of mipsGotBudget slots (half the
// $gp-relative 16-bit displacement range). What this file does:
//   - each input file's relocations are scanned into candidate entries
//     (local page entries, global symbol entries, TLS entries)
//   - duplicate page and global entries are folded
//   - EnforceBudget checks each file's global candidates against the
//     budget and records the files that would overflow it
//   - the table is laid out as local pages, then globals, then TLS
//     entries, each group in registration order
//   - the first global's dynsym index becomes DT_MIPS_GOTSYM
//   - one dynamic relocation is emitted per preemptible global
// Files are not reordered before merging, an overflowing file gets no
// private sub-GOT (its entries stay in the shared table), and no dynamic
// relocations are emitted for TLS, page or secondary-GOT entries.

// mipsGotBudget is the maximum number of 4/8-byte slots the shared MIPS
// GOT is budgeted for, derived from the 16-bit $gp-relative displacement
// the ABI encodes relocations against.
const mipsGotBudget = 0xffff / 2

type mipsGotPageEntry struct {
	sym    *Symbol // section-defining symbol the page covers, or nil for an absolute page
	addend int64
}

type MipsGotSection struct {
	Chunk

	localPages []mipsGotPageEntry
	globals    []*Symbol
	tlsSyms    []*Symbol

	// perFileOverflow records, per file, the candidate globals that did
	// not fit the shared budget (see EnforceBudget).
	perFileOverflow map[*ObjectFile][]*Symbol
}

func NewMipsGotSection() *MipsGotSection {
	m := &MipsGotSection{Chunk: NewChunk(), perFileOverflow: map[*ObjectFile][]*Symbol{}}
	m.Name = ".got"
	m.Shdr.Type = uint32(elf.SHT_PROGBITS)
	m.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	m.Shdr.AddrAlign = 8
	return m
}

// AddLocalPage registers a local, non-preemptible reference that needs
// a GOT page entry (one entry services every in-range offset from the
// same page, step 1/2 folding happens via the addr>>16 key).
func (m *MipsGotSection) AddLocalPage(sym *Symbol, addend int64) int32 {
	pageKey := (int64(sym.GetAddr()) + addend) &^ 0xffff
	for i, e := range m.localPages {
		if e.sym == sym && (int64(e.sym.GetAddr())+e.addend)&^0xffff == pageKey {
			return int32(i)
		}
	}
	idx := int32(len(m.localPages))
	m.localPages = append(m.localPages, mipsGotPageEntry{sym: sym, addend: addend})
	return idx
}

// AddGlobal registers a global symbol's GOT entry; entries keep their
// registration order, and duplicates are skipped via MipsGotIdx.
func (m *MipsGotSection) AddGlobal(ctx *Context, sym *Symbol) {
	if sym.MipsGotIdx(ctx) >= 0 {
		return
	}
	sym.SetMipsGotIdx(ctx, int32(len(m.localPages)+len(m.globals)))
	m.globals = append(m.globals, sym)
}

func (m *MipsGotSection) AddTls(ctx *Context, sym *Symbol) {
	sym.SetGotTpIdx(ctx, int32(len(m.localPages)+len(m.globals)+len(m.tlsSyms)))
	m.tlsSyms = append(m.tlsSyms, sym)
}

// NumLocalEntries is DT_MIPS_LOCAL_GOTNO: the count of non-symbol
// (page) entries preceding the first global.
func (m *MipsGotSection) NumLocalEntries() int { return len(m.localPages) }

// FirstGlobalSymIdx is DT_MIPS_GOTSYM: the dynsym index of the first
// symbol that owns a GOT entry, required by the MIPS ABI to be a
// contiguous suffix of the dynamic symbol table.
func (m *MipsGotSection) FirstGlobalSymIdx(ctx *Context) int32 {
	if len(m.globals) == 0 {
		return int32(len(ctx.Dynsym.Symbols()) + 1)
	}
	return m.globals[0].DynsymIdx(ctx)
}

// EnforceBudget reports whether candidates fit under mipsGotBudget on
// top of the entries already in the table. If they do not, it records
// them in perFileOverflow and returns false; the candidates stay in the
// shared table, no private per-file GOT is built, and nothing else reads
// perFileOverflow.
func (m *MipsGotSection) EnforceBudget(file *ObjectFile, candidates []*Symbol) bool {
	if len(m.localPages)+len(m.globals)+len(m.tlsSyms)+len(candidates) <= mipsGotBudget {
		return true
	}
	m.perFileOverflow[file] = candidates
	return false
}

func (m *MipsGotSection) UpdateShdr(ctx *Context) {
	n := len(m.localPages) + len(m.globals) + len(m.tlsSyms)
	m.Shdr.Size = uint64(n) * uint64(ctx.Format.WordSize())
}

func (m *MipsGotSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[m.Shdr.Offset:]
	ws := ctx.Format.WordSize()
	order := ctx.Format.ByteOrder()
	put := func(idx int, v uint64) {
		if ws == 8 {
			order.PutUint64(buf[idx*ws:], v)
		} else {
			order.PutUint32(buf[idx*ws:], uint32(v))
		}
	}

	for i, e := range m.localPages {
		addr := uint64(int64(e.sym.GetAddr()) + e.addend)
		put(i, addr&^0xffff)
	}
	base := len(m.localPages)
	for i, sym := range m.globals {
		if sym.IsPreemptible(ctx) {
			continue // filled by the dynamic relocation ScanGotDynRelocs emits
		}
		put(base+i, sym.GetAddr())
	}
	base += len(m.globals)
	for i, sym := range m.tlsSyms {
		put(base+i, sym.GetAddr()-ctx.TpAddr)
	}

	// MIPS reserves GOT slot 0 for the lazy-resolver stub address and
	// slot 1's MSB as a "this module was loaded" marker the runtime
	// loader checks before trusting the rest of the table; preserved
	// as-is per spec.md's Open Question rather than modeled away.
	if len(m.localPages) > 0 {
		put(0, 0)
	}
	if len(m.localPages) > 1 {
		const mipsGotSlot1Marker = uint64(1) << 63
		cur := uint64(0)
		if ws == 8 {
			cur = order.Uint64(buf[1*ws:])
		} else {
			cur = uint64(order.Uint32(buf[1*ws:]))
		}
		put(1, cur|mipsGotSlot1Marker)
	}
}

// ScanGotDynRelocs emits one Target.GlobDatRel dynamic relocation per
// preemptible global in the shared MIPS GOT. TLS entries get no
// DTPMOD/DTPREL relocations.
func (m *MipsGotSection) ScanGotDynRelocs(ctx *Context) {
	ws := uint64(ctx.Format.WordSize())
	base := uint64(len(m.localPages))
	for i, sym := range m.globals {
		if !sym.IsPreemptible(ctx) {
			continue
		}
		addr := m.Shdr.Addr + (base+uint64(i))*ws
		ctx.RelDyn.Add(ctx, sym, ctx.Target.GlobDatRel, int64(addr), 0)
	}
}
