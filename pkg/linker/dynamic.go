package linker

import "debug/elf"

// DynamicSection is ".dynamic" (spec.md §4.6): an ordered list of
// tag/value pairs the runtime loader walks once at program start,
// terminated by a DT_NULL entry. Populated in one pass by Build, which
// UpdateShdr calls after every other synthetic section has sized itself, so tags
// that need a final address or count (DT_PLTRELSZ, DT_RELACOUNT) are
// filled in then rather than at construction time.
type DynamicSection struct {
	Chunk
	entries []Dyn
}

func NewDynamicSection() *DynamicSection {
	d := &DynamicSection{Chunk: NewChunk()}
	d.Name = ".dynamic"
	d.Shdr.Type = uint32(elf.SHT_DYNAMIC)
	d.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	d.Shdr.EntSize = 16
	d.Shdr.AddrAlign = 8
	return d
}

func (d *DynamicSection) add(tag int64, val uint64) {
	d.entries = append(d.entries, Dyn{Tag: tag, Val: val})
}

// Build assembles the tag list; called from UpdateShdr so every
// dependency (Dynsym.Shndx, RelDyn.Shdr.Size, ...) is already final.
func (d *DynamicSection) Build(ctx *Context) {
	d.entries = d.entries[:0]

	if ctx.Args.Soname != "" {
		d.add(int64(elf.DT_SONAME), uint64(ctx.Dynstr.Add(ctx.Args.Soname)))
	}
	rpathTag := elf.DT_RPATH
	if ctx.Args.EnableNewDtags {
		rpathTag = elf.DT_RUNPATH
	}
	for _, rpath := range ctx.Args.RPaths {
		d.add(int64(rpathTag), uint64(ctx.Dynstr.Add(rpath)))
	}

	d.add(int64(elf.DT_SYMTAB), ctx.Dynsym.Shdr.Addr)
	d.add(int64(elf.DT_STRTAB), ctx.Dynstr.Shdr.Addr)
	d.add(int64(elf.DT_STRSZ), ctx.Dynstr.Shdr.Size)
	d.add(int64(elf.DT_SYMENT), SymSize)

	if ctx.HashSec != nil && !ctx.HashSec.IsEmpty() {
		d.add(int64(elf.DT_HASH), ctx.HashSec.Shdr.Addr)
	}
	if ctx.GnuHashSec != nil && !ctx.GnuHashSec.IsEmpty() {
		d.add(int64(elf.DT_GNU_HASH), ctx.GnuHashSec.Shdr.Addr)
	}

	if !ctx.RelDyn.IsEmpty() {
		d.add(int64(elf.DT_RELA), ctx.RelDyn.Shdr.Addr)
		d.add(int64(elf.DT_RELASZ), ctx.RelDyn.Shdr.Size)
		d.add(int64(elf.DT_RELAENT), RelaSize)
		d.add(DT_RELACOUNT, uint64(ctx.RelDyn.RelativeCount()))
	}

	if ctx.RelPlt != nil && !ctx.RelPlt.IsEmpty() {
		d.add(int64(elf.DT_JMPREL), ctx.RelPlt.Shdr.Addr)
		d.add(int64(elf.DT_PLTRELSZ), ctx.RelPlt.Shdr.Size)
		d.add(int64(elf.DT_PLTREL), uint64(elf.DT_RELA))
		d.add(int64(elf.DT_PLTGOT), ctx.GotPlt.Shdr.Addr)
	}

	if ctx.Args.InitSym != "" {
		if sym, ok := ctx.SymbolMap[ctx.Args.InitSym]; ok {
			d.add(int64(elf.DT_INIT), sym.GetAddr())
		}
	}
	if ctx.Args.FiniSym != "" {
		if sym, ok := ctx.SymbolMap[ctx.Args.FiniSym]; ok {
			d.add(int64(elf.DT_FINI), sym.GetAddr())
		}
	}

	flags, flags1 := d.computeFlags(ctx)
	if flags != 0 {
		d.add(int64(elf.DT_FLAGS), uint64(flags))
	}
	if flags1 != 0 {
		d.add(DT_FLAGS_1, uint64(flags1))
	}

	if ctx.Target.Machine == MachineTypeMIPS64 {
		d.addMipsTags(ctx)
	}

	d.add(int64(elf.DT_NULL), 0)
}

// computeFlags derives DT_FLAGS/DT_FLAGS_1 from the command-line -z and
// -B options the way original_source's Writer::addRelIpltSymbols-adjacent
// flag computation does (spec.md §9 supplemental).
func (d *DynamicSection) computeFlags(ctx *Context) (flags, flags1 int64) {
	a := ctx.Args
	if a.ZNow {
		flags1 |= DF_1_NOW
	} else {
		if a.BSymbolic {
			flags |= int64(elf.DF_SYMBOLIC)
		}
	}
	if a.ZNodelete {
		flags1 |= DF_1_NODELETE
	}
	if a.ZNodlopen {
		flags1 |= DF_1_NOOPEN
	}
	if a.ZOrigin {
		flags |= int64(elf.DF_ORIGIN)
		flags1 |= DF_1_ORIGIN
	}
	if a.ZText {
		flags |= int64(elf.DF_TEXTREL)
	}
	if a.Shared {
		flags1 |= DF_1_PIE_IF_PIE(a.Pie)
	}
	if a.EnableNewDtags {
		flags1 |= 0 // DT_RUNPATH vs DT_RPATH selection is handled in Build
	}
	return
}

func DF_1_PIE_IF_PIE(pie bool) int64 {
	if pie {
		return DF_1_PIE
	}
	return 0
}

// Non-standard DT_* constants debug/elf doesn't define.
const (
	DT_RELACOUNT int64 = 0x6ffffff9
	DT_FLAGS_1   int64 = 0x6ffffffb

	DF_1_NOW      = 0x1
	DF_1_NODELETE = 0x8
	DF_1_ORIGIN   = 0x80
	DF_1_NOOPEN   = 0x400
	DF_1_PIE      = 0x08000000
)

func (d *DynamicSection) addMipsTags(ctx *Context) {
	if ctx.MipsGot != nil {
		d.add(DT_MIPS_LOCAL_GOTNO, uint64(ctx.MipsGot.NumLocalEntries()))
		d.add(DT_MIPS_GOTSYM, uint64(ctx.MipsGot.FirstGlobalSymIdx(ctx)))
		d.add(DT_MIPS_SYMTABNO, uint64(len(ctx.Dynsym.Symbols())+1))
		d.add(DT_MIPS_BASE_ADDRESS, IMAGE_BASE)
		d.add(DT_MIPS_RLD_MAP_REL, 0)
	}
}

const (
	DT_MIPS_RLD_VERSION   = 0x70000001
	DT_MIPS_FLAGS         = 0x70000005
	DT_MIPS_BASE_ADDRESS  = 0x70000006
	DT_MIPS_LOCAL_GOTNO   = 0x7000000a
	DT_MIPS_SYMTABNO      = 0x70000011
	DT_MIPS_GOTSYM        = 0x70000013
	DT_MIPS_RLD_MAP_REL   = 0x70000035
)

func (d *DynamicSection) IsEmpty() bool { return false }

func (d *DynamicSection) UpdateShdr(ctx *Context) {
	d.Build(ctx)
	d.Shdr.Size = uint64(len(d.entries)) * 16
	d.Shdr.Link = uint32(ctx.Dynstr.Shndx)
}

func (d *DynamicSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[d.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for i, e := range d.entries {
		order.PutUint64(buf[i*16:], uint64(e.Tag))
		order.PutUint64(buf[i*16+8:], e.Val)
	}
}
