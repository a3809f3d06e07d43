package linker

import "debug/elf"

// OutputEhdr, OutputShdr and OutputPhdr are the three chunks every
// output file always carries: the ELF header, the section header
// table, and the program header table. Kept separate from the other
// synthetic sections since they have no symbol-table interaction and
// are always first/last in Context.Chunks by construction
// (SortOutputSections pins Ehdr to rank 0, Phdr to rank 1, Shdr to
// MaxInt32).
type OutputEhdr struct {
	Chunk
}

func NewOutputEhdr() *OutputEhdr {
	e := &OutputEhdr{Chunk: NewChunk()}
	e.Shdr.Flags = uint64(elf.SHF_ALLOC)
	e.Shdr.Size = EhdrSize
	e.Shdr.AddrAlign = 8
	return e
}

func (e *OutputEhdr) CopyBuf(ctx *Context) {
	buf := ctx.Buf[e.Shdr.Offset:]
	order := ctx.Format.ByteOrder()

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	if ctx.Format.Is64() {
		buf[4] = uint8(elf.ELFCLASS64)
	} else {
		buf[4] = uint8(elf.ELFCLASS32)
	}
	buf[5] = uint8(ctx.Format.Data)
	buf[6] = uint8(elf.EV_CURRENT)
	buf[7] = uint8(elf.ELFOSABI_NONE)

	etype := elf.ET_EXEC
	if ctx.Args.Shared || ctx.Args.Pie {
		etype = elf.ET_DYN
	}
	order.PutUint16(buf[16:], uint16(etype))
	order.PutUint16(buf[18:], elfMachine(ctx.Target.Machine))
	order.PutUint32(buf[20:], uint32(elf.EV_CURRENT))

	entry := uint64(0)
	if sym, ok := ctx.SymbolMap["_start"]; ok && sym.File != nil {
		entry = sym.GetAddr()
	}
	order.PutUint64(buf[24:], entry)
	order.PutUint64(buf[32:], ctx.Phdr.Shdr.Offset)
	order.PutUint64(buf[40:], ctx.Shdr.Shdr.Offset)
	order.PutUint32(buf[48:], 0) // flags

	order.PutUint16(buf[52:], EhdrSize)
	order.PutUint16(buf[54:], PhdrSize)
	order.PutUint16(buf[56:], uint16(ctx.Phdr.NumEntries()))
	order.PutUint16(buf[58:], ShdrSize)
	order.PutUint16(buf[60:], uint16(len(ctx.Chunks)))
	order.PutUint16(buf[62:], uint16(ctx.Shstrtab.Shndx))
}

func elfMachine(m MachineType) uint16 {
	switch m {
	case MachineTypeRISCV64, MachineTypeRISCV32:
		return uint16(elf.EM_RISCV)
	case MachineTypeMIPS64, MachineTypeMIPSCheri128:
		return uint16(elf.EM_MIPS)
	case MachineTypeARM:
		return uint16(elf.EM_ARM)
	default:
		return 0
	}
}

// OutputShdr is the section header table: one Shdr per live chunk, plus
// the leading null entry SysV requires at index 0.
type OutputShdr struct {
	Chunk
}

func NewOutputShdr() *OutputShdr {
	s := &OutputShdr{Chunk: NewChunk()}
	s.Shdr.AddrAlign = 8
	return s
}

func (s *OutputShdr) UpdateShdr(ctx *Context) {
	s.Shdr.Size = uint64(1+len(ctx.Chunks)) * ShdrSize
}

func (s *OutputShdr) CopyBuf(ctx *Context) {
	buf := ctx.Buf[s.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	write := func(i int, shdr *Shdr, nameOff uint32) {
		off := i * ShdrSize
		order.PutUint32(buf[off:], nameOff)
		order.PutUint32(buf[off+4:], shdr.Type)
		order.PutUint64(buf[off+8:], shdr.Flags)
		order.PutUint64(buf[off+16:], shdr.Addr)
		order.PutUint64(buf[off+24:], shdr.Offset)
		order.PutUint64(buf[off+32:], shdr.Size)
		order.PutUint32(buf[off+40:], shdr.Link)
		order.PutUint32(buf[off+44:], shdr.Info)
		order.PutUint64(buf[off+48:], shdr.AddrAlign)
		order.PutUint64(buf[off+56:], shdr.EntSize)
	}
	write(0, &Shdr{}, 0)
	for i, c := range ctx.Chunks {
		nameOff := uint32(0)
		if ctx.Shstrtab != nil {
			nameOff = ctx.Shstrtab.AddDedup(c.GetName())
		}
		write(i+1, c.GetShdr(), nameOff)
	}
}

// OutputPhdr is the program header table: PT_PHDR, PT_LOAD segments
// covering contiguous same-permission runs of allocated chunks, plus
// PT_INTERP, PT_DYNAMIC and PT_GNU_EH_FRAME where the corresponding
// section exists. No PT_TLS or PT_GNU_RELRO header is emitted.
type OutputPhdr struct {
	Chunk
	phdrs []Phdr
}

func NewOutputPhdr() *OutputPhdr {
	p := &OutputPhdr{Chunk: NewChunk()}
	p.Shdr.Flags = uint64(elf.SHF_ALLOC)
	p.Shdr.AddrAlign = 8
	return p
}

func (p *OutputPhdr) NumEntries() int { return len(p.phdrs) }

func (p *OutputPhdr) UpdateShdr(ctx *Context) {
	p.phdrs = p.buildPhdrs(ctx)
	p.Shdr.Size = uint64(len(p.phdrs)) * PhdrSize
}

func phdrFlags(shdrFlags uint64) uint32 {
	f := uint32(elf.PF_R)
	if shdrFlags&uint64(elf.SHF_WRITE) != 0 {
		f |= uint32(elf.PF_W)
	}
	if shdrFlags&uint64(elf.SHF_EXECINSTR) != 0 {
		f |= uint32(elf.PF_X)
	}
	return f
}

func (p *OutputPhdr) buildPhdrs(ctx *Context) []Phdr {
	var phdrs []Phdr

	phdrs = append(phdrs, Phdr{
		Type: uint32(elf.PT_PHDR), Flags: uint32(elf.PF_R),
		Offset: p.Shdr.Offset, VAddr: p.Shdr.Addr, PAddr: p.Shdr.Addr,
		FileSize: p.Shdr.Size, MemSize: p.Shdr.Size, Align: 8,
	})

	if ctx.Interp != nil && !ctx.Interp.IsEmpty() {
		phdrs = append(phdrs, Phdr{
			Type: uint32(elf.PT_INTERP), Flags: uint32(elf.PF_R),
			Offset: ctx.Interp.Shdr.Offset, VAddr: ctx.Interp.Shdr.Addr, PAddr: ctx.Interp.Shdr.Addr,
			FileSize: ctx.Interp.Shdr.Size, MemSize: ctx.Interp.Shdr.Size, Align: 1,
		})
	}

	var cur *Phdr
	for _, c := range ctx.Chunks {
		shdr := c.GetShdr()
		if shdr.Flags&uint64(elf.SHF_ALLOC) == 0 {
			cur = nil
			continue
		}
		flags := phdrFlags(shdr.Flags)
		if cur != nil && cur.Flags == flags && shdr.Offset == cur.Offset+cur.FileSize {
			cur.FileSize += shdr.Size
			cur.MemSize = shdr.Addr + shdr.Size - cur.VAddr
			continue
		}
		phdrs = append(phdrs, Phdr{
			Type: uint32(elf.PT_LOAD), Flags: flags,
			Offset: shdr.Offset, VAddr: shdr.Addr, PAddr: shdr.Addr,
			FileSize: shdr.Size, MemSize: shdr.Size, Align: PageSize,
		})
		cur = &phdrs[len(phdrs)-1]
		if isTbss(c) {
			cur.FileSize = 0
		}
	}

	if ctx.Dynamic != nil && !ctx.Dynamic.IsEmpty() {
		phdrs = append(phdrs, Phdr{
			Type: uint32(elf.PT_DYNAMIC), Flags: uint32(elf.PF_R | elf.PF_W),
			Offset: ctx.Dynamic.Shdr.Offset, VAddr: ctx.Dynamic.Shdr.Addr, PAddr: ctx.Dynamic.Shdr.Addr,
			FileSize: ctx.Dynamic.Shdr.Size, MemSize: ctx.Dynamic.Shdr.Size, Align: 8,
		})
	}

	if ctx.EhFrameHdr != nil && !ctx.EhFrameHdr.IsEmpty() {
		phdrs = append(phdrs, Phdr{
			Type: uint32(elf.PT_GNU_EH_FRAME), Flags: uint32(elf.PF_R),
			Offset: ctx.EhFrameHdr.Shdr.Offset, VAddr: ctx.EhFrameHdr.Shdr.Addr, PAddr: ctx.EhFrameHdr.Shdr.Addr,
			FileSize: ctx.EhFrameHdr.Shdr.Size, MemSize: ctx.EhFrameHdr.Shdr.Size, Align: 4,
		})
	}

	return phdrs
}

func (p *OutputPhdr) CopyBuf(ctx *Context) {
	buf := ctx.Buf[p.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for i, ph := range p.phdrs {
		off := i * PhdrSize
		order.PutUint32(buf[off:], ph.Type)
		order.PutUint32(buf[off+4:], ph.Flags)
		order.PutUint64(buf[off+8:], ph.Offset)
		order.PutUint64(buf[off+16:], ph.VAddr)
		order.PutUint64(buf[off+24:], ph.PAddr)
		order.PutUint64(buf[off+32:], ph.FileSize)
		order.PutUint64(buf[off+40:], ph.MemSize)
		order.PutUint64(buf[off+48:], ph.Align)
	}
}
