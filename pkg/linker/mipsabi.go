package linker

import "debug/elf"

// shtMipsOptions is elf.SHT_MIPS_OPTIONS (0x7000000d, per the MIPS ABI
// extensions), not defined by this Go toolchain's debug/elf package.
const shtMipsOptions elf.SectionType = 0x7000000d

// MipsAbiFlagsSection merges every input object's .MIPS.abiflags note
// into a single conservative union the way the original MIPS psABI
// requires (highest ISA level, union of ASE flags, widest FP ABI),
// rather than simply keeping the first one seen (spec.md §4.13).
type MipsAbiFlagsSection struct {
	Chunk
	IsaLevel  uint8
	IsaRev    uint8
	GprSize   uint8
	Cpr1Size  uint8
	Cpr2Size  uint8
	FpAbi     uint8
	AseFlags  uint32
	Flags1    uint32
	Flags2    uint32
}

func NewMipsAbiFlagsSection() *MipsAbiFlagsSection {
	m := &MipsAbiFlagsSection{Chunk: NewChunk()}
	m.Name = ".MIPS.abiflags"
	m.Shdr.Type = uint32(elf.SHT_MIPS_ABIFLAGS)
	m.Shdr.Flags = uint64(elf.SHF_ALLOC)
	m.Shdr.AddrAlign = 8
	return m
}

// Merge folds one input object's abiflags record into the running
// union.
func (m *MipsAbiFlagsSection) Merge(isaLevel, isaRev, gprSize, cpr1Size, cpr2Size, fpAbi uint8, aseFlags, flags1, flags2 uint32) {
	if isaLevel > m.IsaLevel {
		m.IsaLevel = isaLevel
	}
	if isaRev > m.IsaRev {
		m.IsaRev = isaRev
	}
	if gprSize > m.GprSize {
		m.GprSize = gprSize
	}
	if cpr1Size > m.Cpr1Size {
		m.Cpr1Size = cpr1Size
	}
	if cpr2Size > m.Cpr2Size {
		m.Cpr2Size = cpr2Size
	}
	if fpAbi > m.FpAbi {
		m.FpAbi = fpAbi
	}
	m.AseFlags |= aseFlags
	m.Flags1 |= flags1
	m.Flags2 |= flags2
}

func (m *MipsAbiFlagsSection) IsEmpty() bool { return m.IsaLevel == 0 }

func (m *MipsAbiFlagsSection) UpdateShdr(ctx *Context) {
	m.Shdr.Size = 24
}

func (m *MipsAbiFlagsSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[m.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	order.PutUint16(buf[0:], 0) // version
	buf[2] = m.IsaLevel
	buf[3] = m.IsaRev
	buf[4] = m.GprSize
	buf[5] = m.Cpr1Size
	buf[6] = m.Cpr2Size
	buf[7] = m.FpAbi
	order.PutUint32(buf[8:], m.AseFlags)
	order.PutUint32(buf[12:], m.Flags1)
	order.PutUint32(buf[16:], m.Flags2)
	order.PutUint32(buf[20:], 0) // reserved
}

// MipsOptionsSection carries ".MIPS.options" ODK_REGINFO entries; this
// engine folds register masks the same way MipsAbiFlagsSection folds
// ISA/ASE bits, since every input object's reginfo describes the same
// logical machine state.
type MipsOptionsSection struct {
	Chunk
	GprMask  uint32
	Cpr1Mask uint32
	Cpr2Mask uint32
	GpValue  int64
}

func NewMipsOptionsSection() *MipsOptionsSection {
	m := &MipsOptionsSection{Chunk: NewChunk()}
	m.Name = ".MIPS.options"
	m.Shdr.Type = uint32(shtMipsOptions)
	m.Shdr.Flags = uint64(elf.SHF_ALLOC)
	m.Shdr.AddrAlign = 8
	return m
}

func (m *MipsOptionsSection) Merge(gprMask, cpr1Mask, cpr2Mask uint32, gpValue int64) {
	m.GprMask |= gprMask
	m.Cpr1Mask |= cpr1Mask
	m.Cpr2Mask |= cpr2Mask
	if m.GpValue == 0 {
		m.GpValue = gpValue
	}
}

func (m *MipsOptionsSection) IsEmpty() bool { return m.GprMask == 0 && m.Cpr1Mask == 0 && m.Cpr2Mask == 0 }

func (m *MipsOptionsSection) UpdateShdr(ctx *Context) {
	m.Shdr.Size = 8 + 32 // ODK header + reginfo body
}

func (m *MipsOptionsSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[m.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	buf[0] = 1 // ODK_REGINFO
	buf[1] = 40 // section size (header+body) in bytes
	order.PutUint16(buf[2:], 0)
	order.PutUint32(buf[4:], 0)
	order.PutUint32(buf[8:], m.GprMask)
	order.PutUint32(buf[12:], 0) // pad
	order.PutUint32(buf[16:], m.Cpr1Mask)
	order.PutUint32(buf[20:], m.Cpr2Mask)
	order.PutUint32(buf[24:], 0)
	order.PutUint64(buf[32:], uint64(m.GpValue))
}

// MipsRldMapSection reserves the single word the dynamic loader patches
// with the address of its own internal r_debug-equivalent structure at
// load time, the MIPS-specific analogue of DT_DEBUG.
type MipsRldMapSection struct {
	Chunk
}

func NewMipsRldMapSection() *MipsRldMapSection {
	m := &MipsRldMapSection{Chunk: NewChunk()}
	m.Name = ".rld_map"
	m.Shdr.Type = uint32(elf.SHT_PROGBITS)
	m.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	m.Shdr.AddrAlign = 8
	return m
}

func (m *MipsRldMapSection) UpdateShdr(ctx *Context) { m.Shdr.Size = uint64(ctx.Format.WordSize()) }

func (m *MipsRldMapSection) CopyBuf(ctx *Context) {} // left zero; the loader writes it at runtime

