package linker

import "debug/elf"

// rRiscvIrelative is elf.R_RISCV_IRELATIVE (58, per the RISC-V ELF psABI),
// not defined by this Go toolchain's debug/elf package.
const rRiscvIrelative elf.R_RISCV = 58

// Target is the narrow interface the synthetic section engine consumes
// from the architecture back-end (spec.md §6, "consumed from
// collaborators: Target back-end"). Every synthetic section that needs a
// word size, a relocation type constant, or a PLT trampoline encoding
// goes through this instead of hard-coding an architecture, the way
// relocation application in inputsection.go is hard-coded to RISC-V.
type Target struct {
	Machine MachineType
	Format  Format

	pltEntrySize  uint64
	pltHeaderSize uint64

	RelativeRel  uint32 // e.g. R_RISCV_RELATIVE
	IrelativeRel uint32
	TlsDtpmodRel uint32 // module-index relocation for dyn-tls
	TlsDtprelRel uint32 // offset relocation for dyn-tls
	TlsTposRel   uint32 // TLS-GOT relocation for a single TP-relative entry
	GlobDatRel   uint32
	JumpSlotRel  uint32
	CopyRel      uint32

	// WritePltHeader/WritePltEntry let the target emit its own
	// trampoline bytes into the PLT section's buffer.
	WritePltHeader func(buf []byte, ctx *Context)
	WritePltEntry  func(buf []byte, ctx *Context, gotPltAddr, pltAddr uint64)
}

func (t *Target) PltEntrySize() uint64  { return t.pltEntrySize }
func (t *Target) PltHeaderSize() uint64 { return t.pltHeaderSize }

// IsRel reports whether relocations for this target are the addend-less
// REL form rather than RELA. It returns false for every target, and no
// code in this package calls it.
func (t *Target) IsRel() bool { return false }

func NewRISCV64Target() *Target {
	return &Target{
		Machine:       MachineTypeRISCV64,
		Format:        Format{Class: elf.ELFCLASS64, Data: elf.ELFDATA2LSB},
		pltEntrySize:  16,
		pltHeaderSize: 32,
		RelativeRel:   uint32(elf.R_RISCV_RELATIVE),
		IrelativeRel:  uint32(rRiscvIrelative),
		TlsDtpmodRel:  uint32(elf.R_RISCV_TLS_DTPMOD64),
		TlsDtprelRel:  uint32(elf.R_RISCV_TLS_DTPREL64),
		TlsTposRel:    uint32(elf.R_RISCV_TLS_TPREL64),
		GlobDatRel:    uint32(elf.R_RISCV_64),
		JumpSlotRel:   uint32(elf.R_RISCV_JUMP_SLOT),
		CopyRel:       uint32(elf.R_RISCV_COPY),
		WritePltHeader: writeRISCVPltHeader,
		WritePltEntry:  writeRISCVPltEntry,
	}
}

// NewMIPS64Target names the constants the MIPS GOT/relocation sections
// (mipsgot.go, mipsabi.go) are written against. Big-endian MIPS is the
// variant original_source/ targets; the CHERI-MIPS128 cap-reloc table
// layers on top of this via Target.Machine == MachineTypeMIPSCheri128.
func NewMIPS64Target() *Target {
	return &Target{
		Machine:       MachineTypeMIPS64,
		Format:        Format{Class: elf.ELFCLASS64, Data: elf.ELFDATA2MSB},
		pltEntrySize:  16,
		pltHeaderSize: 32,
		RelativeRel:   uint32(elf.R_MIPS_REL32),
		TlsDtpmodRel:  uint32(elf.R_MIPS_TLS_DTPMOD64),
		TlsDtprelRel:  uint32(elf.R_MIPS_TLS_DTPREL64),
		TlsTposRel:    uint32(elf.R_MIPS_TLS_TPREL64),
	}
}

func NewARMTarget() *Target {
	return &Target{
		Machine:       MachineTypeARM,
		Format:        Format{Class: elf.ELFCLASS32, Data: elf.ELFDATA2LSB},
		pltEntrySize:  16,
		pltHeaderSize: 20,
		RelativeRel:   uint32(elf.R_ARM_RELATIVE),
		IrelativeRel:  uint32(elf.R_ARM_IRELATIVE),
		GlobDatRel:    uint32(elf.R_ARM_GLOB_DAT),
		JumpSlotRel:   uint32(elf.R_ARM_JUMP_SLOT),
		CopyRel:       uint32(elf.R_ARM_COPY),
	}
}

// writeRISCVPltHeader/writeRISCVPltEntry lay down the auipc+load+jalr
// trampoline sequence linkers emit for lazy-free PLT stubs on RISC-V,
// reusing the same masked-immediate-patch convention as writeUtype and
// writeItype in inputsection.go rather than inventing a new one: each
// 4-byte slot in buf is preloaded with a fixed opcode/register encoding
// and the pc-relative offset is patched into the immediate bits.
func writeRISCVPltHeader(buf []byte, ctx *Context) {
	gotPlt := ctx.GotPlt.Shdr.Addr
	plt := ctx.Plt.Shdr.Addr
	val := uint32(int64(gotPlt) - int64(plt))

	riscvOrder.PutUint32(buf[0:], 0x00000397) // auipc t2, 0
	writeUtype(buf[0:], val)
	riscvOrder.PutUint32(buf[4:], 0x41c30333) // sub t1, t1, t3
	riscvOrder.PutUint32(buf[8:], 0x0003be03) // l[wd] t3, 0(t2)
	writeItype(buf[8:], val)
	riscvOrder.PutUint32(buf[12:], 0x0013d313) // srli t1, t1, 3
	riscvOrder.PutUint32(buf[16:], 0x00038293) // addi t0, t2, 0
	writeItype(buf[16:], val)
	riscvOrder.PutUint32(buf[20:], 0x0002b283) // l[wd] t0, 0(t0)
	riscvOrder.PutUint32(buf[24:], 0x000e0067) // jr t3
	riscvOrder.PutUint32(buf[28:], 0x00000013) // nop
}

func writeRISCVPltEntry(buf []byte, ctx *Context, gotPltAddr, pltAddr uint64) {
	val := uint32(int64(gotPltAddr) - int64(pltAddr))

	riscvOrder.PutUint32(buf[0:], 0x00000e17) // auipc t3, 0
	writeUtype(buf[0:], val)
	riscvOrder.PutUint32(buf[4:], 0x000e3e03) // l[wd] t3, 0(t3)
	writeItype(buf[4:], val)
	riscvOrder.PutUint32(buf[8:], 0x000e0367)  // jalr t1, t3
	riscvOrder.PutUint32(buf[12:], 0x00000013) // nop
}

var riscvOrder = Format{Class: elf.ELFCLASS64, Data: elf.ELFDATA2LSB}.ByteOrder()
