package linker

import (
	"debug/elf"
	"encoding/binary"
)

// Format threads the bit-width x endianness axis through the engine
// (spec.md §2 "Endian/bit-width abstraction", §9 design notes). It
// replaces per-architecture template instantiation with a single value
// every synthetic section reads before sizing or writing anything.
//
// Modeled on the FileClass/FileEndian split in
// WonderfulToolchain-wf-tools/go/elf/constants.go, but built directly on
// the stdlib debug/elf enums rather than re-declaring them.
type Format struct {
	Class elf.Class
	Data  elf.Data
}

func (f Format) WordSize() int {
	if f.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

func (f Format) Is64() bool { return f.Class == elf.ELFCLASS64 }

func (f Format) ByteOrder() binary.ByteOrder {
	return byteOrderFor(f.Data != elf.ELFDATA2MSB)
}

func byteOrderFor(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func FormatFor(m MachineType) Format {
	switch m {
	case MachineTypeRISCV32, MachineTypeARM:
		return Format{Class: elf.ELFCLASS32, Data: elf.ELFDATA2LSB}
	case MachineTypeMIPS64, MachineTypeMIPSCheri128:
		// Observed corpus (original_source) targets big-endian MIPS n64;
		// the engine is parametric either way, this is just the default.
		return Format{Class: elf.ELFCLASS64, Data: elf.ELFDATA2MSB}
	default:
		return Format{Class: elf.ELFCLASS64, Data: elf.ELFDATA2LSB}
	}
}
