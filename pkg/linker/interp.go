package linker

import "debug/elf"

// InterpSection is ".interp": the NUL-terminated path to the dynamic
// loader, present only when producing an executable that needs one
// (spec.md §4.16).
type InterpSection struct {
	Chunk
	path string
}

const DefaultInterp = "/lib64/ld-linux-riscv64-lp64d.so.1"

func NewInterpSection(path string) *InterpSection {
	i := &InterpSection{Chunk: NewChunk(), path: path}
	i.Name = ".interp"
	i.Shdr.Type = uint32(elf.SHT_PROGBITS)
	i.Shdr.Flags = uint64(elf.SHF_ALLOC)
	i.Shdr.AddrAlign = 1
	return i
}

func (i *InterpSection) IsEmpty() bool { return i.path == "" }

func (i *InterpSection) UpdateShdr(ctx *Context) { i.Shdr.Size = uint64(len(i.path) + 1) }

func (i *InterpSection) CopyBuf(ctx *Context) {
	copy(ctx.Buf[i.Shdr.Offset:], i.path)
	ctx.Buf[i.Shdr.Offset+uint64(len(i.path))] = 0
}
