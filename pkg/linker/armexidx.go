package linker

import "debug/elf"

const exidxCantUnwind = 0x1

// ArmExidxSentinelSection appends the closing sentinel entry (PREL31
// pointing one past the last covered range, EXIDX_CANTUNWIND) required
// at the end of an ARM ".ARM.exidx" table so an unwinder always finds a
// bounding entry (spec.md §4.15).
type ArmExidxSentinelSection struct {
	Chunk
}

func NewArmExidxSentinelSection() *ArmExidxSentinelSection {
	a := &ArmExidxSentinelSection{Chunk: NewChunk()}
	a.Name = ".ARM.exidx.sentinel"
	a.Shdr.Type = uint32(elf.SHT_PROGBITS)
	a.Shdr.Flags = uint64(elf.SHF_ALLOC)
	a.Shdr.AddrAlign = 4
	return a
}

func (a *ArmExidxSentinelSection) UpdateShdr(ctx *Context) { a.Shdr.Size = 8 }

func (a *ArmExidxSentinelSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[a.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	// PREL31 offset to one byte past the highest end address of any
	// chunk in the output, relative to this entry's own address.
	order.PutUint32(buf[0:], uint32(int64(ctx.outputImageEnd())-int64(a.Shdr.Addr))&0x7fffffff)
	order.PutUint32(buf[4:], exidxCantUnwind)
}

func (ctx *Context) outputImageEnd() uint64 {
	var end uint64
	for _, c := range ctx.Chunks {
		if c.GetShdr().Addr+c.GetShdr().Size > end {
			end = c.GetShdr().Addr + c.GetShdr().Size
		}
	}
	return end
}
