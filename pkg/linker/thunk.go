package linker

import "debug/elf"

// ThunkSection holds range-extension trampolines for branch
// instructions whose target falls outside the displacement encoding's
// reach once final addresses are known (spec.md §4.18). Each thunk is a
// short pc-relative jump sequence (auipc+jr);
// this engine places all of them in one section per output rather than
// interleaving per-output-section groups, trading a small amount of
// extra reach margin for simpler offset bookkeeping.
type thunkEntry struct {
	target  *Symbol
	offset  uint64
}

type ThunkSection struct {
	Chunk
	entries []thunkEntry
	index   map[*Symbol]uint64
}

func NewThunkSection() *ThunkSection {
	t := &ThunkSection{Chunk: NewChunk(), index: map[*Symbol]uint64{}}
	t.Name = ".thunks"
	t.Shdr.Type = uint32(elf.SHT_PROGBITS)
	t.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	t.Shdr.AddrAlign = 4
	return t
}

const thunkEntrySize = 8 // auipc+jr pair, reused across targets

// GetOrCreate returns the address of a thunk that jumps to target,
// creating one on first request per target (distinct callers sharing an
// out-of-range target share a single thunk).
func (t *ThunkSection) GetOrCreate(target *Symbol) uint64 {
	if off, ok := t.index[target]; ok {
		return t.Shdr.Addr + off
	}
	off := uint64(len(t.entries)) * thunkEntrySize
	t.entries = append(t.entries, thunkEntry{target: target, offset: off})
	t.index[target] = off
	return t.Shdr.Addr + off
}

func (t *ThunkSection) IsEmpty() bool { return len(t.entries) == 0 }

func (t *ThunkSection) UpdateShdr(ctx *Context) {
	t.Shdr.Size = uint64(len(t.entries)) * thunkEntrySize
}

func (t *ThunkSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[t.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for _, e := range t.entries {
		val := uint32(int64(e.target.GetAddr()) - int64(t.Shdr.Addr+e.offset))
		order.PutUint32(buf[e.offset:], 0x00000317) // auipc t1, 0 (patched below)
		writeUtype(buf[e.offset:], val)
		order.PutUint32(buf[e.offset+4:], 0x00030067) // jr t1 (low 12 bits patched below)
		writeItype(buf[e.offset+4:], val)
	}
}
