package linker

import "debug/elf"

// cieRecord is a deduplicated Common Information Entry: identical CIE
// bytes paired with the same personality routine collapse to one
// physical record, the way every production linker folds the (usually
// dozens of) per-object copies of the compiler's default CIE into one
// (spec.md §4.7).
type cieRecord struct {
	contents    []byte
	personality string // symbol name referenced by a personality-routine relocation, or ""
	outputOffset uint64
}

type fdeRecord struct {
	cie          *cieRecord
	contents     []byte
	pc           uint64 // resolved PC of the function this FDE covers
	outputOffset uint64 // this FDE's own byte offset within .eh_frame, set by UpdateShdr
}

// EhFrameSection is ".eh_frame": the deduplicated CIE/FDE stream itself
// (spec.md §4.7). EhFrameHdrSection (below) indexes it.
type EhFrameSection struct {
	Chunk
	cies []*cieRecord
	fdes []*fdeRecord
}

func NewEhFrameSection() *EhFrameSection {
	e := &EhFrameSection{Chunk: NewChunk()}
	e.Name = ".eh_frame"
	e.Shdr.Type = uint32(elf.SHT_PROGBITS)
	e.Shdr.Flags = uint64(elf.SHF_ALLOC)
	e.Shdr.AddrAlign = 8
	return e
}

// AddCie registers one input object's CIE, deduped by (contents,
// personality). Returns the (possibly shared) record.
func (e *EhFrameSection) AddCie(contents []byte, personality string) *cieRecord {
	for _, c := range e.cies {
		if c.personality == personality && bytesEqual(c.contents, contents) {
			return c
		}
	}
	c := &cieRecord{contents: contents, personality: personality}
	e.cies = append(e.cies, c)
	return c
}

func (e *EhFrameSection) AddFde(cie *cieRecord, contents []byte, pc uint64) {
	e.fdes = append(e.fdes, &fdeRecord{cie: cie, contents: contents, pc: pc})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ehFramePadded rounds a record length up to the output format's word
// size, the alignment every CIE/FDE record in a well-formed .eh_frame
// observes.
func ehFramePadded(n int, ws int) uint64 {
	if ws <= 0 {
		ws = 4
	}
	return uint64((n + ws - 1) &^ (ws - 1))
}

func (e *EhFrameSection) UpdateShdr(ctx *Context) {
	ws := ctx.Format.WordSize()
	off := uint64(0)
	for _, c := range e.cies {
		c.outputOffset = off
		off += ehFramePadded(len(c.contents), ws)
	}
	for _, f := range e.fdes {
		f.outputOffset = off
		off += ehFramePadded(len(f.contents), ws)
	}
	off += 4 // terminator: a single zero length word
	e.Shdr.Size = off
}

func (e *EhFrameSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[e.Shdr.Offset:]
	order := ctx.Format.ByteOrder()

	for _, c := range e.cies {
		copy(buf[c.outputOffset:], c.contents)
	}
	for _, f := range e.fdes {
		dst := buf[f.outputOffset:]
		copy(dst, f.contents)
		if len(f.contents) >= 8 {
			// CIE_pointer is the distance back from this field to the
			// start of the CIE record it extends.
			order.PutUint32(dst[4:], uint32(f.outputOffset+4-f.cie.outputOffset))
		}
	}

	order.PutUint32(buf[e.Shdr.Size-4:], 0) // terminator
}

// SortedFdes returns the FDE list ordered by PC, the form
// EhFrameHdrSection needs for its binary-searchable index.
func (e *EhFrameSection) SortedFdes() []*fdeRecord {
	out := append([]*fdeRecord(nil), e.fdes...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].pc < out[j-1].pc; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// EhFrameHdrSection is ".eh_frame_hdr": a fixed header plus a sorted
// (initial-PC, FDE-address) table, letting an unwinder binary-search for
// the FDE covering a given PC instead of walking .eh_frame linearly
// (spec.md §4.7).
type EhFrameHdrSection struct {
	Chunk
	ehframe *EhFrameSection
}

func NewEhFrameHdrSection(ehframe *EhFrameSection) *EhFrameHdrSection {
	h := &EhFrameHdrSection{Chunk: NewChunk(), ehframe: ehframe}
	h.Name = ".eh_frame_hdr"
	h.Shdr.Type = uint32(elf.SHT_PROGBITS)
	h.Shdr.Flags = uint64(elf.SHF_ALLOC)
	h.Shdr.AddrAlign = 4
	return h
}

func (h *EhFrameHdrSection) UpdateShdr(ctx *Context) {
	h.Shdr.Size = 12 + uint64(len(h.ehframe.fdes))*8
}

func (h *EhFrameHdrSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[h.Shdr.Offset:]
	buf[0] = 1    // version
	buf[1] = 0x1b // eh_frame_ptr_enc: pcrel sdata4
	buf[2] = 0x03 // fde_count_enc: udata4
	buf[3] = 0x3b // table_enc: datarel sdata4

	order := ctx.Format.ByteOrder()
	ehFrameAddr := h.ehframe.Shdr.Addr
	order.PutUint32(buf[4:], uint32(int64(ehFrameAddr)-int64(h.Shdr.Addr)-4))
	order.PutUint32(buf[8:], uint32(len(h.ehframe.fdes)))

	off := 12
	for _, fde := range h.ehframe.SortedFdes() {
		order.PutUint32(buf[off:], uint32(int64(fde.pc)-int64(h.Shdr.Addr)))
		fdeAddr := ehFrameAddr + fde.outputOffset
		order.PutUint32(buf[off+4:], uint32(int64(fdeAddr)-int64(h.Shdr.Addr)))
		off += 8
	}
}
