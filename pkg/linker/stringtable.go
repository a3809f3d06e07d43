package linker

import "debug/elf"

// StrtabSection is a plain ELF string table (spec.md §4.2): a leading
// NUL byte, followed by each registered string plus its own terminator,
// in the order registered. Add never deduplicates; AddDedup reuses the
// offset of an identical string registered earlier through AddDedup
// (whole strings only, no suffix sharing). OutputShdr uses AddDedup for
// the .shstrtab section names.
type StrtabSection struct {
	Chunk
	buf    []byte
	offset map[string]uint32
}

func NewStrtabSection(name string) *StrtabSection {
	s := &StrtabSection{Chunk: NewChunk(), buf: []byte{0}, offset: map[string]uint32{}}
	s.Name = name
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	s.Shdr.AddrAlign = 1
	return s
}

// Add appends str unconditionally and returns its offset.
func (s *StrtabSection) Add(str string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(str)...)
	s.buf = append(s.buf, 0)
	return off
}

// AddDedup returns the offset of a prior identical string if one was
// ever registered through AddDedup, or registers a fresh one.
func (s *StrtabSection) AddDedup(str string) uint32 {
	if off, ok := s.offset[str]; ok {
		return off
	}
	off := s.Add(str)
	s.offset[str] = off
	return off
}

func (s *StrtabSection) UpdateShdr(ctx *Context) {
	s.Shdr.Size = uint64(len(s.buf))
}

func (s *StrtabSection) CopyBuf(ctx *Context) {
	copy(ctx.Buf[s.Shdr.Offset:], s.buf)
}
