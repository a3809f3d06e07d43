package linker

import (
	"debug/elf"
	"sort"
)

// Version sections implement GNU symbol versioning (spec.md §4.11):
// VerSym parallels the dynsym table one entry per symbol, VerDef lists
// the versions this output itself defines (only meaningful for a shared
// object), VerNeed lists versions required from each needed shared
// object. Version numbering follows the convention the glossary calls
// out: 0 = VER_NDX_LOCAL, 1 = VER_NDX_GLOBAL, 2.. = the object's own
// defined versions in declaration order.
type VersionDef struct {
	Name     string
	Ndx      uint16
	ParentNdx uint16 // 0 if base
}

type VerSymSection struct {
	Chunk
	dynsym *DynsymSection
}

func NewVerSymSection(dynsym *DynsymSection) *VerSymSection {
	v := &VerSymSection{Chunk: NewChunk(), dynsym: dynsym}
	v.Name = ".gnu.version"
	v.Shdr.Type = uint32(elf.SHT_GNU_VERSYM)
	v.Shdr.Flags = uint64(elf.SHF_ALLOC)
	v.Shdr.EntSize = 2
	v.Shdr.AddrAlign = 2
	return v
}

func (v *VerSymSection) UpdateShdr(ctx *Context) {
	v.Shdr.Size = uint64(1+len(v.dynsym.Symbols())) * 2
	v.Shdr.Link = uint32(v.dynsym.Shndx)
}

func (v *VerSymSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[v.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	for i, sym := range v.dynsym.Symbols() {
		ndx := sym.VersionId
		if ndx == 0 {
			ndx = VER_NDX_GLOBAL
		}
		order.PutUint16(buf[(i+1)*2:], ndx)
	}
}

// VerDefSection is ".gnu.version_d": emitted only when this link
// produces a shared object that defines versioned symbols.
type VerDefSection struct {
	Chunk
	strtab *StrtabSection
	defs   []VersionDef
}

func NewVerDefSection(strtab *StrtabSection) *VerDefSection {
	v := &VerDefSection{Chunk: NewChunk(), strtab: strtab}
	v.Name = ".gnu.version_d"
	v.Shdr.Type = uint32(elf.SHT_GNU_VERDEF)
	v.Shdr.Flags = uint64(elf.SHF_ALLOC)
	v.Shdr.AddrAlign = 4
	return v
}

func (v *VerDefSection) Add(name string) uint16 {
	ndx := uint16(2 + len(v.defs))
	v.defs = append(v.defs, VersionDef{Name: name, Ndx: ndx})
	return ndx
}

func (v *VerDefSection) IsEmpty() bool { return len(v.defs) == 0 }

func (v *VerDefSection) UpdateShdr(ctx *Context) {
	v.Shdr.Size = uint64(len(v.defs)) * (VerdefSize + VerdauxSize)
	v.Shdr.Info = uint32(len(v.defs))
}

func (v *VerDefSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[v.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	off := 0
	for i, d := range v.defs {
		order.PutUint16(buf[off:], 1) // VERDEF_CURRENT
		order.PutUint16(buf[off+2:], VER_FLG_BASE)
		order.PutUint16(buf[off+4:], d.Ndx)
		order.PutUint16(buf[off+6:], 1) // aux count
		order.PutUint32(buf[off+8:], elfHash(d.Name))
		order.PutUint32(buf[off+12:], VerdefSize) // aux offset
		if i == len(v.defs)-1 {
			order.PutUint32(buf[off+16:], 0)
		} else {
			order.PutUint32(buf[off+16:], VerdefSize+VerdauxSize)
		}
		order.PutUint32(buf[off+20:], v.strtab.Add(d.Name))
		order.PutUint32(buf[off+24:], 0)
		off += VerdefSize + VerdauxSize
	}
}

// VerNeedSection is ".gnu.version_r": the versions this link requires
// from each needed shared object, grouped by the file that defines
// them.
type VerNeedSection struct {
	Chunk
	strtab *StrtabSection
	needs  map[string][]string // soname -> version names required
}

func NewVerNeedSection(strtab *StrtabSection) *VerNeedSection {
	v := &VerNeedSection{Chunk: NewChunk(), strtab: strtab, needs: map[string][]string{}}
	v.Name = ".gnu.version_r"
	v.Shdr.Type = uint32(elf.SHT_GNU_VERNEED)
	v.Shdr.Flags = uint64(elf.SHF_ALLOC)
	v.Shdr.AddrAlign = 4
	return v
}

func (v *VerNeedSection) Require(soname, version string) {
	for _, existing := range v.needs[soname] {
		if existing == version {
			return
		}
	}
	v.needs[soname] = append(v.needs[soname], version)
}

func (v *VerNeedSection) IsEmpty() bool { return len(v.needs) == 0 }

func (v *VerNeedSection) UpdateShdr(ctx *Context) {
	size := uint64(0)
	for _, versions := range v.needs {
		size += VerneedSize + uint64(len(versions))*VernauxSize
	}
	v.Shdr.Size = size
	v.Shdr.Info = uint32(len(v.needs))
}

func (v *VerNeedSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[v.Shdr.Offset:]
	order := ctx.Format.ByteOrder()

	sonames := make([]string, 0, len(v.needs))
	for soname := range v.needs {
		sonames = append(sonames, soname)
	}
	sort.Strings(sonames)

	off := 0
	i, total := 0, len(v.needs)
	for _, soname := range sonames {
		versions := v.needs[soname]
		order.PutUint16(buf[off:], 1) // VERNEED_CURRENT
		order.PutUint16(buf[off+2:], uint16(len(versions)))
		order.PutUint32(buf[off+4:], v.strtab.Add(soname))
		order.PutUint32(buf[off+8:], VerneedSize)
		if i == total-1 {
			order.PutUint32(buf[off+12:], 0)
		} else {
			order.PutUint32(buf[off+12:], VerneedSize+uint32(len(versions))*VernauxSize)
		}
		auxOff := off + VerneedSize
		for j, ver := range versions {
			order.PutUint32(buf[auxOff:], elfHash(ver))
			order.PutUint16(buf[auxOff+4:], 0)
			order.PutUint16(buf[auxOff+6:], VER_NDX_GLOBAL+uint16(j)+1)
			order.PutUint32(buf[auxOff+8:], v.strtab.Add(ver))
			if j == len(versions)-1 {
				order.PutUint32(buf[auxOff+12:], 0)
			} else {
				order.PutUint32(buf[auxOff+12:], VernauxSize)
			}
			auxOff += VernauxSize
		}
		off += VerneedSize + len(versions)*VernauxSize
		i++
	}
}
