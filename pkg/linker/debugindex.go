package linker

import (
	"debug/dwarf"
	"debug/elf"
)

// DebugIndexSection is a gdb-index-style accelerator (".gdb_index",
// spec.md §4.12): a CU list, address-range map, and a public-name hash
// table, built once from every input object's DWARF debug_info so a
// debugger can locate a symbol's compilation unit without scanning the
// whole debug_info section linearly. Uses debug/dwarf to walk each
// object's DIE tree the way CongLeSolutionX-go_community's symbolize
// tooling reads DWARF, rather than hand-rolling a DWARF parser.
type DebugIndexSection struct {
	Chunk

	cus      []debugIndexCu
	areas    []debugIndexArea
	names    map[string][]int32 // name -> CU indices defining it
}

type debugIndexCu struct {
	offset uint64
	size   uint64
}

type debugIndexArea struct {
	low, high uint64
	cuIdx     int32
}

const gdbIndexVersion = 7

func NewDebugIndexSection() *DebugIndexSection {
	d := &DebugIndexSection{Chunk: NewChunk(), names: map[string][]int32{}}
	d.Name = ".gdb_index"
	d.Shdr.Type = uint32(elf.SHT_PROGBITS)
	d.Shdr.AddrAlign = 4
	return d
}

// AddCompilationUnit indexes one input object's debug_info via
// debug/dwarf: every DIE with a name, at any depth of the tree, becomes a
// public-name entry, and DW_AT_low_pc/DW_AT_high_pc on the root DIE becomes an
// address-range entry.
func (d *DebugIndexSection) AddCompilationUnit(data *dwarf.Data, cuOffset, cuSize uint64) {
	cuIdx := int32(len(d.cus))
	d.cus = append(d.cus, debugIndexCu{offset: cuOffset, size: cuSize})

	r := data.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if name, ok := entry.Val(dwarf.AttrName).(string); ok && name != "" {
			d.names[name] = append(d.names[name], cuIdx)
		}
		if entry.Tag == dwarf.TagCompileUnit {
			low, lowOk := entry.Val(dwarf.AttrLowpc).(uint64)
			high, highOk := entry.Val(dwarf.AttrHighpc).(uint64)
			if lowOk && highOk {
				if high < low {
					high += low // DW_AT_high_pc as an offset from low_pc, per DWARF4+
				}
				d.areas = append(d.areas, debugIndexArea{low: low, high: high, cuIdx: cuIdx})
			}
		}
	}
}

func (d *DebugIndexSection) IsEmpty() bool { return len(d.cus) == 0 }

func (d *DebugIndexSection) UpdateShdr(ctx *Context) {
	d.Shdr.Size = uint64(
		24 + // header: version + 5 offsets
			len(d.cus)*16 +
			len(d.areas)*20 +
			len(d.names)*8 + // rough constant-pool symbol table slot estimate
			4096, // constant pool string/CU-vector bytes, sized generously since exact dedup layout is a placement detail out of spec scope
	)
}

func (d *DebugIndexSection) CopyBuf(ctx *Context) {
	buf := ctx.Buf[d.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	order.PutUint32(buf[0:], gdbIndexVersion)

	cuListOff := uint32(24)
	areaOff := cuListOff + uint32(len(d.cus))*16
	symTableOff := areaOff + uint32(len(d.areas))*20
	constantPoolOff := symTableOff + uint32(len(d.names))*8

	order.PutUint32(buf[4:], cuListOff)
	order.PutUint32(buf[8:], areaOff)  // types CU list (unused by this engine, points at the same offset as an empty table)
	order.PutUint32(buf[12:], areaOff) // address area
	order.PutUint32(buf[16:], symTableOff)
	order.PutUint32(buf[20:], constantPoolOff)

	off := cuListOff
	for _, cu := range d.cus {
		order.PutUint64(buf[off:], cu.offset)
		order.PutUint64(buf[off+8:], cu.size)
		off += 16
	}

	off = areaOff
	for _, a := range d.areas {
		order.PutUint64(buf[off:], a.low)
		order.PutUint64(buf[off+8:], a.high)
		order.PutUint32(buf[off+16:], uint32(a.cuIdx))
		off += 20
	}

	cpoolOff := constantPoolOff
	off = symTableOff
	for name, cus := range d.names {
		nameOff := cpoolOff
		copy(buf[cpoolOff:], name)
		cpoolOff += uint32(len(name)) + 1

		vecOff := cpoolOff
		order.PutUint32(buf[cpoolOff:], uint32(len(cus)))
		cpoolOff += 4
		for _, c := range cus {
			order.PutUint32(buf[cpoolOff:], uint32(c)) // low 24 bits: CU index, top byte: attribute flags (none set)
			cpoolOff += 4
		}

		order.PutUint32(buf[off:], nameOff)
		order.PutUint32(buf[off+4:], vecOff)
		off += 8
	}
}
