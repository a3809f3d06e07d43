package linker

import (
	"bytes"
	"debug/elf"
	"github.com/ksco/rvld/pkg/utils"
	"math"
)

/*
 * ObjectFile 是 InputFile 的子类
 * 除了继承 InputFile 的属性外，还具备以下属性
 *
 * @SymtabSec：指向符号表所对应的 Section
 *
 * @SymtabShndxSec: 背景知识，和 SHT_SYMTAB_SHNDX 有关
 *  符号表的每一项 Elf_Sym 中有个字段 st_shndx (符号所在 section 的 index)
 *  正常情况下，当一个符号定义在本 obj 文件中，则该值就是符号所在 section 的 index
 *  其他情况会有特殊值：譬如 SHN_ABS/SHN_UNDEF/... 具体参考 cxyxy
 *  但是 cxyxy 中没有提到一个 SHN_XINDEX， 如果是这个值，则说明当前 obj 文件的
 *  符号表 section 还对应一个 type 为 SHT_SYMTAB_SHNDX 的 section。这个 section 由
 *  一个 Elf32_Word 的数组组成，数组的个数和该 obj 文件的符号表的 entry 相同。
 *  主要是用于扩展，因为原来的 st_shndx 的类型是 Elf32_Half, 即 16 bit 宽，如果
 *  section 个数很多，则不够，需要用 32 位的扩展。
 *  也就是说当符号表的项目个数很多，超出 Elf32_Half 能够表达的范围时，Elf_Sym 中
 *  的字段 st_shndx 就为 SHN_XINDEX，此时这个符号所在的 section 的 index 值我们就
 *  需要到一个特殊的 section，即 type 为 SHT_SYMTAB_SHNDX 的 section 中去查找。
 *
 * @Sections: 与 obj 文件中 Elf section 一一对应的 InputSection，方便 linker 内部处理
 *            但需要注意，并不是所有的 ELF section 都会创建对应的 InputSection 对象
 *            所以说虽然 ObjectFile::Sections 数组的个数和 InputFile::ElfSections
 *            的个数相同，但 ObjectFile::Sections 中实际有效的 InputSection 的个数
 *            会小于 InputFile::ElfSections 的个数，另外注意到 ObjectFile::Sections
 *            数组成员存放的是 *InputSection，这也体现了如果某个 elf section 不需要
 *            创建对应的 InputSection，那么 ObjectFile::Sections[] 中对应的项只会
 *            占用一个指针的大小，不会浪费内存
 *
 * @MergeableSections： 可以 merge 的 section，有关 MergeableSection 参考其定义
 */
type ObjectFile struct {
	InputFile
	SymtabSec         *Shdr        // 由 ObjectFile::Parse 解析获取
	SymtabShndxSec    []uint32
	Sections          []*InputSection
	MergeableSections []*MergeableSection
}

// 在 InputFile 基础上
// 仅仅多了初始化一个 IsAlive 成员
func NewObjectFile(file *File, isAlive bool) *ObjectFile {
	o := &ObjectFile{InputFile: NewInputFile(file)}
	o.IsAlive = isAlive
	return o
}

// 进一步解析 object 文件
// 获取以下信息 
// SymtabSec
// FirstGlobal
// ElfSyms
// SymbolStrtab
func (o *ObjectFile) Parse(ctx *Context) {
	// 获取并保存符号表 section header
	o.SymtabSec = o.FindSection(uint32(elf.SHT_SYMTAB))
	// 获取第一个 Global 符号的位置
	if o.SymtabSec != nil {
		o.FirstGlobal = int(o.SymtabSec.Info)
		// 将 ELF 文件中的符号表 entry 读出来存放在 ElfSyms 成员中
		o.FillUpElfSyms(o.SymtabSec)
		// 将 ELF 文件中存放符号字符串的 section 的 rawdata 导出存放用于后续分析
		o.SymbolStrtab = o.GetBytesFromIdx(int64(o.SymtabSec.Link))
	}

	// 根据对应 obj 文件中的 ELF section 初始化 ObjectFile::Sections
	o.InitializeSections(ctx)

	// 解析文件的符号，LOCAL 符号放在 ObjectFile 中保存，GLOBAL 符号放在 Context 中保存
	o.InitializeSymbols(ctx)

	//
	o.InitializeMergeableSections(ctx)
}

// ParseCapRelocSections feeds every "__cap_relocs" input section into the
// shared CapRelocsSection (spec.md §4.13), present only on the
// CHERI-MIPS128 variant.
func (o *ObjectFile) ParseCapRelocSections(ctx *Context) {
	if ctx.CapRelocs == nil {
		return
	}
	for _, isec := range o.Sections {
		if isec != nil && isec.IsAlive && isec.Name() == "__cap_relocs" {
			ctx.CapRelocs.ParseAndValidate(ctx, isec)
			isec.IsAlive = false
		}
	}
}

// ParseMipsAbiSections folds each MIPS object's ".MIPS.abiflags" and
// ".MIPS.options" input sections into the shared, link-wide union
// (spec.md §4.13/§4.14): ISA level, ASE flags, FP ABI, and register
// masks all need to be the widest value any contributing object
// requires, not just whichever object happened to be seen first.
func (o *ObjectFile) ParseMipsAbiSections(ctx *Context) {
	if ctx.MipsAbiFlags == nil && ctx.MipsOptions == nil {
		return
	}

	order := ctx.Format.ByteOrder()
	for _, isec := range o.Sections {
		if isec == nil || !isec.IsAlive {
			continue
		}

		switch isec.Name() {
		case ".MIPS.abiflags":
			if ctx.MipsAbiFlags == nil || len(isec.Contents) < 24 {
				continue
			}
			b := isec.Contents
			ctx.MipsAbiFlags.Merge(b[2], b[3], b[4], b[5], b[6], b[7],
				order.Uint32(b[8:]), order.Uint32(b[12:]), order.Uint32(b[16:]))
			isec.IsAlive = false
		case ".MIPS.options":
			if ctx.MipsOptions == nil || len(isec.Contents) < 40 {
				continue
			}
			b := isec.Contents
			// ODK_REGINFO descriptor: kind(1) size(1) sectionIdx(2) info(4),
			// followed by the 32-byte cpu_rinfo body at offset 8.
			if b[0] != 1 { // ODK_REGINFO
				continue
			}
			gprMask := order.Uint32(b[8:])
			cpr1Mask := order.Uint32(b[16:])
			cpr2Mask := order.Uint32(b[20:])
			gpValue := int64(order.Uint64(b[32:]))
			ctx.MipsOptions.Merge(gprMask, cpr1Mask, cpr2Mask, gpValue)
			isec.IsAlive = false
		}
	}
}

func (o *ObjectFile) InitializeSections(ctx *Context) {
	// obj 文件中的 InputSection 个数必然和 Section header 数组的 size 相同
	o.Sections = make([]*InputSection, len(o.ElfSections))
	// 将我们感兴趣的 section 转化为 InputSection 对象并存放在 Context::Sections
	// 数组中，不感兴趣的略过
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		switch elf.SectionType(shdr.Type) {
		case elf.SHT_GROUP, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA,
			elf.SHT_NULL:
			break
		case elf.SHT_SYMTAB_SHNDX:
			o.FillUpSymtabShndxSec(shdr)
		default:
			// 剩下的都是我们感兴趣的 section，一一对应创建 InputSection
			// 如果深入 NewInputSection 函数，我们会发现
			// 在对所有 InputSection 都创建完后，Context::OutputSections
			// 也创建完毕，包含了所有需要输出的 section
			name := ElfGetName(o.InputFile.ShStrtab, shdr.Name)
			o.Sections[i] = NewInputSection(ctx, name, o, uint32(i))
		}
	}

	// FIXME 这段逻辑没有看明白
	// shdr 应该是某个 type 是 SHT_RELA 的 section，应该对应的是一个重定向表 section
	// RelsecIdx 难道不是应该就是这个 shdr 的属性吗？用于标识这个重定向表是对应于
	// 哪个 section
	// 为啥这里是 target := o.Sections[shdr.Info]
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.InputFile.ElfSections[i]
		if shdr.Type != uint32(elf.SHT_RELA) {
			continue
		}

		utils.Assert(shdr.Info < uint32(len(o.Sections)))
		if target := o.Sections[shdr.Info]; target != nil {
			utils.Assert(target.RelsecIdx == math.MaxUint32)
			target.RelsecIdx = uint32(i)
		}
	}
}

func (o *ObjectFile) FillUpSymtabShndxSec(s *Shdr) {
	bs := o.GetBytesFromShdr(s)
	o.SymtabShndxSec = utils.ReadSlice[uint32](bs, 4)
}

func (o *ObjectFile) InitializeSymbols(ctx *Context) {
	if o.SymtabSec == nil {
		return
	}

	// 创建 LocalSymbols 数组
	o.LocalSymbols = make([]Symbol, o.FirstGlobal)
	for i := 0; i < len(o.LocalSymbols); i++ {
		o.LocalSymbols[i] = *NewSymbol("")
	}
	o.LocalSymbols[0].File = o

	// 从 index 为 1 的符号开始，对 Local 符号对应的 Symbol 数组 LocalSymbols 进行初始化
	// 第一个（index==0）的符号无效的未定义符号，我们直接跳过
	for i := 1; i < len(o.LocalSymbols); i++ {
		esym := &o.ElfSyms[i]
		sym := &o.LocalSymbols[i]
		sym.Name = ElfGetName(o.SymbolStrtab, esym.Name)
		sym.File = o
		sym.Value = esym.Val //先填写为 Elf_Sym::st_value
		sym.SymIdx = i

		// 对于 !ABS 的 符号，设置其所在 section 的 index
		if !esym.IsAbs() {
			sym.SetInputSection(o.Sections[o.GetShndx(esym, i)])
		}
	}

	// 对 InputFile::Symbols 初始化
	// InputFile::Symbols 由两部分组成，
	// 一部分是 LOCAL 符号，所以直接指向 InputFile::LocalSymbols 的成员
	o.Symbols = make([]*Symbol, len(o.ElfSyms))
	for i := 0; i < len(o.LocalSymbols); i++ {
		o.Symbols[i] = &o.LocalSymbols[i]
	}
	// 另一部分是 GLOBAL 符号，这部分指向 Context::SymbolMap 的成员
	// 注意在 GetSymbolByName 的过程中会向 Context::SymbolMap 添加。所以对所有
	// obj 文件执行完一遍 Parse 后，Context::SymbolMap 中会包含所有的 GLOBAL 符号
	for i := len(o.LocalSymbols); i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		name := ElfGetName(o.SymbolStrtab, esym.Name)
		o.Symbols[i] = GetSymbolByName(ctx, name)
	}
}

func (o *ObjectFile) GetShndx(esym *Sym, idx int) int64 {
	utils.Assert(idx >= 0 && idx < len(o.ElfSyms))

	if esym.Shndx == uint16(elf.SHN_XINDEX) {
		return int64(o.SymtabShndxSec[idx])
	}
	return int64(esym.Shndx)
}

func (o *ObjectFile) ResolveSymbols() {
	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		if esym.IsUndef() {
			continue
		}

		var isec *InputSection
		if !esym.IsAbs() && !esym.IsCommon() {
			isec = o.GetSection(esym, i)
			if isec == nil {
				continue
			}
		}

		if sym.File == nil {
			sym.File = o
			sym.SetInputSection(isec)
			sym.Value = esym.Val
			sym.SymIdx = i
		}
	}
}

func (o *ObjectFile) GetSection(esym *Sym, idx int) *InputSection {
	return o.Sections[o.GetShndx(esym, idx)]
}

func (o *ObjectFile) MarkLiveObjects(feeder func(*ObjectFile)) {
	utils.Assert(o.IsAlive)

	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		if sym.File == nil {
			continue
		}

		if esym.IsUndef() && !sym.File.IsAlive {
			sym.File.IsAlive = true
			feeder(sym.File)
		}
	}
}

func (o *ObjectFile) ClearSymbols() {
	for _, sym := range o.Symbols[o.FirstGlobal:] {
		if sym.File == o {
			sym.Clear()
		}
	}
}

// 对 InputSection 中的带有 Elf_Shdr::sh_flag 取值为 SHF_MERGE 的 section 进行处理
// 具体的处理由 splitSection 完成
func (o *ObjectFile) InitializeMergeableSections(ctx *Context) {
	o.MergeableSections = make([]*MergeableSection, len(o.Sections))
	for i := 0; i < len(o.Sections); i++ {
		isec := o.Sections[i]
		if isec != nil && isec.IsAlive &&
			isec.Shdr().Flags&uint64(elf.SHF_MERGE) != 0 {
			o.MergeableSections[i] = splitSection(ctx, isec)
			isec.IsAlive = false
		}
	}
}

func findNull(data []byte, entSize int) int {
	if entSize == 1 {
		return bytes.Index(data, []byte{0})
	}

	for i := 0; i <= len(data)-entSize; i += entSize {
		bs := data[i : i+entSize]
		if utils.AllZeros(bs) {
			return i
		}
	}

	return -1
}

func splitSection(ctx *Context, isec *InputSection) *MergeableSection {
	m := &MergeableSection{}
	shdr := isec.Shdr()

	m.Parent = GetMergedSectionInstance(ctx, isec.Name(), shdr.Type,
		shdr.Flags)
	m.P2Align = isec.P2Align

	data := isec.Contents
	offset := uint64(0)
	if shdr.Flags&uint64(elf.SHF_STRINGS) != 0 {
		for len(data) > 0 {
			end := findNull(data, int(shdr.EntSize))
			if end == -1 {
				utils.Fatal("string is not null terminated")
			}

			sz := uint64(end) + shdr.EntSize
			substr := data[:sz]
			data = data[sz:]
			m.Strs = append(m.Strs, string(substr))
			m.FragOffsets = append(m.FragOffsets, uint32(offset))
			offset += sz
		}
	} else {
		if uint64(len(data))%shdr.EntSize != 0 {
			utils.Fatal("section size is not multiple of entsize")
		}

		for len(data) > 0 {
			substr := data[:shdr.EntSize]
			data = data[shdr.EntSize:]
			m.Strs = append(m.Strs, string(substr))
			m.FragOffsets = append(m.FragOffsets, uint32(offset))
			offset += shdr.EntSize
		}
	}

	return m
}

func (o *ObjectFile) RegisterSectionPieces(ctx *Context) {
	for _, m := range o.MergeableSections {
		if m == nil {
			continue
		}

		m.Fragments = make([]*SectionFragment, 0, len(m.Strs))
		for i := 0; i < len(m.Strs); i++ {
			m.Fragments = append(m.Fragments,
				m.Parent.Insert(m.Strs[i], uint32(m.P2Align)))
		}
	}

	for i := 1; i < len(o.ElfSyms); i++ {
		sym := o.Symbols[i]
		esym := &o.ElfSyms[i]

		if esym.IsAbs() || esym.IsUndef() {
			continue
		}

		if esym.IsCommon() {
			// A tentative definition only owns the symbol if this file won
			// symbol resolution for it (ResolveSymbols keeps the first
			// definition it sees, common or not).
			if sym.File == o {
				align := esym.Val // st_value holds the alignment for SHN_COMMON
				if align == 0 {
					align = 1
				}
				offset := ctx.Bss.Add(sym, esym.Size, align)
				sym.SetInputSection(nil)
				sym.Common = ctx.Bss
				sym.Value = offset
			}
			continue
		}

		m := o.MergeableSections[o.GetShndx(esym, i)]
		if m == nil {
			continue
		}

		frag, fragOffset := m.GetFragment(uint32(esym.Val))
		if frag == nil {
			utils.Fatal("bad symbol value")
		}
		sym.SetSectionFragment(frag)
		sym.Value = uint64(fragOffset)
	}
}

// ParseEhFrameSections walks each ".eh_frame" input section's CIE/FDE
// record stream and feeds the records into the shared EhFrameSection
// (spec.md §4.7) instead of copying the raw input bytes: every record
// is a 4-byte length prefix, a 4-byte CIE_pointer (zero for a CIE,
// otherwise a backward byte distance to the CIE it extends), and a
// record body. A zero-length record is the section's own terminator and
// ends the walk. The FDE's initial-location field is resolved through
// the input section's own relocation against it rather than decoded
// from the (not yet relinked) raw bytes.
func (o *ObjectFile) ParseEhFrameSections(ctx *Context) {
	for _, isec := range o.Sections {
		if isec == nil || !isec.IsAlive || isec.Name() != ".eh_frame" {
			continue
		}

		rels := isec.GetRels()
		relAt := func(off uint64) (Rela, bool) {
			for _, r := range rels {
				if r.Offset == off {
					return r, true
				}
			}
			return Rela{}, false
		}

		data := isec.Contents
		ciesByOffset := map[int]*cieRecord{}

		for pos := 0; pos+4 <= len(data); {
			length := ctx.Format.ByteOrder().Uint32(data[pos:])
			if length == 0 {
				break // terminator
			}
			recEnd := pos + 4 + int(length)
			if recEnd > len(data) || pos+8 > len(data) {
				break // truncated/malformed record; stop rather than read out of bounds
			}

			cieOffsetField := ctx.Format.ByteOrder().Uint32(data[pos+4:])
			body := data[pos:recEnd]

			if cieOffsetField == 0 {
				personality := ""
				if r, ok := relAt(uint64(pos + 8)); ok {
					if sym := isec.File.Symbols[r.Sym]; sym.File != nil {
						personality = sym.Name
					}
				}
				ciesByOffset[pos] = ctx.EhFrame.AddCie(append([]byte(nil), body...), personality)
			} else {
				cieOffset := pos + 4 - int(cieOffsetField)
				cie, ok := ciesByOffset[cieOffset]
				if !ok {
					// CIE registered from a section processed earlier in
					// file order isn't reachable here; fall back to a
					// fresh (undeduped) record rather than dropping the FDE.
					cie = ctx.EhFrame.AddCie(nil, "")
				}

				pc := uint64(0)
				if r, ok := relAt(uint64(pos + 8)); ok {
					if sym := isec.File.Symbols[r.Sym]; sym.File != nil {
						pc = sym.GetAddr() + uint64(r.Addend)
					}
				}
				ctx.EhFrame.AddFde(cie, append([]byte(nil), body...), pc)
			}

			pos = recEnd
		}

		isec.IsAlive = false
	}
}

func (o *ObjectFile) ScanRelocations(ctx *Context) {
	for _, isec := range o.Sections {
		if isec != nil && isec.IsAlive &&
			isec.Shdr().Flags&uint64(elf.SHF_ALLOC) != 0 {
			isec.ScanRelocations(ctx)
		}
	}

	if ctx.MipsGot != nil {
		var candidates []*Symbol
		for _, sym := range ctx.MipsGot.globals {
			if sym.File == o {
				candidates = append(candidates, sym)
			}
		}
		ctx.MipsGot.EnforceBudget(o, candidates)
	}
}
