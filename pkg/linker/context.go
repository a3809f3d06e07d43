package linker

// IMAGE_BASE is the default load address this engine lays executables
// out from; shared objects/PIEs are still assigned addresses starting
// here since Context never implements address-space randomization
// itself (that's the loader's job at runtime).
const IMAGE_BASE = 0x200000

// ContextArgs holds the command-line options and environment-derived
// defaults this engine understands (spec.md's expanded ambient-config
// surface): everything a driver can set before the link pipeline in
// passes.go runs.
type ContextArgs struct {
	Output       string
	Emulation    MachineType
	LibraryPaths []string

	Shared bool
	Pie    bool
	Static bool

	Soname  string
	RPaths  []string
	EnableNewDtags bool

	ZNow      bool
	ZLazy     bool
	ZNodelete bool
	ZNodlopen bool
	ZOrigin   bool
	ZText     bool
	ZNotext   bool
	ZCombreloc bool
	ZRodynamic bool
	BSymbolic bool

	BuildIdKind  BuildIdKind
	BuildIdBytes []byte

	HashStyleSysv bool
	HashStyleGnu  bool

	InitSym string
	FiniSym string

	DynamicLinker string

	// CopyRelocAddends names the mixed REL/RELA addend copy-back option.
	// Nothing in the linker reads it: no addend copy-back is performed
	// whatever its value, and every target is handled as RELA.
	CopyRelocAddends bool

	// CapRelocsUndefinedWeak controls whether an undefined-weak
	// __cap_relocs Obj field gets the all-ones sentinel (true, this
	// engine's default) or is dropped from the table entirely.
	CapRelocsUndefinedWeak bool
}

// Context is the whole-link shared state every pass in passes.go reads
// from and writes into: resolved symbols, synthetic sections, and the
// final output buffer. One Context exists per invocation.
type Context struct {
	Args ContextArgs
	Buf  []byte

	Format Format
	Target *Target

	Ehdr *OutputEhdr
	Shdr *OutputShdr
	Phdr *OutputPhdr

	// Generic synthetic sections (spec.md §4), present regardless of
	// target architecture. Nil when the link doesn't need them (e.g.
	// Dynamic stays nil for a fully static executable).
	Got        *GotSection
	GotPlt     *GotPltSection
	IgotPlt    *IgotPltSection
	Plt        *PltSection
	Iplt       *IpltSection
	RelDyn     *DynRelSection
	RelPlt     *DynRelSection
	RelIplt    *DynRelSection
	Dynamic    *DynamicSection
	Dynsym     *DynsymSection
	Dynstr     *StrtabSection
	Symtab     *SymtabSection
	Strtab     *StrtabSection
	Shstrtab   *StrtabSection
	HashSec    *HashSection
	GnuHashSec *GnuHashSection
	EhFrame    *EhFrameSection
	EhFrameHdr *EhFrameHdrSection
	BuildId    *BuildIdSection
	VerSym     *VerSymSection
	VerDef     *VerDefSection
	VerNeed    *VerNeedSection
	DebugIndex *DebugIndexSection
	Interp     *InterpSection
	Bss        *CommonSection
	TlsBss     *CommonSection
	Thunks     *ThunkSection

	// Architecture-specific synthetic sections, left nil on targets
	// that don't apply (spec.md §4.13-§4.15).
	MipsGot      *MipsGotSection
	MipsAbiFlags *MipsAbiFlagsSection
	MipsOptions  *MipsOptionsSection
	MipsRldMap   *MipsRldMapSection
	ArmExidxEnd  *ArmExidxSentinelSection
	CapRelocs    *CapRelocsSection

	TpAddr uint64

	OutputSections []*OutputSection

	Chunks []Chunker

	Objs           []*ObjectFile
	SymbolMap      map[string]*Symbol
	SymbolsAux     []SymbolAux
	MergedSections []*MergedSection
}

func NewContext() *Context {
	return &Context{
		Args: ContextArgs{
			Output:                 "a.out",
			Emulation:              MachineTypeNone,
			CapRelocsUndefinedWeak: true,
			BuildIdKind:            BuildIdKindNone,
		},
		SymbolMap: make(map[string]*Symbol),
	}
}
