package linker

import "debug/elf"

// gnuHashBucketSizes is the prime ladder GNU-hash implementations pick a
// bucket count from, largest-first so the first entry not exceeding the
// symbol count wins (spec.md §4.8; original_source's getBucketSize table).
var gnuHashBucketSizes = []uint32{
	131071, 65521, 32749, 16381, 8191, 4093, 2039, 1021, 509,
	251, 127, 61, 31, 13, 7, 3, 1,
}

// elfHash is the classic SysV ".hash" function (spec.md §4.8).
func elfHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
			h &^= g
		}
	}
	return h
}

// gnuHash is the GNU ".gnu.hash" hash function (spec.md §4.8), distinct
// from elfHash: djb2-style with seed 5381.
func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

// HashSection is the classic SysV ".hash": a bucket array plus a chain
// array the same length as the dynsym table (including the null entry).
type HashSection struct {
	Chunk
	dynsym *DynsymSection
}

func NewHashSection(dynsym *DynsymSection) *HashSection {
	h := &HashSection{Chunk: NewChunk(), dynsym: dynsym}
	h.Name = ".hash"
	h.Shdr.Type = uint32(elf.SHT_HASH)
	h.Shdr.Flags = uint64(elf.SHF_ALLOC)
	h.Shdr.AddrAlign = 8
	h.Shdr.EntSize = 4
	return h
}

func (h *HashSection) numBuckets() uint32 {
	n := uint32(len(h.dynsym.Symbols()) + 1)
	if n < 3 {
		return 1
	}
	return n / 2 // matches the original_source heuristic for small tables
}

func (h *HashSection) UpdateShdr(ctx *Context) {
	nsyms := uint32(len(h.dynsym.Symbols()) + 1)
	h.Shdr.Size = uint64(2+h.numBuckets()+nsyms) * 4
	h.Shdr.Link = uint32(h.dynsym.Shndx)
}

func (h *HashSection) CopyBuf(ctx *Context) {
	nsyms := uint32(len(h.dynsym.Symbols()) + 1)
	nbuckets := h.numBuckets()
	buckets := make([]uint32, nbuckets)
	chains := make([]uint32, nsyms)

	for i, sym := range h.dynsym.Symbols() {
		idx := uint32(i + 1)
		b := elfHash(sym.Name) % nbuckets
		chains[idx] = buckets[b]
		buckets[b] = idx
	}

	order := ctx.Format.ByteOrder()
	buf := ctx.Buf[h.Shdr.Offset:]
	order.PutUint32(buf[0:], nbuckets)
	order.PutUint32(buf[4:], nsyms)
	off := 8
	for _, b := range buckets {
		order.PutUint32(buf[off:], b)
		off += 4
	}
	for _, c := range chains {
		order.PutUint32(buf[off:], c)
		off += 4
	}
}

// GnuHashSection is ".gnu.hash": a bloom filter gating buckets of
// exported symbols, chosen from a prime ladder (spec.md §4.8). Requires
// DynsymSection.ApplyHashOrder to have already sorted the hashed suffix
// into bucket order; this section computes that order and hands it back
// during the finalize pass orchestrated in passes.go.
type GnuHashSection struct {
	Chunk
	dynsym     *DynsymSection
	shift2     uint32
	nbuckets   uint32
	bloomWords uint32
	symOffset  uint32
}

func NewGnuHashSection(dynsym *DynsymSection) *GnuHashSection {
	g := &GnuHashSection{Chunk: NewChunk(), dynsym: dynsym, shift2: 6, bloomWords: 1}
	g.Name = ".gnu.hash"
	g.Shdr.Type = uint32(elf.SHT_GNU_HASH)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC)
	g.Shdr.AddrAlign = 8
	return g
}

// ComputeOrder picks the bucket count from the prime ladder and returns
// the dynsym permutation (old indices, bucket order) DynsymSection.
// ApplyHashOrder expects. symOffset is the index of the first hashed
// (exported) symbol; anything before it (e.g. imported-only entries) is
// left out of the hash.
func (g *GnuHashSection) ComputeOrder(ctx *Context, symOffset int) []int32 {
	syms := g.dynsym.Symbols()[symOffset:]
	g.symOffset = uint32(symOffset)
	for _, n := range gnuHashBucketSizes {
		if n <= uint32(len(syms)) {
			g.nbuckets = n
			break
		}
	}
	if g.nbuckets == 0 {
		g.nbuckets = 1
	}

	// Bloom filter sized as the next power of two of (nsyms-1)/wordsize,
	// at least one word (spec.md §4.8).
	nsyms := uint32(len(syms))
	ws := uint32(ctx.Format.WordSize())
	g.bloomWords = 1
	if nsyms > 1 {
		need := (nsyms - 1) / ws
		w := uint32(1)
		for w < need {
			w <<= 1
		}
		g.bloomWords = w
	}

	type entry struct {
		idx    int32
		bucket uint32
		hash   uint32
	}
	entries := make([]entry, len(syms))
	for i, sym := range syms {
		h := gnuHash(sym.Name)
		entries[i] = entry{int32(symOffset + i), h % g.nbuckets, h}
	}
	// stable sort by bucket keeps ties in original registration order,
	// which .gnu.hash's "last entry in a bucket has its low bit set"
	// terminator convention depends on.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].bucket < entries[j-1].bucket; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	order := make([]int32, len(entries))
	for i, e := range entries {
		order[i] = e.idx
	}
	return order
}

func (g *GnuHashSection) UpdateShdr(ctx *Context) {
	nsyms := uint32(len(g.dynsym.Symbols()))
	g.Shdr.Size = uint64(4*4 + int(g.bloomWords)*ctx.Format.WordSize() + int(g.nbuckets)*4 + int(nsyms-g.symOffset)*4)
	g.Shdr.Link = uint32(g.dynsym.Shndx)
}

func (g *GnuHashSection) CopyBuf(ctx *Context) {
	syms := g.dynsym.Symbols()
	ws := ctx.Format.WordSize()
	order := ctx.Format.ByteOrder()
	buf := ctx.Buf[g.Shdr.Offset:]

	order.PutUint32(buf[0:], g.nbuckets)
	order.PutUint32(buf[4:], g.symOffset)
	order.PutUint32(buf[8:], g.bloomWords)
	order.PutUint32(buf[12:], g.shift2)

	bloomOff := 16
	bloom := make([]uint64, g.bloomWords)
	hashes := make([]uint32, len(syms)-int(g.symOffset))
	for i := g.symOffset; i < uint32(len(syms)); i++ {
		h := gnuHash(syms[i].Name)
		hashes[i-g.symOffset] = h
		word := (h / uint32(ws*8)) % g.bloomWords
		bloom[word] |= 1 << (h % uint32(ws*8))
		bloom[word] |= 1 << ((h >> g.shift2) % uint32(ws*8))
	}
	for i, w := range bloom {
		if ws == 8 {
			order.PutUint64(buf[bloomOff+i*ws:], w)
		} else {
			order.PutUint32(buf[bloomOff+i*ws:], uint32(w))
		}
	}

	bucketsOff := bloomOff + int(g.bloomWords)*ws
	buckets := make([]uint32, g.nbuckets)
	chainVals := make([]uint32, len(hashes))
	for i, h := range hashes {
		b := h % g.nbuckets
		if buckets[b] == 0 {
			buckets[b] = g.symOffset + uint32(i)
		}
		chainVals[i] = h &^ 1
	}
	// mark the last entry of every bucket with the low bit set
	for b := uint32(0); b < g.nbuckets; b++ {
		last := -1
		for i, h := range hashes {
			if h%g.nbuckets == b {
				last = i
			}
		}
		if last >= 0 {
			chainVals[last] |= 1
		}
	}
	for i, b := range buckets {
		order.PutUint32(buf[bucketsOff+i*4:], b)
	}
	chainsOff := bucketsOff + int(g.nbuckets)*4
	for i, c := range chainVals {
		order.PutUint32(buf[chainsOff+i*4:], c)
	}
}
