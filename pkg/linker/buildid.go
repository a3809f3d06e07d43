package linker

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"debug/elf"
	"encoding/hex"
	"sync"

	"github.com/ksco/rvld/pkg/utils"
)

type BuildIdKind int

const (
	BuildIdKindNone BuildIdKind = iota
	BuildIdKindFast              // xxhash64, chunked in parallel
	BuildIdKindMd5
	BuildIdKindSha1
	BuildIdKindUuid
	BuildIdKindHex // caller-supplied literal bytes
)

// buildIdChunkSize is the granularity fastDigest splits the final
// output image into for parallel hashing (spec.md §4.10 "chunked
// parallel hashing"); 1 MiB balances goroutine overhead against giving
// every core a useful amount of work on typical output sizes.
const buildIdChunkSize = 1 << 20

// BuildIdSection is ".note.gnu.build-id": an ELF note wrapping a
// fixed-size identifier computed from (in the Fast/Md5/Sha1 cases) the
// fully laid-out output image, which is why it must be finalized after
// every other section is sized and placed but filled in only once the
// image bytes themselves exist.
type BuildIdSection struct {
	Chunk
	Kind    BuildIdKind
	HexBytes []byte // for BuildIdKindHex
	size    int
}

func NewBuildIdSection(kind BuildIdKind, hexBytes []byte) *BuildIdSection {
	b := &BuildIdSection{Chunk: NewChunk(), Kind: kind, HexBytes: hexBytes}
	b.Name = ".note.gnu.build-id"
	b.Shdr.Type = uint32(elf.SHT_NOTE)
	b.Shdr.Flags = uint64(elf.SHF_ALLOC)
	b.Shdr.AddrAlign = 4

	switch kind {
	case BuildIdKindMd5:
		b.size = md5.Size
	case BuildIdKindSha1:
		b.size = sha1.Size
	case BuildIdKindFast, BuildIdKindUuid:
		b.size = 16
	case BuildIdKindHex:
		b.size = len(hexBytes)
	}
	return b
}

func (b *BuildIdSection) IsEmpty() bool { return b.Kind == BuildIdKindNone }

func (b *BuildIdSection) UpdateShdr(ctx *Context) {
	if b.Kind == BuildIdKindNone {
		b.Shdr.Size = 0
		return
	}
	// note layout: namesz(4) descsz(4) type(4) "GNU\0"(4) desc(descsz)
	b.Shdr.Size = 16 + uint64(b.size)
}

// Finalize computes the digest over the fully-laid-out image and writes
// the note. Called once after every other section's CopyBuf has run
// (spec.md §4.10 "depends on every other section's final bytes").
func (b *BuildIdSection) Finalize(ctx *Context) {
	if b.Kind == BuildIdKindNone {
		return
	}

	var desc []byte
	switch b.Kind {
	case BuildIdKindHex:
		desc = b.HexBytes
	case BuildIdKindUuid:
		desc = make([]byte, 16)
		_, err := rand.Read(desc)
		if err != nil {
			utils.Fatal(err)
		}
		desc[6] = (desc[6] & 0x0f) | 0x40 // version 4
		desc[8] = (desc[8] & 0x3f) | 0x80 // variant 10
	case BuildIdKindMd5:
		sum := md5.Sum(b.imageExcludingSelf(ctx))
		desc = sum[:]
	case BuildIdKindSha1:
		sum := sha1.Sum(b.imageExcludingSelf(ctx))
		desc = sum[:]
	case BuildIdKindFast:
		desc = fastDigest(b.imageExcludingSelf(ctx))
	}

	buf := ctx.Buf[b.Shdr.Offset:]
	order := ctx.Format.ByteOrder()
	order.PutUint32(buf[0:], 4)             // namesz
	order.PutUint32(buf[4:], uint32(len(desc))) // descsz
	order.PutUint32(buf[8:], elfNoteGnuBuildId)
	copy(buf[12:], []byte("GNU\x00"))
	copy(buf[16:], desc)
}

const elfNoteGnuBuildId = 3 // NT_GNU_BUILD_ID

// imageExcludingSelf hands back the complete output buffer with this
// note's own descriptor bytes zeroed, so the hash doesn't depend on
// itself.
func (b *BuildIdSection) imageExcludingSelf(ctx *Context) []byte {
	desc := ctx.Buf[b.Shdr.Offset+16 : b.Shdr.Offset+b.Shdr.Size]
	for i := range desc {
		desc[i] = 0
	}
	return ctx.Buf
}

// fastDigest hashes data in buildIdChunkSize chunks across goroutines
// and folds the per-chunk digests together, the parallel-hashing scheme
// spec.md §4.10 calls for.
func fastDigest(data []byte) []byte {
	nchunks := (len(data) + buildIdChunkSize - 1) / buildIdChunkSize
	if nchunks == 0 {
		nchunks = 1
	}
	sums := make([]uint64, nchunks)

	var wg sync.WaitGroup
	for i := 0; i < nchunks; i++ {
		start := i * buildIdChunkSize
		end := start + buildIdChunkSize
		if end > len(data) {
			end = len(data)
		}
		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			sums[i] = xxhash64(data[start:end], uint64(i))
		}(i, start, end)
	}
	wg.Wait()

	var final uint64
	for _, s := range sums {
		final = final*xxPrime1 + s
	}

	out := make([]byte, 16)
	copy(out[0:8], uint64ToLeBytes(final))
	copy(out[8:16], uint64ToLeBytes(xxhash64(out[0:8], final)))
	return out
}

func uint64ToLeBytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

// ParseBuildIdKind maps the --build-id[=kind] CLI argument to a
// BuildIdKind, following the same fast/md5/sha1/uuid/hex vocabulary the
// engine's corpus uses for this flag.
func ParseBuildIdKind(s string) (BuildIdKind, []byte) {
	switch s {
	case "", "fast":
		return BuildIdKindFast, nil
	case "md5":
		return BuildIdKindMd5, nil
	case "sha1", "sha-1":
		return BuildIdKindSha1, nil
	case "uuid":
		return BuildIdKindUuid, nil
	default:
		raw, err := hex.DecodeString(s)
		if err != nil {
			utils.Fatal("invalid --build-id argument: " + s)
		}
		return BuildIdKindHex, raw
	}
}
