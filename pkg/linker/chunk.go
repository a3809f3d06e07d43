package linker

// Go 语言限制，不支持基类指针，所以用 interface 方式实现
// 所有以 Chunk 为基类的类都需要实现以下的虚函数
type Chunker interface {
	GetName() string
	GetShdr() *Shdr
	GetShndx() int64
	UpdateShdr(ctx *Context)
	CopyBuf(ctx *Context)
	IsEmpty() bool
}

// Chunk 本身作为一个基类
// @Shndx: 本 chunk 在最终 section header table 中的下标，-1 表示尚未分配
type Chunk struct {
	Name  string
	Shdr  Shdr
	Shndx int64
}

func NewChunk() Chunk {
	// 默认 AddrAilign 为 1，即 1 字节对齐
	return Chunk{Shdr: Shdr{AddrAlign: 1}, Shndx: -1}
}

func (c *Chunk) GetName() string {
	return c.Name
}

func (c *Chunk) GetShdr() *Shdr {
	return &c.Shdr
}

func (c *Chunk) GetShndx() int64 {
	return c.Shndx
}

func (c *Chunk) UpdateShdr(ctx *Context) {}

func (c *Chunk) CopyBuf(ctx *Context) {}

// IsEmpty is the default "has nothing to contribute" check every
// synthetic section gets for free; sections whose emptiness can't be
// read off Shdr.Size alone (e.g. one that always emits a terminator)
// override it.
func (c *Chunk) IsEmpty() bool {
	return c.Shdr.Size == 0
}
