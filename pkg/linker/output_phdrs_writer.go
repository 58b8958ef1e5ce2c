package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

type OutputPhdrsWriter struct {
	OutputWriter
	Phdrs []Phdr
}

func NewOutputPhdrsWriter() *OutputPhdrsWriter {
	o := &OutputPhdrsWriter{OutputWriter: *NewOutputWriter()}
	o.Name = "phdr"
	o.Shdr.Flags = uint64(elf.SHF_ALLOC)
	o.Shdr.AddrAlign = 8
	return o
}

// UpdateShdr sizes the table before layout; the segment records are
// rebuilt with final addresses once layout has run. Grouping depends
// only on chunk order and flags, so the count cannot change between
// the two runs.
func (o *OutputPhdrsWriter) UpdateShdr(ctx *Context) {
	o.createPhdrs(ctx)
	o.Shdr.Size = uint64(len(o.Phdrs)) * uint64(PhdrSize)
}

func (o *OutputPhdrsWriter) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	for _, phdr := range o.Phdrs {
		utils.Write[Phdr](base, phdr)
		base = base[PhdrSize:]
	}
	return nil
}

func isBSS(w iOutputWriter) bool {
	return w.GetShdr().Type == uint32(elf.SHT_NOBITS)
}

func isAlloc(w iOutputWriter) bool {
	return w.GetShdr().Flags&uint64(elf.SHF_ALLOC) != 0
}

// loadFlags groups chunks into the two loadable images: everything
// read-only or executable shares the R-X segment, writable chunks form
// the R-W segment.
func loadFlags(w iOutputWriter) uint32 {
	if w.GetShdr().Flags&uint64(elf.SHF_WRITE) != 0 {
		return uint32(elf.PF_R | elf.PF_W)
	}
	return uint32(elf.PF_R | elf.PF_X)
}

func (o *OutputPhdrsWriter) createPhdrs(ctx *Context) {
	o.Phdrs = make([]Phdr, 0)

	define := func(typ, flags uint32, minAlign uint64, w iOutputWriter) {
		o.Phdrs = append(o.Phdrs, Phdr{})
		phdr := &o.Phdrs[len(o.Phdrs)-1]
		phdr.Type = typ
		phdr.Flags = flags
		phdr.Align = max(minAlign, w.GetShdr().AddrAlign)
		phdr.Offset = w.GetShdr().Offset
		if !isBSS(w) {
			phdr.FileSize = w.GetShdr().Size
		}
		phdr.VAddr = w.GetShdr().Addr
		phdr.PAddr = w.GetShdr().Addr
		phdr.MemSize = w.GetShdr().Size
	}

	push := func(w iOutputWriter) {
		phdr := &o.Phdrs[len(o.Phdrs)-1]
		phdr.Align = max(phdr.Align, w.GetShdr().AddrAlign)
		if !isBSS(w) {
			phdr.FileSize = w.GetShdr().Addr + w.GetShdr().Size - phdr.VAddr
		}
		phdr.MemSize = w.GetShdr().Addr + w.GetShdr().Size - phdr.VAddr
	}

	define(uint32(elf.PT_PHDR), uint32(elf.PF_R), 8, o)
	if ctx.Interp != nil {
		define(uint32(elf.PT_INTERP), uint32(elf.PF_R), 1, ctx.Interp)
	}

	chunks := make([]iOutputWriter, 0, len(ctx.Chunks))
	for _, chunk := range ctx.Chunks {
		if isAlloc(chunk) {
			chunks = append(chunks, chunk)
		}
	}

	for i := 0; i < len(chunks); {
		first := chunks[i]
		flags := loadFlags(first)
		define(uint32(elf.PT_LOAD), flags, PageSize, first)
		i++
		for i < len(chunks) && loadFlags(chunks[i]) == flags && !isBSS(chunks[i]) {
			push(chunks[i])
			i++
		}
		for i < len(chunks) && loadFlags(chunks[i]) == flags && isBSS(chunks[i]) {
			push(chunks[i])
			i++
		}
	}

	if ctx.Dynamic != nil {
		define(uint32(elf.PT_DYNAMIC), uint32(elf.PF_R|elf.PF_W), 8, ctx.Dynamic)
	}
}
