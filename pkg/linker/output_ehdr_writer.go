package linker

import (
	"debug/elf"

	"coldld/pkg/utils"
)

type OutputEhdrWriter struct {
	OutputWriter
}

func NewOutputEhdrWriter() *OutputEhdrWriter {
	return &OutputEhdrWriter{
		OutputWriter: OutputWriter{
			Name: "ehdr",
			Shdr: Shdr{
				Flags:     uint64(elf.SHF_ALLOC),
				Size:      uint64(EhdrSize),
				AddrAlign: 8,
			},
		},
	}
}

func getEntryAddress(ctx *Context) uint64 {
	if ctx.Args.Shared {
		return 0
	}
	if sym, ok := ctx.SymbolMap["_start"]; ok && !sym.IsUndef() {
		return sym.GetAddr(ctx)
	}
	for _, osec := range ctx.OutputSections {
		if osec.Name == ".text" {
			return osec.Shdr.Addr
		}
	}
	return 0
}

func (o *OutputEhdrWriter) CopyBuf(ctx *Context) error {
	ehdr := Ehdr{}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	ehdr.Ident[elf.EI_OSABI] = 0
	ehdr.Ident[elf.EI_ABIVERSION] = 0

	if ctx.IsPic() {
		ehdr.Type = uint16(elf.ET_DYN)
	} else {
		ehdr.Type = uint16(elf.ET_EXEC)
	}
	ehdr.Machine = uint16(elf.EM_X86_64)
	ehdr.Version = uint32(elf.EV_CURRENT)
	ehdr.Entry = getEntryAddress(ctx)
	ehdr.PhOff = ctx.Phdr.Shdr.Offset
	ehdr.ShOff = ctx.Shdr.Shdr.Offset
	ehdr.EhSize = uint16(EhdrSize)
	ehdr.PhEntSize = uint16(PhdrSize)
	ehdr.PhNum = uint16(ctx.Phdr.Shdr.Size / uint64(PhdrSize))
	ehdr.ShEntSize = uint16(ShdrSize)
	ehdr.ShNum = uint16(ctx.Shdr.Shdr.Size / uint64(ShdrSize))
	ehdr.ShStrndx = uint16(ctx.Shstrtab.Shndx)

	utils.Write[Ehdr](ctx.Buf[o.Shdr.Offset:], ehdr)
	return nil
}
